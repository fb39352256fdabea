package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Dir is the name of the per-user and per-project configuration directory.
const Dir = ".minilun"

// Config is the top-level configuration structure.
type Config struct {
	DefaultPipeline string          `yaml:"default_pipeline"`
	Output          string          `yaml:"output"`
	WorkDir         string          `yaml:"work_dir"`
	StageTimeout    string          `yaml:"stage_timeout"`
	Roles           RolesConfig     `yaml:"roles"`
	Service         ServiceConfig   `yaml:"service"`
	Models          ModelsConfig    `yaml:"models"`
	Batch           BatchConfig     `yaml:"batch"`
	History         HistoryConfig   `yaml:"history"`
	Metrics         MetricsConfig   `yaml:"metrics"`
	Telemetry       TelemetryConfig `yaml:"telemetry"`
	LogLevel        string          `yaml:"log_level"`
}

// RolesConfig maps the $refiner, $image and $video placeholders used in
// pipeline definitions to concrete model identifiers.
type RolesConfig struct {
	Refiner string `yaml:"refiner"`
	Image   string `yaml:"image"`
	Video   string `yaml:"video"`
}

// ServiceConfig describes the remote inference service used by the http adapter.
type ServiceConfig struct {
	Endpoint  string  `yaml:"endpoint"`
	APIKeyEnv string  `yaml:"api_key_env"`
	Timeout   string  `yaml:"timeout"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

type ModelsConfig struct {
	Dir   string      `yaml:"dir"`
	Files []ModelFile `yaml:"files"`
}

// ModelFile is one entry of the provisioning manifest. An empty File means
// only the folder is expected to exist.
type ModelFile struct {
	Name     string `yaml:"name"`
	Repo     string `yaml:"repo"`
	File     string `yaml:"file,omitempty"`
	Folder   string `yaml:"folder,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
}

type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// HistoryConfig points at the sqlite run history. An empty path disables it.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig controls the Prometheus textfile export. An empty path disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if c.DefaultPipeline == "" {
		return fmt.Errorf("default_pipeline is required")
	}
	if c.Output == "" {
		return fmt.Errorf("output is required")
	}
	if _, err := parseDuration(c.StageTimeout); err != nil {
		return fmt.Errorf("stage_timeout: %w", err)
	}
	if _, err := parseDuration(c.Service.Timeout); err != nil {
		return fmt.Errorf("service.timeout: %w", err)
	}
	if c.Service.RateLimit < 0 {
		return fmt.Errorf("service.rate_limit must not be negative")
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be at least 1")
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry.sample_rate must be within [0, 1]")
		}
	}
	for i, m := range c.Models.Files {
		if m.Name == "" {
			return fmt.Errorf("models.files[%d].name is required", i)
		}
		if m.File == "" && m.Folder == "" {
			return fmt.Errorf("models.files[%d] (%s) needs a file or a folder", i, m.Name)
		}
	}
	return nil
}

// APIKey returns the resolved inference service API key.
func (c *Config) APIKey() string {
	if c.Service.APIKeyEnv == "" {
		return os.Getenv("MINILUN_API_KEY")
	}
	return os.Getenv(c.Service.APIKeyEnv)
}

// StageTimeoutDuration returns the fallback per-stage deadline. Zero means none.
func (c *Config) StageTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.StageTimeout)
	return d
}

// ServiceTimeout returns the HTTP client timeout for the inference service.
func (c *Config) ServiceTimeout() time.Duration {
	d, _ := parseDuration(c.Service.Timeout)
	if d == 0 {
		return 300 * time.Second
	}
	return d
}

// ResolveWorkDir returns the directory used for intermediate artifacts.
func (c *Config) ResolveWorkDir() string {
	if c.WorkDir == "" {
		return os.TempDir()
	}
	return c.WorkDir
}

// Load resolves config from project → user → defaults. A non-empty extra
// path is merged last and must exist.
func Load(extra string) (*Config, error) {
	cfg := Defaults()

	// user-level config
	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, Dir, "config.yaml")
		if err := mergeFile(cfg, userPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	// project-level config
	projectPath := filepath.Join(Dir, "config.yaml")
	if err := mergeFile(cfg, projectPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	if extra != "" {
		if err := mergeFile(cfg, extra); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", extra, err)
		}
	}

	return cfg, nil
}

func mergeFile(dst *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Defaults returns the built-in configuration. The embedded config.yaml
// template must stay in sync with it.
func Defaults() *Config {
	return &Config{
		DefaultPipeline: "default",
		Output:          "mini-lun-final.mp4",
		StageTimeout:    "10m",
		Roles: RolesConfig{
			Refiner: "llama-3-8b-instruct",
			Image:   "stable-diffusion-2-1-base",
			Video:   "cogvideox-2b-i2v",
		},
		Service: ServiceConfig{
			Endpoint:  "http://localhost:8188",
			APIKeyEnv: "MINILUN_API_KEY",
			Timeout:   "300s",
			RateLimit: 2,
			Burst:     1,
		},
		Models: ModelsConfig{
			Dir: "models",
			Files: []ModelFile{
				{
					Name: "nlp",
					Repo: "QuantFactory/Meta-Llama-3-8B-Instruct-GGUF",
					File: "Meta-Llama-3-8B-Instruct.Q4_K_M.gguf",
				},
				{
					Name:     "image",
					Repo:     "stabilityai/stable-diffusion-2-1-base",
					File:     "v2-1_512-ema-pruned.safetensors",
					Optional: true,
				},
				{
					Name:     "video",
					Repo:     "THUDM/CogVideoX-2b",
					Folder:   "cogvideox-i2v",
					Optional: true,
				},
			},
		},
		Batch: BatchConfig{
			Concurrency: 2,
		},
		History: HistoryConfig{
			Path: filepath.Join(Dir, "history.db"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "minilun",
			SampleRate:   1,
		},
		LogLevel: "info",
	}
}
