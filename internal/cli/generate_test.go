package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futureCreator/minilun/internal/history"
	"github.com/futureCreator/minilun/internal/models"
)

const fastPipeline = `name: fast
stages:
  - name: Refine
    adapter: template
    model: $refiner
    input: text
    output: text
    options:
      template: "Cinematic 4k masterwork of {{.Prompt}}, hyper-realistic, volumetric lighting, 8k resolution."
  - name: Image
    adapter: template
    model: $image
    input: text
    output: image
    retainable: true
    options:
      template: "IMAGE_DATA_FOR_{{.Prompt}}"
  - name: Video
    adapter: template
    model: $video
    input: image
    output: video
    options:
      template: "VIDEO_DATA_FROM_{{.Input}}_WITH_PROMPT_{{.Prompt}}"
`

const brokenPipeline = `name: broken
stages:
  - name: Refine
    adapter: template
    input: text
    output: text
  - name: Image
    adapter: command
    input: text
    output: image
    options:
      command: "echo 'no GPU available' >&2; exit 3"
  - name: Video
    adapter: template
    input: image
    output: video
`

// setupProject creates an isolated project directory with fast pipelines
// and returns its path and the work dir used for intermediates.
func setupProject(t *testing.T) (string, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)

	work := filepath.Join(dir, "work")
	pdir := filepath.Join(dir, ".minilun", "pipelines")
	require.NoError(t, os.MkdirAll(pdir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pdir, "fast.yaml"), []byte(fastPipeline), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(pdir, "broken.yaml"), []byte(brokenPipeline), 0644))
	cfg := "work_dir: " + work + "\nmetrics:\n  textfile: metrics/minilun.prom\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".minilun", "config.yaml"), []byte(cfg), 0644))

	t.Cleanup(resetFlags)
	return dir, work
}

func resetFlags() {
	configPath = ""
	genOutput, genKeepImage, genPipeline, genVerbose = "", false, "", false
	batchOutDir, batchKeepImage, batchPipeline, batchJobs = "out", false, "", 0
	scriptOutput, statsLimit, initMinimal = models.ScriptName, 10, false
	rootCmd.SetArgs(nil)
	rootCmd.SetOut(nil)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := Execute(context.Background())
	return out.String(), err
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestGenerate_EndToEnd(t *testing.T) {
	dir, work := setupProject(t)

	_, err := execute(t, "generate", "-p", "fast", "-o", "final.mp4", "a", "cat", "on", "a", "skateboard")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "final.mp4"))
	require.NoError(t, err)
	refined := "Cinematic 4k masterwork of a cat on a skateboard, hyper-realistic, volumetric lighting, 8k resolution."
	assert.Equal(t, "VIDEO_DATA_FROM_IMAGE_DATA_FOR_"+refined+"_WITH_PROMPT_"+refined, string(data))
	assert.Empty(t, listDir(t, work))

	prom, err := os.ReadFile(filepath.Join(dir, "metrics", "minilun.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), `minilun_runs_total{pipeline="fast",status="succeeded"} 1`)

	store, err := history.Open(filepath.Join(dir, ".minilun", "history.db"))
	require.NoError(t, err)
	defer store.Close()
	recs, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a cat on a skateboard", recs[0].Prompt)
}

func TestGenerate_KeepImage(t *testing.T) {
	_, work := setupProject(t)

	_, err := execute(t, "generate", "-p", "fast", "-o", "final.mp4", "--keep-image", "lighthouse")
	require.NoError(t, err)

	kept := listDir(t, work)
	require.Len(t, kept, 1)
	assert.True(t, strings.HasSuffix(kept[0], ".png"), kept[0])
}

func TestGenerate_StageFailure(t *testing.T) {
	dir, work := setupProject(t)

	out, err := execute(t, "generate", "-p", "broken", "-o", "final.mp4", "anything")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), `stage "Image" failed: `), err.Error())
	assert.Contains(t, err.Error(), "no GPU available")
	assert.Contains(t, out, "PIPELINE ERROR after")
	assert.NotContains(t, out, "no GPU available")
	assert.NoFileExists(t, filepath.Join(dir, "final.mp4"))
	assert.Empty(t, listDir(t, work))
}

func TestGenerate_UnknownPipeline(t *testing.T) {
	setupProject(t)

	_, err := execute(t, "generate", "-p", "nope", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `pipeline "nope" not found`)
}

func TestBatch_EndToEnd(t *testing.T) {
	dir, work := setupProject(t)
	prompts := "# storyboard\na cat on a skateboard\n\na lighthouse at dusk\nneon city\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts.txt"), []byte(prompts), 0644))

	out, err := execute(t, "batch", "-p", "fast", "-j", "3", "--out-dir", "videos", "prompts.txt")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"01-a-cat-on-a-skateboard.mp4",
		"02-a-lighthouse-at-dusk.mp4",
		"03-neon-city.mp4",
	}, listDir(t, filepath.Join(dir, "videos")))
	assert.Empty(t, listDir(t, work))
	assert.Contains(t, out, "3/3 succeeded")
}

func TestBatch_ReportsFailures(t *testing.T) {
	dir, _ := setupProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts.txt"), []byte("one\ntwo\n"), 0644))

	out, err := execute(t, "batch", "-p", "broken", "prompts.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2 runs failed")
	assert.Contains(t, out, `stage "Image" failed`)
}

func TestStats_AfterRun(t *testing.T) {
	setupProject(t)

	out, err := execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs found.")

	_, err = execute(t, "generate", "-p", "fast", "-o", "final.mp4", "a cat")
	require.NoError(t, err)

	out, err = execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Runs: 1 total, 1 succeeded, 0 failed")
	assert.Contains(t, out, "Refine")
	assert.Contains(t, out, "a cat")
}

func TestModelsScriptToStdout(t *testing.T) {
	setupProject(t)

	out, err := execute(t, "models", "script", "-o", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "hf_hub_download")
}

func TestModelsCheck_MissingRequired(t *testing.T) {
	setupProject(t)

	out, err := execute(t, "models", "check")
	require.Error(t, err)
	assert.Contains(t, out, "nlp")
	assert.Contains(t, err.Error(), "1 required model(s) missing")
}

func TestDoctor_MissingRequiredModel(t *testing.T) {
	setupProject(t)

	out, err := execute(t, "doctor")
	require.Error(t, err)
	assert.Contains(t, out, "✅ config valid")
	assert.Contains(t, out, "❌ model nlp")
	assert.Contains(t, out, "⚠️  model image")
	assert.Contains(t, out, "Some checks failed")
}

func installRequiredModel(t *testing.T, dir string) {
	t.Helper()
	mdir := filepath.Join(dir, "models")
	require.NoError(t, os.MkdirAll(mdir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(mdir, "Meta-Llama-3-8B-Instruct.Q4_K_M.gguf"), []byte("gguf"), 0644))
}

func TestDoctor_TemplatePipelineSkipsAPIKey(t *testing.T) {
	dir, _ := setupProject(t)
	installRequiredModel(t, dir)
	t.Setenv("MINILUN_API_KEY", "")

	out, err := execute(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "✅ model nlp")
	assert.NotContains(t, out, "MINILUN_API_KEY")
	assert.Contains(t, out, "All checks passed")
}

func TestDoctor_HTTPPipelineNeedsAPIKey(t *testing.T) {
	dir, _ := setupProject(t)
	installRequiredModel(t, dir)
	extra := filepath.Join(dir, "service.yaml")
	require.NoError(t, os.WriteFile(extra, []byte("default_pipeline: service\n"), 0644))

	t.Setenv("MINILUN_API_KEY", "")
	out, err := execute(t, "doctor", "--config", extra)
	require.Error(t, err)
	assert.Contains(t, out, `✅ pipeline "service" valid`)
	assert.Contains(t, out, "❌ MINILUN_API_KEY set")

	t.Setenv("MINILUN_API_KEY", "secret")
	out, err = execute(t, "doctor", "--config", extra)
	require.NoError(t, err)
	assert.Contains(t, out, "✅ MINILUN_API_KEY set")
}
