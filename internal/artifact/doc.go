// Package artifact manages the files handed from one pipeline stage to the next.
//
// A Store is scoped to a single run. Every artifact it creates is either
// released (deleted unless retained) exactly once or promoted to a caller-owned
// destination, after which the store forgets it.
package artifact
