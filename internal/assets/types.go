package assets

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetkit/internal/bundle"
)

var (
	ErrNoEntryPoints = errors.New("no entry points configured")
	ErrBuildFailed   = errors.New("esbuild failed with errors")
)

// BuildMetadata is the subset of the esbuild metafile the pipeline reads.
type BuildMetadata struct {
	Outputs map[string]OutputInfo `json:"outputs"`
}

type OutputInfo struct {
	Bytes      int          `json:"bytes"`
	EntryPoint string       `json:"entryPoint"`
	Imports    []ImportInfo `json:"imports"`
	CSSBundle  string       `json:"cssBundle,omitempty"`
}

type ImportInfo struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
}

// TotalBytes sums the size of every output.
func (m *BuildMetadata) TotalBytes() int {
	if m == nil {
		return 0
	}
	total := 0
	for _, out := range m.Outputs {
		total += out.Bytes
	}
	return total
}

// Result summarizes a single build.
type Result struct {
	BuildID  string
	Outputs  []string
	Bytes    int
	Errors   int
	Warnings int
	Emitted  bool
	Duration time.Duration
}

// Pipeline runs a bundle configuration through esbuild
type Pipeline struct {
	conf    *bundle.Configuration
	options api.BuildOptions
	workdir string
	outdir  string
	logger  zerolog.Logger

	emitter *emitter
	sass    *sassCompiler
	clean   *cleaner

	serving atomic.Bool

	mu       sync.RWMutex
	ctx      api.BuildContext
	buildID  string
	started  time.Time
	metadata *BuildMetadata
	last     *Result
}
