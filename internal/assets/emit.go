package assets

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetkit/internal/bundle"
)

var cssSourceMapURL = regexp.MustCompile(`/\*# sourceMappingURL=(\S+) \*/\s*$`)

// emitter writes esbuild output files to disk, moving stylesheets next to
// their extract-css location and adding compressed siblings and the manifest.
type emitter struct {
	outdir     string
	scriptsDir string
	stylesDir  string
	noEmit     bool
	logger     zerolog.Logger

	compressor *compressor
	manifest   *manifestWriter

	mu       sync.RWMutex
	rendered []byte
}

// emitted describes the outcome of a single emit.
type emitted struct {
	Files   []string
	Skipped bool
}

func newEmitter(conf *bundle.Configuration, outdir, entryNames string, logger zerolog.Logger) (*emitter, error) {
	e := &emitter{
		outdir:     outdir,
		scriptsDir: path.Dir(entryNames),
		logger:     logger,
	}

	if extract, ok := bundle.Find[bundle.ExtractCSS](conf.Plugins); ok {
		e.stylesDir = path.Dir(EntryNames(extract.Filename))
	}
	_, e.noEmit = bundle.Find[bundle.NoEmitOnErrors](conf.Plugins)

	if compress, ok := bundle.Find[bundle.Compress](conf.Plugins); ok {
		c, err := newCompressor(compress.Algorithms, compress.MinSize)
		if err != nil {
			return nil, err
		}
		e.compressor = c
	}

	if manifest, ok := bundle.Find[bundle.AssetsManifest](conf.Plugins); ok {
		if manifest.Output == "" {
			manifest.Output = bundle.ManifestOutput
		}
		m, err := newManifestWriter(manifest, entryNames)
		if err != nil {
			return nil, err
		}
		e.manifest = m
	}

	return e, nil
}

// relocate maps an esbuild output path to its path relative to the output
// directory, moving extracted stylesheets into the styles directory.
func (e *emitter) relocate(file string) (string, error) {
	rel, err := filepath.Rel(e.outdir, file)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output %s: %w", file, err)
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("output %s escapes the output directory", file)
	}

	if e.stylesDir == "" || e.stylesDir == e.scriptsDir {
		return rel, nil
	}
	if !strings.HasSuffix(rel, ".css") && !strings.HasSuffix(rel, ".css.map") {
		return rel, nil
	}
	if path.Dir(rel) != e.scriptsDir {
		return rel, nil
	}
	return path.Join(e.stylesDir, path.Base(rel)), nil
}

func (e *emitter) moved(file, rel string) bool {
	orig, err := filepath.Rel(e.outdir, file)
	return err == nil && filepath.ToSlash(orig) != rel
}

// relinkSourceMap points the trailing source map comment of a stylesheet at
// mapName, next to it. Inline maps are left alone.
func relinkSourceMap(contents []byte, mapName string) []byte {
	loc := cssSourceMapURL.FindSubmatchIndex(contents)
	if loc == nil || bytes.HasPrefix(contents[loc[2]:loc[3]], []byte("data:")) {
		return contents
	}
	out := make([]byte, 0, len(contents))
	out = append(out, contents[:loc[2]]...)
	out = append(out, mapName...)
	return append(out, contents[loc[3]:]...)
}

// emit writes the build outputs. While serving, the manifest is kept in
// memory unless the manifest plugin asks for it on disk.
func (e *emitter) emit(result api.BuildResult, serving bool) (*emitted, error) {
	if e.noEmit && len(result.Errors) > 0 {
		e.logger.Warn().Int("errors", len(result.Errors)).Msg("Skipping emit after build errors")
		return &emitted{Skipped: true}, nil
	}

	files := make(map[string][]byte, len(result.OutputFiles))
	for _, out := range result.OutputFiles {
		rel, err := e.relocate(out.Path)
		if err != nil {
			return nil, err
		}
		contents := out.Contents
		if strings.HasSuffix(rel, ".css") && e.moved(out.Path, rel) {
			contents = relinkSourceMap(contents, path.Base(rel)+".map")
		}
		files[rel] = contents
	}

	names := make([]string, 0, len(files))
	for rel := range files {
		names = append(names, rel)
	}
	sort.Strings(names)

	for _, rel := range names {
		siblings, err := e.compressor.siblings(rel, files[rel])
		if err != nil {
			return nil, err
		}
		for name, contents := range siblings {
			files[name] = contents
		}
	}

	if e.manifest != nil {
		doc, err := e.manifest.render(names)
		if err != nil {
			return nil, fmt.Errorf("failed to render manifest: %w", err)
		}
		e.mu.Lock()
		e.rendered = doc
		e.mu.Unlock()

		if !serving || e.manifest.plugin.WriteToDisk {
			files[e.manifest.plugin.Output] = doc
		}
	}

	written := make([]string, 0, len(files))
	for rel := range files {
		written = append(written, rel)
	}
	sort.Strings(written)

	for _, rel := range written {
		if err := e.write(rel, files[rel]); err != nil {
			return nil, err
		}
	}

	return &emitted{Files: written}, nil
}

func (e *emitter) write(rel string, contents []byte) error {
	target := filepath.Join(e.outdir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(target, contents, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}

// manifestDocument returns the last rendered manifest, nil before the first build.
func (e *emitter) manifestDocument() []byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rendered
}

func (e *emitter) close() {
	e.compressor.close()
}
