package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/wolfeidau/assetkit/internal/bundle"
)

const serveHost = "127.0.0.1"

// Build runs a single build and waits for the outputs to be emitted.
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	bctx, err := p.context()
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, bctx.Cancel)
	defer stop()

	result := bctx.Rebuild()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := p.LastResult()
	if len(result.Errors) > 0 {
		return res, fmt.Errorf("%w: %s", ErrBuildFailed, result.Errors[0].Text)
	}
	return res, nil
}

// Watch starts incremental rebuilds and the esbuild live reload server. It
// returns the address the esbuild server listens on.
func (p *Pipeline) Watch(ctx context.Context) (string, error) {
	bctx, err := p.context()
	if err != nil {
		return "", err
	}

	p.serving.Store(true)

	if err := bctx.Watch(api.WatchOptions{}); err != nil {
		return "", fmt.Errorf("failed to start watch mode: %w", err)
	}

	served, err := bctx.Serve(api.ServeOptions{
		Host:     serveHost,
		Servedir: p.outdir,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start esbuild server: %w", err)
	}

	addr := net.JoinHostPort(serveHost, strconv.Itoa(int(served.Port)))
	p.logger.Info().Str("addr", addr).Msg("Watching assets")

	context.AfterFunc(ctx, bctx.Cancel)
	return addr, nil
}

// Close disposes the esbuild context and stops the sass compiler.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	bctx := p.ctx
	p.ctx = nil
	p.mu.Unlock()

	if bctx != nil {
		bctx.Dispose()
	}
	p.emitter.close()
	return p.sass.close()
}

// Manifest returns the last rendered asset manifest.
func (p *Pipeline) Manifest() []byte {
	return p.emitter.manifestDocument()
}

// LastResult returns the summary of the most recent build.
func (p *Pipeline) LastResult() *Result {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// EntryOutputs returns the emitted files of an entry, relative to the output
// directory, with the entry bundle first.
func (p *Pipeline) EntryOutputs(name string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.metadata == nil {
		return nil, errors.New("assets not built yet, call Build() first")
	}

	entryPoint := entryNamespace + ":" + name
	for outputPath, info := range p.metadata.Outputs {
		if info.EntryPoint != entryPoint {
			continue
		}

		files := []string{}
		rel, err := p.emitter.relocate(filepath.Join(p.workdir, outputPath))
		if err != nil {
			return nil, err
		}
		files = append(files, rel)

		if info.CSSBundle != "" {
			css, err := p.emitter.relocate(filepath.Join(p.workdir, info.CSSBundle))
			if err != nil {
				return nil, err
			}
			files = append(files, css)
		}
		return files, nil
	}

	return nil, fmt.Errorf("entry %q not found in build metadata", name)
}

func (p *Pipeline) context() (api.BuildContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		return p.ctx, nil
	}

	bctx, cerr := api.Context(p.options)
	if cerr != nil {
		return nil, fmt.Errorf("failed to create esbuild context: %s", contextErrors(cerr))
	}
	p.ctx = bctx
	return bctx, nil
}

func contextErrors(cerr *api.ContextError) string {
	if len(cerr.Errors) == 0 {
		return "unknown error"
	}
	texts := make([]string, 0, len(cerr.Errors))
	for _, msg := range cerr.Errors {
		texts = append(texts, msg.Text)
	}
	return strings.Join(texts, "; ")
}

func (p *Pipeline) lifecyclePlugin() api.Plugin {
	return api.Plugin{
		Name: "assetkit-lifecycle",
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				return api.OnStartResult{}, p.startBuild()
			})
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				return api.OnEndResult{}, p.endBuild(result)
			})
		},
	}
}

func (p *Pipeline) startBuild() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buildID = uuid.NewString()
	p.started = time.Now()

	removed, err := p.clean.run()
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		p.logger.Debug().Strs("removed", removed).Str("outdir", p.outdir).Msg("Cleaned output directory")
	}
	return nil
}

func (p *Pipeline) endBuild(result *api.BuildResult) error {
	p.mu.RLock()
	buildID, started := p.buildID, p.started
	p.mu.RUnlock()

	log := p.logger.With().Str("build_id", buildID).Logger()

	p.report(result)

	out, err := p.emitter.emit(*result, p.serving.Load())
	if err != nil {
		log.Error().Err(err).Msg("Failed to emit assets")
		return err
	}

	var metadata *BuildMetadata
	if result.Metafile != "" {
		metadata = &BuildMetadata{}
		if err := json.Unmarshal([]byte(result.Metafile), metadata); err != nil {
			return fmt.Errorf("failed to parse metafile: %w", err)
		}
	}

	res := &Result{
		BuildID:  buildID,
		Outputs:  out.Files,
		Bytes:    metadata.TotalBytes(),
		Errors:   len(result.Errors),
		Warnings: len(result.Warnings),
		Emitted:  !out.Skipped,
		Duration: time.Since(started),
	}

	p.mu.Lock()
	if metadata != nil {
		p.metadata = metadata
	}
	p.last = res
	p.mu.Unlock()

	if !p.conf.Stats.Quiet() {
		log.Info().
			Int("outputs", len(res.Outputs)).
			Int("bytes", res.Bytes).
			Int("warnings", res.Warnings).
			Int("errors", res.Errors).
			Dur("duration", res.Duration).
			Msg("Built assets")
	}
	return nil
}

// report logs build messages, formatted with source context when friendly
// errors are enabled.
func (p *Pipeline) report(result *api.BuildResult) {
	_, friendly := bundle.Find[bundle.FriendlyErrors](p.conf.Plugins)

	if !friendly {
		for _, msg := range result.Errors {
			p.logger.Error().Str("error", msg.Text).Msg("Build error")
		}
		if p.conf.Stats.Warnings {
			for _, msg := range result.Warnings {
				p.logger.Warn().Str("warning", msg.Text).Msg("Build warning")
			}
		}
		return
	}

	for _, text := range api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage, TerminalWidth: 100}) {
		p.logger.Error().Msg(strings.TrimSpace(text))
	}
	if p.conf.Stats.Warnings {
		for _, text := range api.FormatMessages(result.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage, TerminalWidth: 100}) {
			p.logger.Warn().Msg(strings.TrimSpace(text))
		}
	}
}

// Entries lists the entry names of the pipeline configuration.
func (p *Pipeline) Entries() []string {
	return p.conf.Entry.Names()
}
