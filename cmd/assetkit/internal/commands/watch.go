package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetkit/internal/assets"
	"github.com/wolfeidau/assetkit/internal/bundle"
	"github.com/wolfeidau/assetkit/internal/devserver"
	"github.com/wolfeidau/assetkit/internal/watcher"
)

// WatchCmd rebuilds on change and serves the output through the dev server.
type WatchCmd struct {
	ConfigFlags
	WaitUpstream bool          `help:"Wait for the proxied application before serving." default:"true" negatable:""`
	WaitTimeout  time.Duration `help:"How long to wait for the proxied application." default:"30s"`
}

func (c *WatchCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := c.assemble(true)
	if err != nil {
		return err
	}

	srv, err := devserver.New(conf, log.Logger, devserver.WithWaitTimeout(c.WaitTimeout))
	if err != nil {
		return fmt.Errorf("failed to create dev server: %w", err)
	}

	pipeline, err := startPipeline(ctx, conf, srv)
	if err != nil {
		return err
	}
	defer func() {
		closePipeline(pipeline)
	}()

	if c.WaitUpstream {
		if err := srv.WaitForUpstream(ctx); err != nil {
			log.Warn().Err(err).Msg("Serving without the proxied application")
		}
	}

	httpServer := configureHTTPServer(srv.Addr(), srv.Handler())
	// live reload event streams stay open between rebuilds
	httpServer.WriteTimeout = 0

	errc := make(chan error, 2)
	go func() {
		log.Info().Str("addr", "http://"+srv.Addr()).Msg("Dev server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("dev server failed: %w", err)
		}
	}()

	reloads := make(chan struct{}, 1)
	go func() {
		err := watcher.Watch(ctx, []string{c.Config}, watcher.Options{Logger: log.Logger}, func(event watcher.Event) {
			select {
			case reloads <- struct{}{}:
			default:
			}
		})
		if err != nil {
			errc <- fmt.Errorf("config watcher failed: %w", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errc:
			return err
		case <-reloads:
			next, err := c.reload(ctx, srv)
			if err != nil {
				log.Error().Err(err).Msg("Keeping the previous configuration")
				continue
			}
			closePipeline(pipeline)
			pipeline = next
		}
	}
}

// reload reassembles the configuration and points the dev server at a fresh
// pipeline. The listener and proxy settings are kept.
func (c *WatchCmd) reload(ctx context.Context, srv *devserver.Server) (*assets.Pipeline, error) {
	log.Info().Str("config", c.Config).Msg("Configuration changed, restarting build")

	conf, err := c.assemble(true)
	if err != nil {
		return nil, err
	}
	return startPipeline(ctx, conf, srv)
}

func startPipeline(ctx context.Context, conf *bundle.Configuration, srv *devserver.Server) (*assets.Pipeline, error) {
	pipeline, err := assets.New(conf, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	addr, err := pipeline.Watch(ctx)
	if err != nil {
		closePipeline(pipeline)
		return nil, err
	}

	if err := srv.SetTarget(addr, pipeline); err != nil {
		closePipeline(pipeline)
		return nil, err
	}
	return pipeline, nil
}

func closePipeline(pipeline *assets.Pipeline) {
	if err := pipeline.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close pipeline")
	}
}
