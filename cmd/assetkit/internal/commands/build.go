package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetkit/internal/assets"
)

// BuildCmd runs a single build and writes the output directory.
type BuildCmd struct {
	ConfigFlags
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := c.assemble(false)
	if err != nil {
		return err
	}

	log.Info().
		Str("mode", string(conf.Mode)).
		Str("context", conf.Context).
		Str("output", conf.Output.Path).
		Msg("Building assets")

	pipeline, err := assets.New(conf, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close pipeline")
		}
	}()

	res, err := pipeline.Build(ctx)
	if err != nil {
		return err
	}

	for _, name := range pipeline.Entries() {
		files, err := pipeline.EntryOutputs(name)
		if err != nil {
			log.Warn().Err(err).Str("entry", name).Msg("No outputs for entry")
			continue
		}
		log.Info().Str("entry", name).Strs("files", files).Msg("Entry built")
	}

	log.Info().
		Str("build_id", res.BuildID).
		Int("files", len(res.Outputs)).
		Int("warnings", res.Warnings).
		Dur("duration", res.Duration).
		Msg("Build complete")

	return nil
}
