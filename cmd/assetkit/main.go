package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetkit/cmd/assetkit/internal/commands"
	"github.com/wolfeidau/assetkit/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag
		Build   commands.BuildCmd   `cmd:"" help:"Build assets once"`
		Watch   commands.WatchCmd   `cmd:"" help:"Rebuild assets on change and serve them with live reload"`
		Inspect commands.InspectCmd `cmd:"" help:"Print the assembled bundle configuration"`
	}
)

func main() {
	// a missing .env file is fine
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("assetkit"),
		kong.Description("Front-end asset builds for WordPress themes."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(cli.Debug)

	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
