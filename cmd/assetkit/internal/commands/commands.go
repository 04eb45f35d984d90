package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/wolfeidau/assetkit/internal/bundle"
	"github.com/wolfeidau/assetkit/internal/config"
)

type Globals struct {
	Debug   bool
	Version string
}

// ConfigFlags are shared by every command that assembles a configuration.
type ConfigFlags struct {
	Config     string `help:"Path to the assets configuration file (yaml or json)." default:"assets.yaml" env:"ASSETKIT_CONFIG" type:"path"`
	Production bool   `help:"Force a production build." env:"ASSETKIT_PRODUCTION"`
}

func (c *ConfigFlags) load(watch bool) (*config.Config, error) {
	cfg, err := config.Load(c.Config, config.WithProduction(c.Production), config.WithWatcher(watch))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// assemble loads the configuration file and builds the bundle configuration from it.
func (c *ConfigFlags) assemble(watch bool) (*bundle.Configuration, error) {
	cfg, err := c.load(watch)
	if err != nil {
		return nil, err
	}
	conf, err := bundle.Build(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble bundle configuration: %w", err)
	}
	return conf, nil
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
