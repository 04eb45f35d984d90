package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/assetkit/internal/bundle"
	"gopkg.in/yaml.v3"
)

// InspectCmd prints the assembled configuration without building.
type InspectCmd struct {
	ConfigFlags
	Watch bool `help:"Inspect the watch configuration."`

	out io.Writer `kong:"-"`
}

// configurationDocument lists plugins by name so the YAML shows which
// descriptor each entry is.
type configurationDocument struct {
	bundle.Configuration `yaml:",inline"`
	Plugins              []map[string]bundle.Plugin `yaml:"plugins"`
}

func (c *InspectCmd) Run(ctx context.Context, globals *Globals) error {
	conf, err := c.assemble(c.Watch)
	if err != nil {
		return err
	}

	doc := configurationDocument{Configuration: *conf}
	for _, p := range conf.Plugins {
		doc.Plugins = append(doc.Plugins, map[string]bundle.Plugin{p.PluginName(): p})
	}

	out := c.out
	if out == nil {
		out = os.Stdout
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}
