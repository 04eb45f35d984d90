package bundle

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"

	"github.com/wolfeidau/assetkit/internal/config"
)

const (
	// ManifestOutput is the manifest filename, relative to the output path.
	ManifestOutput = "assets.json"

	// HotClientModule is the module id of the reload client bootstrap.
	HotClientModule = "assetkit/hot-client"

	// HotReloadEndpoint is the server-sent events path rebuild notifications arrive on.
	HotReloadEndpoint = "/esbuild"
)

var ErrUnboundProvide = errors.New("provided module is not externalized")

// Fragment produces a partial configuration merged over the base one.
type Fragment func(cfg config.Config) Configuration

// Assembler builds bundler configurations from an external config.
type Assembler struct {
	optimize Fragment
	watch    Fragment
}

type Option func(a *Assembler)

// WithOptimizeProfile replaces the fragment merged when optimize is enabled.
func WithOptimizeProfile(fragment Fragment) Option {
	return func(a *Assembler) {
		a.optimize = fragment
	}
}

// WithWatchProfile replaces the fragment merged when the watcher is enabled.
func WithWatchProfile(fragment Fragment) Option {
	return func(a *Assembler) {
		a.watch = fragment
	}
}

func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{
		optimize: OptimizeProfile,
		watch:    WatchProfile,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build assembles the configuration for cfg with the default profiles.
func Build(cfg config.Config) (*Configuration, error) {
	return NewAssembler().Build(cfg)
}

// Build assembles the configuration for cfg. Merge steps are applied in a
// fixed order: optimize, production plugin, manifest, watch.
func (a *Assembler) Build(cfg config.Config) (*Configuration, error) {
	assetsFilenames := cond(cfg.Enabled.CacheBusting, cfg.CacheBusting, "[name]")

	conf := &Configuration{
		Mode:    cond(cfg.Env.Production, ModeProduction, ModeDevelopment),
		Context: cfg.Paths.Assets,
		Entry:   Entries(cfg.Entry).Clone(),
		Devtool: cond(cfg.Enabled.SourceMaps, DevtoolSourceMap, DevtoolNone),
		Output: Output{
			Path:       cfg.Paths.Dist,
			PublicPath: cfg.PublicPath,
			Filename:   "scripts/" + assetsFilenames + ".js",
		},
		Module: Module{
			Rules: []Rule{scriptRule(cfg), styleRule(cfg)},
		},
		Externals: map[string]string{
			cfg.Global.Module: cfg.Global.Variable,
		},
	}

	plugins := &pluginList{}
	plugins.add(
		ExtractCSS{Filename: "styles/" + assetsFilenames + ".css"},
		// a live build must not wipe the output it is serving
		cond[Plugin](cfg.Enabled.Watcher, nil, Clean{}),
		FriendlyErrors{},
		provideGlobal(cfg.Global),
	)
	conf.Plugins = plugins.build()

	if cfg.Enabled.Optimize && a.optimize != nil {
		if err := Merge(conf, a.optimize(cfg)); err != nil {
			return nil, err
		}
	}

	if cfg.Env.Production {
		conf.Plugins = append(conf.Plugins, NoEmitOnErrors{})
	}

	if cfg.Enabled.CacheBusting {
		conf.Plugins = append(conf.Plugins, AssetsManifest{
			Output:      ManifestOutput,
			Space:       2,
			WriteToDisk: false,
			Assets:      maps.Clone(cfg.Manifest),
			Formatter:   FormatAssetManifest,
		})
	}

	if cfg.Enabled.Watcher {
		conf.Entry = WrapEntries(conf.Entry, HotClientModule)
		if a.watch != nil {
			if err := Merge(conf, a.watch(cfg)); err != nil {
				return nil, err
			}
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

// Validate checks that every provided identifier resolves to an externalized module.
func (c *Configuration) Validate() error {
	for _, p := range c.Plugins {
		provide, ok := p.(Provide)
		if !ok {
			continue
		}
		for alias, module := range provide.Bindings {
			if _, ok := c.Externals[module]; !ok {
				return fmt.Errorf("%w: %s -> %s", ErrUnboundProvide, alias, module)
			}
		}
	}
	return nil
}

// WrapEntries returns a copy of entries with module prepended to every entry.
func WrapEntries(entries Entries, module string) Entries {
	out := make(Entries, len(entries))
	for name, paths := range entries {
		wrapped := make([]string, 0, len(paths)+1)
		wrapped = append(wrapped, module)
		wrapped = append(wrapped, paths...)
		out[name] = wrapped
	}
	return out
}

func scriptRule(cfg config.Config) Rule {
	return Rule{
		Test:    `\.js$`,
		Exclude: []string{`node_modules`},
		Use: []Step{
			{Loader: LoaderCache},
			{Loader: LoaderTranspile, Options: StepOptions{
				Presets: []string{"env"},
				Targets: cfg.Targets,
			}},
		},
	}
}

func styleRule(cfg config.Config) Rule {
	sourceMaps := cfg.Enabled.SourceMaps
	return Rule{
		Test:    `\.(scss|css)$`,
		Include: []string{cfg.Paths.Assets},
		Use: []Step{
			{Loader: LoaderExtractCSS},
			{Loader: LoaderCSS, Options: StepOptions{SourceMap: sourceMaps}},
			{Loader: LoaderPostCSS, Options: StepOptions{
				Config:    filepath.Join(cfg.Paths.Assets, "build", "postcss.yaml"),
				SourceMap: sourceMaps,
			}},
			{Loader: LoaderSass, Options: StepOptions{SourceMap: sourceMaps}},
		},
	}
}

// provideGlobal binds every alias of the global to its module. The same
// record feeds the externals map so the two cannot disagree.
func provideGlobal(global config.Global) Plugin {
	if len(global.Aliases) == 0 {
		return nil
	}
	bindings := make(map[string]string, len(global.Aliases))
	for _, alias := range global.Aliases {
		bindings[alias] = global.Module
	}
	return Provide{Bindings: bindings}
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
