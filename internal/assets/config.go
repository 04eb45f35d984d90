package assets

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetkit/internal/bundle"
	"gopkg.in/yaml.v3"
)

var hashPlaceholder = regexp.MustCompile(`\[(?:hash|contenthash|chunkhash|fullhash)(?::\d+)?\]`)

// fileLoaders are copied to the output and referenced by URL.
var fileLoaders = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".woff", ".woff2", ".eot", ".ttf", ".otf"}

// New translates the configuration into esbuild build options.
func New(conf *bundle.Configuration, logger zerolog.Logger) (*Pipeline, error) {
	if len(conf.Entry) == 0 {
		return nil, ErrNoEntryPoints
	}

	context, err := filepath.Abs(conf.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve context: %w", err)
	}
	outdir, err := filepath.Abs(conf.Output.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output path: %w", err)
	}

	p := &Pipeline{
		conf:    conf,
		workdir: context,
		outdir:  outdir,
		logger:  logger,
	}

	entryNames := EntryNames(conf.Output.Filename)

	p.emitter, err = newEmitter(conf, outdir, entryNames, logger)
	if err != nil {
		return nil, err
	}

	if clean, ok := bundle.Find[bundle.Clean](conf.Plugins); ok {
		p.clean, err = newCleaner(outdir, context, clean.Keep)
		if err != nil {
			return nil, err
		}
	}

	target, engines, err := scriptTargets(conf.Module.Rules)
	if err != nil {
		return nil, err
	}

	sourcemap, err := sourceMapMode(conf.Devtool)
	if err != nil {
		return nil, err
	}

	plugins := []api.Plugin{entriesPlugin(context, conf.Entry, hotReloadEndpoint(conf.Plugins))}
	if len(conf.Externals) > 0 {
		plugins = append(plugins, externalsPlugin(conf.Externals))
	}
	for _, rule := range conf.Module.Rules {
		if !rule.Uses(bundle.LoaderSass) {
			continue
		}
		if p.sass == nil {
			p.sass = newSassCompiler(logger)
		}
		plugin, err := sassPlugin(rule, context, p.sass)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, plugin)
	}
	plugins = append(plugins, p.lifecyclePlugin())

	p.options = api.BuildOptions{
		EntryPointsAdvanced: entryPoints(conf.Entry),
		AbsWorkingDir:       context,
		Outdir:              outdir,
		PublicPath:          conf.Output.PublicPath,
		EntryNames:          entryNames,
		AssetNames:          "[dir]/" + path.Base(entryNames),
		Bundle:              true,
		Write:               false,
		Format:              api.FormatIIFE,
		Platform:            api.PlatformBrowser,
		Target:              target,
		Engines:             engines,
		Sourcemap:           sourcemap,
		MinifyWhitespace:    conf.Optimization.Minimize,
		MinifyIdentifiers:   conf.Optimization.Minimize,
		MinifySyntax:        conf.Optimization.Minimize,
		LegalComments:       legalComments(conf.Optimization.LegalComments),
		Drop:                cond(conf.Optimization.DropConsole, api.DropConsole, 0),
		TreeShaking:         api.TreeShakingTrue,
		Define:              defines(conf),
		Loader:              loaders(conf.Module.Rules),
		Metafile:            true,
		LogLevel:            api.LogLevelSilent,
		Plugins:             plugins,
	}

	return p, nil
}

// EntryNames converts a script filename template such as scripts/[name]_[hash:8].js
// into an esbuild entry names template (scripts/[name]_[hash]).
func EntryNames(filename string) string {
	name := strings.TrimSuffix(filename, path.Ext(filename))
	return hashPlaceholder.ReplaceAllString(name, "[hash]")
}

func entryPoints(entries bundle.Entries) []api.EntryPoint {
	points := make([]api.EntryPoint, 0, len(entries))
	for _, name := range entries.Names() {
		points = append(points, api.EntryPoint{
			InputPath:  entryNamespace + ":" + name,
			OutputPath: name,
		})
	}
	return points
}

func sourceMapMode(devtool bundle.Devtool) (api.SourceMap, error) {
	switch devtool {
	case bundle.DevtoolNone:
		return api.SourceMapNone, nil
	case bundle.DevtoolSourceMap:
		return api.SourceMapLinked, nil
	case bundle.DevtoolInlineSourceMap:
		return api.SourceMapInline, nil
	case bundle.DevtoolHiddenSourceMap:
		return api.SourceMapExternal, nil
	default:
		return api.SourceMapNone, fmt.Errorf("unsupported devtool %q", devtool)
	}
}

func legalComments(mode string) api.LegalComments {
	switch mode {
	case "none":
		return api.LegalCommentsNone
	case "inline":
		return api.LegalCommentsInline
	case "eof":
		return api.LegalCommentsEndOfFile
	default:
		return api.LegalCommentsDefault
	}
}

// defines sets the build mode and rewrites provided identifiers to the
// global their module is bound to in externals.
func defines(conf *bundle.Configuration) map[string]string {
	out := map[string]string{}
	if conf.Mode != "" {
		out["process.env.NODE_ENV"] = strconv.Quote(string(conf.Mode))
	}
	for _, p := range conf.Plugins {
		provide, ok := p.(bundle.Provide)
		if !ok {
			continue
		}
		for alias, module := range provide.Bindings {
			global, ok := conf.Externals[module]
			if !ok || global == alias {
				continue
			}
			out[alias] = global
		}
	}
	return out
}

func loaders(rules []bundle.Rule) map[string]api.Loader {
	out := make(map[string]api.Loader, len(fileLoaders)+2)
	for _, ext := range fileLoaders {
		out[ext] = api.LoaderFile
	}
	for _, rule := range rules {
		if rule.Uses(bundle.LoaderTranspile) {
			out[".js"] = api.LoaderJS
		}
		if rule.Uses(bundle.LoaderCSS) {
			out[".css"] = api.LoaderCSS
		}
	}
	return out
}

func hotReloadEndpoint(plugins []bundle.Plugin) string {
	if hot, ok := bundle.Find[bundle.HotReload](plugins); ok && hot.Endpoint != "" {
		return hot.Endpoint
	}
	return bundle.HotReloadEndpoint
}

// scriptTargets collects the transpile step targets and any targets listed in
// the postcss step config file.
func scriptTargets(rules []bundle.Rule) (api.Target, []api.Engine, error) {
	var targets []string
	for _, rule := range rules {
		if step, ok := rule.Step(bundle.LoaderTranspile); ok {
			targets = append(targets, step.Options.Targets...)
		}
		if step, ok := rule.Step(bundle.LoaderPostCSS); ok && step.Options.Config != "" {
			extra, err := loadPostCSSTargets(step.Options.Config)
			if err != nil {
				return api.DefaultTarget, nil, err
			}
			targets = append(targets, extra...)
		}
	}
	return parseTargets(targets)
}

type postCSSConfig struct {
	Targets []string `yaml:"targets"`
}

// loadPostCSSTargets reads the targets list of a postcss config, a missing file has none.
func loadPostCSSTargets(file string) ([]string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read postcss config: %w", err)
	}

	var cfg postCSSConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse postcss config %s: %w", file, err)
	}
	return cfg.Targets, nil
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
