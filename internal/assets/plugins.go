package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetkit/internal/bundle"
)

const (
	entryNamespace    = "assetkit-entry"
	hotNamespace      = "assetkit-hot"
	externalNamespace = "assetkit-external"
)

// hotClientTemplate reloads the page whenever esbuild reports a rebuild.
const hotClientTemplate = `(() => {
  if (typeof EventSource === "undefined") return;
  new EventSource(%s).addEventListener("change", () => location.reload());
})();
`

// entriesPlugin serves one virtual module per entry importing its paths in
// order, plus the hot reload client.
func entriesPlugin(context string, entries bundle.Entries, endpoint string) api.Plugin {
	return api.Plugin{
		Name: "assetkit-entries",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(entryNamespace+":")},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{
						Path:      strings.TrimPrefix(args.Path, entryNamespace+":"),
						Namespace: entryNamespace,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: entryNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					paths, ok := entries[args.Path]
					if !ok {
						return api.OnLoadResult{}, fmt.Errorf("unknown entry %q", args.Path)
					}
					contents := entryModule(paths)
					return api.OnLoadResult{
						Contents:   &contents,
						ResolveDir: context,
						Loader:     api.LoaderJS,
					}, nil
				})

			build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(bundle.HotClientModule) + "$"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: bundle.HotClientModule, Namespace: hotNamespace}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: hotNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := fmt.Sprintf(hotClientTemplate, strconv.Quote(endpoint))
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				})
		},
	}
}

func entryModule(paths []string) string {
	var sb strings.Builder
	for _, p := range paths {
		sb.WriteString("import ")
		sb.WriteString(strconv.Quote(p))
		sb.WriteString(";\n")
	}
	return sb.String()
}

// externalsPlugin resolves externalized modules to the global they are bound to.
func externalsPlugin(externals map[string]string) api.Plugin {
	names := make([]string, 0, len(externals))
	for name := range externals {
		names = append(names, regexp.QuoteMeta(name))
	}
	sort.Strings(names)

	return api.Plugin{
		Name: "assetkit-externals",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^(" + strings.Join(names, "|") + ")$"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: args.Path, Namespace: externalNamespace}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: externalNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					global, ok := externals[args.Path]
					if !ok {
						return api.OnLoadResult{}, fmt.Errorf("module %q is not externalized", args.Path)
					}
					contents := "module.exports = " + global + ";\n"
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				})
		},
	}
}

// sassPlugin compiles stylesheets matched by the rule through Dart Sass.
// Plain CSS and files outside the rule fall through to esbuild.
func sassPlugin(rule bundle.Rule, context string, compiler *sassCompiler) (api.Plugin, error) {
	step, _ := rule.Step(bundle.LoaderSass)

	excludes := make([]*regexp.Regexp, 0, len(rule.Exclude))
	for _, pattern := range rule.Exclude {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return api.Plugin{}, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		excludes = append(excludes, re)
	}
	if _, err := regexp.Compile(rule.Test); err != nil {
		return api.Plugin{}, fmt.Errorf("invalid rule test %q: %w", rule.Test, err)
	}

	return api.Plugin{
		Name: "assetkit-sass",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: rule.Test, Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					syntax, ok := sassSyntax(args.Path)
					if !ok || !matchesRule(args.Path, rule.Include, excludes) {
						return api.OnLoadResult{}, nil
					}

					source, err := os.ReadFile(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}

					dir := filepath.Dir(args.Path)
					css, err := compiler.compile(sassInput{
						Path:         args.Path,
						Source:       string(source),
						Syntax:       syntax,
						SourceMap:    step.Options.SourceMap,
						IncludePaths: []string{dir, context, filepath.Join(context, "node_modules")},
					})
					if err != nil {
						return api.OnLoadResult{}, err
					}

					return api.OnLoadResult{
						Contents:   &css,
						ResolveDir: dir,
						Loader:     api.LoaderCSS,
						WatchFiles: []string{args.Path},
					}, nil
				})
		},
	}, nil
}

// matchesRule reports whether path sits under one of the include directories
// (any path when there are none) and matches no exclude pattern.
func matchesRule(path string, include []string, exclude []*regexp.Regexp) bool {
	for _, re := range exclude {
		if re.MatchString(path) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, dir := range include {
		if within(path, dir) {
			return true
		}
	}
	return false
}
