package bundle

// Plugin is an immutable descriptor of a bundler plugin. The bundler runtime
// decides how each descriptor is carried out.
type Plugin interface {
	PluginName() string
}

// ExtractCSS writes stylesheets to their own files named by Filename.
type ExtractCSS struct {
	Filename string `yaml:"filename"`
}

func (ExtractCSS) PluginName() string { return "extract-css" }

// Clean empties the output directory before the first build, sparing files
// matching any Keep glob.
type Clean struct {
	Keep []string `yaml:"keep,omitempty"`
}

func (Clean) PluginName() string { return "clean" }

// FriendlyErrors prints formatted build errors and warnings.
type FriendlyErrors struct{}

func (FriendlyErrors) PluginName() string { return "friendly-errors" }

// Provide makes free identifiers resolve to a module without an import.
// Bindings maps the identifier (e.g. "$" or "window.jQuery") to the module.
type Provide struct {
	Bindings map[string]string `yaml:"bindings"`
}

func (Provide) PluginName() string { return "provide" }

// NoEmitOnErrors skips writing output when the build reported errors.
type NoEmitOnErrors struct{}

func (NoEmitOnErrors) PluginName() string { return "no-emit-on-errors" }

// AssetsManifest records logical asset names against their emitted names.
type AssetsManifest struct {
	Output      string            `yaml:"output"`
	Space       int               `yaml:"space"`
	WriteToDisk bool              `yaml:"writeToDisk"`
	Assets      map[string]string `yaml:"assets,omitempty"`
	Formatter   ManifestFormatter `yaml:"-"`
}

func (AssetsManifest) PluginName() string { return "assets-manifest" }

// Compress writes precompressed siblings of emitted text assets.
type Compress struct {
	Algorithms []string `yaml:"algorithms"`
	MinSize    int      `yaml:"minSize"`
}

func (Compress) PluginName() string { return "compress" }

// HotReload serves the reload client bootstrap prepended to each entry.
type HotReload struct {
	Endpoint string `yaml:"endpoint"`
}

func (HotReload) PluginName() string { return "hot-reload" }

// Find returns the first plugin of type T.
func Find[T Plugin](plugins []Plugin) (T, bool) {
	for _, p := range plugins {
		if v, ok := p.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// pluginList builds an ordered plugin list. Nil entries are accepted so
// optional plugins can be added inline and are dropped by build.
type pluginList struct {
	plugins []Plugin
}

func (l *pluginList) add(plugins ...Plugin) *pluginList {
	l.plugins = append(l.plugins, plugins...)
	return l
}

func (l *pluginList) build() []Plugin {
	out := make([]Plugin, 0, len(l.plugins))
	for _, p := range l.plugins {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
