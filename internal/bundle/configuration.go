package bundle

import (
	"maps"
	"slices"
)

type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// Devtool selects how source maps are produced, the zero value disables them.
type Devtool string

const (
	DevtoolNone            Devtool = ""
	DevtoolSourceMap       Devtool = "source-map"
	DevtoolInlineSourceMap Devtool = "inline-source-map"
	DevtoolHiddenSourceMap Devtool = "hidden-source-map"
)

// Configuration is the assembled bundler configuration handed to the bundler runtime.
type Configuration struct {
	Mode         Mode              `yaml:"mode"`
	Context      string            `yaml:"context"`
	Entry        Entries           `yaml:"entry"`
	Devtool      Devtool           `yaml:"devtool,omitempty"`
	Output       Output            `yaml:"output"`
	Stats        Stats             `yaml:"stats"`
	Module       Module            `yaml:"module"`
	Plugins      []Plugin          `yaml:"-"`
	Externals    map[string]string `yaml:"externals"`
	Optimization Optimization      `yaml:"optimization"`
	DevServer    *DevServer        `yaml:"devServer,omitempty"`
}

// Entries maps a bundle name to the ordered source paths it is built from.
type Entries map[string][]string

// Names returns the bundle names in a stable order.
func (e Entries) Names() []string {
	return slices.Sorted(maps.Keys(e))
}

// Clone returns a deep copy so callers can rewrite paths without aliasing the source.
func (e Entries) Clone() Entries {
	if e == nil {
		return nil
	}
	out := make(Entries, len(e))
	for name, paths := range e {
		out[name] = slices.Clone(paths)
	}
	return out
}

type Output struct {
	Path       string `yaml:"path"`
	PublicPath string `yaml:"publicPath"`
	// Filename is the script filename template, e.g. scripts/[name]_[hash:8].js
	Filename string `yaml:"filename"`
}

// Stats toggles sections of the build report, all false keeps the build quiet.
type Stats struct {
	Hash         bool `yaml:"hash"`
	Version      bool `yaml:"version"`
	Timings      bool `yaml:"timings"`
	Children     bool `yaml:"children"`
	Errors       bool `yaml:"errors"`
	ErrorDetails bool `yaml:"errorDetails"`
	Warnings     bool `yaml:"warnings"`
	Chunks       bool `yaml:"chunks"`
	Modules      bool `yaml:"modules"`
	Reasons      bool `yaml:"reasons"`
	Source       bool `yaml:"source"`
	PublicPath   bool `yaml:"publicPath"`
}

// Quiet reports whether every section of the report is suppressed.
func (s Stats) Quiet() bool {
	return s == Stats{}
}

type Module struct {
	Rules []Rule `yaml:"rules"`
}

// Rule routes files matching Test through an ordered pipeline of steps.
// Include holds path prefixes and Exclude regular expressions.
type Rule struct {
	Test    string   `yaml:"test"`
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
	Use     []Step   `yaml:"use"`
}

// Uses reports whether the rule pipeline contains the given loader.
func (r Rule) Uses(loader Loader) bool {
	_, ok := r.Step(loader)
	return ok
}

// Step returns the first step using loader.
func (r Rule) Step(loader Loader) (Step, bool) {
	for _, step := range r.Use {
		if step.Loader == loader {
			return step, true
		}
	}
	return Step{}, false
}

type Loader string

const (
	LoaderCache      Loader = "cache"
	LoaderTranspile  Loader = "transpile"
	LoaderExtractCSS Loader = "extract-css"
	LoaderCSS        Loader = "css"
	LoaderPostCSS    Loader = "postcss"
	LoaderSass       Loader = "sass"
)

type Step struct {
	Loader  Loader      `yaml:"loader"`
	Options StepOptions `yaml:"options,omitempty"`
}

type StepOptions struct {
	SourceMap bool     `yaml:"sourceMap,omitempty"`
	Presets   []string `yaml:"presets,omitempty"`
	Targets   []string `yaml:"targets,omitempty"`
	Config    string   `yaml:"config,omitempty"`
}

type Optimization struct {
	Minimize    bool `yaml:"minimize"`
	DropConsole bool `yaml:"dropConsole"`
	// LegalComments is one of "", "none", "inline", "eof".
	LegalComments string `yaml:"legalComments,omitempty"`
}

// DevServer configures the front server used while watching.
type DevServer struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Proxy is the application every non asset request is forwarded to.
	Proxy          string            `yaml:"proxy,omitempty"`
	AllowedOrigins []string          `yaml:"allowedOrigins,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
}
