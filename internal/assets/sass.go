package assets

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"
	"github.com/rs/zerolog"
)

type sassInput struct {
	Path         string
	Source       string
	Syntax       godartsass.SourceSyntax
	SourceMap    bool
	IncludePaths []string
}

// sassCompiler owns a single embedded Dart Sass process, started on first use.
type sassCompiler struct {
	logger zerolog.Logger

	once       sync.Once
	transpiler *godartsass.Transpiler
	err        error
}

func newSassCompiler(logger zerolog.Logger) *sassCompiler {
	return &sassCompiler{logger: logger}
}

func (s *sassCompiler) start() (*godartsass.Transpiler, error) {
	s.once.Do(func() {
		s.transpiler, s.err = godartsass.Start(godartsass.Options{
			LogEventHandler: func(event godartsass.LogEvent) {
				switch event.Type {
				case godartsass.LogEventTypeDebug:
					s.logger.Debug().Msg(event.Message)
				default:
					s.logger.Warn().Msg(event.Message)
				}
			},
		})
		if s.err != nil {
			s.err = fmt.Errorf("failed to start dart sass: %w", s.err)
		}
	})
	return s.transpiler, s.err
}

func (s *sassCompiler) compile(in sassInput) (string, error) {
	transpiler, err := s.start()
	if err != nil {
		return "", err
	}

	res, err := transpiler.Execute(godartsass.Args{
		Source:                  in.Source,
		URL:                     "file://" + filepath.ToSlash(in.Path),
		SourceSyntax:            in.Syntax,
		OutputStyle:             godartsass.OutputStyleExpanded,
		IncludePaths:            in.IncludePaths,
		EnableSourceMap:         in.SourceMap,
		SourceMapIncludeSources: in.SourceMap,
	})
	if err != nil {
		return "", fmt.Errorf("failed to compile %s: %w", in.Path, err)
	}

	if in.SourceMap && res.SourceMap != "" {
		return res.CSS + "\n/*# sourceMappingURL=data:application/json;base64," +
			base64.StdEncoding.EncodeToString([]byte(res.SourceMap)) + " */\n", nil
	}
	return res.CSS, nil
}

func (s *sassCompiler) close() error {
	if s == nil || s.transpiler == nil {
		return nil
	}
	return s.transpiler.Close()
}

// sassSyntax reports the Sass syntax for a stylesheet path, plain CSS is not Sass.
func sassSyntax(path string) (godartsass.SourceSyntax, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".scss":
		return godartsass.SourceSyntaxSCSS, true
	case ".sass":
		return godartsass.SourceSyntaxSASS, true
	default:
		return godartsass.SourceSyntaxCSS, false
	}
}
