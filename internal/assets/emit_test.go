package assets

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetkit/internal/bundle"
)

func testEmitter(t *testing.T, plugins ...bundle.Plugin) *emitter {
	t.Helper()
	conf := &bundle.Configuration{Plugins: plugins}
	e, err := newEmitter(conf, t.TempDir(), "scripts/[name]_[hash]", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(e.close)
	return e
}

func TestEmitter_relocate(t *testing.T) {
	e := testEmitter(t, bundle.ExtractCSS{Filename: "styles/[name]_[hash:8].css"})

	tests := []struct {
		file     string
		expected string
	}{
		{file: "scripts/app_ABC.js", expected: "scripts/app_ABC.js"},
		{file: "scripts/app_ABC.css", expected: "styles/app_ABC.css"},
		{file: "scripts/app_ABC.css.map", expected: "styles/app_ABC.css.map"},
		{file: "images/logo_ABC.svg", expected: "images/logo_ABC.svg"},
		{file: "fonts/app.css", expected: "fonts/app.css"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			rel, err := e.relocate(filepath.Join(e.outdir, tt.file))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, rel)
		})
	}

	t.Run("outside the output directory", func(t *testing.T) {
		_, err := e.relocate(filepath.Join(e.outdir, "..", "escape.js"))
		require.ErrorContains(t, err, "escapes")
	})

	t.Run("without extract-css", func(t *testing.T) {
		plain := testEmitter(t)
		rel, err := plain.relocate(filepath.Join(plain.outdir, "scripts/app.css"))
		require.NoError(t, err)
		assert.Equal(t, "scripts/app.css", rel)
	})
}

func TestRelinkSourceMap(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "external map", input: "a{}\n/*# sourceMappingURL=/dist/scripts/app.css.map */\n", expected: "a{}\n/*# sourceMappingURL=app.css.map */\n"},
		{name: "inline map", input: "a{}\n/*# sourceMappingURL=data:application/json;base64,e30= */\n", expected: "a{}\n/*# sourceMappingURL=data:application/json;base64,e30= */\n"},
		{name: "no map", input: "a{}\n", expected: "a{}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(relinkSourceMap([]byte(tt.input), "app.css.map")))
		})
	}
}

func outputFile(e *emitter, rel, contents string) api.OutputFile {
	return api.OutputFile{Path: filepath.Join(e.outdir, rel), Contents: []byte(contents)}
}

func TestEmitter_emit(t *testing.T) {
	manifest := bundle.AssetsManifest{Output: bundle.ManifestOutput, Space: 2, Formatter: bundle.FormatAssetManifest}

	t.Run("writes outputs and manifest", func(t *testing.T) {
		e := testEmitter(t, bundle.ExtractCSS{Filename: "styles/[name]_[hash].css"}, manifest)

		out, err := e.emit(api.BuildResult{OutputFiles: []api.OutputFile{
			outputFile(e, "scripts/app_AAAA.js", "console.log(1)"),
			outputFile(e, "scripts/app_BBBB.css", "body{}"),
		}}, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"assets.json", "scripts/app_AAAA.js", "styles/app_BBBB.css"}, out.Files)

		assert.FileExists(t, filepath.Join(e.outdir, "styles/app_BBBB.css"))
		assert.JSONEq(t, `{"scripts/app.js":"scripts/app_AAAA.js","styles/app.css":"styles/app_BBBB.css"}`,
			readFile(t, filepath.Join(e.outdir, "assets.json")))
		assert.True(t, strings.HasPrefix(string(e.manifestDocument()), "{\n  \""))
	})

	t.Run("relocated stylesheet links its source map", func(t *testing.T) {
		e := testEmitter(t, bundle.ExtractCSS{Filename: "styles/[name]_[hash].css"})

		_, err := e.emit(api.BuildResult{OutputFiles: []api.OutputFile{
			outputFile(e, "scripts/app_BBBB.css", "body{}\n/*# sourceMappingURL=/dist/scripts/app_BBBB.css.map */\n"),
			outputFile(e, "scripts/app_BBBB.css.map", "{}"),
		}}, false)
		require.NoError(t, err)

		assert.Equal(t, "body{}\n/*# sourceMappingURL=app_BBBB.css.map */\n", readFile(t, filepath.Join(e.outdir, "styles/app_BBBB.css")))
		assert.FileExists(t, filepath.Join(e.outdir, "styles/app_BBBB.css.map"))
	})

	t.Run("nested assets with the same name", func(t *testing.T) {
		e := testEmitter(t, manifest)

		_, err := e.emit(api.BuildResult{OutputFiles: []api.OutputFile{
			outputFile(e, "images/icons/close_AAAA.svg", "<svg/>"),
			outputFile(e, "images/ui/close_BBBB.svg", "<svg/>"),
		}}, false)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"images/icons/close.svg": "images/icons/close_AAAA.svg",
			"images/ui/close.svg": "images/ui/close_BBBB.svg"
		}`, string(e.manifestDocument()))
	})

	t.Run("serving keeps the manifest in memory", func(t *testing.T) {
		e := testEmitter(t, manifest)

		out, err := e.emit(api.BuildResult{OutputFiles: []api.OutputFile{
			outputFile(e, "scripts/app_AAAA.js", "console.log(1)"),
		}}, true)
		require.NoError(t, err)
		assert.Equal(t, []string{"scripts/app_AAAA.js"}, out.Files)
		assert.NoFileExists(t, filepath.Join(e.outdir, "assets.json"))
		assert.JSONEq(t, `{"scripts/app.js":"scripts/app_AAAA.js"}`, string(e.manifestDocument()))
	})

	t.Run("serving with write to disk", func(t *testing.T) {
		onDisk := manifest
		onDisk.WriteToDisk = true
		e := testEmitter(t, onDisk)

		_, err := e.emit(api.BuildResult{OutputFiles: []api.OutputFile{
			outputFile(e, "scripts/app_AAAA.js", "console.log(1)"),
		}}, true)
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(e.outdir, "assets.json"))
	})

	t.Run("no emit on errors", func(t *testing.T) {
		e := testEmitter(t, bundle.NoEmitOnErrors{}, manifest)

		out, err := e.emit(api.BuildResult{
			Errors:      []api.Message{{Text: "Could not resolve"}},
			OutputFiles: []api.OutputFile{outputFile(e, "scripts/app_AAAA.js", "console.log(1)")},
		}, false)
		require.NoError(t, err)
		assert.True(t, out.Skipped)
		assert.NoFileExists(t, filepath.Join(e.outdir, "scripts/app_AAAA.js"))
		assert.Nil(t, e.manifestDocument())
	})

	t.Run("compressed siblings", func(t *testing.T) {
		e := testEmitter(t, bundle.Compress{Algorithms: []string{"gzip", "zstd"}, MinSize: 16}, manifest)

		out, err := e.emit(api.BuildResult{OutputFiles: []api.OutputFile{
			outputFile(e, "scripts/app_AAAA.js", strings.Repeat("console.log(1);", 10)),
		}}, false)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"assets.json",
			"scripts/app_AAAA.js",
			"scripts/app_AAAA.js.gz",
			"scripts/app_AAAA.js.zst",
		}, out.Files)
		assert.JSONEq(t, `{"scripts/app.js":"scripts/app_AAAA.js"}`, string(e.manifestDocument()))
	})
}
