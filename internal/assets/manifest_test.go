package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetkit/internal/bundle"
)

func TestManifestWriter_logicalName(t *testing.T) {
	m, err := newManifestWriter(bundle.AssetsManifest{}, "scripts/[name]_[hash]")
	require.NoError(t, err)

	tests := []struct {
		file     string
		expected string
		ok       bool
	}{
		{file: "scripts/app_1A2B3C4D.js", expected: "scripts/app.js", ok: true},
		{file: "styles/app_QWERTY23.css", expected: "styles/app.css", ok: true},
		{file: "scripts/admin_area_ZXCV.js", expected: "scripts/admin_area.js", ok: true},
		{file: "images/logo.svg", expected: "images/logo.svg", ok: true},
		{file: "images/icons/close_AAAA.svg", expected: "images/icons/close.svg", ok: true},
		{file: "favicon_AAAA.ico", expected: "favicon.ico", ok: true},
		{file: "scripts/app_1A2B3C4D.js.map", ok: false},
		{file: "scripts/app_1A2B3C4D.js.gz", ok: false},
		{file: "scripts/app_1A2B3C4D.js.zst", ok: false},
		{file: "scripts/app_1A2B3C4D.js.LEGAL.txt", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			name, ok := m.logicalName(tt.file)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestHashedNamePattern(t *testing.T) {
	t.Run("without hash matches the whole name", func(t *testing.T) {
		re, err := hashedNamePattern("[name]")
		require.NoError(t, err)
		assert.Equal(t, []string{"app", "app"}, re.FindStringSubmatch("app"))
	})

	t.Run("literal separators are escaped", func(t *testing.T) {
		re, err := hashedNamePattern("[name].[hash]")
		require.NoError(t, err)
		assert.Equal(t, "app", re.FindStringSubmatch("app.ABCD")[1])
		assert.Nil(t, re.FindStringSubmatch("appXABCD"))
	})

	t.Run("unsupported placeholder", func(t *testing.T) {
		_, err := hashedNamePattern("[dir]/[name]_[hash]")
		require.Error(t, err)
	})
}

func TestManifestWriter_render(t *testing.T) {
	t.Run("seed and formatter", func(t *testing.T) {
		m, err := newManifestWriter(bundle.AssetsManifest{
			Space:     2,
			Assets:    map[string]string{"vendor/legacy.js": "vendor/legacy.js", "scripts/app.js": "old.js"},
			Formatter: bundle.FormatAssetManifest,
		}, "scripts/[name]_[hash]")
		require.NoError(t, err)

		doc, err := m.render([]string{"scripts/app_AAAA.js", "styles/app_BBBB.css", "scripts/app_AAAA.js.map"})
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"vendor/legacy.js": "vendor/legacy.js",
			"scripts/app.js": "scripts/app_AAAA.js",
			"styles/app.css": "styles/app_BBBB.css"
		}`, string(doc))
	})

	t.Run("seed is not mutated", func(t *testing.T) {
		seed := map[string]string{"a.js": "a.js"}
		m, err := newManifestWriter(bundle.AssetsManifest{Assets: seed}, "scripts/[name]")
		require.NoError(t, err)

		doc, err := m.render([]string{"scripts/app.js"})
		require.NoError(t, err)
		assert.Equal(t, `{"a.js":"a.js","scripts/app.js":"scripts/app.js"}`, string(doc))
		assert.Equal(t, map[string]string{"a.js": "a.js"}, seed)
	})
}
