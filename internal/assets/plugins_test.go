package assets

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/bep/godartsass/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryModule(t *testing.T) {
	assert.Equal(t,
		"import \"assetkit/hot-client\";\nimport \"./scripts/main.js\";\n",
		entryModule([]string{"assetkit/hot-client", "./scripts/main.js"}))
}

func TestMatchesRule(t *testing.T) {
	exclude := []*regexp.Regexp{regexp.MustCompile(`node_modules`)}

	tests := []struct {
		name     string
		path     string
		include  []string
		expected bool
	}{
		{name: "no include matches anything", path: "/srv/theme/styles/main.scss", expected: true},
		{name: "under include", path: "/srv/theme/resources/assets/styles/main.scss", include: []string{"/srv/theme/resources/assets"}, expected: true},
		{name: "sibling with the same prefix", path: "/srv/theme/resources/assets2/main.scss", include: []string{"/srv/theme/resources/assets"}, expected: false},
		{name: "outside include", path: "/srv/other/main.scss", include: []string{"/srv/theme/resources/assets"}, expected: false},
		{name: "excluded", path: "/srv/theme/node_modules/bootstrap/scss/bootstrap.scss", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matchesRule(tt.path, tt.include, exclude))
		})
	}
}

func TestSassSyntax(t *testing.T) {
	syntax, ok := sassSyntax("styles/main.scss")
	assert.True(t, ok)
	assert.Equal(t, godartsass.SourceSyntaxSCSS, syntax)

	syntax, ok = sassSyntax("styles/legacy.SASS")
	assert.True(t, ok)
	assert.Equal(t, godartsass.SourceSyntaxSASS, syntax)

	_, ok = sassSyntax("styles/plain.css")
	assert.False(t, ok)
}

func TestPipeline_externals(t *testing.T) {
	cfg := testProject(t)
	writeFile(t, filepath.Join(cfg.Paths.Assets, "scripts/vendor.js"),
		"import jq from \"jquery\";\njq(document.body).addClass(\"ready\");\n")
	cfg.Entry = map[string][]string{"vendor": {"./scripts/vendor.js"}}
	p := newTestPipeline(t, cfg)

	_, err := p.Build(context.Background())
	require.NoError(t, err, "jquery resolves to the page global, not node_modules")

	script := readFile(t, filepath.Join(cfg.Paths.Dist, "scripts/vendor.js"))
	assert.Contains(t, script, "module.exports = jQuery")
}
