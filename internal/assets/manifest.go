package assets

import (
	"encoding/json"
	"fmt"
	"maps"
	"path"
	"regexp"
	"strings"

	"github.com/wolfeidau/assetkit/internal/bundle"
)

// manifestWriter maps emitted file names back to their logical names.
type manifestWriter struct {
	plugin bundle.AssetsManifest
	hashed *regexp.Regexp
}

func newManifestWriter(plugin bundle.AssetsManifest, entryNames string) (*manifestWriter, error) {
	hashed, err := hashedNamePattern(path.Base(entryNames))
	if err != nil {
		return nil, err
	}
	return &manifestWriter{plugin: plugin, hashed: hashed}, nil
}

// hashedNamePattern turns a name template such as [name]_[hash] into a
// pattern capturing the logical name.
func hashedNamePattern(template string) (*regexp.Regexp, error) {
	if !strings.Contains(template, "[hash]") {
		return regexp.Compile(`^(.+)$`)
	}

	var sb strings.Builder
	sb.WriteString("^")
	rest := template
	for rest != "" {
		switch {
		case strings.HasPrefix(rest, "[name]"):
			sb.WriteString("(.+?)")
			rest = rest[len("[name]"):]
		case strings.HasPrefix(rest, "[hash]"):
			sb.WriteString("[A-Za-z0-9]+")
			rest = rest[len("[hash]"):]
		case strings.HasPrefix(rest, "[dir]"), strings.HasPrefix(rest, "[ext]"):
			return nil, fmt.Errorf("unsupported placeholder in file name template %q", template)
		default:
			sb.WriteString(regexp.QuoteMeta(rest[:1]))
			rest = rest[1:]
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// logicalName strips the content hash from an emitted file name and keeps its
// directory, scripts/main_1A2B3C4D.js becomes scripts/main.js.
func (m *manifestWriter) logicalName(file string) (string, bool) {
	base := path.Base(file)
	switch {
	case strings.HasSuffix(base, ".map"),
		strings.HasSuffix(base, ".gz"),
		strings.HasSuffix(base, ".zst"),
		strings.HasSuffix(base, ".LEGAL.txt"):
		return "", false
	}

	ext := path.Ext(base)
	match := m.hashed.FindStringSubmatch(strings.TrimSuffix(base, ext))
	if match == nil {
		return file, true
	}
	return path.Join(path.Dir(file), match[1]+ext), true
}

// render builds the manifest document for the given output paths, relative
// to the output directory and slash separated.
func (m *manifestWriter) render(files []string) ([]byte, error) {
	assets := maps.Clone(m.plugin.Assets)
	if assets == nil {
		assets = make(map[string]string, len(files))
	}
	for _, file := range files {
		if name, ok := m.logicalName(file); ok {
			assets[name] = file
		}
	}
	if m.plugin.Formatter != nil {
		assets = m.plugin.Formatter(assets)
	}

	if m.plugin.Space <= 0 {
		return json.Marshal(assets)
	}
	return json.MarshalIndent(assets, "", strings.Repeat(" ", m.plugin.Space))
}
