package bundle

import (
	"path"
)

// ManifestFormatter rewrites manifest entries before they are written.
type ManifestFormatter func(manifest map[string]string) map[string]string

// FormatAssetManifest prefixes a key with the last directory of its value
// when the key's own last directory differs, so main.css ->
// styles/main_1a2b3c4d.css is listed as styles/main.css.
func FormatAssetManifest(manifest map[string]string) map[string]string {
	out := make(map[string]string, len(manifest))
	for key, value := range manifest {
		if target := path.Base(path.Dir(value)); path.Base(path.Dir(key)) != target {
			key = target + "/" + key
		}
		out[key] = value
	}
	return out
}
