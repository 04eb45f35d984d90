package assets

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// compressible lists the extensions worth precompressing.
var compressible = map[string]bool{
	".js":   true,
	".css":  true,
	".svg":  true,
	".json": true,
	".map":  true,
}

type compressor struct {
	algorithms []string
	minSize    int
	zenc       *zstd.Encoder
}

func newCompressor(algorithms []string, minSize int) (*compressor, error) {
	c := &compressor{minSize: minSize}
	for _, algo := range algorithms {
		switch algo {
		case "gzip":
		case "zstd":
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
			if err != nil {
				return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
			}
			c.zenc = enc
		default:
			return nil, fmt.Errorf("unsupported compression algorithm %q", algo)
		}
		c.algorithms = append(c.algorithms, algo)
	}
	return c, nil
}

// siblings returns the compressed variants of a file keyed by their path.
func (c *compressor) siblings(path string, contents []byte) (map[string][]byte, error) {
	if c == nil || len(contents) < c.minSize || !compressible[strings.ToLower(filepath.Ext(path))] {
		return nil, nil
	}

	out := make(map[string][]byte, len(c.algorithms))
	for _, algo := range c.algorithms {
		switch algo {
		case "gzip":
			var buf bytes.Buffer
			w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
			if err != nil {
				return nil, err
			}
			if _, err := w.Write(contents); err != nil {
				return nil, fmt.Errorf("failed to gzip %s: %w", path, err)
			}
			if err := w.Close(); err != nil {
				return nil, fmt.Errorf("failed to gzip %s: %w", path, err)
			}
			out[path+".gz"] = buf.Bytes()
		case "zstd":
			out[path+".zst"] = c.zenc.EncodeAll(contents, make([]byte, 0, len(contents)/2))
		}
	}
	return out, nil
}

func (c *compressor) close() {
	if c != nil && c.zenc != nil {
		_ = c.zenc.Close()
	}
}
