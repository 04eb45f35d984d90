package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

var ErrUnsafeClean = errors.New("refusing to clean directory")

// cleaner empties the output directory once, before the first build.
type cleaner struct {
	outdir string
	keep   []glob.Glob
	done   bool
}

func newCleaner(outdir, context string, keep []string) (*cleaner, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	abs, err := filepath.Abs(outdir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	// the output directory must not hold the sources or the working directory
	for _, unsafe := range []string{context, cwd} {
		if within(unsafe, abs) {
			return nil, fmt.Errorf("%w: %s contains %s", ErrUnsafeClean, outdir, unsafe)
		}
	}

	c := &cleaner{outdir: outdir}
	for _, pattern := range keep {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid keep pattern %q: %w", pattern, err)
		}
		c.keep = append(c.keep, g)
	}
	return c, nil
}

// run removes every top level entry of the output directory not matching a
// keep pattern. It returns the removed names and is a no-op after the first call.
func (c *cleaner) run() ([]string, error) {
	if c == nil || c.done {
		return nil, nil
	}
	c.done = true

	entries, err := os.ReadDir(c.outdir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		if c.kept(entry.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.outdir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed = append(removed, entry.Name())
	}
	return removed, nil
}

func (c *cleaner) kept(name string) bool {
	for _, g := range c.keep {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// within reports whether path is dir or lies below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
