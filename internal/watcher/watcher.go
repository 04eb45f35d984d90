package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 100 * time.Millisecond

// Event is a debounced change to a watched file.
type Event struct {
	Path      string
	Op        fsnotify.Op
	Timestamp time.Time
}

type Options struct {
	Debounce time.Duration
	Logger   zerolog.Logger
}

// Watch calls onChange after writes to files settle. The parent directories
// are watched so editors that replace files on save are still seen. Watch
// blocks until ctx is done.
func Watch(ctx context.Context, files []string, opts Options, onChange func(Event)) error {
	if len(files) == 0 {
		return fmt.Errorf("no files to watch")
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	watched := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", file, err)
		}
		watched[abs] = true

		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	d := newDebouncer(debounce)
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			opts.Logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("File changed")
			d.schedule(event.Name, Event{Path: event.Name, Op: event.Op, Timestamp: time.Now().UTC()}, onChange)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			opts.Logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

type debounceEntry struct {
	timer *time.Timer
	event Event
}

// debouncer coalesces events per path and delivers the last one once the
// path has been quiet for the configured duration.
type debouncer struct {
	duration time.Duration

	mu      sync.Mutex
	entries map[string]*debounceEntry
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		entries:  make(map[string]*debounceEntry),
	}
}

// schedule reports whether an earlier pending event was replaced.
func (d *debouncer) schedule(path string, event Event, deliver func(Event)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.entries == nil {
		return false
	}

	entry, pending := d.entries[path]
	if pending {
		entry.event = event
		entry.timer.Reset(d.duration)
		return true
	}

	entry = &debounceEntry{event: event}
	entry.timer = time.AfterFunc(d.duration, func() {
		if event, ok := d.pop(path); ok {
			deliver(event)
		}
	})
	d.entries[path] = entry
	return false
}

func (d *debouncer) pop(path string) (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[path]
	if !ok {
		return Event{}, false
	}
	delete(d.entries, path)
	return entry.event, true
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, entry := range d.entries {
		entry.timer.Stop()
	}
	d.entries = nil
}
