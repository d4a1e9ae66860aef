package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Op is what happened to a watched file.
type Op int

const (
	Created Op = iota
	Written
	Removed
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Written:
		return "written"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Event reports one change in the watched folder. Entry only carries Name
// and Kind for Removed events.
type Event struct {
	Op    Op
	Entry Entry
}

// Watch calls fn for every file created, written or removed in dir until
// ctx is done. Subdirectories are ignored. fn runs on the watching
// goroutine. It returns nil when ctx is cancelled.
func Watch(ctx context.Context, dir string, fn func(Event)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if out, ok := translate(ev); ok {
				fn(out)
			}
		}
	}
}

func translate(ev fsnotify.Event) (Event, bool) {
	name := filepath.Base(ev.Name)
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return Event{Op: Removed, Entry: Entry{Name: name, Kind: KindOf(name)}}, true
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		fi, err := os.Stat(ev.Name)
		if err != nil || !fi.Mode().IsRegular() {
			return Event{}, false
		}
		e, err := stat(ev.Name)
		if err != nil {
			return Event{}, false
		}
		op := Written
		if ev.Has(fsnotify.Create) {
			op = Created
		}
		return Event{Op: op, Entry: e}, true
	}
	return Event{}, false
}
