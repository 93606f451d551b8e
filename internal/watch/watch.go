// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package watch hands FITS files arriving in a directory to a handler, once they
// have stopped changing.
package watch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mlnoga/reproject/internal/ops"
)

// Called once for each new file, sequentially
type Handler func(fileName string) error

// Watches a directory for new FITS files
type Watcher struct {
	watcher *fsnotify.Watcher
	dir     string
	settle  time.Duration // quiet time after the last event before a file is handed over
	exclude []string      // glob patterns on base names which are never handed over
	log     io.Writer
	handle  Handler

	timers map[string]*time.Timer
	seen   map[string]bool
	ready  chan string
	done   chan struct{} // closed when Run returns
}

// Creates a watcher for the given directory. Files matching any of the exclude patterns,
// typically the outputs written into the same directory, are ignored
func New(dir string, settle time.Duration, exclude []string, log io.Writer, handle Handler) (*Watcher, error) {
	for _, pattern := range exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("exclude pattern %s: %w", pattern, err)
		}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		watcher: fw,
		dir:     dir,
		settle:  settle,
		exclude: exclude,
		log:     log,
		handle:  handle,
		timers:  map[string]*time.Timer{},
		seen:    map[string]bool{},
		ready:   make(chan string, 16),
		done:    make(chan struct{}),
	}, nil
}

// Returns true if the file should be handed to the handler
func (w *Watcher) accepts(fileName string) bool {
	if !ops.IsFITSName(fileName) {
		return false
	}
	base := filepath.Base(fileName)
	for _, pattern := range w.exclude {
		if ok, _ := filepath.Match(pattern, base); ok {
			return false
		}
	}
	return true
}

// Processes events until the context is done. Handler errors are logged and do not stop the watcher
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	defer close(w.done)
	fmt.Fprintf(w.log, "Watching directory %s\n", w.dir)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !(event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) || !w.accepts(event.Name) {
				continue
			}
			w.debounce(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(w.log, "Watcher error: %s\n", err.Error())

		case name := <-w.ready:
			delete(w.timers, name)
			if w.seen[name] {
				continue
			}
			w.seen[name] = true
			if err := w.handle(name); err != nil {
				fmt.Fprintf(w.log, "Error processing %s: %s\n", name, err.Error())
			}

		case <-ctx.Done():
			for _, t := range w.timers {
				t.Stop()
			}
			return nil
		}
	}
}

// Restarts the quiet period for the given file
func (w *Watcher) debounce(name string) {
	if t, ok := w.timers[name]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[name] = time.AfterFunc(w.settle, func() {
		select {
		case w.ready <- name:
		case <-w.done:
		}
	})
}
