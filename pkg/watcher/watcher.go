// Package watcher reruns a callback whenever a subject file changes,
// used by the thumbnail tool's watch mode.
package watcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SubjectWatcher watches a single subject file and invokes a callback
// after changes settle. Editors often replace files with rename+create,
// so the parent directory is watched and events are filtered by name.
//
// Writes made by the callback itself do not re-fire: after each
// callback the subject's content hash is recorded, and a debounced
// batch whose content matches it is dropped.
type SubjectWatcher struct {
	watcher  *fsnotify.Watcher
	subject  string
	debounce time.Duration

	lastSum [sha256.Size]byte
	haveSum bool
}

// New creates a watcher for the given subject file. debounce is how
// long writes must settle before the callback fires.
func New(subject string, debounce time.Duration) (*SubjectWatcher, error) {
	abs, err := filepath.Abs(subject)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", subject, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	sw := &SubjectWatcher{watcher: w, subject: abs, debounce: debounce}
	sw.recordSum()
	return sw, nil
}

// Run blocks until the context is cancelled, invoking onChange after
// each debounced batch of write or create events on the subject.
// Watch errors are reported through onError and do not stop the loop.
func (sw *SubjectWatcher) Run(ctx context.Context, onChange func(), onError func(error)) {
	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != sw.subject {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(sw.debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})

		case <-pending:
			if sw.unchanged() {
				continue
			}
			onChange()
			sw.recordSum()

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}

// unchanged reports whether the subject's content still matches the
// state recorded after the previous callback. An unreadable subject
// counts as changed so the callback gets to report the failure.
func (sw *SubjectWatcher) unchanged() bool {
	data, err := os.ReadFile(sw.subject)
	if err != nil {
		return false
	}
	return sw.haveSum && sha256.Sum256(data) == sw.lastSum
}

func (sw *SubjectWatcher) recordSum() {
	data, err := os.ReadFile(sw.subject)
	if err != nil {
		sw.haveSum = false
		return
	}
	sw.lastSum = sha256.Sum256(data)
	sw.haveSum = true
}

// Close stops the watcher.
func (sw *SubjectWatcher) Close() error {
	return sw.watcher.Close()
}
