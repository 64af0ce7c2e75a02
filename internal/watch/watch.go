// Package watch reloads a form definition when its file changes and turns
// the differences into change notifications.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/goliatone/go-formcalc/pkg/field"
	"github.com/goliatone/go-formcalc/pkg/formdef"
)

// DefaultDebounce is how long a file must stay quiet before it is reloaded.
const DefaultDebounce = 150 * time.Millisecond

var errNilForm = errors.New("watch: form is nil")

// Notifier receives the notifications derived from a reload.
// *observer.Observer satisfies it.
type Notifier interface {
	Attach(scope field.ScopeID) error
	Detach(scope field.ScopeID) error
	StructuralChange(scope field.ScopeID) error
	FieldChanged(ref field.Ref) error
}

// Loader reads the form definition stored at path.
type Loader func(ctx context.Context, path string) (*formdef.Document, error)

// ReloadHandler is called after every successful reload that changed the form.
type ReloadHandler func(changes formdef.Changes)

// Option customises a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLoader replaces the default loader.
func WithLoader(load Loader) Option {
	return func(w *Watcher) {
		if load != nil {
			w.load = load
		}
	}
}

// WithReloadHandler registers a callback for applied changes.
func WithReloadHandler(fn ReloadHandler) Option {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher follows one form definition file.
type Watcher struct {
	path     string
	form     *formdef.Form
	notify   Notifier
	load     Loader
	debounce time.Duration
	onReload ReloadHandler
	logger   *zap.Logger

	mu    sync.Mutex
	dirty time.Time
}

// New constructs a Watcher that applies reloads of path to form and reports
// them to notify.
func New(path string, form *formdef.Form, notify Notifier, options ...Option) (*Watcher, error) {
	if form == nil {
		return nil, errNilForm
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", path, err)
	}
	w := &Watcher{
		path:     abs,
		form:     form,
		notify:   notify,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		load: func(ctx context.Context, path string) (*formdef.Document, error) {
			return formdef.LoadFile(ctx, path, "")
		},
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(w)
	}
	return w, nil
}

// Run watches the file until ctx is done. The parent directory is watched so
// editors that save by renaming a temporary file are followed.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch: add %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching form definition", zap.String("path", w.path))

	tick := w.debounce / 3
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case now := <-ticker.C:
			if w.settled(now) {
				if _, err := w.Reload(ctx); err != nil {
					w.logger.Error("reload failed, keeping previous form", zap.String("path", w.path), zap.Error(err))
				}
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.logger.Debug("form definition moved away", zap.String("path", w.path), zap.Stringer("op", event.Op))
		return
	default:
		return
	}
	w.mu.Lock()
	w.dirty = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) settled(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dirty.IsZero() || now.Sub(w.dirty) < w.debounce {
		return false
	}
	w.dirty = time.Time{}
	return true
}

// Reload reads the file, applies it to the form and sends one notification
// per changed scope or value.
func (w *Watcher) Reload(ctx context.Context) (formdef.Changes, error) {
	doc, err := w.load(ctx, w.path)
	if err != nil {
		return formdef.Changes{}, err
	}
	changes, err := w.form.Apply(doc)
	if err != nil {
		return formdef.Changes{}, err
	}
	if changes.Empty() {
		w.logger.Debug("reload without changes", zap.String("path", w.path))
		return changes, nil
	}

	w.logger.Info("form definition reloaded",
		zap.Int("added", len(changes.Added)),
		zap.Int("removed", len(changes.Removed)),
		zap.Int("structural", len(changes.Structural)),
		zap.Int("values", len(changes.Values)))

	if w.notify != nil {
		var errs []error
		for _, scope := range changes.Removed {
			errs = append(errs, w.notify.Detach(scope))
		}
		for _, scope := range changes.Added {
			errs = append(errs, w.notify.Attach(scope))
		}
		for _, scope := range changes.Structural {
			errs = append(errs, w.notify.StructuralChange(scope))
		}
		for _, ref := range changes.Values {
			errs = append(errs, w.notify.FieldChanged(ref))
		}
		if err := errors.Join(errs...); err != nil {
			return changes, fmt.Errorf("watch: notify: %w", err)
		}
	}
	if w.onReload != nil {
		w.onReload(changes)
	}
	return changes, nil
}
