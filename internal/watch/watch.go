// Package watch reruns the shader sweep when sources change.
//
// Every relevant change triggers a full sweep; nothing is tracked per file.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/gviegas/yf-x/kit/colorlog"
	"golang.org/x/sync/errgroup"
)

const DefaultDebounce = 30 * time.Millisecond

// DefaultPattern matches vertex and fragment sources with no language suffix.
var DefaultPattern = SourcePattern("")

// SourcePattern returns the doublestar pattern for stage sources carrying the
// given language suffix, e.g. "**/*{.vert,.frag}.glsl".
func SourcePattern(lang string) string {
	return "**/*{.vert,.frag}" + escapeMeta(lang)
}

type Options struct {
	Dir      string        // watched recursively
	Pattern  string        // doublestar, relative to Dir; default DefaultPattern
	Debounce time.Duration // default DefaultDebounce
	Logger   *slog.Logger

	// IgnoreDirs are never watched and their events never count, even when
	// nested under Dir. Compiler output directories belong here.
	IgnoreDirs []string

	// OnChange runs after a burst of matching changes settles. Calls never
	// overlap. A non-nil error stops Run, which then returns it.
	OnChange func(ctx context.Context, changed []string) error
}

type Watcher struct {
	opts    Options
	log     *slog.Logger
	root    string
	fsWatch *fsnotify.Watcher

	ignored []string

	mu          sync.Mutex
	watchedDirs map[string]bool
	changeErr   error
}

func New(opts Options) (*Watcher, error) {
	if opts.OnChange == nil {
		return nil, errors.New("watch: OnChange is required")
	}
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(opts.Pattern) {
		return nil, fmt.Errorf("watch: invalid pattern %q", opts.Pattern)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = colorlog.New("shdc")
	}

	root := opts.Dir
	if root == "" {
		root = "."
	}
	root = filepath.Clean(root)

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{
		opts:        opts,
		log:         opts.Logger,
		root:        root,
		fsWatch:     fsWatch,
		watchedDirs: map[string]bool{},
	}
	for _, dir := range opts.IgnoreDirs {
		if dir == "" {
			continue
		}
		dir = filepath.Clean(dir)
		if within(dir, root) {
			w.log.Warn("not ignoring a directory that contains the watched root", "dir", dir)
			continue
		}
		w.ignored = append(w.ignored, dir)
	}
	if err := w.addDir(root); err != nil {
		fsWatch.Close()
		return nil, fmt.Errorf("watch: %s: %w", root, err)
	}
	return w, nil
}

// Matches reports whether path, inside the watched root, is a shader source
// that should trigger a sweep.
func (w *Watcher) Matches(path string) bool {
	if w.isIgnored(path) {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	ok, err := doublestar.Match(w.opts.Pattern, filepath.ToSlash(rel))
	if err != nil {
		w.log.Error("Pattern match error", "pattern", w.opts.Pattern, "path", rel, "error", err)
		return false
	}
	return ok
}

// Run blocks until ctx is cancelled or the underlying watcher fails. The
// watcher is closed on return.
func (w *Watcher) Run(ctx context.Context) error {
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	g, gCtx := errgroup.WithContext(loopCtx)

	db := newDebouncer(w.opts.Debounce, func(paths []string) {
		if err := w.opts.OnChange(gCtx, paths); err != nil {
			w.mu.Lock()
			if w.changeErr == nil {
				w.changeErr = err
			}
			w.mu.Unlock()
			stopLoop()
		}
	})

	g.Go(func() error {
		<-gCtx.Done()
		return w.fsWatch.Close()
	})

	g.Go(func() error {
		defer stopLoop()
		defer db.stop()
		for {
			select {
			case evt, ok := <-w.fsWatch.Events:
				if !ok {
					return nil
				}
				if w.handle(evt) {
					db.add(evt.Name)
				}
			case err, ok := <-w.fsWatch.Errors:
				if !ok {
					return nil
				}
				w.log.Error("Watcher error", "error", err)
			case <-gCtx.Done():
				return nil
			}
		}
	})

	w.log.Info("watching for changes", "dir", w.root, "pattern", w.opts.Pattern)
	err := g.Wait()

	w.mu.Lock()
	changeErr := w.changeErr
	w.mu.Unlock()
	if changeErr != nil {
		return changeErr
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// handle tracks directory churn and reports whether evt should count as a
// source change.
func (w *Watcher) handle(evt fsnotify.Event) bool {
	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if w.isIgnored(evt.Name) {
				return false
			}
			if err := w.addDir(evt.Name); err != nil {
				w.log.Warn("cannot watch new directory", "dir", evt.Name, "error", err)
			}
			return false
		}
	}
	if evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename) {
		w.removeStale()
	}
	if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
		return false
	}
	return w.Matches(evt.Name)
}

func (w *Watcher) addDir(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		if path != root && (strings.HasPrefix(d.Name(), ".") || w.isIgnored(path)) {
			return filepath.SkipDir
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.watchedDirs[path] {
			return nil
		}
		if err := w.fsWatch.Add(path); err != nil {
			return err
		}
		w.watchedDirs[path] = true
		return nil
	})
}

func (w *Watcher) removeStale() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path := range w.watchedDirs {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			w.fsWatch.Remove(path)
			delete(w.watchedDirs, path)
		}
	}
}

// isIgnored reports whether path is an ignored directory or lies under one.
func (w *Watcher) isIgnored(path string) bool {
	for _, dir := range w.ignored {
		if within(dir, path) {
			return true
		}
	}
	return false
}

// within reports whether path is dir or lies under it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, filepath.Clean(path))
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// escapeMeta quotes doublestar metacharacters so s matches literally.
func escapeMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]{}\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (w *Watcher) Close() error {
	return w.fsWatch.Close()
}
