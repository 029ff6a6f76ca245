package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gviegas/yf-x/kit/colorlog"
)

func newLogger() *slog.Logger {
	return colorlog.New("test", colorlog.Options{Output: io.Discard})
}

func newTestWatcher(t *testing.T, opts Options) *Watcher {
	t.Helper()
	opts.Debounce = 10 * time.Millisecond
	opts.Logger = newLogger()
	w, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestMatches(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	w := newTestWatcher(t, Options{
		Dir:        dir,
		IgnoreDirs: []string{filepath.Join(dir, "bin")},
		OnChange:   func(context.Context, []string) error { return nil },
	})

	tests := []struct {
		path string
		want bool
	}{
		{"Model.vert", true},
		{"Model.frag", true},
		{"sub/Sky.vert", true},
		{"Model.frag.glsl", false},
		{"Model.vert.bin", false},
		{"bin/Model.vert", false},
		{"binary/Model.vert", true},
		{"Model.comp", false},
		{"README.md", false},
	}
	for _, tt := range tests {
		if got := w.Matches(filepath.Join(dir, tt.path)); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
	if w.Matches(filepath.Join(filepath.Dir(dir), "Model.vert")) {
		t.Error("paths outside the root should not match")
	}
}

func TestMatchesLang(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, Options{
		Dir:      dir,
		Pattern:  SourcePattern(".glsl"),
		OnChange: func(context.Context, []string) error { return nil },
	})
	tests := []struct {
		path string
		want bool
	}{
		{"Model.vert.glsl", true},
		{"Model.frag.glsl", true},
		{"Model.vert", false},
		{"Model.vert.glsl.bin", false},
	}
	for _, tt := range tests {
		if got := w.Matches(filepath.Join(dir, tt.path)); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSourcePatternEscapesLang(t *testing.T) {
	if got, want := SourcePattern(".g*"), `**/*{.vert,.frag}.g\*`; got != want {
		t.Errorf("SourcePattern(.g*) = %q, want %q", got, want)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(Options{Dir: t.TempDir()}); err == nil {
		t.Error("New without OnChange should fail")
	}
	noop := func(context.Context, []string) error { return nil }
	if _, err := New(Options{Dir: t.TempDir(), Pattern: "[", OnChange: noop}); err == nil {
		t.Error("New with malformed pattern should fail")
	}
	if _, err := New(Options{Dir: filepath.Join(t.TempDir(), "missing"), OnChange: noop}); err == nil {
		t.Error("New on a missing directory should fail")
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	var mu sync.Mutex
	var calls [][]string
	done := make(chan struct{}, 1)

	d := newDebouncer(20*time.Millisecond, func(paths []string) {
		mu.Lock()
		calls = append(calls, paths)
		mu.Unlock()
		done <- struct{}{}
	})
	defer d.stop()

	d.add("a.vert")
	d.add("b.frag")
	d.add("a.vert")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if !slices.Equal(calls[0], []string{"a.vert", "b.frag"}) {
		t.Errorf("paths = %q, want [a.vert b.frag]", calls[0])
	}
}

func TestDebouncerNoOverlap(t *testing.T) {
	var running, maxRunning, total atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 4)

	d := newDebouncer(5*time.Millisecond, func([]string) {
		n := running.Add(1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		started <- struct{}{}
		<-release
		running.Add(-1)
		total.Add(1)
	})

	d.add("first.vert")
	<-started

	// Arrive while the first callback is still running.
	d.add("second.vert")
	d.add("third.vert")
	time.Sleep(30 * time.Millisecond)
	release <- struct{}{}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up callback never ran")
	}
	release <- struct{}{}
	d.stop()

	if got := maxRunning.Load(); got != 1 {
		t.Errorf("max concurrent callbacks = %d, want 1", got)
	}
	if got := total.Load(); got != 2 {
		t.Errorf("callbacks = %d, want 2", got)
	}
}

func TestDebouncerStopDropsPending(t *testing.T) {
	var calls atomic.Int32
	d := newDebouncer(50*time.Millisecond, func([]string) { calls.Add(1) })
	d.add("a.vert")
	d.stop()
	d.add("b.vert")

	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("callbacks after stop = %d, want 0", calls.Load())
	}
}

func TestRunTriggersOnSourceChange(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan []string, 4)
	w := newTestWatcher(t, Options{
		Dir: dir,
		OnChange: func(_ context.Context, paths []string) error {
			changed <- paths
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	// Give the event loop a moment to start.
	time.Sleep(20 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "Model.vert")
	if err := os.WriteFile(src, []byte("#version 450\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-changed:
		if !slices.Contains(paths, src) {
			t.Errorf("changed = %q, want to contain %q", paths, src)
		}
		if slices.Contains(paths, filepath.Join(dir, "notes.txt")) {
			t.Errorf("non-shader file reported: %q", paths)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run() error = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// Output written into an ignored directory under the watched root must not
// trigger another rebuild.
func TestRunIgnoresOwnOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "bin")
	if err := os.Mkdir(out, 0755); err != nil {
		t.Fatal(err)
	}

	var builds atomic.Int32
	built := make(chan struct{}, 8)
	w := newTestWatcher(t, Options{
		Dir:        dir,
		IgnoreDirs: []string{out},
		OnChange: func(context.Context, []string) error {
			builds.Add(1)
			for _, name := range []string{"Model.vert.bin", "Model.vert", "Model.frag"} {
				if err := os.WriteFile(filepath.Join(out, name), []byte("spirv"), 0644); err != nil {
					return err
				}
			}
			built <- struct{}{}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "Model.vert"), []byte("#version 450\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-built:
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild after source change")
	}

	time.Sleep(300 * time.Millisecond)
	if got := builds.Load(); got != 1 {
		t.Errorf("rebuilds = %d, want 1", got)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunStopsOnChangeError(t *testing.T) {
	dir := t.TempDir()
	errGone := errors.New("compiler gone")
	w := newTestWatcher(t, Options{
		Dir:      dir,
		OnChange: func(context.Context, []string) error { return errGone },
	})

	errc := make(chan error, 1)
	go func() { errc <- w.Run(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	src := filepath.Join(dir, "Model.frag")
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-errc:
			if !errors.Is(err, errGone) {
				t.Errorf("Run() error = %v, want %v", err, errGone)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(src, []byte("#version 450\n"), 0644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("Run kept going after OnChange failed")
		}
	}
}
