package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vanderheijden86/aios/pkg/config"
)

func writeConfig(t *testing.T, path string, enabled bool) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Analytics.Enabled = &enabled
	if err := config.SaveTo(cfg, path); err != nil {
		t.Fatal(err)
	}
}

func waitReload(t *testing.T, ch <-chan config.Config) config.Config {
	t.Helper()
	select {
	case cfg := <-ch:
		return cfg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	return config.Config{}
}

func startWatcher(t *testing.T, path string, opts ...Option) (*Watcher, <-chan config.Config) {
	t.Helper()
	ch := make(chan config.Config, 8)
	opts = append([]Option{
		WithDebounceDuration(20 * time.Millisecond),
		WithPollInterval(20 * time.Millisecond),
		WithLoader(config.LoadFrom),
	}, opts...)
	w, err := New(path, func(cfg config.Config) { ch <- cfg }, opts...)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w, ch
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	for _, poll := range []bool{false, true} {
		name := "fsnotify"
		if poll {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			writeConfig(t, path, true)

			w, ch := startWatcher(t, path, WithForcePoll(poll))
			if poll && !w.IsPolling() {
				t.Fatal("expected polling mode")
			}
			time.Sleep(50 * time.Millisecond)

			writeConfig(t, path, false)
			cfg := waitReload(t, ch)
			if cfg.Analytics.IsEnabled() {
				t.Error("expected reloaded config to disable analytics")
			}
		})
	}
}

func TestWatcher_CoalescesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, true)

	var reloads atomic.Int32
	w, err := New(path, func(config.Config) { reloads.Add(1) },
		WithDebounceDuration(150*time.Millisecond),
		WithLoader(config.LoadFrom),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 5; i++ {
		writeConfig(t, path, i%2 == 0)
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(600 * time.Millisecond)

	if got := reloads.Load(); got != 1 {
		t.Errorf("expected 1 reload, got %d", got)
	}
}

func TestWatcher_InvalidConfigReportsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, true)

	errCh := make(chan error, 8)
	_, ch := startWatcher(t, path, WithForcePoll(true), WithOnError(func(err error) { errCh <- err }))
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("analytics:\n  batch_size: -4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected a non-nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error")
	}
	select {
	case <-ch:
		t.Error("invalid config must not be delivered")
	default:
	}
}

func TestWatcher_StartTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	w, _ := startWatcher(t, path)
	if err := w.Start(context.Background()); err != ErrAlreadyStarted {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	w, err := New(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	w.Stop()
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestWatcher_MissingFileIsCreatedLater(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	_, ch := startWatcher(t, path, WithForcePoll(true))
	time.Sleep(50 * time.Millisecond)

	writeConfig(t, path, false)
	if cfg := waitReload(t, ch); cfg.Analytics.IsEnabled() {
		t.Error("expected analytics disabled")
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("AIOS_TEST_BOOL", " Yes ")
	if !envBool("AIOS_TEST_BOOL") {
		t.Error("expected yes to be true")
	}
	t.Setenv("AIOS_TEST_BOOL", "off")
	if envBool("AIOS_TEST_BOOL") {
		t.Error("expected off to be false")
	}
}
