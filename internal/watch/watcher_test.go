package watch

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rimio/sota-notifier/internal/config"
)

type fakeTarget struct {
	mu        sync.Mutex
	threshold float64
	modes     []string
}

func (f *fakeTarget) SetThreshold(km float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = km
}

func (f *fakeTarget) SetModes(m []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = m
}

func (f *fakeTarget) get() (float64, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threshold, f.modes
}

func TestReloadAppliesSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sota-notifier.yaml")
	if err := os.WriteFile(path, []byte("distance_km: 120\nmodes: [cw, ssb]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := &fakeTarget{threshold: 2000}
	New(path, target, nil).Reload()
	km, modes := target.get()
	if km != 120 || !reflect.DeepEqual(modes, []string{"cw", "ssb"}) {
		t.Fatalf("unexpected reload km=%v modes=%v", km, modes)
	}
}

func TestReloadKeepsSettingsOnBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sota-notifier.yaml")
	if err := os.WriteFile(path, []byte("distance_km: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := &fakeTarget{threshold: 2000}
	New(path, target, nil).Reload()
	if km, _ := target.get(); km != 2000 {
		t.Fatalf("expected threshold untouched, got %v", km)
	}
}

func TestReloadLeavesPinnedKeysAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sota-notifier.yaml")
	if err := os.WriteFile(path, []byte("distance_km: 3000\nmodes: [fm]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := &fakeTarget{threshold: 500}
	New(path, target, map[string]bool{config.KeyDistance: true}).Reload()
	km, modes := target.get()
	if km != 500 {
		t.Fatalf("distance set on the command line must survive a reload, got %v", km)
	}
	if !reflect.DeepEqual(modes, []string{"fm"}) {
		t.Fatalf("expected unpinned modes to reload, got %v", modes)
	}

	target = &fakeTarget{threshold: 500, modes: []string{"cw"}}
	New(path, target, map[string]bool{config.KeyModes: true}).Reload()
	km, modes = target.get()
	if km != 3000 || !reflect.DeepEqual(modes, []string{"cw"}) {
		t.Fatalf("expected distance reloaded and modes kept, got km=%v modes=%v", km, modes)
	}
}

func TestReloadRejectsInvalidDistance(t *testing.T) {
	for _, body := range []string{"distance_km: .nan\n", "distance_km: -5\n", "distance_km: .inf\n"} {
		path := filepath.Join(t.TempDir(), "sota-notifier.yaml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		target := &fakeTarget{threshold: 2000}
		New(path, target, nil).Reload()
		if km, _ := target.get(); km != 2000 {
			t.Fatalf("%q: expected threshold untouched, got %v", body, km)
		}
	}
}

func TestWatcherPicksUpWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sota-notifier.yaml")
	if err := os.WriteFile(path, []byte("distance_km: 100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := &fakeTarget{threshold: 100}
	w := New(path, target, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("distance_km: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("distance_km: 350\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-w.applied:
			if km, _ := target.get(); km == 350 {
				return
			}
		case <-deadline:
			km, _ := target.get()
			t.Fatalf("expected threshold 350 after write, got %v", km)
		}
	}
}
