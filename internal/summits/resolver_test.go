package summits

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rimio/sota-notifier/internal/geo"
	"github.com/rimio/sota-notifier/internal/sota"
)

type stubFetcher struct {
	mu     sync.Mutex
	calls  map[sota.SummitKey]int
	fail   map[sota.SummitKey]int
	result map[sota.SummitKey]sota.Summit
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		calls:  map[sota.SummitKey]int{},
		fail:   map[sota.SummitKey]int{},
		result: map[sota.SummitKey]sota.Summit{},
	}
}

func (f *stubFetcher) FetchSummit(ctx context.Context, key sota.SummitKey) (sota.Summit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	if f.fail[key] > 0 {
		f.fail[key]--
		return sota.Summit{}, errors.New("connection reset")
	}
	s, ok := f.result[key]
	if !ok {
		return sota.Summit{}, sota.ErrLocationUnavailable
	}
	return s, nil
}

func TestResolveCachesHits(t *testing.T) {
	key := sota.NewSummitKey("YO", "EC-001")
	f := newStubFetcher()
	f.result[key] = sota.Summit{Key: key, Point: geo.Point{Lat: 45, Lon: 25}, AltitudeM: 2505}
	r := NewResolver(f)

	for i := 0; i < 3; i++ {
		s, err := r.Resolve(context.Background(), key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.AltitudeM != 2505 {
			t.Fatalf("unexpected summit %+v", s)
		}
	}
	if f.calls[key] != 1 {
		t.Fatalf("expected a single remote fetch, got %d", f.calls[key])
	}
	if r.Len() != 1 {
		t.Fatalf("expected cache size 1, got %d", r.Len())
	}
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	key := sota.NewSummitKey("G", "LD-001")
	f := newStubFetcher()
	f.fail[key] = 1
	f.result[key] = sota.Summit{Key: key, Point: geo.Point{Lat: 54.4, Lon: -3.2}}
	r := NewResolver(f)

	_, err := r.Resolve(context.Background(), key)
	if !errors.Is(err, sota.ErrLocationUnavailable) {
		t.Fatalf("expected ErrLocationUnavailable, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("failure must not be cached")
	}
	if _, err := r.Resolve(context.Background(), key); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if f.calls[key] != 2 {
		t.Fatalf("expected 2 fetches, got %d", f.calls[key])
	}
}

func TestResolveUnknownKey(t *testing.T) {
	r := NewResolver(newStubFetcher())
	if _, err := r.Resolve(context.Background(), sota.NewSummitKey("ZZ", "XX-999")); !errors.Is(err, sota.ErrLocationUnavailable) {
		t.Fatalf("expected ErrLocationUnavailable, got %v", err)
	}
}

func TestResolveConcurrentMissesKeepCacheConsistent(t *testing.T) {
	key := sota.NewSummitKey("W7W", "LC-001")
	f := newStubFetcher()
	f.result[key] = sota.Summit{Key: key, Point: geo.Point{Lat: 46, Lon: -121}}
	r := NewResolver(f)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background(), key); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if r.Len() != 1 {
		t.Fatalf("expected one cache entry, got %d", r.Len())
	}
	if f.calls[key] < 1 {
		t.Fatalf("expected at least one fetch")
	}
}
