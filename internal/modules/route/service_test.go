package route

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"hitch/internal/config"
	"hitch/internal/modules/trip"
	"hitch/internal/types"
)

type fakeGeocoder struct{}

func (fakeGeocoder) Resolve(_ context.Context, name string) (types.Point, error) {
	switch name {
	case "nowhere":
		return types.Point{}, errors.New("location not found")
	case "Hsinchu":
		return types.Point{Lat: 24.8138, Lng: 120.9675}, nil
	default:
		return types.Point{Lat: 25.0330, Lng: 121.5654}, nil
	}
}

type fakeRouter struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, call int) ([]types.Point, float64, error)
}

func (f *fakeRouter) Route(ctx context.Context, _, _ types.Point) ([]types.Point, float64, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(ctx, call)
}

type recordingSaver struct {
	mu     sync.Mutex
	saves  []trip.RouteCache
	offers []types.ID
	done   chan struct{}
}

func newRecordingSaver() *recordingSaver {
	return &recordingSaver{done: make(chan struct{}, 16)}
}

func (r *recordingSaver) SaveRouteCache(_ context.Context, offerID types.ID, cache trip.RouteCache) error {
	r.mu.Lock()
	r.saves = append(r.saves, cache)
	r.offers = append(r.offers, offerID)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

var testPolyline = []types.Point{
	{Lat: 24.8138, Lng: 120.9675},
	{Lat: 24.9, Lng: 121.2},
	{Lat: 25.0330, Lng: 121.5654},
}

func newTestService(router Router, saver CacheSaver) *Service {
	cfg := config.RouteConfig{MaxAttempts: 3, RetryDelay: 5 * time.Millisecond, ResampleKm: 1.0}
	return NewService(router, fakeGeocoder{}, saver, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func waitSave(t *testing.T, saver *recordingSaver) {
	t.Helper()
	select {
	case <-saver.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for route cache save")
	}
}

func TestScheduleBackground_Success(t *testing.T) {
	router := &fakeRouter{fn: func(context.Context, int) ([]types.Point, float64, error) {
		return testPolyline, 72.5, nil
	}}
	saver := newRecordingSaver()
	svc := newTestService(router, saver)

	svc.ScheduleBackground("o1", "Hsinchu", "Taipei")
	waitSave(t, saver)
	svc.Shutdown()

	if saver.count() != 1 {
		t.Fatalf("expected one save, got %d", saver.count())
	}
	cache := saver.saves[0]
	if cache.Pending {
		t.Fatal("saved cache must not be pending")
	}
	if cache.LengthKm != 72.5 || len(cache.Points) == 0 {
		t.Fatalf("unexpected cache: %+v", cache)
	}
}

func TestScheduleBackground_RetriesThenSucceeds(t *testing.T) {
	router := &fakeRouter{fn: func(_ context.Context, call int) ([]types.Point, float64, error) {
		if call < 3 {
			return nil, 0, errors.New("engine timeout")
		}
		return testPolyline, 72.5, nil
	}}
	saver := newRecordingSaver()
	svc := newTestService(router, saver)

	svc.ScheduleBackground("o1", "Hsinchu", "Taipei")
	waitSave(t, saver)
	svc.Shutdown()

	if router.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", router.calls)
	}
	if saver.count() != 1 {
		t.Fatalf("expected one save, got %d", saver.count())
	}
}

func TestScheduleBackground_ExhaustionLeavesPending(t *testing.T) {
	attempts := make(chan int, 8)
	router := &fakeRouter{fn: func(_ context.Context, call int) ([]types.Point, float64, error) {
		attempts <- call
		return nil, 0, errors.New("engine down")
	}}
	saver := newRecordingSaver()
	svc := newTestService(router, saver)

	svc.ScheduleBackground("o1", "Hsinchu", "Taipei")
	for i := 0; i < 3; i++ {
		select {
		case <-attempts:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for attempt %d", i+1)
		}
	}
	svc.wg.Wait()

	if router.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", router.calls)
	}
	if saver.count() != 0 {
		t.Fatal("exhausted worker must not write a cache")
	}
}

func TestScheduleBackground_UnresolvableOriginWritesNothing(t *testing.T) {
	router := &fakeRouter{fn: func(context.Context, int) ([]types.Point, float64, error) {
		return testPolyline, 72.5, nil
	}}
	saver := newRecordingSaver()
	svc := newTestService(router, saver)

	svc.ScheduleBackground("o1", "nowhere", "Taipei")
	svc.wg.Wait()

	if router.calls != 0 {
		t.Fatalf("router should not be called for an unresolvable origin, got %d", router.calls)
	}
	if saver.count() != 0 {
		t.Fatal("no cache should be written")
	}
}

// A second schedule for the same offer must cancel the first so the stale
// computation never writes route data.
func TestScheduleBackground_SecondScheduleCancelsFirst(t *testing.T) {
	firstStarted := make(chan struct{})
	release := make(chan struct{})
	router := &fakeRouter{fn: func(ctx context.Context, call int) ([]types.Point, float64, error) {
		if call == 1 {
			close(firstStarted)
			select {
			case <-release:
				return testPolyline, 99.0, nil
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}
		return testPolyline, 72.5, nil
	}}
	saver := newRecordingSaver()
	svc := newTestService(router, saver)

	svc.ScheduleBackground("o1", "Hsinchu", "Taipei")
	<-firstStarted
	svc.ScheduleBackground("o1", "Hsinchu", "Taipei")

	waitSave(t, saver)
	close(release)
	svc.Shutdown()

	if saver.count() != 1 {
		t.Fatalf("only the second computation may write, got %d saves", saver.count())
	}
	if saver.saves[0].LengthKm != 72.5 {
		t.Fatalf("save came from the cancelled task: %+v", saver.saves[0])
	}
}

func TestScheduleBackground_DeregistersOnCompletion(t *testing.T) {
	router := &fakeRouter{fn: func(context.Context, int) ([]types.Point, float64, error) {
		return testPolyline, 72.5, nil
	}}
	saver := newRecordingSaver()
	svc := newTestService(router, saver)

	svc.ScheduleBackground("o1", "Hsinchu", "Taipei")
	waitSave(t, saver)
	svc.Shutdown()

	svc.mu.Lock()
	n := len(svc.tasks)
	svc.mu.Unlock()
	if n != 0 {
		t.Fatalf("task registry should be empty, has %d entries", n)
	}
}

func TestFetch_Resamples(t *testing.T) {
	dense := make([]types.Point, 200)
	for i := range dense {
		dense[i] = types.Point{Lat: 24.8 + float64(i)*0.001, Lng: 121.0}
	}
	router := &fakeRouter{fn: func(context.Context, int) ([]types.Point, float64, error) {
		return dense, 22.0, nil
	}}
	svc := newTestService(router, newRecordingSaver())

	r, err := svc.Fetch(context.Background(), dense[0], dense[len(dense)-1])
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(r.Points) >= len(dense) {
		t.Fatalf("fetch should resample: %d -> %d", len(dense), len(r.Points))
	}
	if r.LengthKm != 22.0 {
		t.Fatalf("unexpected length %f", r.LengthKm)
	}
}

func TestFetch_Unavailable(t *testing.T) {
	router := &fakeRouter{fn: func(context.Context, int) ([]types.Point, float64, error) {
		return nil, 0, errors.New("no route found")
	}}
	svc := newTestService(router, newRecordingSaver())

	_, err := svc.Fetch(context.Background(), types.Point{}, types.Point{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
