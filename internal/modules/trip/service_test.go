package trip

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"hitch/internal/types"
)

// memRecords is the deterministic store fixture used across trip tests.
type memRecords struct {
	mu       sync.Mutex
	offers   map[types.ID]*RideOffer
	requests map[types.ID]*RideRequest
	caches   map[types.ID]RouteCache

	failCreateOffer   bool
	failCreateRequest bool
}

func newMemRecords() *memRecords {
	return &memRecords{
		offers:   make(map[types.ID]*RideOffer),
		requests: make(map[types.ID]*RideRequest),
		caches:   make(map[types.ID]RouteCache),
	}
}

func (m *memRecords) UserRecords(_ context.Context, userID types.ID) (UserRecords, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var recs UserRecords
	for _, o := range m.offers {
		if o.UserID == userID && o.Active {
			recs.Offers = append(recs.Offers, *o)
		}
	}
	for _, r := range m.requests {
		if r.UserID == userID && r.Active {
			recs.Requests = append(recs.Requests, *r)
		}
	}
	return recs, nil
}

func (m *memRecords) CreateOffer(_ context.Context, o *RideOffer) error {
	if m.failCreateOffer {
		return errors.New("store unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.offers[o.ID] = &cp
	return nil
}

func (m *memRecords) CreateRequest(_ context.Context, r *RideRequest) error {
	if m.failCreateRequest {
		return errors.New("store unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *memRecords) Offer(_ context.Context, id types.ID) (*RideOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	if cache, ok := m.caches[id]; ok {
		cp.Route = cache
	}
	return &cp, nil
}

func (m *memRecords) Request(_ context.Context, id types.ID) (*RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRecords) UpdateOfferFields(_ context.Context, userID, id types.ID, f OfferFieldUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok || o.UserID != userID || !o.Active {
		return false, nil
	}
	if f.Origin != nil {
		o.Origin = *f.Origin
	}
	if f.Destination != nil {
		o.Destination = *f.Destination
	}
	if f.Weekdays != nil {
		o.Weekdays = *f.Weekdays
		o.TravelDate = nil
	} else if f.TravelDate != nil {
		o.TravelDate = f.TravelDate
		o.Weekdays = nil
	}
	if f.DepartTime != nil {
		o.DepartTime = *f.DepartTime
	}
	if f.AutoApprove != nil {
		o.AutoApprove = *f.AutoApprove
	}
	return true, nil
}

func (m *memRecords) UpdateRequestFields(_ context.Context, userID, id types.ID, f RequestFieldUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.UserID != userID || !r.Active {
		return false, nil
	}
	if f.Origin != nil {
		r.Origin = *f.Origin
	}
	if f.Destination != nil {
		r.Destination = *f.Destination
	}
	if f.TravelDate != nil {
		r.TravelDate = *f.TravelDate
	}
	if f.DepartTime != nil {
		r.DepartTime = *f.DepartTime
	}
	if f.Flexibility != nil {
		r.Flexibility = *f.Flexibility
	}
	return true, nil
}

func (m *memRecords) Deactivate(_ context.Context, userID, id types.ID, kind RecordKind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == KindOffer {
		o, ok := m.offers[id]
		if !ok || o.UserID != userID || !o.Active {
			return false, nil
		}
		o.Active = false
		return true, nil
	}
	r, ok := m.requests[id]
	if !ok || r.UserID != userID || !r.Active {
		return false, nil
	}
	r.Active = false
	return true, nil
}

func (m *memRecords) SaveRouteCache(_ context.Context, offerID types.ID, cache RouteCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches[offerID] = cache
	return nil
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []types.ID
}

func (f *fakeScheduler) ScheduleBackground(offerID types.ID, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, offerID)
}

func (f *fakeScheduler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestService(store *memRecords, sched *fakeScheduler) *Service {
	return NewService(store, sched, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func offerCmd(user types.ID) CreateOfferCommand {
	return CreateOfferCommand{
		UserID:      user,
		Origin:      "Hsinchu",
		Destination: "Taipei",
		Weekdays:    []time.Weekday{time.Monday, time.Wednesday},
		DepartTime:  "08:00",
		AutoApprove: true,
	}
}

func requestCmd(user types.ID) CreateRequestCommand {
	return CreateRequestCommand{
		UserID:      user,
		Origin:      "Hsinchu",
		Destination: "Taipei",
		TravelDate:  date(2026, time.September, 7), // a Monday
		DepartTime:  "08:15",
		Flexibility: FlexFlexible,
	}
}

func TestCreateOffer_DuplicateRejected(t *testing.T) {
	store := newMemRecords()
	sched := &fakeScheduler{}
	svc := newTestService(store, sched)
	ctx := context.Background()

	if _, _, err := svc.CreateOffer(ctx, offerCmd("u1")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, _, err := svc.CreateOffer(ctx, offerCmd("u1"))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if len(store.offers) != 1 {
		t.Fatalf("duplicate must not add a record, have %d", len(store.offers))
	}
}

func TestCreateOffer_DuplicateScopedToUser(t *testing.T) {
	store := newMemRecords()
	svc := newTestService(store, &fakeScheduler{})
	ctx := context.Background()

	if _, _, err := svc.CreateOffer(ctx, offerCmd("u1")); err != nil {
		t.Fatalf("create u1: %v", err)
	}
	if _, _, err := svc.CreateOffer(ctx, offerCmd("u2")); err != nil {
		t.Fatalf("another user may carry the same trip: %v", err)
	}
}

func TestCreateRequest_DuplicateNeedsSameDate(t *testing.T) {
	store := newMemRecords()
	svc := newTestService(store, &fakeScheduler{})
	ctx := context.Background()

	if _, _, err := svc.CreateRequest(ctx, requestCmd("u1")); err != nil {
		t.Fatalf("first create: %v", err)
	}

	dup := requestCmd("u1")
	if _, _, err := svc.CreateRequest(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	other := requestCmd("u1")
	other.TravelDate = date(2026, time.September, 14)
	if _, _, err := svc.CreateRequest(ctx, other); err != nil {
		t.Fatalf("different date is not a duplicate: %v", err)
	}
}

func TestCreateOffer_CrossKindConflict(t *testing.T) {
	store := newMemRecords()
	svc := newTestService(store, &fakeScheduler{})
	ctx := context.Background()

	reqID, _, err := svc.CreateRequest(ctx, requestCmd("u1"))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	// The recurring offer covers the request's Monday.
	_, conflict, err := svc.CreateOffer(ctx, offerCmd("u1"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if conflict == nil {
		t.Fatal("conflict payload missing")
	}
	if conflict.Kind != KindRequest || conflict.RecordID != reqID {
		t.Fatalf("conflict should point at the request: %+v", conflict)
	}
	if conflict.Destination != "Taipei" || conflict.Time != "08:15" {
		t.Fatalf("conflict payload incomplete: %+v", conflict)
	}
}

func TestResolveConflictWithOffer_Swap(t *testing.T) {
	store := newMemRecords()
	sched := &fakeScheduler{}
	svc := newTestService(store, sched)
	ctx := context.Background()

	reqID, _, err := svc.CreateRequest(ctx, requestCmd("u1"))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	_, conflict, err := svc.CreateOffer(ctx, offerCmd("u1"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	offerID, err := svc.ResolveConflictWithOffer(ctx, *conflict, offerCmd("u1"))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if store.requests[reqID].Active {
		t.Fatal("old request should be deactivated")
	}
	if _, ok := store.offers[offerID]; !ok {
		t.Fatal("new offer missing after swap")
	}
	if sched.count() != 1 {
		t.Fatalf("swap should schedule one route computation, got %d", sched.count())
	}
}

func TestResolveConflictWithOffer_PartialFailure(t *testing.T) {
	store := newMemRecords()
	svc := newTestService(store, &fakeScheduler{})
	ctx := context.Background()

	reqID, _, err := svc.CreateRequest(ctx, requestCmd("u1"))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	_, conflict, _ := svc.CreateOffer(ctx, offerCmd("u1"))

	store.failCreateOffer = true
	_, err = svc.ResolveConflictWithOffer(ctx, *conflict, offerCmd("u1"))
	if !errors.Is(err, ErrSwapIncomplete) {
		t.Fatalf("expected ErrSwapIncomplete, got %v", err)
	}
	// The non-atomic two-step is exposed, not hidden: the old record is gone.
	if store.requests[reqID].Active {
		t.Fatal("old request should remain deactivated after partial failure")
	}
}

func TestCreateOffer_SchedulesRoute(t *testing.T) {
	store := newMemRecords()
	sched := &fakeScheduler{}
	svc := newTestService(store, sched)

	id, _, err := svc.CreateOffer(context.Background(), offerCmd("u1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sched.count() != 1 || sched.calls[0] != id {
		t.Fatalf("expected one schedule call for %s, got %v", id, sched.calls)
	}
}

func TestUpdateOffer_OriginChangeInvalidatesRoute(t *testing.T) {
	store := newMemRecords()
	sched := &fakeScheduler{}
	svc := newTestService(store, sched)
	ctx := context.Background()

	id, _, err := svc.CreateOffer(ctx, offerCmd("u1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	store.caches[id] = RouteCache{Points: []types.Point{{Lat: 1, Lng: 1}}, LengthKm: 10, Pending: false}

	origin := "Zhubei"
	o, err := svc.UpdateOffer(ctx, "u1", id, OfferFieldUpdate{Origin: &origin})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !o.Route.Pending {
		t.Fatal("route cache should be pending after origin change")
	}
	if cache := store.caches[id]; !cache.Pending || len(cache.Points) != 0 {
		t.Fatalf("stored cache should be reset, got %+v", cache)
	}
	if sched.count() != 2 {
		t.Fatalf("expected reschedule after edit, got %d calls", sched.count())
	}
}

func TestUpdateOffer_TimeChangeKeepsRoute(t *testing.T) {
	store := newMemRecords()
	sched := &fakeScheduler{}
	svc := newTestService(store, sched)
	ctx := context.Background()

	id, _, err := svc.CreateOffer(ctx, offerCmd("u1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	store.caches[id] = RouteCache{Points: []types.Point{{Lat: 1, Lng: 1}}, LengthKm: 10, Pending: false}

	depart := "09:30"
	o, err := svc.UpdateOffer(ctx, "u1", id, OfferFieldUpdate{DepartTime: &depart})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if o.Route.Pending {
		t.Fatal("time-only edit must not invalidate the route cache")
	}
	if sched.count() != 1 {
		t.Fatalf("time-only edit must not reschedule, got %d calls", sched.count())
	}
}

func TestValidation(t *testing.T) {
	svc := newTestService(newMemRecords(), &fakeScheduler{})
	ctx := context.Background()

	tests := []struct {
		name string
		mod  func(*CreateOfferCommand)
	}{
		{"missing origin", func(c *CreateOfferCommand) { c.Origin = "" }},
		{"bad time", func(c *CreateOfferCommand) { c.DepartTime = "8am" }},
		{"no schedule", func(c *CreateOfferCommand) { c.Weekdays = nil }},
		{"both schedules", func(c *CreateOfferCommand) {
			d := date(2026, time.September, 7)
			c.TravelDate = &d
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := offerCmd("u1")
			tt.mod(&cmd)
			if _, _, err := svc.CreateOffer(ctx, cmd); !errors.Is(err, ErrBadRequest) {
				t.Errorf("expected ErrBadRequest, got %v", err)
			}
		})
	}
}

func TestCreateRequest_DefaultsFlexibility(t *testing.T) {
	store := newMemRecords()
	svc := newTestService(store, &fakeScheduler{})

	cmd := requestCmd("u1")
	cmd.Flexibility = ""
	id, _, err := svc.CreateRequest(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if store.requests[id].Flexibility != FlexVeryFlexible {
		t.Fatalf("blank flexibility should fail open to very_flexible, got %q", store.requests[id].Flexibility)
	}
}

func TestDeactivate(t *testing.T) {
	store := newMemRecords()
	svc := newTestService(store, &fakeScheduler{})
	ctx := context.Background()

	id, _, err := svc.CreateOffer(ctx, offerCmd("u1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Deactivate(ctx, "u1", id, KindOffer); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if store.offers[id].Active {
		t.Fatal("offer should be inactive")
	}
	if err := svc.Deactivate(ctx, "u1", id, KindOffer); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second deactivate should be ErrNotFound, got %v", err)
	}
}
