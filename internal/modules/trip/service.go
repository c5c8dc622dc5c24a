// README: Ride record service: creation with duplicate/conflict checks, field updates, soft deletion.
package trip

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hitch/internal/types"
)

var (
	ErrBadRequest = errors.New("bad request")
	// ErrDuplicate signals an identical active record of the same kind.
	ErrDuplicate = errors.New("ride already exists")
	// ErrConflict signals an active record of the opposite kind for the same
	// trip; the returned Conflict describes what would be replaced.
	ErrConflict = errors.New("conflicting ride exists")
	// ErrSwapIncomplete means the old record was removed but the new one was
	// not created. The caller should retry the creation.
	ErrSwapIncomplete = errors.New("old ride removed but new one not saved, try again")
)

// Records is the store contract the service needs. *Store implements it;
// tests use an in-memory fixture.
type Records interface {
	UserRecords(ctx context.Context, userID types.ID) (UserRecords, error)
	CreateOffer(ctx context.Context, o *RideOffer) error
	CreateRequest(ctx context.Context, r *RideRequest) error
	Offer(ctx context.Context, id types.ID) (*RideOffer, error)
	Request(ctx context.Context, id types.ID) (*RideRequest, error)
	UpdateOfferFields(ctx context.Context, userID, id types.ID, f OfferFieldUpdate) (bool, error)
	UpdateRequestFields(ctx context.Context, userID, id types.ID, f RequestFieldUpdate) (bool, error)
	Deactivate(ctx context.Context, userID, id types.ID, kind RecordKind) (bool, error)
	SaveRouteCache(ctx context.Context, offerID types.ID, cache RouteCache) error
}

// RouteScheduler kicks off background route computation for an offer.
type RouteScheduler interface {
	ScheduleBackground(offerID types.ID, origin, destination string)
}

type Service struct {
	store  Records
	routes RouteScheduler
	log    *slog.Logger
}

func NewService(store Records, routes RouteScheduler, log *slog.Logger) *Service {
	return &Service{store: store, routes: routes, log: log}
}

type CreateOfferCommand struct {
	UserID      types.ID
	Origin      string
	Destination string
	Weekdays    []time.Weekday
	TravelDate  *time.Time
	DepartTime  string
	AutoApprove bool
}

type CreateRequestCommand struct {
	UserID      types.ID
	Origin      string
	Destination string
	TravelDate  time.Time
	DepartTime  string
	Flexibility Flexibility
}

// CreateOffer validates and persists a new driver offer. A same-kind
// duplicate rejects the creation outright; a cross-kind collision returns
// the Conflict alongside ErrConflict so the caller can ask for confirmation.
func (s *Service) CreateOffer(ctx context.Context, cmd CreateOfferCommand) (types.ID, *Conflict, error) {
	if err := validateOffer(cmd); err != nil {
		return "", nil, err
	}
	recs, err := s.store.UserRecords(ctx, cmd.UserID)
	if err != nil {
		return "", nil, fmt.Errorf("load user records: %w", err)
	}
	for _, o := range recs.Offers {
		if sameDestination(o.Destination, cmd.Destination) && o.DepartTime == cmd.DepartTime {
			return "", nil, ErrDuplicate
		}
	}
	for _, r := range recs.Requests {
		if sameDestination(r.Destination, cmd.Destination) && offerCoversDate(cmd.Weekdays, cmd.TravelDate, r.TravelDate) {
			date := r.TravelDate
			return "", &Conflict{
				Kind:        KindRequest,
				RecordID:    r.ID,
				Destination: r.Destination,
				Date:        &date,
				Time:        r.DepartTime,
			}, ErrConflict
		}
	}
	return s.insertOffer(ctx, cmd)
}

// CreateRequest is the hitchhiker-side counterpart of CreateOffer.
func (s *Service) CreateRequest(ctx context.Context, cmd CreateRequestCommand) (types.ID, *Conflict, error) {
	if err := validateRequest(&cmd); err != nil {
		return "", nil, err
	}
	recs, err := s.store.UserRecords(ctx, cmd.UserID)
	if err != nil {
		return "", nil, fmt.Errorf("load user records: %w", err)
	}
	for _, r := range recs.Requests {
		if sameDestination(r.Destination, cmd.Destination) &&
			r.DepartTime == cmd.DepartTime && SameDay(r.TravelDate, cmd.TravelDate) {
			return "", nil, ErrDuplicate
		}
	}
	for _, o := range recs.Offers {
		if sameDestination(o.Destination, cmd.Destination) && o.RunsOn(cmd.TravelDate) {
			c := &Conflict{
				Kind:        KindOffer,
				RecordID:    o.ID,
				Destination: o.Destination,
				Date:        o.TravelDate,
				Time:        o.DepartTime,
			}
			return "", c, ErrConflict
		}
	}
	return s.insertRequest(ctx, cmd)
}

// ResolveConflictWithOffer performs the confirmed swap: deactivate the old
// record, then create the new offer. The two steps are not atomic; a failure
// after the first step surfaces as ErrSwapIncomplete for the caller to retry.
func (s *Service) ResolveConflictWithOffer(ctx context.Context, c Conflict, cmd CreateOfferCommand) (types.ID, error) {
	if err := validateOffer(cmd); err != nil {
		return "", err
	}
	ok, err := s.store.Deactivate(ctx, cmd.UserID, c.RecordID, c.Kind)
	if err != nil {
		return "", fmt.Errorf("remove old %s: %w", c.Kind, err)
	}
	if !ok {
		return "", ErrNotFound
	}
	id, _, err := s.insertOffer(ctx, cmd)
	if err != nil {
		s.log.Error("conflict swap interrupted after deactivation",
			"user", cmd.UserID, "removed", c.RecordID, "err", err)
		return "", ErrSwapIncomplete
	}
	return id, nil
}

// ResolveConflictWithRequest is the request-side swap.
func (s *Service) ResolveConflictWithRequest(ctx context.Context, c Conflict, cmd CreateRequestCommand) (types.ID, error) {
	if err := validateRequest(&cmd); err != nil {
		return "", err
	}
	ok, err := s.store.Deactivate(ctx, cmd.UserID, c.RecordID, c.Kind)
	if err != nil {
		return "", fmt.Errorf("remove old %s: %w", c.Kind, err)
	}
	if !ok {
		return "", ErrNotFound
	}
	id, _, err := s.insertRequest(ctx, cmd)
	if err != nil {
		s.log.Error("conflict swap interrupted after deactivation",
			"user", cmd.UserID, "removed", c.RecordID, "err", err)
		return "", ErrSwapIncomplete
	}
	return id, nil
}

// UpdateOffer applies a partial edit. Changing origin or destination
// invalidates the owned route cache and reschedules the background
// computation. The updated offer is returned so the caller can re-run the
// match search.
func (s *Service) UpdateOffer(ctx context.Context, userID, id types.ID, f OfferFieldUpdate) (*RideOffer, error) {
	if f.DepartTime != nil {
		if _, err := time.Parse("15:04", *f.DepartTime); err != nil {
			return nil, ErrBadRequest
		}
	}
	ok, err := s.store.UpdateOfferFields(ctx, userID, id, f)
	if err != nil {
		return nil, fmt.Errorf("update offer: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	o, err := s.store.Offer(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Origin != nil || f.Destination != nil {
		if err := s.store.SaveRouteCache(ctx, id, RouteCache{Pending: true}); err != nil {
			s.log.Warn("route cache invalidation failed", "offer", id, "err", err)
		}
		o.Route = RouteCache{Pending: true}
		s.routes.ScheduleBackground(id, o.Origin, o.Destination)
	}
	return o, nil
}

func (s *Service) UpdateRequest(ctx context.Context, userID, id types.ID, f RequestFieldUpdate) (*RideRequest, error) {
	if f.DepartTime != nil {
		if _, err := time.Parse("15:04", *f.DepartTime); err != nil {
			return nil, ErrBadRequest
		}
	}
	ok, err := s.store.UpdateRequestFields(ctx, userID, id, f)
	if err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.store.Request(ctx, id)
}

// Offer loads a single offer by ID.
func (s *Service) Offer(ctx context.Context, id types.ID) (*RideOffer, error) {
	return s.store.Offer(ctx, id)
}

// Request loads a single request by ID.
func (s *Service) Request(ctx context.Context, id types.ID) (*RideRequest, error) {
	return s.store.Request(ctx, id)
}

// Deactivate soft-deletes a user's record.
func (s *Service) Deactivate(ctx context.Context, userID, id types.ID, kind RecordKind) error {
	ok, err := s.store.Deactivate(ctx, userID, id, kind)
	if err != nil {
		return fmt.Errorf("deactivate %s: %w", kind, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) insertOffer(ctx context.Context, cmd CreateOfferCommand) (types.ID, *Conflict, error) {
	o := &RideOffer{
		ID:          newID(),
		UserID:      cmd.UserID,
		Origin:      cmd.Origin,
		Destination: cmd.Destination,
		Weekdays:    cmd.Weekdays,
		TravelDate:  cmd.TravelDate,
		DepartTime:  cmd.DepartTime,
		AutoApprove: cmd.AutoApprove,
		Active:      true,
		Route:       RouteCache{Pending: true},
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateOffer(ctx, o); err != nil {
		return "", nil, fmt.Errorf("save offer: %w", err)
	}
	s.routes.ScheduleBackground(o.ID, o.Origin, o.Destination)
	return o.ID, nil, nil
}

func (s *Service) insertRequest(ctx context.Context, cmd CreateRequestCommand) (types.ID, *Conflict, error) {
	r := &RideRequest{
		ID:          newID(),
		UserID:      cmd.UserID,
		Origin:      cmd.Origin,
		Destination: cmd.Destination,
		TravelDate:  cmd.TravelDate.UTC(),
		DepartTime:  cmd.DepartTime,
		Flexibility: cmd.Flexibility,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateRequest(ctx, r); err != nil {
		return "", nil, fmt.Errorf("save request: %w", err)
	}
	return r.ID, nil, nil
}

func validateOffer(cmd CreateOfferCommand) error {
	if cmd.UserID == "" || cmd.Origin == "" || cmd.Destination == "" {
		return ErrBadRequest
	}
	if _, err := time.Parse("15:04", cmd.DepartTime); err != nil {
		return ErrBadRequest
	}
	// Exactly one schedule form: recurring weekdays or a one-time date.
	if (len(cmd.Weekdays) == 0) == (cmd.TravelDate == nil) {
		return ErrBadRequest
	}
	return nil
}

func validateRequest(cmd *CreateRequestCommand) error {
	if cmd.UserID == "" || cmd.Origin == "" || cmd.Destination == "" {
		return ErrBadRequest
	}
	if _, err := time.Parse("15:04", cmd.DepartTime); err != nil {
		return ErrBadRequest
	}
	if cmd.TravelDate.IsZero() {
		return ErrBadRequest
	}
	if cmd.Flexibility == "" {
		cmd.Flexibility = FlexVeryFlexible
	}
	return nil
}

func sameDestination(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// offerCoversDate reports whether an offer being created (recurring set or
// one-time date) would travel on the request's date.
func offerCoversDate(weekdays []time.Weekday, travelDate *time.Time, date time.Time) bool {
	o := RideOffer{Weekdays: weekdays, TravelDate: travelDate}
	return o.RunsOn(date)
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
