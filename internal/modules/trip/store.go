// README: Ride record store backed by PostgreSQL.
package trip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hitch/internal/types"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

type pointJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func encodePoints(points []types.Point) ([]byte, error) {
	out := make([]pointJSON, len(points))
	for i, p := range points {
		out[i] = pointJSON{Lat: p.Lat, Lng: p.Lng}
	}
	return json.Marshal(out)
}

func decodePoints(raw []byte) ([]types.Point, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var in []pointJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	points := make([]types.Point, len(in))
	for i, p := range in {
		points[i] = types.Point{Lat: p.Lat, Lng: p.Lng}
	}
	return points, nil
}

func weekdaysToInts(days []time.Weekday) []int32 {
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}

func intsToWeekdays(ints []int32) []time.Weekday {
	if len(ints) == 0 {
		return nil
	}
	out := make([]time.Weekday, len(ints))
	for i, n := range ints {
		out[i] = time.Weekday(n)
	}
	return out
}

const offerColumns = `
	o.id, o.user_id, o.origin, o.destination, o.weekdays, o.travel_date,
	o.depart_time, o.auto_approve, o.active, o.created_at,
	COALESCE(c.points, '[]'::jsonb), COALESCE(c.length_km, 0), COALESCE(c.pending, TRUE),
	COALESCE(c.updated_at, o.created_at)`

func scanOffer(row pgx.Row) (*RideOffer, error) {
	var o RideOffer
	var weekdays []int32
	var travelDate *time.Time
	var rawPoints []byte
	err := row.Scan(
		&o.ID, &o.UserID, &o.Origin, &o.Destination, &weekdays, &travelDate,
		&o.DepartTime, &o.AutoApprove, &o.Active, &o.CreatedAt,
		&rawPoints, &o.Route.LengthKm, &o.Route.Pending, &o.Route.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Weekdays = intsToWeekdays(weekdays)
	o.TravelDate = travelDate
	if o.Route.Points, err = decodePoints(rawPoints); err != nil {
		return nil, fmt.Errorf("decode route points: %w", err)
	}
	return &o, nil
}

// ActiveOffers returns all active ride offers, optionally narrowed to an
// exact destination string. The matching engine normally passes "" and
// applies its own fuzzy and geometric destination tests.
func (s *Store) ActiveOffers(ctx context.Context, destination string) ([]RideOffer, error) {
	query := `
		SELECT ` + offerColumns + `
		FROM ride_offers o
		LEFT JOIN route_caches c ON c.offer_id = o.id
		WHERE o.active`
	args := []any{}
	if destination != "" {
		query += ` AND o.destination = $1`
		args = append(args, destination)
	}
	query += ` ORDER BY o.created_at`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []RideOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}

const requestColumns = `
	id, user_id, origin, destination, travel_date, depart_time,
	flexibility, active, created_at`

func scanRequest(row pgx.Row) (*RideRequest, error) {
	var r RideRequest
	err := row.Scan(
		&r.ID, &r.UserID, &r.Origin, &r.Destination, &r.TravelDate,
		&r.DepartTime, &r.Flexibility, &r.Active, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ActiveRequests mirrors ActiveOffers for hitchhiker requests.
func (s *Store) ActiveRequests(ctx context.Context, destination string) ([]RideRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM ride_requests WHERE active`
	args := []any{}
	if destination != "" {
		query += ` AND destination = $1`
		args = append(args, destination)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []RideRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// UserRecords returns a user's active offers and requests.
func (s *Store) UserRecords(ctx context.Context, userID types.ID) (UserRecords, error) {
	var recs UserRecords

	rows, err := s.db.Query(ctx, `
		SELECT `+offerColumns+`
		FROM ride_offers o
		LEFT JOIN route_caches c ON c.offer_id = o.id
		WHERE o.user_id = $1 AND o.active
		ORDER BY o.created_at`, string(userID))
	if err != nil {
		return recs, err
	}
	defer rows.Close()
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return recs, err
		}
		recs.Offers = append(recs.Offers, *o)
	}
	if err := rows.Err(); err != nil {
		return recs, err
	}

	reqRows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM ride_requests
		WHERE user_id = $1 AND active
		ORDER BY created_at`, string(userID))
	if err != nil {
		return recs, err
	}
	defer reqRows.Close()
	for reqRows.Next() {
		r, err := scanRequest(reqRows)
		if err != nil {
			return recs, err
		}
		recs.Requests = append(recs.Requests, *r)
	}
	return recs, reqRows.Err()
}

// Offer loads one offer by ID regardless of ownership.
func (s *Store) Offer(ctx context.Context, id types.ID) (*RideOffer, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+offerColumns+`
		FROM ride_offers o
		LEFT JOIN route_caches c ON c.offer_id = o.id
		WHERE o.id = $1`, string(id))
	return scanOffer(row)
}

// Request loads one request by ID.
func (s *Store) Request(ctx context.Context, id types.ID) (*RideRequest, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM ride_requests WHERE id = $1`, string(id))
	return scanRequest(row)
}

// CreateOffer inserts the offer together with its empty pending route cache.
func (s *Store) CreateOffer(ctx context.Context, o *RideOffer) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO ride_offers (
			id, user_id, origin, destination, weekdays, travel_date,
			depart_time, auto_approve, active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(o.ID), string(o.UserID), o.Origin, o.Destination,
		weekdaysToInts(o.Weekdays), o.TravelDate,
		o.DepartTime, o.AutoApprove, o.Active, o.CreatedAt,
	)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO route_caches (offer_id, points, length_km, pending, updated_at)
		VALUES ($1, '[]'::jsonb, 0, TRUE, $2)`,
		string(o.ID), o.CreatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CreateRequest(ctx context.Context, r *RideRequest) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_requests (
			id, user_id, origin, destination, travel_date,
			depart_time, flexibility, active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(r.ID), string(r.UserID), r.Origin, r.Destination, r.TravelDate,
		r.DepartTime, string(r.Flexibility), r.Active, r.CreatedAt,
	)
	return err
}

// UpdateOfferFields applies a partial update scoped to the owning user.
// Returns false when no active row matched.
func (s *Store) UpdateOfferFields(ctx context.Context, userID, id types.ID, f OfferFieldUpdate) (bool, error) {
	set := ""
	args := []any{string(id), string(userID)}
	add := func(column string, v any) {
		if set != "" {
			set += ", "
		}
		args = append(args, v)
		set += fmt.Sprintf("%s = $%d", column, len(args))
	}
	if f.Origin != nil {
		add("origin", *f.Origin)
	}
	if f.Destination != nil {
		add("destination", *f.Destination)
	}
	if f.Weekdays != nil {
		add("weekdays", weekdaysToInts(*f.Weekdays))
		add("travel_date", nil)
	} else if f.TravelDate != nil {
		add("travel_date", *f.TravelDate)
		add("weekdays", []int32{})
	}
	if f.DepartTime != nil {
		add("depart_time", *f.DepartTime)
	}
	if f.AutoApprove != nil {
		add("auto_approve", *f.AutoApprove)
	}
	if set == "" {
		return false, nil
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE ride_offers SET `+set+`
		WHERE id = $1 AND user_id = $2 AND active`, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdateRequestFields(ctx context.Context, userID, id types.ID, f RequestFieldUpdate) (bool, error) {
	set := ""
	args := []any{string(id), string(userID)}
	add := func(column string, v any) {
		if set != "" {
			set += ", "
		}
		args = append(args, v)
		set += fmt.Sprintf("%s = $%d", column, len(args))
	}
	if f.Origin != nil {
		add("origin", *f.Origin)
	}
	if f.Destination != nil {
		add("destination", *f.Destination)
	}
	if f.TravelDate != nil {
		add("travel_date", *f.TravelDate)
	}
	if f.DepartTime != nil {
		add("depart_time", *f.DepartTime)
	}
	if f.Flexibility != nil {
		add("flexibility", string(*f.Flexibility))
	}
	if set == "" {
		return false, nil
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE ride_requests SET `+set+`
		WHERE id = $1 AND user_id = $2 AND active`, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Deactivate soft-deletes a record; rides are never hard-deleted.
func (s *Store) Deactivate(ctx context.Context, userID, id types.ID, kind RecordKind) (bool, error) {
	table := "ride_offers"
	if kind == KindRequest {
		table = "ride_requests"
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE `+table+` SET active = FALSE
		WHERE id = $1 AND user_id = $2 AND active`,
		string(id), string(userID))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SaveRouteCache overwrites the route cache owned by the offer.
func (s *Store) SaveRouteCache(ctx context.Context, offerID types.ID, cache RouteCache) error {
	raw, err := encodePoints(cache.Points)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO route_caches (offer_id, points, length_km, pending, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (offer_id) DO UPDATE
		SET points = EXCLUDED.points,
		    length_km = EXCLUDED.length_km,
		    pending = EXCLUDED.pending,
		    updated_at = NOW()`,
		string(offerID), raw, cache.LengthKm, cache.Pending,
	)
	return err
}
