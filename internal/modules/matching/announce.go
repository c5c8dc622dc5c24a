// README: Match announcements over the notification channel, with Redis dedupe.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"hitch/internal/notify"
	"hitch/internal/types"
)

const (
	announcedKeyPrefix = "match:announced:%s:%s"
	// TTL for announce-dedupe keys; a pair re-surfacing after this long is
	// worth announcing again.
	announcedKeyTTL = 14 * 24 * time.Hour
)

// AnnounceStore remembers which offer/request pairs were already announced
// so an edit-triggered re-search does not spam both sides.
type AnnounceStore struct {
	redis *redis.Client
}

func NewAnnounceStore(client *redis.Client) *AnnounceStore {
	return &AnnounceStore{redis: client}
}

// MarkAnnounced records the pair and reports whether it was newly recorded.
func (s *AnnounceStore) MarkAnnounced(ctx context.Context, offerID, requestID types.ID) (bool, error) {
	key := fmt.Sprintf(announcedKeyPrefix, string(offerID), string(requestID))
	return s.redis.SetNX(ctx, key, "1", announcedKeyTTL).Result()
}

// Announcer renders and delivers match notifications to both parties.
type Announcer struct {
	notifier notify.Notifier
	store    *AnnounceStore
	log      *slog.Logger
}

func NewAnnouncer(notifier notify.Notifier, store *AnnounceStore, log *slog.Logger) *Announcer {
	return &Announcer{notifier: notifier, store: store, log: log}
}

// Announce notifies both sides of each match, skipping pairs already
// announced. Delivery failures are logged, never propagated: a missed
// notification must not fail the search that produced it.
func (a *Announcer) Announce(ctx context.Context, matches []Match) {
	for _, m := range matches {
		fresh, err := a.store.MarkAnnounced(ctx, m.Offer.ID, m.Request.ID)
		if err != nil {
			a.log.Warn("announce dedupe check failed", "offer", m.Offer.ID, "request", m.Request.ID, "err", err)
			continue
		}
		if !fresh {
			continue
		}
		if err := a.notifier.Notify(ctx, m.Request.UserID, riderMessage(m)); err != nil {
			a.log.Warn("rider notification failed", "user", m.Request.UserID, "err", err)
		}
		if err := a.notifier.Notify(ctx, m.Offer.UserID, driverMessage(m)); err != nil {
			a.log.Warn("driver notification failed", "user", m.Offer.UserID, "err", err)
		}
	}
}

func riderMessage(m Match) string {
	if m.Kind == KindOnRoute {
		return fmt.Sprintf("Found a ride toward %s leaving %s around %s — your stop is %.1f km off their route.",
			m.Offer.Destination, m.Offer.Origin, m.Offer.DepartTime, m.DistanceKm)
	}
	return fmt.Sprintf("Found a ride to %s leaving %s at %s.",
		m.Offer.Destination, m.Offer.Origin, m.Offer.DepartTime)
}

func driverMessage(m Match) string {
	return fmt.Sprintf("A hitchhiker wants to go from %s to %s on %s around %s.",
		m.Request.Origin, m.Request.Destination,
		m.Request.TravelDate.Format("Mon Jan 2"), m.Request.DepartTime)
}
