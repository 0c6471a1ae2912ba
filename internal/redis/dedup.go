package redis

import (
	"context"
	"fmt"
	"time"
)

// DedupTTL is how long processed callback event ids are retained. Providers
// redeliver webhooks for up to a couple of days after the original attempt,
// so the window has to outlive their retry schedule.
const DedupTTL = 48 * time.Hour

// DedupService filters duplicate provider callbacks by event id using
// SET NX. The state machine is idempotent on its own (duplicate events are
// no-ops on status), but open/click counters are not, so redelivered events
// must be dropped before they reach the tracker.
type DedupService struct {
	client *Client
}

// NewDedupService creates a new callback deduplication service.
func NewDedupService(client *Client) *DedupService {
	return &DedupService{client: client}
}

func (s *DedupService) buildKey(tenantID, eventoID string) string {
	return fmt.Sprintf("callback:%s:%s", tenantID, eventoID)
}

// Primeira reports whether this is the first time the event id is seen.
// The key is reserved atomically, so concurrent deliveries of the same
// event resolve to exactly one true. The caller owns the reservation: if it
// fails to apply the event it must call Liberar, or the provider's
// redelivery would be dropped as a duplicate of an event that never landed.
func (s *DedupService) Primeira(ctx context.Context, tenantID, eventoID string) (bool, error) {
	key := s.buildKey(tenantID, eventoID)

	set, err := s.client.rdb.SetNX(ctx, key, "1", DedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	return set, nil
}

// Liberar releases a reservation taken by Primeira so the event can be
// retried on redelivery.
func (s *DedupService) Liberar(ctx context.Context, tenantID, eventoID string) error {
	key := s.buildKey(tenantID, eventoID)

	if err := s.client.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}

	return nil
}
