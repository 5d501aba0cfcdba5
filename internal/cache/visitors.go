package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// VisitorDeduper answers "has this visitor already earned a ticket for this
// storefront this period?" ahead of the ledger's own unique constraint. It
// is a fast path, not the source of truth: a Redis miss or outage falls
// through to the ledger, which deduplicates durably.
type VisitorDeduper struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewVisitorDeduper wraps a shared Redis client. Keys expire a bit after
// the raffle period they guard, so the set cleans itself up.
func NewVisitorDeduper(client *redis.Client, keyPrefix string) *VisitorDeduper {
	if keyPrefix == "" {
		keyPrefix = "instantin:raffle:visitors"
	}
	return &VisitorDeduper{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       35 * 24 * time.Hour,
	}
}

func (d *VisitorDeduper) key(period, storefrontID, visitorID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", d.keyPrefix, period, storefrontID, visitorID)
}

// Seen reports whether the visitor was already recorded for this period.
// Read-only: Mark writes the key only after the ledger accepted the event,
// so a failed issuance stays retryable. Returns seen=false on Redis errors
// so the caller proceeds to the ledger.
func (d *VisitorDeduper) Seen(ctx context.Context, period, storefrontID, visitorID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(period, storefrontID, visitorID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records the visitor once their ticket event is durably in the
// ledger. A lost Mark only costs one extra ledger round trip later.
func (d *VisitorDeduper) Mark(ctx context.Context, period, storefrontID, visitorID string) error {
	return d.client.Set(ctx, d.key(period, storefrontID, visitorID), 1, d.ttl).Err()
}
