package cache

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Analytics buffer configuration.
const (
	analyticsFlushBatch = 200
	flushTimeout        = 30 * time.Second
)

// AnalyticsFlushFunc persists a batch of counter deltas. Keyed by
// "storefront_id:counter" (counter is "views" or "clicks").
type AnalyticsFlushFunc func(ctx context.Context, deltas map[string]int64) error

// AnalyticsBuffer batches storefront view/click counters in a Redis hash
// and flushes deltas on a ticker. These counters are low-consistency by
// design and never share a transaction with the ledger.
type AnalyticsBuffer struct {
	client    *redis.Client
	flushFunc AnalyticsFlushFunc
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	key       string
}

// NewAnalyticsBuffer starts the background flush loop.
func NewAnalyticsBuffer(client *redis.Client, keyPrefix string, interval time.Duration, flushFunc AnalyticsFlushFunc) *AnalyticsBuffer {
	if keyPrefix == "" {
		keyPrefix = "instantin:analytics"
	}
	if interval <= 0 {
		interval = time.Minute
	}
	b := &AnalyticsBuffer{
		client:    client,
		flushFunc: flushFunc,
		ticker:    time.NewTicker(interval),
		stopCh:    make(chan struct{}),
		key:       keyPrefix + ":counters",
	}
	go b.run()
	log.Printf("[AnalyticsBuffer] Started - key:%s flush:%v", b.key, interval)
	return b
}

// Bump increments one counter for a storefront. Errors are logged, not
// returned: dropping an analytics tick is acceptable.
func (b *AnalyticsBuffer) Bump(ctx context.Context, storefrontID, counter string) {
	field := storefrontID + ":" + counter
	if err := b.client.HIncrBy(ctx, b.key, field, 1).Err(); err != nil {
		log.Printf("[AnalyticsBuffer] Failed to bump %s: %v", field, err)
	}
}

func (b *AnalyticsBuffer) run() {
	for {
		select {
		case <-b.ticker.C:
			b.flush()
		case <-b.stopCh:
			b.flush()
			log.Printf("[AnalyticsBuffer] Stopped")
			return
		}
	}
}

func (b *AnalyticsBuffer) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	fields, err := b.client.HGetAll(ctx, b.key).Result()
	if err != nil {
		log.Printf("[AnalyticsBuffer] Failed to read counters: %v", err)
		return
	}
	if len(fields) == 0 {
		return
	}

	deltas := make(map[string]int64, len(fields))
	names := make([]string, 0, len(fields))
	for field, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || !strings.Contains(field, ":") {
			log.Printf("[AnalyticsBuffer] Skipping malformed field %q=%q", field, raw)
			continue
		}
		deltas[field] = n
		names = append(names, field)
		if len(names) >= analyticsFlushBatch {
			break
		}
	}
	if len(deltas) == 0 {
		return
	}

	if err := b.flushFunc(ctx, deltas); err != nil {
		log.Printf("[AnalyticsBuffer] Flush failed, will retry: %v", err)
		return
	}
	if err := b.client.HDel(ctx, b.key, names...).Err(); err != nil {
		log.Printf("[AnalyticsBuffer] Failed to clear flushed fields: %v", err)
	}
	log.Printf("[AnalyticsBuffer] Flushed %d counter deltas", len(deltas))
}

// Stop flushes once more and halts the loop.
func (b *AnalyticsBuffer) Stop() {
	b.stopOnce.Do(func() {
		b.ticker.Stop()
		close(b.stopCh)
	})
}
