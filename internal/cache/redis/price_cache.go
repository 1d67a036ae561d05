package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"blocktrader/internal/domain"
)

// defaultQuoteTTL bounds quote staleness: a missing or expired key forces a
// fresh broker lookup.
const defaultQuoteTTL = 5 * time.Second

// PriceCache implements domain.PriceCache using plain string keys with a
// short TTL. One quote per symbol is shared by every user's engine loop, so
// a burst of signals for a popular symbol costs one broker call.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache backed by the given Client. ttl <= 0
// selects the default.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = defaultQuoteTTL
	}
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

// SetPrice stores the latest quote for a symbol.
func (pc *PriceCache) SetPrice(ctx context.Context, symbol string, price float64) error {
	val := strconv.FormatFloat(price, 'f', -1, 64)
	if err := pc.rdb.Set(ctx, quoteKey(symbol), val, pc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", symbol, err)
	}
	return nil
}

// GetPrice retrieves the cached quote for a symbol. Returns
// domain.ErrNotFound when no fresh quote exists.
func (pc *PriceCache) GetPrice(ctx context.Context, symbol string) (float64, error) {
	val, err := pc.rdb.Get(ctx, quoteKey(symbol)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse quote %s: %w", symbol, err)
	}
	return price, nil
}
