package engine

import (
	"context"
	"fmt"

	"blocktrader/internal/domain"
)

// PriceSource resolves a symbol's current price, serving from the cache when
// fresh and falling back to the broker with bounded retry. Cache failures
// are non-fatal; the broker is the source of truth.
type PriceSource struct {
	broker domain.Broker
	cache  domain.PriceCache
	retry  RetryPolicy
}

// NewPriceSource creates a PriceSource. cache may be nil, in which case
// every lookup hits the broker.
func NewPriceSource(broker domain.Broker, cache domain.PriceCache, retry RetryPolicy) *PriceSource {
	return &PriceSource{broker: broker, cache: cache, retry: retry}
}

// Current returns the symbol's latest trade price.
func (p *PriceSource) Current(ctx context.Context, symbol string) (float64, error) {
	if p.cache != nil {
		if price, err := p.cache.GetPrice(ctx, symbol); err == nil && price > 0 {
			return price, nil
		}
	}

	var price float64
	err := p.retry.Do(ctx, "broker: current price "+symbol, func(ctx context.Context) error {
		var err error
		price, err = p.broker.GetCurrentPrice(ctx, symbol)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("price source: %w", err)
	}

	if p.cache != nil {
		_ = p.cache.SetPrice(ctx, symbol, price)
	}
	return price, nil
}
