// Package oracle supplies reference prices to the settlement core. The feed
// streams prices from an upstream websocket into the price cache; CachedOracle
// reads them back out with their observation timestamps so callers can
// enforce the freshness gate; the watchdog pauses fast pools for assets whose
// feed has gone quiet.
package oracle

import (
	"context"
	"fmt"

	"github.com/riozmarkets/settlement/internal/domain"
)

// CachedOracle implements domain.PriceOracle on top of the shared price
// cache. It performs no freshness judgment of its own: the sample carries its
// observation time and every consumer applies its own gate.
type CachedOracle struct {
	cache domain.PriceCache
}

// NewCachedOracle creates a CachedOracle over the given cache.
func NewCachedOracle(cache domain.PriceCache) *CachedOracle {
	return &CachedOracle{cache: cache}
}

// GetCurrentPrice returns the latest cached sample for symbol.
func (o *CachedOracle) GetCurrentPrice(ctx context.Context, symbol string) (domain.PriceSample, error) {
	price, ts, err := o.cache.GetPrice(ctx, symbol)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("oracle: price for %s: %w", symbol, err)
	}
	return domain.PriceSample{Symbol: symbol, Price: price, ObservedAt: ts}, nil
}
