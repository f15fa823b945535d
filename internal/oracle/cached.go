package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/uuzor/predictx/internal/domain"
)

// PriceCache is the read-through cache the cached oracle consults before
// hitting the upstream API. Implemented by the Redis price cache.
type PriceCache interface {
	GetPrice(ctx context.Context, assetID string) (float64, time.Time, error)
	SetPrice(ctx context.Context, assetID string, price float64, ts time.Time) error
}

// Cached wraps a PriceOracle with a read-through cache so many contracts on
// the same asset settling in one tick cost a single upstream lookup. Cache
// failures fall through to the upstream; they never fail a lookup on their
// own.
type Cached struct {
	upstream domain.PriceOracle
	cache    PriceCache
	maxAge   time.Duration
	logger   *slog.Logger
}

// NewCached creates a cached oracle. maxAge bounds how stale a cached price
// may be before the upstream is consulted again.
func NewCached(upstream domain.PriceOracle, cache PriceCache, maxAge time.Duration, logger *slog.Logger) *Cached {
	if maxAge <= 0 {
		maxAge = 5 * time.Second
	}
	return &Cached{
		upstream: upstream,
		cache:    cache,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "oracle")),
	}
}

// CurrentPrice returns the cached price when fresh enough, otherwise fetches
// from the upstream and refreshes the cache.
func (c *Cached) CurrentPrice(ctx context.Context, assetID string) (float64, error) {
	price, ts, err := c.cache.GetPrice(ctx, assetID)
	if err == nil && time.Since(ts) <= c.maxAge {
		return price, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		c.logger.Warn("price cache read failed",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
	}

	price, err = c.upstream.CurrentPrice(ctx, assetID)
	if err != nil {
		return 0, err
	}

	if cacheErr := c.cache.SetPrice(ctx, assetID, price, time.Now()); cacheErr != nil {
		c.logger.Warn("price cache write failed",
			slog.String("asset_id", assetID),
			slog.String("error", cacheErr.Error()),
		)
	}
	return price, nil
}
