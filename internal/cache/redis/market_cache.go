package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"parimarket/internal/domain"
)

// Resolved markets are immutable, but we still bound the key lifetime
// so abandoned markets age out of the cache.
const marketTTL = 24 * time.Hour

// MarketCache is a read-through cache for resolved market records.
type MarketCache struct {
	rdb *redis.Client
}

var _ domain.MarketCache = (*MarketCache)(nil)

// NewMarketCache creates a MarketCache on top of an existing client.
func NewMarketCache(client *Client) *MarketCache {
	return &MarketCache{rdb: client.Underlying()}
}

func marketKey(marketID uint64) string {
	return "market:" + strconv.FormatUint(marketID, 10)
}

// Get returns the cached market, or domain.ErrNotFound on a miss.
func (c *MarketCache) Get(ctx context.Context, marketID uint64) (domain.Market, error) {
	data, err := c.rdb.Get(ctx, marketKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %d: %w", marketID, err)
	}

	var m domain.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Market{}, fmt.Errorf("redis: decode market %d: %w", marketID, err)
	}
	return m, nil
}

// Set stores the market under its ID.
func (c *MarketCache) Set(ctx context.Context, m domain.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: encode market %d: %w", m.MarketID, err)
	}
	if err := c.rdb.Set(ctx, marketKey(m.MarketID), data, marketTTL).Err(); err != nil {
		return fmt.Errorf("redis: set market %d: %w", m.MarketID, err)
	}
	return nil
}

// Invalidate drops the cached market, if any.
func (c *MarketCache) Invalidate(ctx context.Context, marketID uint64) error {
	if err := c.rdb.Del(ctx, marketKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %d: %w", marketID, err)
	}
	return nil
}
