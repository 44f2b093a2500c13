package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"otp-gateway/internal/client"
	"otp-gateway/internal/util"
)

// Rate counters live in their own namespace so bulk inspection can tell
// them apart from code records by prefix alone.
const ratePrefix = "otp_rate:"

// RateLimitCache tracks issuance counts per identifier. The window is
// anchored at the first request: the TTL is armed once and later
// increments never extend it. A burst at the end of one window and the
// start of the next can exceed the nominal cap across the boundary;
// that approximation is intentional.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

// GetCount reads the issuance counter; an absent key counts as zero.
func (c *RateLimitCache) GetCount(ctx context.Context, identifier string) (int, error) {
	countStr, err := c.client.Get(ctx, ratePrefix+identifier)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get rate counter: %w", err)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return 0, fmt.Errorf("invalid rate counter format: %w", err)
	}
	return count, nil
}

// Increment charges one issuance to the identifier. An absent key is
// created at 1 with the window TTL; an existing key is incremented with
// its TTL left alone.
func (c *RateLimitCache) Increment(ctx context.Context, identifier string, window time.Duration) (int, error) {
	count, err := c.client.IncrPreserveTTL(ctx, ratePrefix+identifier, window)
	if err != nil {
		util.Error("Failed to increment rate counter",
			zap.String("identifier", util.MaskIdentifier(identifier)),
			zap.Error(err))
		return 0, fmt.Errorf("increment rate counter: %w", err)
	}

	util.Debug("Rate counter incremented",
		zap.String("identifier", util.MaskIdentifier(identifier)),
		zap.Int64("count", int64(count)))
	return int(count), nil
}

// WindowRemaining reports how long until the identifier's current
// window resets. Zero when no window is active.
func (c *RateLimitCache) WindowRemaining(ctx context.Context, identifier string) (time.Duration, error) {
	ttl, err := c.client.TTL(ctx, ratePrefix+identifier)
	if err != nil {
		return 0, fmt.Errorf("get rate window ttl: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
