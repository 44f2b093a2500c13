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

const (
	// Key namespaces. Operational tooling classifies records by these
	// prefixes, so they are part of the persisted-state contract.
	codePrefix    = "otp:"
	attemptPrefix = "otp_attempts:"
)

// ErrNoCode is returned when no live code record exists for an
// identifier: never issued, already consumed, or expired by TTL.
var ErrNoCode = errors.New("no otp record for identifier")

// OTPCache owns the code record and its attempt counter. The two keys
// are created with the same TTL and deleted together; nothing else
// writes to them.
type OTPCache struct {
	client *client.RedisClient
}

func NewOTPCache(client *client.RedisClient) *OTPCache {
	return &OTPCache{client: client}
}

// StoreCode writes the code hash with the code-lifetime TTL,
// unconditionally replacing any previous record, and resets the attempt
// counter to zero with the same TTL.
func (c *OTPCache) StoreCode(ctx context.Context, identifier, codeHash string, ttl time.Duration) error {
	if err := c.client.Set(ctx, codePrefix+identifier, codeHash, ttl); err != nil {
		util.Error("Failed to store code record",
			zap.String("identifier", util.MaskIdentifier(identifier)),
			zap.Error(err))
		return fmt.Errorf("store code record: %w", err)
	}

	if err := c.client.Set(ctx, attemptPrefix+identifier, 0, ttl); err != nil {
		util.Error("Failed to seed attempt counter",
			zap.String("identifier", util.MaskIdentifier(identifier)),
			zap.Error(err))
		return fmt.Errorf("seed attempt counter: %w", err)
	}

	util.Debug("Code record stored",
		zap.String("identifier", util.MaskIdentifier(identifier)),
		zap.Duration("ttl", ttl))
	return nil
}

// GetCodeHash returns the stored hash, or ErrNoCode when the record is
// absent or expired.
func (c *OTPCache) GetCodeHash(ctx context.Context, identifier string) (string, error) {
	hash, err := c.client.Get(ctx, codePrefix+identifier)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return "", ErrNoCode
		}
		return "", fmt.Errorf("get code record: %w", err)
	}
	return hash, nil
}

// GetAttemptCount reads the failed-verification counter; an absent key
// counts as zero.
func (c *OTPCache) GetAttemptCount(ctx context.Context, identifier string) (int, error) {
	countStr, err := c.client.Get(ctx, attemptPrefix+identifier)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get attempt count: %w", err)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return 0, fmt.Errorf("invalid attempt count format: %w", err)
	}
	return count, nil
}

// IncrementAttempts bumps the counter after a mismatch. A live TTL is
// never extended; fallbackTTL only arms a key that lost its expiry,
// which can happen if the sibling code record expired between the
// verifier's lookup and this increment.
func (c *OTPCache) IncrementAttempts(ctx context.Context, identifier string, fallbackTTL time.Duration) (int, error) {
	count, err := c.client.IncrPreserveTTL(ctx, attemptPrefix+identifier, fallbackTTL)
	if err != nil {
		util.Error("Failed to increment attempt counter",
			zap.String("identifier", util.MaskIdentifier(identifier)),
			zap.Error(err))
		return 0, fmt.Errorf("increment attempt counter: %w", err)
	}
	return int(count), nil
}

// Invalidate removes the code record and its attempt counter. The rate
// counter is untouched; it expires on its own window.
func (c *OTPCache) Invalidate(ctx context.Context, identifier string) error {
	if err := c.client.Del(ctx, codePrefix+identifier, attemptPrefix+identifier); err != nil {
		util.Error("Failed to invalidate code record",
			zap.String("identifier", util.MaskIdentifier(identifier)),
			zap.Error(err))
		return fmt.Errorf("invalidate code record: %w", err)
	}

	util.Debug("Code record invalidated",
		zap.String("identifier", util.MaskIdentifier(identifier)))
	return nil
}

// GetCodeTTL reports the remaining lifetime of the code record, for
// operational inspection.
func (c *OTPCache) GetCodeTTL(ctx context.Context, identifier string) (time.Duration, error) {
	ttl, err := c.client.TTL(ctx, codePrefix+identifier)
	if err != nil {
		return 0, fmt.Errorf("get code ttl: %w", err)
	}
	if ttl < 0 {
		return 0, ErrNoCode
	}
	return ttl, nil
}

// ActiveCodeCount scans the code namespace. Monitoring only.
func (c *OTPCache) ActiveCodeCount(ctx context.Context) (int, error) {
	keys, err := c.client.Scan(ctx, codePrefix+"*", 1000)
	if err != nil {
		return 0, fmt.Errorf("scan code records: %w", err)
	}
	return len(keys), nil
}
