package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"otp-gateway/internal/client"
)

func newTestClient(t *testing.T) (*client.RedisClient, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	rc := &client.RedisClient{Client: rdb}

	return rc, mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestStoreCodeCreatesSiblingsWithSharedTTL(t *testing.T) {
	rc, mr, cleanup := newTestClient(t)
	defer cleanup()

	cache := NewOTPCache(rc)
	ctx := context.Background()

	if err := cache.StoreCode(ctx, "233201234567", "$argon2id$hash", 10*time.Minute); err != nil {
		t.Fatalf("StoreCode failed: %v", err)
	}

	if mr.TTL("otp:233201234567") != 10*time.Minute {
		t.Fatalf("code record TTL = %v", mr.TTL("otp:233201234567"))
	}
	if mr.TTL("otp_attempts:233201234567") != 10*time.Minute {
		t.Fatalf("attempt counter TTL = %v", mr.TTL("otp_attempts:233201234567"))
	}

	hash, err := cache.GetCodeHash(ctx, "233201234567")
	if err != nil {
		t.Fatalf("GetCodeHash failed: %v", err)
	}
	if hash != "$argon2id$hash" {
		t.Fatalf("GetCodeHash = %q", hash)
	}

	count, err := cache.GetAttemptCount(ctx, "233201234567")
	if err != nil {
		t.Fatalf("GetAttemptCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("fresh attempt count = %d, want 0", count)
	}
}

func TestStoreCodeReplacesPreviousRecord(t *testing.T) {
	rc, _, cleanup := newTestClient(t)
	defer cleanup()

	cache := NewOTPCache(rc)
	ctx := context.Background()

	if err := cache.StoreCode(ctx, "x", "first", 10*time.Minute); err != nil {
		t.Fatalf("StoreCode failed: %v", err)
	}
	if _, err := cache.IncrementAttempts(ctx, "x", 10*time.Minute); err != nil {
		t.Fatalf("IncrementAttempts failed: %v", err)
	}

	if err := cache.StoreCode(ctx, "x", "second", 10*time.Minute); err != nil {
		t.Fatalf("StoreCode failed: %v", err)
	}

	hash, err := cache.GetCodeHash(ctx, "x")
	if err != nil {
		t.Fatalf("GetCodeHash failed: %v", err)
	}
	if hash != "second" {
		t.Fatalf("GetCodeHash = %q, want %q", hash, "second")
	}

	count, err := cache.GetAttemptCount(ctx, "x")
	if err != nil {
		t.Fatalf("GetAttemptCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("attempt count after reissue = %d, want 0", count)
	}
}

func TestGetCodeHashMissing(t *testing.T) {
	rc, _, cleanup := newTestClient(t)
	defer cleanup()

	cache := NewOTPCache(rc)

	if _, err := cache.GetCodeHash(context.Background(), "nobody"); !errors.Is(err, ErrNoCode) {
		t.Fatalf("err = %v, want ErrNoCode", err)
	}
}

func TestIncrementAttemptsPreservesTTL(t *testing.T) {
	rc, mr, cleanup := newTestClient(t)
	defer cleanup()

	cache := NewOTPCache(rc)
	ctx := context.Background()

	if err := cache.StoreCode(ctx, "x", "hash", 10*time.Minute); err != nil {
		t.Fatalf("StoreCode failed: %v", err)
	}

	mr.FastForward(4 * time.Minute)

	count, err := cache.IncrementAttempts(ctx, "x", 10*time.Minute)
	if err != nil {
		t.Fatalf("IncrementAttempts failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	// The counter was armed at issuance; the increment must not re-arm it.
	if ttl := mr.TTL("otp_attempts:x"); ttl != 6*time.Minute {
		t.Fatalf("attempt counter TTL after increment = %v, want 6m", ttl)
	}
}

func TestIncrementAttemptsArmsOrphanedKey(t *testing.T) {
	rc, mr, cleanup := newTestClient(t)
	defer cleanup()

	cache := NewOTPCache(rc)
	ctx := context.Background()

	// Counter key absent: INCR creates it, and the fallback TTL must be
	// armed so the key cannot outlive every code lifetime.
	if _, err := cache.IncrementAttempts(ctx, "orphan", 10*time.Minute); err != nil {
		t.Fatalf("IncrementAttempts failed: %v", err)
	}
	if ttl := mr.TTL("otp_attempts:orphan"); ttl != 10*time.Minute {
		t.Fatalf("orphan counter TTL = %v, want 10m", ttl)
	}
}

func TestInvalidateRemovesSiblingsOnly(t *testing.T) {
	rc, mr, cleanup := newTestClient(t)
	defer cleanup()

	otpCache := NewOTPCache(rc)
	rateCache := NewRateLimitCache(rc)
	ctx := context.Background()

	if err := otpCache.StoreCode(ctx, "x", "hash", 10*time.Minute); err != nil {
		t.Fatalf("StoreCode failed: %v", err)
	}
	if _, err := rateCache.Increment(ctx, "x", time.Hour); err != nil {
		t.Fatalf("rate Increment failed: %v", err)
	}

	if err := otpCache.Invalidate(ctx, "x"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	if mr.Exists("otp:x") || mr.Exists("otp_attempts:x") {
		t.Fatal("code record or attempt counter survived invalidation")
	}
	if !mr.Exists("otp_rate:x") {
		t.Fatal("rate counter was deleted by invalidation")
	}
}

func TestCodeExpiresByTTL(t *testing.T) {
	rc, mr, cleanup := newTestClient(t)
	defer cleanup()

	cache := NewOTPCache(rc)
	ctx := context.Background()

	if err := cache.StoreCode(ctx, "x", "hash", 10*time.Minute); err != nil {
		t.Fatalf("StoreCode failed: %v", err)
	}

	mr.FastForward(10*time.Minute + time.Second)

	if _, err := cache.GetCodeHash(ctx, "x"); !errors.Is(err, ErrNoCode) {
		t.Fatalf("err after expiry = %v, want ErrNoCode", err)
	}
	count, err := cache.GetAttemptCount(ctx, "x")
	if err != nil {
		t.Fatalf("GetAttemptCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("attempt count after expiry = %d, want 0", count)
	}
}

func TestRateWindowAnchoredAtFirstIncrement(t *testing.T) {
	rc, mr, cleanup := newTestClient(t)
	defer cleanup()

	cache := NewRateLimitCache(rc)
	ctx := context.Background()

	if _, err := cache.Increment(ctx, "x", time.Hour); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	mr.FastForward(30 * time.Minute)

	count, err := cache.Increment(ctx, "x", time.Hour)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	// Second increment must not push the window out.
	if ttl := mr.TTL("otp_rate:x"); ttl != 30*time.Minute {
		t.Fatalf("rate window TTL = %v, want 30m", ttl)
	}
}

func TestRateCounterExpiresWithWindow(t *testing.T) {
	rc, mr, cleanup := newTestClient(t)
	defer cleanup()

	cache := NewRateLimitCache(rc)
	ctx := context.Background()

	if _, err := cache.Increment(ctx, "x", time.Hour); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	mr.FastForward(time.Hour + time.Second)

	count, err := cache.GetCount(ctx, "x")
	if err != nil {
		t.Fatalf("GetCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("count after window = %d, want 0", count)
	}
}
