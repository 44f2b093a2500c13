package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"otp-gateway/internal/channel"
	"otp-gateway/internal/config"
	"otp-gateway/internal/hashing"
	"otp-gateway/internal/otp"
	redisrepo "otp-gateway/internal/repository/redis"
	"otp-gateway/internal/util"
)

// OTPService is the lifecycle engine: it issues codes, owns their three
// Redis records, and runs the verification state machine. All durable
// state lives in the store; the service itself holds no mutable state
// and is safe for concurrent use.
type OTPService struct {
	otpCache  *redisrepo.OTPCache
	rateCache *redisrepo.RateLimitCache
	hasher    *hashing.Hasher
	registry  *channel.Registry
	events    *EventPublisher
	policy    config.OTPConfig
	logger    *zap.Logger
}

func NewOTPService(
	otpCache *redisrepo.OTPCache,
	rateCache *redisrepo.RateLimitCache,
	hasher *hashing.Hasher,
	registry *channel.Registry,
	events *EventPublisher,
	policy config.OTPConfig,
	logger *zap.Logger,
) *OTPService {
	return &OTPService{
		otpCache:  otpCache,
		rateCache: rateCache,
		hasher:    hasher,
		registry:  registry,
		events:    events,
		policy:    policy,
		logger:    logger,
	}
}

// IssueResult reports one accepted issuance. Delivered=false with a
// Diagnostic is a normal outcome: the code is stored and rate-limited
// regardless of what the vendor did.
type IssueResult struct {
	Channel    string
	Delivered  bool
	Diagnostic string
	ExpiresIn  time.Duration
}

// VerifyResult reports a verification call. Remaining is meaningful
// only alongside ErrInvalidOTP.
type VerifyResult struct {
	Verified  bool
	Remaining int
}

// Issue runs: rate check, generate, store (code hash + attempt seed +
// rate increment, sequential, abort on first store error), then dispatch
// through the named channel. channelName may be a modality ("sms",
// "email"), resolved to its active provider, or an explicit provider
// name. An unresolvable channel is a configuration error detected at
// dispatch time; by then the rate slot is already consumed, matching
// the counter's charge-on-issuance contract.
func (s *OTPService) Issue(ctx context.Context, channelName, identifier string) (*IssueResult, error) {
	count, err := s.rateCache.GetCount(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("issue for %s: %w", util.MaskIdentifier(identifier), err)
	}
	if count >= s.policy.RateLimit {
		s.logger.Info("Issuance rate limited",
			zap.String("identifier", util.MaskIdentifier(identifier)),
			zap.Int("count", count))
		return nil, fmt.Errorf("%w: limit of %d codes per %s reached",
			ErrRateLimited, s.policy.RateLimit, s.policy.RateWindow)
	}

	code, err := otp.Generate(s.policy.Digits)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	codeHash, err := s.hasher.HashCode(code)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}

	// Bookkeeping is sequential and aborts on first failure: delivering
	// a code whose rate counter was never charged would defeat the
	// limiter.
	if err := s.otpCache.StoreCode(ctx, identifier, codeHash, s.policy.CodeTTL); err != nil {
		return nil, fmt.Errorf("issue for %s: %w", util.MaskIdentifier(identifier), err)
	}
	if _, err := s.rateCache.Increment(ctx, identifier, s.policy.RateWindow); err != nil {
		return nil, fmt.Errorf("issue for %s: %w", util.MaskIdentifier(identifier), err)
	}

	ch, err := s.resolveChannel(channelName)
	if err != nil {
		return nil, err
	}

	message := s.renderMessage(code)
	outcome := ch.Deliver(ctx, identifier, message)

	if outcome.Delivered {
		s.logger.Info("Code issued and delivered",
			zap.String("identifier", util.MaskIdentifier(identifier)),
			zap.String("channel", ch.Name()))
		s.events.Publish(EventIssued, identifier, ch.Name(), "")
	} else {
		s.logger.Warn("Code issued but delivery failed",
			zap.String("identifier", util.MaskIdentifier(identifier)),
			zap.String("channel", ch.Name()),
			zap.String("diagnostic", outcome.Diagnostic))
		s.events.Publish(EventDeliveryFailed, identifier, ch.Name(), outcome.Diagnostic)
	}

	return &IssueResult{
		Channel:    ch.Name(),
		Delivered:  outcome.Delivered,
		Diagnostic: outcome.Diagnostic,
		ExpiresIn:  s.policy.CodeTTL,
	}, nil
}

// Verify runs the state machine: lookup, attempt-cap check, constant-time
// compare, then invalidate on success or count the failure. A code
// record that expired by TTL behaves exactly like one never issued.
func (s *OTPService) Verify(ctx context.Context, identifier, submittedCode string) (*VerifyResult, error) {
	codeHash, err := s.otpCache.GetCodeHash(ctx, identifier)
	if err != nil {
		if errors.Is(err, redisrepo.ErrNoCode) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("verify for %s: %w", util.MaskIdentifier(identifier), err)
	}

	attempts, err := s.otpCache.GetAttemptCount(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("verify for %s: %w", util.MaskIdentifier(identifier), err)
	}
	if attempts >= s.policy.MaxAttempts {
		if err := s.otpCache.Invalidate(ctx, identifier); err != nil {
			return nil, fmt.Errorf("verify for %s: %w", util.MaskIdentifier(identifier), err)
		}
		s.logger.Info("Code discarded after attempt exhaustion",
			zap.String("identifier", util.MaskIdentifier(identifier)))
		return nil, ErrTooManyAttempts
	}

	match, err := s.hasher.VerifyCode(submittedCode, codeHash)
	if err != nil {
		return nil, fmt.Errorf("verify for %s: %w", util.MaskIdentifier(identifier), err)
	}

	if match {
		// Single use: the record is gone before the caller sees success.
		if err := s.otpCache.Invalidate(ctx, identifier); err != nil {
			return nil, fmt.Errorf("verify for %s: %w", util.MaskIdentifier(identifier), err)
		}
		s.logger.Info("Code verified",
			zap.String("identifier", util.MaskIdentifier(identifier)))
		s.events.Publish(EventVerified, identifier, "", "")
		return &VerifyResult{Verified: true}, nil
	}

	newCount, err := s.otpCache.IncrementAttempts(ctx, identifier, s.policy.CodeTTL)
	if err != nil {
		return nil, fmt.Errorf("verify for %s: %w", util.MaskIdentifier(identifier), err)
	}

	remaining := s.policy.MaxAttempts - newCount
	if remaining < 0 {
		remaining = 0
	}

	s.logger.Info("Code mismatch",
		zap.String("identifier", util.MaskIdentifier(identifier)),
		zap.Int("attempts", newCount),
		zap.Int("remaining", remaining))

	return &VerifyResult{Remaining: remaining}, ErrInvalidOTP
}

// CodeTTL reports the remaining lifetime of an identifier's live code.
func (s *OTPService) CodeTTL(ctx context.Context, identifier string) (time.Duration, error) {
	ttl, err := s.otpCache.GetCodeTTL(ctx, identifier)
	if err != nil {
		if errors.Is(err, redisrepo.ErrNoCode) {
			return 0, ErrOTPNotFound
		}
		return 0, fmt.Errorf("code ttl for %s: %w", util.MaskIdentifier(identifier), err)
	}
	return ttl, nil
}

func (s *OTPService) resolveChannel(name string) (channel.Channel, error) {
	switch name {
	case string(channel.ModalitySMS):
		return s.registry.Active(channel.ModalitySMS)
	case string(channel.ModalityEmail):
		return s.registry.Active(channel.ModalityEmail)
	default:
		return s.registry.Resolve(name)
	}
}

func (s *OTPService) renderMessage(code string) string {
	minutes := int(s.policy.CodeTTL.Minutes())
	if minutes < 1 {
		return fmt.Sprintf("Your verification code is %s. It expires in %d seconds.",
			code, int(s.policy.CodeTTL.Seconds()))
	}
	return fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes)
}
