package service

import (
	"go.uber.org/zap"

	"otp-gateway/internal/channel"
	"otp-gateway/internal/config"
	"otp-gateway/internal/hashing"
	redisrepo "otp-gateway/internal/repository/redis"
)

// ServiceFactory creates and manages service instances.
type ServiceFactory struct {
	otpCache   *redisrepo.OTPCache
	rateCache  *redisrepo.RateLimitCache
	hasher     *hashing.Hasher
	registry   *channel.Registry
	events     *EventPublisher
	policy     config.OTPConfig
	logger     *zap.Logger
	otpService *OTPService
}

func NewServiceFactory(
	otpCache *redisrepo.OTPCache,
	rateCache *redisrepo.RateLimitCache,
	hasher *hashing.Hasher,
	registry *channel.Registry,
	events *EventPublisher,
	policy config.OTPConfig,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		otpCache:  otpCache,
		rateCache: rateCache,
		hasher:    hasher,
		registry:  registry,
		events:    events,
		policy:    policy,
		logger:    logger,
	}
}

// OTPService returns the engine instance (singleton).
func (f *ServiceFactory) OTPService() *OTPService {
	if f.otpService == nil {
		f.otpService = NewOTPService(
			f.otpCache,
			f.rateCache,
			f.hasher,
			f.registry,
			f.events,
			f.policy,
			f.logger,
		)
	}
	return f.otpService
}

// Registry exposes the channel registry for the admin surface.
func (f *ServiceFactory) Registry() *channel.Registry {
	return f.registry
}
