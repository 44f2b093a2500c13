package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"otp-gateway/internal/channel"
	"otp-gateway/internal/client"
	"otp-gateway/internal/config"
	"otp-gateway/internal/hashing"
	redisrepo "otp-gateway/internal/repository/redis"
	"otp-gateway/internal/service"
	"otp-gateway/internal/tls"
	"otp-gateway/internal/util"
)

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	redisClient   *client.RedisClient
	kafkaProducer *client.KafkaProducer

	hasher    *hashing.Hasher
	otpCache  *redisrepo.OTPCache
	rateCache *redisrepo.RateLimitCache
	registry  *channel.Registry

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeEngine()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
	)

	return factory, nil
}

// initializeClients connects the external collaborators. Redis is the
// engine's only persistence dependency and is fatal when unavailable;
// Kafka is observability and degrades to a warning.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	util.Info("Redis client initialized and healthy")

	if f.config.Kafka.Enabled {
		producer, err := client.NewKafkaProducer(f.config, util.Get())
		if err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without event stream", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	return nil
}

// initializeEngine wires the hasher, caches, channel registry, and the
// service factory.
func (f *Factory) initializeEngine() {
	f.hasher = hashing.NewHasher(hashing.DefaultParams())
	f.otpCache = redisrepo.NewOTPCache(f.redisClient)
	f.rateCache = redisrepo.NewRateLimitCache(f.redisClient)
	f.registry = f.buildRegistry()

	events := service.NewEventPublisher(f.kafkaProducer, util.Get())

	f.serviceFactory = service.NewServiceFactory(
		f.otpCache,
		f.rateCache,
		f.hasher,
		f.registry,
		events,
		f.config.OTP,
		util.Get(),
	)
}

// buildRegistry registers every provider with credentials present, plus
// log channels outside production, then applies the configured active
// selection per modality.
func (f *Factory) buildRegistry() *channel.Registry {
	registry := channel.NewRegistry()
	channels := f.config.Channels

	if f.config.IsDevelopment() {
		registry.Register(channel.NewLogChannel(channel.ModalitySMS))
		registry.Register(channel.NewLogChannel(channel.ModalityEmail))
	}

	if channels.Hubtel.ClientID != "" {
		registry.Register(channel.NewHubtelChannel(channels.Hubtel))
	}
	if channels.Mnotify.APIKey != "" {
		registry.Register(channel.NewMnotifyChannel(channels.Mnotify))
	}
	if channels.Arkesel.APIKey != "" {
		registry.Register(channel.NewArkeselChannel(channels.Arkesel))
	}
	if channels.Twilio.AccountSID != "" {
		registry.Register(channel.NewTwilioChannel(channels.Twilio))
	}
	if channels.SMTP.Host != "" {
		registry.Register(channel.NewSMTPChannel(channels.SMTP))
	}

	if err := registry.SetActive(channel.ModalitySMS, channels.ActiveSMS); err != nil {
		util.Warn("Configured SMS provider not registered", util.ErrorField(err))
	}
	if err := registry.SetActive(channel.ModalityEmail, channels.ActiveEmail); err != nil {
		util.Warn("Configured email provider not registered", util.ErrorField(err))
	}

	names, active := registry.Snapshot()
	util.Info("Channel registry built",
		util.Int("channels", len(names)),
		util.String("active_sms", active[channel.ModalitySMS]),
		util.String("active_email", active[channel.ModalityEmail]),
	)

	return registry
}

// HealthCheck reports per-dependency health.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

// IsHealthy ignores the optional Kafka stream.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	return f.serviceFactory
}

func (f *Factory) Registry() *channel.Registry {
	return f.registry
}
