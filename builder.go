package phoneauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneauth/delivery"
	"github.com/MrEthical07/phoneauth/directory"
	"github.com/MrEthical07/phoneauth/internal"
	internalaudit "github.com/MrEthical07/phoneauth/internal/audit"
	"github.com/MrEthical07/phoneauth/internal/limiters"
	"github.com/MrEthical07/phoneauth/internal/stores"
	"github.com/MrEthical07/phoneauth/jwt"
	"github.com/MrEthical07/phoneauth/otp"
	"github.com/MrEthical07/phoneauth/password"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const dummyPassword = "phoneauth-timing-equalizer"

// Builder assembles an [Engine]. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identities IdentityStore
	sender     delivery.Sender
	auditSink  AuditSink
	logger     zerolog.Logger
	codes      otp.Generator
	now        func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing challenges, revocations, the abuse
// guard, and the throttle. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityStore sets the identity persistence. Defaults to a Redis
// store on the same client.
func (b *Builder) WithIdentityStore(store IdentityStore) *Builder {
	b.identities = store
	return b
}

// WithSender sets the SMS delivery capability. Required.
func (b *Builder) WithSender(sender delivery.Sender) *Builder {
	b.sender = sender
	return b
}

// WithAuditSink sets the audit destination and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithCodeGenerator replaces the crypto-random code generator. Its length
// must match OTP.CodeLength.
func (b *Builder) WithCodeGenerator(g otp.Generator) *Builder {
	b.codes = g
	return b
}

// WithClock replaces time.Now for every time-dependent decision.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and starts the delivery workers and
// audit dispatcher. Call Engine.Close to stop them.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.sender == nil {
		return nil, errors.New("delivery sender required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	codes := b.codes
	if codes == nil {
		random, err := otp.NewRandom(cfg.OTP.CodeLength)
		if err != nil {
			return nil, err
		}
		codes = random
	}
	if codes.Length() != cfg.OTP.CodeLength {
		return nil, fmt.Errorf("code generator length %d does not match OTP CodeLength %d", codes.Length(), cfg.OTP.CodeLength)
	}

	codeKey := cfg.OTP.HashKey
	if len(codeKey) == 0 {
		codeKey = internal.DeriveKey(cfg.JWT.PrivateKey, "phoneauth challenge code")
	}

	identities := b.identities
	if identities == nil {
		identities = directory.NewRedisStore(b.redis, "")
	}

	// -------- PASSWORD --------
	hasher, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxBytes,
	})
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	// -------- JWT --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		logger:      b.logger,
		now:         now,
		challenges:  stores.NewChallengeStore(b.redis, cfg.Redis.ChallengePrefix),
		revocations: stores.NewRevocationStore(b.redis, cfg.Redis.RevocationPrefix),
		guard: limiters.NewAbuseGuard(b.redis, limiters.AbuseConfig{
			Window:          cfg.Lockout.Window,
			PhoneThreshold:  cfg.Lockout.PhoneThreshold,
			OriginThreshold: cfg.Lockout.OriginThreshold,
		}),
		throttle: limiters.NewChallengeRequestLimiter(b.redis, limiters.ChallengeRequestConfig{
			Enabled:     cfg.Throttle.Enabled,
			MaxRequests: cfg.Throttle.MaxChallengeRequestsPerOrigin,
			Window:      cfg.Throttle.Window,
		}),
		directory: directory.New(identities, now),
		hasher:    hasher,
		dummyHash: dummyHash,
		policy: password.Policy{
			MinLength:      cfg.Password.MinLength,
			MaxBytes:       cfg.Password.MaxBytes,
			AllowNumeric:   cfg.Password.AllowNumeric,
			AllowCommon:    cfg.Password.AllowCommon,
			AllowLikePhone: cfg.Password.AllowLikePhone,
		},
		jwtManager: jm,
		codes:      codes,
		codeKey:    codeKey,
		metrics:    NewMetrics(cfg.Metrics),
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     b.logger.With().Str("component", "audit").Logger(),
	}, b.auditSink)

	// -------- DELIVERY --------
	pipeline, err := delivery.NewPipeline(b.sender, delivery.Config{
		QueueSize:      cfg.Delivery.QueueSize,
		Workers:        cfg.Delivery.Workers,
		MaxRetries:     cfg.Delivery.MaxRetries,
		RetryBase:      cfg.Delivery.RetryBase,
		AttemptTimeout: cfg.Delivery.SendTimeout,
		OnResult:       engine.onDeliveryResult,
	}, b.logger.With().Str("component", "delivery").Logger())
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.pipeline = pipeline
	engine.flows = engine.buildFlows()

	b.built = true
	return engine, nil
}
