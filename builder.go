package authflow

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/squadkit/authflow/session"
)

// Builder assembles an [Orchestrator]. Configure it during initialization
// and call Build exactly once; a Builder is not reusable.
type Builder struct {
	config Config

	redis     *redis.Client
	kv        session.KV
	provider  IdentityProvider
	profiles  ProfileService
	agreement AgreementService
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		clock:  time.Now,
	}
}

// WithConfig replaces the entire configuration. The config is copied; later
// mutation of cfg by the caller has no effect.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing session and intended-route
// persistence. Ignored when WithSessionKV is also used.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithSessionKV supplies a custom persistence medium, overriding WithRedis.
func (b *Builder) WithSessionKV(kv session.KV) *Builder {
	b.kv = kv
	return b
}

// WithIdentityProvider supplies the identity provider client. Required.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithProfileService supplies the profile persistence collaborator. Required.
func (b *Builder) WithProfileService(s ProfileService) *Builder {
	b.profiles = s
	return b
}

// WithAgreementService supplies the agreement collaborator. When omitted and
// Config.Agreement.Endpoint is set, an [HTTPAgreementAPI] is built instead.
func (b *Builder) WithAgreementService(s AgreementService) *Builder {
	b.agreement = s
	return b
}

// WithAuditSink supplies the audit sink. Only consulted when auditing is
// enabled in the config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source. Intended for tests.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles the counter table.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithAuditEnabled toggles audit event dispatch.
func (b *Builder) WithAuditEnabled(enabled bool) *Builder {
	b.config.Audit.Enabled = enabled
	return b
}

// Build validates the assembly and returns a running Orchestrator. When the
// identity provider exposes an event stream, a consumer goroutine is started;
// call [Orchestrator.Close] to stop it.
func (b *Builder) Build() (*Orchestrator, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.provider == nil {
		return nil, errors.New("identity provider required")
	}
	if b.profiles == nil {
		return nil, errors.New("profile service required")
	}

	kv := b.kv
	if kv == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or session KV required")
		}
		kv = session.NewRedisKV(b.redis, cfg.Session.RedisPrefix)
	}

	agreement := b.agreement
	if agreement == nil && cfg.Agreement.Endpoint != "" {
		agreement = NewHTTPAgreementAPI(cfg.Agreement.Endpoint, cfg.Agreement.RequestTimeout)
	}
	if agreement == nil && len(cfg.Agreement.RequiredVersions) > 0 {
		return nil, errors.New("agreement service or endpoint required when roles are gated")
	}

	metrics := NewMetrics(cfg.Metrics)
	audit := newAuditDispatcher(cfg.Audit, b.auditSink)

	o := &Orchestrator{
		config:   cfg,
		provider: b.provider,
		sessions: session.NewStore(kv, session.StoreConfig{
			TTL:       cfg.Session.TTL,
			ClockSkew: cfg.Session.ClockSkew,
			Clock:     b.clock,
		}),
		routes:      newRouteStore(kv),
		profiles:    newProfileResolver(b.profiles, cfg.ProfileCache, metrics),
		gate:        newAgreementGate(cfg.Agreement, agreement, audit, metrics),
		agreement:   agreement,
		audit:       audit,
		metrics:     metrics,
		clock:       b.clock,
		subscribers: make(map[uint64]func(AuthState)),
	}
	o.runCtx, o.runCancel = context.WithCancel(context.Background())

	// Wire the HTTP agreement client's reads to the current session token.
	if api, ok := agreement.(*HTTPAgreementAPI); ok && api.AuthToken == nil {
		api.AuthToken = func() string {
			if sess := o.sessions.Get(context.Background()); sess != nil {
				return sess.Token.AccessToken
			}
			return ""
		}
	}

	if events := b.provider.Events(); events != nil {
		o.wg.Add(1)
		go o.run(events)
	}

	b.built = true
	return o, nil
}
