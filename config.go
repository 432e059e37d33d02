package authflow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config groups all tunables for an Orchestrator. Construct one, hand it to
// [Builder.WithConfig], and treat it as immutable afterwards.
type Config struct {
	Session      SessionConfig
	ProfileCache ProfileCacheConfig
	Agreement    AgreementConfig
	Routes       RoutesConfig
	Init         InitConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls persisted session handling.
type SessionConfig struct {
	// RedisPrefix namespaces all keys when a Redis KV is built from a
	// client handed to the builder.
	RedisPrefix string
	// TTL bounds blob retention for tokens without an expiry claim.
	TTL time.Duration
	// ClockSkew widens expiry checks to absorb provider clock drift.
	ClockSkew time.Duration
}

/*
====================================
PROFILE CACHE CONFIG
====================================
*/

// ProfileCacheConfig controls the in-memory profile cache that short-circuits
// redundant fetches on token refresh and repeated navigation.
type ProfileCacheConfig struct {
	// TTL is the cache validity window. Zero or negative disables caching.
	TTL time.Duration
	// MaxEntries caps the cache size. Zero means unbounded.
	MaxEntries int
}

/*
====================================
AGREEMENT CONFIG
====================================
*/

// AgreementConfig declares which roles must accept a legal agreement and at
// which version. Roles absent from RequiredVersions bypass the gate.
type AgreementConfig struct {
	RequiredVersions map[string]int
	// Endpoint is the base URL of the agreement HTTP API. Used only when no
	// AgreementService is supplied to the builder.
	Endpoint string
	// RequestTimeout bounds agreement HTTP calls.
	RequestTimeout time.Duration
}

// RequiredVersion returns the agreement version role must have accepted, and
// whether the role is gated at all.
func (c AgreementConfig) RequiredVersion(role string) (int, bool) {
	v, ok := c.RequiredVersions[role]
	return v, ok
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig names the navigation targets the redirect resolver chooses
// between, and the role that marks a user as still onboarding.
type RoutesConfig struct {
	LoginPath      string
	AgreementPath  string
	OnboardingPath string
	HomePath       string
	// AuthPathPrefixes are paths that must never be restored as an intended
	// route (login, signup, and callback pages).
	AuthPathPrefixes []string
	// PendingRole is the role assigned to users who have not finished
	// onboarding.
	PendingRole string
}

/*
====================================
INIT CONFIG
====================================
*/

// InitConfig controls first-load behavior.
type InitConfig struct {
	// FirstLoadTimeout bounds the very first Initialize. On expiry the
	// orchestrator degrades to the cached session and retries the profile
	// load in the background instead of failing the user out. Routine
	// re-initialization is never bounded. Zero disables the timeout.
	FirstLoadTimeout time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking, counting dropped events instead
	// of applying backpressure.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the lock-free counter table.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix: "authflow:",
			TTL:         30 * 24 * time.Hour,
			ClockSkew:   30 * time.Second,
		},
		ProfileCache: ProfileCacheConfig{
			TTL:        5 * time.Minute,
			MaxEntries: 1024,
		},
		Agreement: AgreementConfig{
			RequestTimeout: 10 * time.Second,
		},
		Routes: RoutesConfig{
			LoginPath:        "/login",
			AgreementPath:    "/agreement",
			OnboardingPath:   "/onboarding",
			HomePath:         "/dashboard",
			AuthPathPrefixes: []string{"/login", "/signup", "/auth"},
			PendingRole:      "pending",
		},
		Init: InitConfig{
			FirstLoadTimeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Agreement.RequiredVersions != nil {
		out.Agreement.RequiredVersions = make(map[string]int, len(cfg.Agreement.RequiredVersions))
		for role, version := range cfg.Agreement.RequiredVersions {
			out.Agreement.RequiredVersions[role] = version
		}
	}
	if cfg.Routes.AuthPathPrefixes != nil {
		out.Routes.AuthPathPrefixes = append([]string(nil), cfg.Routes.AuthPathPrefixes...)
	}
	return out
}

// Validate rejects configurations that would produce surprising runtime
// behavior instead of letting them fail later.
func (c Config) Validate() error {
	for role, version := range c.Agreement.RequiredVersions {
		if role == "" {
			return errors.New("agreement required version with empty role")
		}
		if version <= 0 {
			return fmt.Errorf("agreement required version for role %q must be positive", role)
		}
	}
	for _, p := range []struct {
		name string
		path string
	}{
		{"login", c.Routes.LoginPath},
		{"agreement", c.Routes.AgreementPath},
		{"onboarding", c.Routes.OnboardingPath},
		{"home", c.Routes.HomePath},
	} {
		if p.path == "" || !strings.HasPrefix(p.path, "/") {
			return fmt.Errorf("routes: %s path must start with /", p.name)
		}
	}
	if c.Init.FirstLoadTimeout < 0 {
		return errors.New("init: FirstLoadTimeout must not be negative")
	}
	if c.Session.ClockSkew < 0 {
		return errors.New("session: ClockSkew must not be negative")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit: BufferSize must be positive when enabled")
	}
	return nil
}
