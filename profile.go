package authflow

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/squadkit/authflow/internal/cache"
	"github.com/squadkit/authflow/session"
)

// profileResolver loads a user's profile through an ordered fallback chain:
// TTL cache, primary lookup, legacy-schema lookup, lazy creation. The first
// success wins; only total exhaustion is an error.
type profileResolver struct {
	service ProfileService
	cache   *cache.TTL[Profile]
	metrics *Metrics
}

func newProfileResolver(service ProfileService, cfg ProfileCacheConfig, metrics *Metrics) *profileResolver {
	return &profileResolver{
		service: service,
		cache:   cache.New[Profile](cfg.TTL, cfg.MaxEntries),
		metrics: metrics,
	}
}

// resolve returns the profile for the identity user, creating one when no
// record exists anywhere. created reports whether this call performed the
// creation.
func (r *profileResolver) resolve(ctx context.Context, user session.User) (profile *Profile, created bool, err error) {
	if cached, ok := r.cache.Get(user.ID); ok {
		r.metrics.Inc(MetricProfileCacheHit)
		return &cached, false, nil
	}
	r.metrics.Inc(MetricProfileCacheMiss)

	primary, primaryErr := r.service.GetProfile(ctx, user.ID)
	if primaryErr == nil && primary != nil {
		r.cache.Put(user.ID, *primary)
		return primary, false, nil
	}

	legacy, legacyErr := r.service.GetLegacyProfile(ctx, user.ID)
	if legacyErr == nil && legacy != nil {
		r.metrics.Inc(MetricProfileLegacyHit)
		r.cache.Put(user.ID, *legacy)
		return legacy, false, nil
	}

	fresh, createErr := r.create(ctx, user)
	if createErr == nil && fresh != nil {
		r.metrics.Inc(MetricProfileCreated)
		r.cache.Put(user.ID, *fresh)
		return fresh, true, nil
	}

	return nil, false, &ProfileLoadError{
		UserID:     user.ID,
		PrimaryErr: primaryErr,
		LegacyErr:  legacyErr,
		CreateErr:  createErr,
	}
}

// create performs the lazy profile creation. A duplicate-create race lost to
// another tab or process is resolved by fetching the winner's record, so the
// operation is idempotent from the caller's point of view.
func (r *profileResolver) create(ctx context.Context, user session.User) (*Profile, error) {
	input := CreateProfileInput{
		ID:             user.ID,
		Email:          user.Email,
		Name:           displayName(user),
		Provider:       providerName(user),
		IdempotencyKey: uuid.NewString(),
	}

	profile, err := r.service.CreateProfile(ctx, input)
	if err == nil {
		return profile, nil
	}
	if errors.Is(err, ErrProfileExists) {
		existing, fetchErr := r.service.GetProfile(ctx, user.ID)
		if fetchErr == nil {
			return existing, nil
		}
		return nil, fetchErr
	}
	return nil, err
}

// cached returns the cache entry for a user without touching collaborators.
func (r *profileResolver) cached(userID string) (*Profile, bool) {
	profile, ok := r.cache.Get(userID)
	if !ok {
		return nil, false
	}
	return &profile, true
}

// invalidate drops the cached entry for a user.
func (r *profileResolver) invalidate(userID string) {
	r.cache.Delete(userID)
}

// store replaces the cached entry for a profile.
func (r *profileResolver) store(profile Profile) {
	r.cache.Put(profile.ID, profile)
}

// purge drops every cached profile. Called on sign-out.
func (r *profileResolver) purge() {
	r.cache.Purge()
}

// displayName derives a default display name from identity metadata:
// name, then full name, then email local-part, then the literal "User".
func displayName(user session.User) string {
	if name := strings.TrimSpace(user.Name); name != "" {
		return name
	}
	if name := strings.TrimSpace(user.FullName); name != "" {
		return name
	}
	if at := strings.Index(user.Email, "@"); at > 0 {
		return user.Email[:at]
	}
	return "User"
}

// providerName reports which signup provider the identity came from.
func providerName(user session.User) string {
	if user.Provider != "" {
		return user.Provider
	}
	return "email"
}
