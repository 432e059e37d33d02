package authflow

import (
	"context"
	"strings"

	"github.com/squadkit/authflow/session"
)

const intendedRouteKey = "intended_route"

// routeStore holds the one-shot "intended route": the path a user was trying
// to reach before being diverted to authenticate. It lives in the same KV as
// the session so a page reload does not lose it.
type routeStore struct {
	kv session.KV
}

func newRouteStore(kv session.KV) *routeStore {
	return &routeStore{kv: kv}
}

func (r *routeStore) set(ctx context.Context, path string) error {
	return r.kv.Set(ctx, intendedRouteKey, []byte(path), 0)
}

// peek returns the stored route without removing it. The caller clears it
// only when a redirect decision used it or rejected it as unrestorable, so a
// route diverted by the agreement or onboarding gate survives for the next
// resolution.
func (r *routeStore) peek(ctx context.Context) string {
	data, ok, err := r.kv.Get(ctx, intendedRouteKey)
	if err != nil || !ok {
		return ""
	}
	return string(data)
}

func (r *routeStore) clear(ctx context.Context) error {
	return r.kv.Delete(ctx, intendedRouteKey)
}

// redirectDecision explains which rule produced a redirect target.
type redirectDecision uint8

const (
	redirectNone redirectDecision = iota
	redirectAgreement
	redirectOnboarding
	redirectIntended
	redirectHome
)

// resolveRedirect computes the single next navigation target from an auth
// snapshot. intended is the stored route offered for restoration; consumed
// reports whether the caller should clear it.
//
// The priority order is a hard invariant: the agreement and onboarding gates
// can never be bypassed by an intended-route restore.
func resolveRedirect(state AuthState, intended string, routes RoutesConfig) (path string, decision redirectDecision, consumed bool) {
	if !state.Authenticated || state.Profile == nil {
		return "", redirectNone, false
	}

	if state.Agreement != nil && state.Agreement.RequiresAgreement {
		return routes.AgreementPath, redirectAgreement, false
	}

	if state.Profile.Role == routes.PendingRole && !state.Profile.OnboardingCompleted {
		return routes.OnboardingPath, redirectOnboarding, false
	}

	if intended != "" {
		if !isAuthPath(intended, routes) {
			return intended, redirectIntended, true
		}
		// An auth page is unrestorable; report it consumed so the caller
		// clears it instead of letting the stale entry linger in the KV.
		return routes.HomePath, redirectHome, true
	}

	return routes.HomePath, redirectHome, false
}

func isAuthPath(path string, routes RoutesConfig) bool {
	for _, prefix := range routes.AuthPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return path == routes.LoginPath
}
