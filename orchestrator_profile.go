package authflow

import "context"

// UpdateProfile applies a partial profile edit to the published state and
// the cache. It is a targeted patch: routine edits must not re-run the full
// initialization pipeline, or every save would risk a spurious redirect.
//
// Persisting the edit is the host application's CRUD layer's job; this only
// keeps the auth snapshot coherent with it.
func (o *Orchestrator) UpdateProfile(ctx context.Context, patch ProfilePatch) error {
	if o == nil {
		return ErrNotReady
	}
	if o.closed.Load() {
		return ErrClosed
	}
	_ = ctx

	// The patch is applied to the live state inside the commit, never to a
	// pre-read snapshot, so two concurrent patches to disjoint fields both
	// land instead of the later commit erasing the earlier.
	applied := false
	o.patchState(o.currentEpoch(), func(s *AuthState) {
		if !s.Authenticated || s.Profile == nil {
			return
		}
		updated := patch.apply(*s.Profile)
		s.Profile = &updated
		o.profiles.store(updated)
		applied = true
	})
	if !applied {
		return ErrNotAuthenticated
	}
	return nil
}

// RefreshProfile invalidates the cached profile, re-resolves it from the
// collaborators, and re-evaluates the agreement gate, patching both slices
// of state. Like UpdateProfile it avoids a full re-initialize.
//
// On failure the current state is left untouched and the error returned, so
// a transient fetch problem cannot degrade an authenticated session.
func (o *Orchestrator) RefreshProfile(ctx context.Context) error {
	if o == nil {
		return ErrNotReady
	}
	if o.closed.Load() {
		return ErrClosed
	}

	epoch := o.currentEpoch()
	state := o.Snapshot()
	if !state.Authenticated || state.User == nil {
		return ErrNotAuthenticated
	}

	o.profiles.invalidate(state.User.ID)
	profile, _, err := o.profiles.resolve(ctx, *state.User)
	if err != nil {
		return err
	}
	agreement := o.gate.evaluate(ctx, profile)

	o.audit.emit(ctx, AuditEvent{
		EventType: auditEventProfileRefreshed,
		UserID:    profile.ID,
		Success:   true,
	})
	o.patchState(epoch, func(s *AuthState) {
		s.Profile = profile
		s.Agreement = &agreement
	})
	return nil
}
