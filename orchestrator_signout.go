package authflow

import "context"

// SignOut tears down the authenticated state. Local cleanup runs first:
// the persisted session, the profile cache, and any stored intended route
// are cleared and unauthenticated is published before the provider call, so
// a slow or failing provider can never leave the UI looking signed in.
//
// The returned error, if any, is the provider's; local state is already
// unauthenticated when it is returned.
func (o *Orchestrator) SignOut(ctx context.Context) error {
	if o == nil {
		return ErrNotReady
	}
	if o.closed.Load() {
		return ErrClosed
	}

	// Advance the epoch so any in-flight initialize or sign-in result is
	// discarded instead of resurrecting the session.
	o.mu.Lock()
	o.epoch++
	epoch := o.epoch
	o.mu.Unlock()

	_ = o.sessions.Clear(ctx)
	_ = o.routes.clear(ctx)
	o.profiles.purge()

	o.metrics.Inc(MetricSignOut)
	o.publish(epoch, AuthState{
		Phase:       PhaseUnauthenticated,
		Initialized: true,
	})

	err := o.provider.SignOut(ctx)
	o.audit.emit(ctx, AuditEvent{
		EventType: auditEventSignOut,
		Success:   err == nil,
		Error:     errString(err),
	})
	return err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
