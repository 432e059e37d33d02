package authflow

import (
	"context"
	"fmt"
)

// SignIn exchanges credentials with the identity provider and, on success,
// feeds the freshly issued session through the same processing path that
// Initialize and the provider event stream use, so "freshly authenticated"
// behaves identically regardless of trigger.
//
// A rejected sign-in publishes unauthenticated with a retryable error
// message and returns the provider's error.
func (o *Orchestrator) SignIn(ctx context.Context, creds Credentials) (AuthState, error) {
	if o == nil {
		return AuthState{}, ErrNotReady
	}
	if o.closed.Load() {
		return AuthState{}, ErrClosed
	}

	epoch := o.currentEpoch()
	o.patchState(epoch, func(s *AuthState) {
		s.Phase = PhaseInitializing
		s.Loading = true
		s.Error = ""
	})

	sess, err := o.provider.SignIn(ctx, creds)
	if err != nil {
		o.metrics.Inc(MetricSignInFailure)
		o.audit.emit(ctx, AuditEvent{
			EventType: auditEventSignIn,
			Success:   false,
			Error:     err.Error(),
		})
		state := AuthState{
			Phase:       PhaseUnauthenticated,
			Initialized: true,
			Error:       "sign in failed, please check your credentials and try again",
		}
		o.publish(epoch, state)
		return copyState(state), fmt.Errorf("sign in: %w", err)
	}

	// A sign-out issued while the provider call was in flight wins; drop
	// this result instead of resurrecting a session the user just ended.
	if o.currentEpoch() != epoch {
		o.metrics.Inc(MetricStaleResultDiscarded)
		return o.Snapshot(), ErrStaleOperation
	}

	fresh := *sess
	enrichToken(&fresh)
	if persistErr := o.sessions.Set(ctx, &fresh); persistErr != nil {
		o.audit.emit(ctx, AuditEvent{
			EventType: auditEventSignIn,
			UserID:    fresh.User.ID,
			Success:   false,
			Error:     persistErr.Error(),
			Metadata:  map[string]string{"step": "persist_session"},
		})
	}

	state, procErr := o.processSession(ctx, epoch, &fresh)
	if procErr != nil {
		o.metrics.Inc(MetricSignInFailure)
		return state, procErr
	}

	o.metrics.Inc(MetricSignInSuccess)
	o.audit.emit(ctx, AuditEvent{
		EventType: auditEventSignIn,
		UserID:    fresh.User.ID,
		Phase:     state.Phase.String(),
		Success:   true,
	})
	return state, nil
}
