package authflow

import (
	"context"
	"fmt"
	"strconv"
)

// AcceptAgreement posts an acceptance of the required agreement version for
// the current user's role, then patches only the agreement slice of state.
// The full profile pipeline is deliberately not re-run, so accepting never
// causes a spurious redirect or profile refetch.
func (o *Orchestrator) AcceptAgreement(ctx context.Context) error {
	if o == nil {
		return ErrNotReady
	}
	if o.closed.Load() {
		return ErrClosed
	}

	epoch := o.currentEpoch()
	state := o.Snapshot()
	if !state.Authenticated || state.Profile == nil {
		return ErrNotAuthenticated
	}
	if state.Agreement == nil || !state.Agreement.RequiresAgreement {
		return ErrAgreementNotRequired
	}
	if o.agreement == nil {
		return ErrAgreementUnavailable
	}

	required, gated := o.config.Agreement.RequiredVersion(state.Profile.Role)
	if !gated {
		return ErrAgreementNotRequired
	}

	var token string
	if sess := o.sessions.Get(ctx); sess != nil {
		token = sess.Token.AccessToken
	}

	err := o.agreement.SubmitAcceptance(ctx, AgreementAcceptance{
		Role:        state.Profile.Role,
		Version:     required,
		Status:      AgreementStatusAccepted,
		AccessToken: token,
	})
	if err != nil {
		o.audit.emit(ctx, AuditEvent{
			EventType: auditEventAgreementAccepted,
			UserID:    state.Profile.ID,
			Success:   false,
			Error:     err.Error(),
		})
		return fmt.Errorf("accept agreement: %w", err)
	}

	o.metrics.Inc(MetricAgreementAccepted)
	o.audit.emit(ctx, AuditEvent{
		EventType: auditEventAgreementAccepted,
		UserID:    state.Profile.ID,
		Success:   true,
		Metadata: map[string]string{
			"role":    state.Profile.Role,
			"version": strconv.Itoa(required),
		},
	})

	o.patchState(epoch, func(s *AuthState) {
		s.Agreement = &AgreementStatus{
			State:           AgreementCurrent,
			CurrentVersion:  required,
			RequiredVersion: required,
		}
	})
	return nil
}
