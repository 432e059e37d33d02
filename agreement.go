package authflow

import (
	"context"
	"errors"
	"strconv"
)

// agreementGate decides whether a role-specific agreement acceptance is
// outstanding by comparing the latest stored record against the required
// version for the profile's role.
//
// Evaluation failures fail open: agreement enforcement is a compliance gate,
// not a security boundary, so availability wins over strictness.
type agreementGate struct {
	cfg     AgreementConfig
	service AgreementService
	audit   *auditDispatcher
	metrics *Metrics
}

func newAgreementGate(cfg AgreementConfig, service AgreementService, audit *auditDispatcher, metrics *Metrics) *agreementGate {
	return &agreementGate{cfg: cfg, service: service, audit: audit, metrics: metrics}
}

// evaluate computes the AgreementStatus for a profile. It never returns an
// error; failures surface as a bypassed status.
func (g *agreementGate) evaluate(ctx context.Context, profile *Profile) AgreementStatus {
	required, gated := g.cfg.RequiredVersion(profile.Role)
	if !gated {
		return AgreementStatus{State: AgreementBypassed}
	}
	if g.service == nil {
		return g.failOpen(ctx, profile, required, errors.New("no agreement service configured"))
	}

	record, err := g.service.LatestAgreement(ctx, profile.ID, profile.Role)
	if errors.Is(err, ErrAgreementNotFound) || (err == nil && record == nil) {
		return AgreementStatus{
			RequiresAgreement: true,
			State:             AgreementMissing,
			RequiredVersion:   required,
		}
	}
	if err != nil {
		return g.failOpen(ctx, profile, required, err)
	}

	status := AgreementStatus{
		CurrentVersion:  record.Version,
		RequiredVersion: required,
	}
	switch {
	case record.Version < required:
		status.RequiresAgreement = true
		status.State = AgreementOutdated
	case record.Status == AgreementStatusDeclined:
		status.RequiresAgreement = true
		status.State = AgreementDeclined
	case record.Status != AgreementStatusAccepted:
		status.RequiresAgreement = true
		status.State = AgreementPending
	default:
		status.State = AgreementCurrent
	}
	return status
}

func (g *agreementGate) failOpen(ctx context.Context, profile *Profile, required int, cause error) AgreementStatus {
	g.metrics.Inc(MetricAgreementFailOpen)
	g.audit.emit(ctx, AuditEvent{
		EventType: auditEventAgreementFailOpen,
		UserID:    profile.ID,
		Success:   false,
		Error:     cause.Error(),
		Metadata: map[string]string{
			"role":             profile.Role,
			"required_version": strconv.Itoa(required),
		},
	})
	return AgreementStatus{
		State:           AgreementBypassed,
		RequiredVersion: required,
	}
}
