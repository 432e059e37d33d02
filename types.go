package authflow

import (
	"context"
	"time"

	"github.com/squadkit/authflow/session"
)

// AuthPhase identifies the orchestrator's position in its lifecycle state
// machine.
type AuthPhase uint8

const (
	// PhaseUninitialized is the state before the first Initialize call.
	PhaseUninitialized AuthPhase = iota
	// PhaseInitializing is the transient state while session processing runs.
	PhaseInitializing
	// PhaseAuthenticated means a validated session and resolved profile exist.
	PhaseAuthenticated
	// PhaseUnauthenticated means no valid session exists. This is an expected
	// outcome, not a defect.
	PhaseUnauthenticated
	// PhaseError means session processing failed in a way that blocks login,
	// for example an unresolvable profile.
	PhaseError
)

func (p AuthPhase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// AgreementState classifies the outcome of an agreement evaluation.
type AgreementState uint8

const (
	// AgreementMissing means the role requires an agreement and no record exists.
	AgreementMissing AgreementState = iota
	// AgreementOutdated means the stored acceptance predates the required version.
	AgreementOutdated
	// AgreementDeclined means the current version was explicitly declined.
	AgreementDeclined
	// AgreementPending means an acceptance is recorded but not yet finalized.
	AgreementPending
	// AgreementCurrent means the required version is accepted.
	AgreementCurrent
	// AgreementBypassed means the role does not require an agreement, or an
	// evaluation failure was resolved permissively.
	AgreementBypassed
)

func (s AgreementState) String() string {
	switch s {
	case AgreementMissing:
		return "missing"
	case AgreementOutdated:
		return "outdated"
	case AgreementDeclined:
		return "declined"
	case AgreementPending:
		return "pending"
	case AgreementCurrent:
		return "current"
	case AgreementBypassed:
		return "bypassed"
	default:
		return "unknown"
	}
}

// AgreementStatus is the derived, never-persisted answer to "is a legal
// agreement acceptance outstanding for this user". RequiresAgreement is false
// exactly when State is AgreementCurrent or AgreementBypassed.
type AgreementStatus struct {
	RequiresAgreement bool
	State             AgreementState
	CurrentVersion    int
	RequiredVersion   int
}

// AgreementRecord is a stored role-specific acceptance with a monotonically
// increasing version, as returned by [AgreementService.LatestAgreement].
type AgreementRecord struct {
	UserID    string
	Role      string
	Version   int
	Status    string
	CreatedAt time.Time
}

// Agreement record status values understood by the gate. Any other value is
// treated like a pending acceptance.
const (
	AgreementStatusAccepted = "accepted"
	AgreementStatusDeclined = "declined"
	AgreementStatusPending  = "pending"
)

// Profile is the application-level user record, distinct from the identity
// provider's bare identity.
type Profile struct {
	ID                  string
	Name                string
	Email               string
	Role                string
	TeamID              string
	OnboardingCompleted bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ProfilePatch is a partial profile update. Nil fields are left untouched.
type ProfilePatch struct {
	Name                *string
	Email               *string
	Role                *string
	TeamID              *string
	OnboardingCompleted *bool
}

func (p ProfilePatch) apply(profile Profile) Profile {
	if p.Name != nil {
		profile.Name = *p.Name
	}
	if p.Email != nil {
		profile.Email = *p.Email
	}
	if p.Role != nil {
		profile.Role = *p.Role
	}
	if p.TeamID != nil {
		profile.TeamID = *p.TeamID
	}
	if p.OnboardingCompleted != nil {
		profile.OnboardingCompleted = *p.OnboardingCompleted
	}
	return profile
}

// AuthState is the aggregate snapshot published to subscribers. It is a value
// copy on every publish; consumers must never mutate the pointed-to records.
type AuthState struct {
	Phase         AuthPhase
	Initialized   bool
	Loading       bool
	Authenticated bool
	User          *session.User
	Profile       *Profile
	Agreement     *AgreementStatus
	Error         string
}

// Credentials carries a sign-in request to the identity provider.
type Credentials struct {
	Email    string
	Password string
	Provider string
}

// ProviderEventType classifies identity provider stream events.
type ProviderEventType uint8

const (
	// EventSignedIn announces a freshly issued session.
	EventSignedIn ProviderEventType = iota
	// EventTokenRefreshed announces replacement token material for the
	// current session.
	EventTokenRefreshed
	// EventSignedOut announces that the provider terminated the session.
	EventSignedOut
)

// ProviderEvent is an asynchronous notification from the identity provider.
type ProviderEvent struct {
	Type    ProviderEventType
	Session *session.Session
}

// IdentityProvider is the authority for token validity. The orchestrator
// never second-guesses it: a session it rejects is discarded, a session it
// returns is trusted.
type IdentityProvider interface {
	// SignIn exchanges credentials for a session.
	SignIn(ctx context.Context, creds Credentials) (*session.Session, error)
	// SignOut terminates the provider-side session.
	SignOut(ctx context.Context) error
	// Validate checks a locally persisted session, returning the (possibly
	// refreshed) authoritative session or ErrSessionInvalid.
	Validate(ctx context.Context, sess *session.Session) (*session.Session, error)
	// Events exposes the provider's asynchronous event stream. May return
	// nil when the provider has no push channel.
	Events() <-chan ProviderEvent
}

// CreateProfileInput is the payload for lazy profile creation. The
// IdempotencyKey lets the backing service collapse duplicate creates raced
// by multiple tabs or processes into a single record.
type CreateProfileInput struct {
	ID             string
	Email          string
	Name           string
	Provider       string
	IdempotencyKey string
}

// ProfileService is the profile persistence collaborator. Lookups return
// ErrProfileNotFound for absent records; Create returns ErrProfileExists
// when a record for the id already exists.
type ProfileService interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// GetLegacyProfile consults the historical schema. Implementations
	// without one simply return ErrProfileNotFound.
	GetLegacyProfile(ctx context.Context, userID string) (*Profile, error)
	CreateProfile(ctx context.Context, input CreateProfileInput) (*Profile, error)
}

// AgreementAcceptance is the payload posted when a user accepts the current
// agreement version for their role.
type AgreementAcceptance struct {
	Role        string
	Version     int
	Status      string
	AccessToken string
}

// AgreementService is the agreement persistence collaborator.
// LatestAgreement returns ErrAgreementNotFound when no record exists for the
// pair.
type AgreementService interface {
	LatestAgreement(ctx context.Context, userID, role string) (*AgreementRecord, error)
	SubmitAcceptance(ctx context.Context, acceptance AgreementAcceptance) error
}
