// Package authflow provides the authentication and session orchestration core
// for team-management applications: a single stateful [Orchestrator] that
// reconciles an external identity provider's session events, locally persisted
// session data, a lazily created user profile, a per-role agreement gate, and
// a deterministic post-login redirect decision.
//
// The package is designed for concurrent callers: Orchestrator methods are
// safe to call from multiple goroutines after construction through
// [Builder.Build]. All state mutations flow through the orchestrator, and
// consumers only ever observe immutable [AuthState] snapshots delivered
// through [Orchestrator.Subscribe] or [Orchestrator.Snapshot].
//
// # Architecture boundaries
//
// authflow is the public surface. It exposes [Orchestrator], [Builder],
// [Config], value types (AuthState, Profile, AgreementStatus, etc.), and the
// collaborator interfaces the host application implements: [IdentityProvider],
// [ProfileService], and [AgreementService]. Session persistence lives in the
// session sub-package; transient caching lives under internal/ and is never
// exported.
//
// # What this package must NOT do
//
//   - Render UI or decide anything beyond the next navigation path.
//   - Talk to a database directly; profiles and agreements are reached only
//     through the collaborator interfaces.
//   - Leak raw collaborator errors to consumers. The orchestrator is the
//     single boundary that converts failures into AuthState.Error.
//
// # State machine contract
//
// The orchestrator moves uninitialized -> initializing -> one of
// {authenticated, unauthenticated, error}. From authenticated it returns to
// unauthenticated only through an explicit sign-out (local or provider
// driven). Concurrent [Orchestrator.Initialize] calls share a single flight;
// results from operations that lost the de-duplication race, or that started
// before a later sign-out, are discarded rather than published.
package authflow
