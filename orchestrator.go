package authflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/squadkit/authflow/session"
)

// Orchestrator coordinates the identity provider, session store, profile
// resolver, agreement gate, and redirect resolver behind a single state
// machine. Construct exactly one per process through [Builder.Build] and
// share it; it has no hidden global state.
//
// All methods are safe for concurrent use. Mutations are serialized by an
// internal mutex that is never held across collaborator I/O.
type Orchestrator struct {
	config    Config
	provider  IdentityProvider
	sessions  *session.Store
	routes    *routeStore
	profiles  *profileResolver
	gate      *agreementGate
	agreement AgreementService
	audit     *auditDispatcher
	metrics   *Metrics
	clock     func() time.Time

	// initFlight collapses concurrent Initialize calls into one underlying
	// run; late callers share the first caller's result.
	initFlight singleflight.Group

	// notifyMu serializes state commit together with subscriber fan-out, so
	// snapshots are delivered in exactly the order they are committed. It is
	// always acquired before mu, never the other way around.
	notifyMu sync.Mutex

	mu            sync.Mutex
	state         AuthState
	epoch         uint64
	firstInitDone bool
	subscribers   map[uint64]func(AuthState)
	nextSubID     uint64

	closed    atomic.Bool
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Snapshot returns a copy of the current auth state.
func (o *Orchestrator) Snapshot() AuthState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyState(o.state)
}

// Subscribe registers a listener invoked synchronously with a full state
// snapshot on every publish. The returned function unregisters it; tie that
// to the consumer's lifetime to avoid leaked listeners.
func (o *Orchestrator) Subscribe(fn func(AuthState)) func() {
	o.mu.Lock()
	id := o.nextSubID
	o.nextSubID++
	o.subscribers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subscribers, id)
		o.mu.Unlock()
	}
}

// Close stops the provider event loop and the audit dispatcher. Operations
// invoked afterwards return [ErrClosed].
func (o *Orchestrator) Close() {
	if o == nil {
		return
	}
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		if o.runCancel != nil {
			o.runCancel()
		}
		o.wg.Wait()
		o.audit.close()
	})
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (o *Orchestrator) AuditDropped() uint64 {
	if o == nil {
		return 0
	}
	return o.audit.droppedCount()
}

// MetricsSnapshot copies the orchestrator's counter table.
func (o *Orchestrator) MetricsSnapshot() MetricsSnapshot {
	if o == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return o.metrics.Snapshot()
}

// currentEpoch reads the discard-fence for in-flight operations. An
// operation captures the epoch when it starts and publishes only if it is
// still current; SignOut advances it so stale results are dropped.
func (o *Orchestrator) currentEpoch() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.epoch
}

// publish replaces the state wholesale and synchronously notifies every
// subscriber with a snapshot. Returns false without publishing when the
// producing operation's epoch is stale.
func (o *Orchestrator) publish(epoch uint64, next AuthState) bool {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	return o.commitAndNotify(epoch, func(s *AuthState) { *s = next })
}

// patchState applies fn to the live state under the epoch fence and publishes
// the result. fn runs with the state lock held, so concurrent targeted
// patches merge instead of the later one erasing the earlier; fn must not
// call any method that takes the state lock.
func (o *Orchestrator) patchState(epoch uint64, fn func(*AuthState)) bool {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	return o.commitAndNotify(epoch, fn)
}

// commitAndNotify is the single read-modify-write of o.state plus the
// subscriber fan-out. Callers hold notifyMu; o.mu is held only for the
// commit, so a listener can reenter Snapshot or Subscribe without
// deadlocking. Each listener gets its own copy.
func (o *Orchestrator) commitAndNotify(epoch uint64, fn func(*AuthState)) bool {
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		o.metrics.Inc(MetricStaleResultDiscarded)
		o.audit.emit(context.Background(), AuditEvent{
			EventType: auditEventStaleDiscard,
			Success:   false,
		})
		return false
	}
	next := copyState(o.state)
	fn(&next)
	o.state = next
	listeners := make([]func(AuthState), 0, len(o.subscribers))
	for _, sub := range o.subscribers {
		listeners = append(listeners, sub)
	}
	o.mu.Unlock()

	for _, notify := range listeners {
		notify(copyState(next))
	}
	return true
}

func copyState(s AuthState) AuthState {
	out := s
	if s.User != nil {
		user := *s.User
		out.User = &user
	}
	if s.Profile != nil {
		profile := *s.Profile
		out.Profile = &profile
	}
	if s.Agreement != nil {
		agreement := *s.Agreement
		out.Agreement = &agreement
	}
	return out
}

// run consumes the identity provider's event stream so provider-driven
// sign-ins, token refreshes, and sign-outs flow through the same session
// processing path as Initialize and SignIn.
func (o *Orchestrator) run(events <-chan ProviderEvent) {
	defer o.wg.Done()

	for {
		select {
		case <-o.runCtx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			o.handleProviderEvent(event)
		}
	}
}

func (o *Orchestrator) handleProviderEvent(event ProviderEvent) {
	ctx := o.runCtx

	switch event.Type {
	case EventSignedIn, EventTokenRefreshed:
		if event.Session == nil {
			return
		}
		epoch := o.currentEpoch()
		sess := *event.Session
		enrichToken(&sess)
		if err := o.sessions.Set(ctx, &sess); err != nil {
			// Persistence is best effort here; the in-memory state still
			// reflects the provider's session.
			o.audit.emit(ctx, AuditEvent{
				EventType: auditEventSignIn,
				UserID:    sess.User.ID,
				Success:   false,
				Error:     err.Error(),
			})
		}
		o.processSession(ctx, epoch, &sess)
	case EventSignedOut:
		o.handleRemoteSignOut(ctx)
	}
}

// handleRemoteSignOut mirrors a provider-side session termination locally.
func (o *Orchestrator) handleRemoteSignOut(ctx context.Context) {
	o.mu.Lock()
	o.epoch++
	epoch := o.epoch
	o.mu.Unlock()

	_ = o.sessions.Clear(ctx)
	_ = o.routes.clear(ctx)
	o.profiles.purge()

	o.metrics.Inc(MetricSignOut)
	o.audit.emit(ctx, AuditEvent{
		EventType: auditEventRemoteSignOut,
		Success:   true,
	})
	o.publish(epoch, AuthState{
		Phase:       PhaseUnauthenticated,
		Initialized: true,
	})
}

// RememberRoute stores the path a user was trying to reach before being
// diverted to authenticate. It is restored at most once after login, and
// never ahead of the agreement or onboarding gates. Auth pages themselves
// are stored but never restored.
func (o *Orchestrator) RememberRoute(ctx context.Context, path string) error {
	if o == nil {
		return ErrNotReady
	}
	if o.closed.Load() {
		return ErrClosed
	}
	if path == "" {
		return o.routes.clear(ctx)
	}
	return o.routes.set(ctx, path)
}

// ResolveRedirect computes the single next navigation target for the current
// state: the agreement page, the onboarding page, a restored intended route,
// or the landing page. An empty string means "stay put" (the caller shows
// login or current content).
func (o *Orchestrator) ResolveRedirect(ctx context.Context) string {
	state := o.Snapshot()
	intended := o.routes.peek(ctx)

	path, decision, consumed := resolveRedirect(state, intended, o.config.Routes)
	if consumed {
		_ = o.routes.clear(ctx)
	}

	switch decision {
	case redirectAgreement:
		o.metrics.Inc(MetricRedirectAgreement)
	case redirectOnboarding:
		o.metrics.Inc(MetricRedirectOnboarding)
	case redirectIntended:
		o.metrics.Inc(MetricRedirectIntended)
	case redirectHome:
		o.metrics.Inc(MetricRedirectHome)
	}
	return path
}
