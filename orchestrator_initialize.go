package authflow

import (
	"context"

	"github.com/squadkit/authflow/session"
)

// Initialize establishes the auth state from the persisted session and the
// identity provider. It is idempotent under concurrency: callers that arrive
// while a run is in flight share its result instead of triggering duplicate
// provider or profile traffic.
//
// Outcomes: a validated session with a resolvable profile publishes
// authenticated; no session, or a session the provider rejects, publishes
// unauthenticated (an expected outcome, never an error); an unresolvable
// profile publishes the error state and returns the underlying error.
func (o *Orchestrator) Initialize(ctx context.Context) (AuthState, error) {
	if o == nil {
		return AuthState{}, ErrNotReady
	}
	if o.closed.Load() {
		return AuthState{}, ErrClosed
	}

	ran := false
	v, err, _ := o.initFlight.Do("initialize", func() (interface{}, error) {
		ran = true
		return o.initialize(ctx)
	})
	// Only callers that joined someone else's run count as deduped; the
	// caller whose closure executed is the run itself.
	if !ran {
		o.metrics.Inc(MetricInitializeDeduped)
	}
	state, _ := v.(AuthState)
	return state, err
}

func (o *Orchestrator) initialize(ctx context.Context) (AuthState, error) {
	epoch := o.currentEpoch()

	o.patchState(epoch, func(s *AuthState) {
		s.Phase = PhaseInitializing
		s.Loading = true
		s.Error = ""
	})

	// The bounded timeout applies only to the first-ever initialization;
	// routine re-initialization on navigation is never raced against it.
	first := o.claimFirstInit()
	runCtx := ctx
	if first && o.config.Init.FirstLoadTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.config.Init.FirstLoadTimeout)
		defer cancel()
	}

	stored := o.sessions.Get(runCtx)
	if stored == nil {
		// A nil read caused by the deadline is a slow store, not an absent
		// session; it gets the recovery path, not unauthenticated.
		if timedOut(runCtx, ctx) {
			return o.recoverFromStoreTimeout(ctx, epoch), nil
		}
		return o.publishUnauthenticated(ctx, epoch, nil), nil
	}

	validated, err := o.provider.Validate(runCtx, stored)
	if err != nil {
		if timedOut(runCtx, ctx) {
			return o.recoverFromTimeout(ctx, epoch, stored), nil
		}
		// The provider is authoritative: a rejected session is stale, not a
		// defect. Clear it and land in unauthenticated.
		_ = o.sessions.Clear(ctx)
		o.profiles.purge()
		return o.publishUnauthenticated(ctx, epoch, err), nil
	}

	// A sign-out that landed while validation was in flight owns the state
	// now; do not re-persist the session it cleared.
	if o.currentEpoch() != epoch {
		o.metrics.Inc(MetricStaleResultDiscarded)
		return o.Snapshot(), nil
	}

	sess := *validated
	enrichToken(&sess)
	if persistErr := o.sessions.Set(ctx, &sess); persistErr != nil {
		o.audit.emit(ctx, AuditEvent{
			EventType: auditEventInitialize,
			UserID:    sess.User.ID,
			Success:   false,
			Error:     persistErr.Error(),
			Metadata:  map[string]string{"step": "persist_session"},
		})
	}

	state, procErr := o.processSession(runCtx, epoch, &sess)
	if procErr != nil {
		if timedOut(runCtx, ctx) {
			return o.recoverFromTimeout(ctx, epoch, &sess), nil
		}
		o.metrics.Inc(MetricInitializeError)
		return state, procErr
	}

	o.metrics.Inc(MetricInitializeAuthenticated)
	o.audit.emit(ctx, AuditEvent{
		EventType: auditEventInitialize,
		UserID:    sess.User.ID,
		Phase:     state.Phase.String(),
		Success:   true,
	})
	return state, nil
}

// processSession is the single code path that turns a provider-trusted
// session into a published state, regardless of whether it arrived through
// Initialize, SignIn, or the provider event stream.
func (o *Orchestrator) processSession(ctx context.Context, epoch uint64, sess *session.Session) (AuthState, error) {
	if o.currentEpoch() != epoch {
		o.metrics.Inc(MetricStaleResultDiscarded)
		return o.Snapshot(), nil
	}

	profile, created, err := o.profiles.resolve(ctx, sess.User)
	if err != nil {
		// Authentication is never granted without a profile.
		state := AuthState{
			Phase:       PhaseError,
			Initialized: true,
			Error:       "your profile could not be loaded or created, please try again",
		}
		o.audit.emit(ctx, AuditEvent{
			EventType: auditEventInitialize,
			UserID:    sess.User.ID,
			Phase:     state.Phase.String(),
			Success:   false,
			Error:     err.Error(),
		})
		o.publish(epoch, state)
		return copyState(state), err
	}
	if created {
		o.audit.emit(ctx, AuditEvent{
			EventType: auditEventProfileCreated,
			UserID:    profile.ID,
			Success:   true,
			Metadata:  map[string]string{"role": profile.Role},
		})
	}

	agreement := o.gate.evaluate(ctx, profile)

	user := sess.User
	state := AuthState{
		Phase:         PhaseAuthenticated,
		Initialized:   true,
		Authenticated: true,
		User:          &user,
		Profile:       profile,
		Agreement:     &agreement,
	}
	o.publish(epoch, state)
	return copyState(state), nil
}

func (o *Orchestrator) publishUnauthenticated(ctx context.Context, epoch uint64, cause error) AuthState {
	state := AuthState{
		Phase:       PhaseUnauthenticated,
		Initialized: true,
	}
	o.metrics.Inc(MetricInitializeUnauthenticated)

	event := AuditEvent{
		EventType: auditEventInitialize,
		Phase:     state.Phase.String(),
		Success:   true,
	}
	if cause != nil {
		event.Metadata = map[string]string{"cause": cause.Error()}
	}
	o.audit.emit(ctx, event)

	o.publish(epoch, state)
	return state
}

// recoverFromTimeout handles a first-load deadline expiry: rather than
// failing the user out, trust the locally persisted session, surface any
// cached profile immediately, and retry the full profile pipeline in the
// background.
func (o *Orchestrator) recoverFromTimeout(ctx context.Context, epoch uint64, sess *session.Session) AuthState {
	o.metrics.Inc(MetricInitializeTimeoutRecovery)
	o.audit.emit(ctx, AuditEvent{
		EventType: auditEventInitializeTimeout,
		UserID:    sess.User.ID,
		Success:   true,
	})

	user := sess.User
	state := AuthState{
		Phase:       PhaseInitializing,
		Initialized: true,
		Loading:     true,
		User:        &user,
	}
	if cached, ok := o.profiles.cached(sess.User.ID); ok {
		state.Phase = PhaseAuthenticated
		state.Loading = false
		state.Authenticated = true
		state.Profile = cached
	}
	o.publish(epoch, state)

	retry := *sess
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, _ = o.processSession(o.runCtx, epoch, &retry)
	}()

	return copyState(state)
}

// recoverFromStoreTimeout handles the session read itself outrunning the
// first-load budget. Nothing is known about the session yet, so the loading
// state stays published while the read and the rest of the pipeline finish
// off the deadline in the background.
func (o *Orchestrator) recoverFromStoreTimeout(ctx context.Context, epoch uint64) AuthState {
	o.metrics.Inc(MetricInitializeTimeoutRecovery)
	o.audit.emit(ctx, AuditEvent{
		EventType: auditEventInitializeTimeout,
		Success:   true,
		Metadata:  map[string]string{"step": "session_read"},
	})

	state := AuthState{
		Phase:       PhaseInitializing,
		Initialized: true,
		Loading:     true,
	}
	o.publish(epoch, state)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		sess := o.sessions.Get(o.runCtx)
		if sess == nil {
			o.publishUnauthenticated(o.runCtx, epoch, nil)
			return
		}
		_, _ = o.processSession(o.runCtx, epoch, sess)
	}()

	return copyState(state)
}

func (o *Orchestrator) claimFirstInit() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.firstInitDone {
		return false
	}
	o.firstInitDone = true
	return true
}

// timedOut reports whether runCtx expired on its own, as opposed to the
// caller's ctx being canceled.
func timedOut(runCtx, ctx context.Context) bool {
	return runCtx.Err() != nil && ctx.Err() == nil
}
