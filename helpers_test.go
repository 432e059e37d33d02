package authflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/squadkit/authflow/session"
)

type mockIdentityProvider struct {
	mu            sync.Mutex
	signInSession *session.Session
	signInErr     error
	validateErr   error
	validateGate  chan struct{}
	signOutErr    error
	events        chan ProviderEvent

	validateCalls int
	signInCalls   int
	signOutCalls  int
}

func (p *mockIdentityProvider) SignIn(_ context.Context, _ Credentials) (*session.Session, error) {
	p.mu.Lock()
	p.signInCalls++
	sess, err := p.signInSession, p.signInErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	out := *sess
	return &out, nil
}

func (p *mockIdentityProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOutCalls++
	return p.signOutErr
}

func (p *mockIdentityProvider) Validate(ctx context.Context, sess *session.Session) (*session.Session, error) {
	p.mu.Lock()
	p.validateCalls++
	gate := p.validateGate
	err := p.validateErr
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := *sess
	return &out, nil
}

func (p *mockIdentityProvider) Events() <-chan ProviderEvent {
	if p.events == nil {
		return nil
	}
	return p.events
}

func (p *mockIdentityProvider) calls() (validate, signIn, signOut int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.validateCalls, p.signInCalls, p.signOutCalls
}

type mockProfileService struct {
	mu       sync.Mutex
	profiles map[string]*Profile
	legacy   map[string]*Profile

	primaryErr error
	legacyErr  error
	createErr  error

	getCalls    int
	legacyCalls int
	createCalls int
}

func newMockProfileService() *mockProfileService {
	return &mockProfileService{
		profiles: map[string]*Profile{},
		legacy:   map[string]*Profile{},
	}
}

func (s *mockProfileService) GetProfile(_ context.Context, userID string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.primaryErr != nil {
		return nil, s.primaryErr
	}
	if p, ok := s.profiles[userID]; ok {
		out := *p
		return &out, nil
	}
	return nil, ErrProfileNotFound
}

func (s *mockProfileService) GetLegacyProfile(_ context.Context, userID string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacyCalls++
	if s.legacyErr != nil {
		return nil, s.legacyErr
	}
	if p, ok := s.legacy[userID]; ok {
		out := *p
		return &out, nil
	}
	return nil, ErrProfileNotFound
}

func (s *mockProfileService) CreateProfile(_ context.Context, input CreateProfileInput) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return nil, s.createErr
	}
	if _, ok := s.profiles[input.ID]; ok {
		return nil, ErrProfileExists
	}
	p := &Profile{
		ID:        input.ID,
		Name:      input.Name,
		Email:     input.Email,
		Role:      "pending",
		CreatedAt: time.Now(),
	}
	s.profiles[input.ID] = p
	out := *p
	return &out, nil
}

func (s *mockProfileService) put(p *Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.profiles[p.ID] = &copied
}

func (s *mockProfileService) counts() (get, legacy, create int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls, s.legacyCalls, s.createCalls
}

type mockAgreementService struct {
	mu          sync.Mutex
	records     map[string]*AgreementRecord
	latestErr   error
	submitErr   error
	submissions []AgreementAcceptance
}

func newMockAgreementService() *mockAgreementService {
	return &mockAgreementService{records: map[string]*AgreementRecord{}}
}

func agreementKey(userID, role string) string {
	return userID + "|" + role
}

func (s *mockAgreementService) LatestAgreement(_ context.Context, userID, role string) (*AgreementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	if r, ok := s.records[agreementKey(userID, role)]; ok {
		out := *r
		return &out, nil
	}
	return nil, ErrAgreementNotFound
}

func (s *mockAgreementService) SubmitAcceptance(_ context.Context, acceptance AgreementAcceptance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return s.submitErr
	}
	s.submissions = append(s.submissions, acceptance)
	return nil
}

func (s *mockAgreementService) putRecord(r *AgreementRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *r
	s.records[agreementKey(r.UserID, r.Role)] = &copied
}

func (s *mockAgreementService) submitted() []AgreementAcceptance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AgreementAcceptance(nil), s.submissions...)
}

type testEnv struct {
	o          *Orchestrator
	provider   *mockIdentityProvider
	profiles   *mockProfileService
	agreements *mockAgreementService
	kv         session.KV
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Agreement.RequiredVersions = map[string]int{"coach": 2}
	cfg.Init.FirstLoadTimeout = 0
	cfg.Audit.Enabled = false
	return cfg
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	env := &testEnv{
		provider:   &mockIdentityProvider{},
		profiles:   newMockProfileService(),
		agreements: newMockAgreementService(),
		kv:         session.NewMemoryKV(),
	}

	o, err := New().
		WithConfig(cfg).
		WithSessionKV(env.kv).
		WithIdentityProvider(env.provider).
		WithProfileService(env.profiles).
		WithAgreementService(env.agreements).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(o.Close)

	env.o = o
	return env
}

// newTestEnvWithEvents is newTestEnv with a provider event channel attached.
func newTestEnvWithEvents(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		provider:   &mockIdentityProvider{events: make(chan ProviderEvent, 4)},
		profiles:   newMockProfileService(),
		agreements: newMockAgreementService(),
		kv:         session.NewMemoryKV(),
	}

	o, err := New().
		WithConfig(testConfig()).
		WithSessionKV(env.kv).
		WithIdentityProvider(env.provider).
		WithProfileService(env.profiles).
		WithAgreementService(env.agreements).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(o.Close)

	env.o = o
	return env
}

func testSession(userID string) *session.Session {
	return &session.Session{
		User: session.User{
			ID:    userID,
			Email: userID + "@example.com",
			Name:  "Alex",
			Role:  "coach",
		},
		Token: session.TokenInfo{
			AccessToken: "opaque-" + userID,
			IssuedAt:    time.Now().Unix(),
			ExpiresAt:   time.Now().Add(time.Hour).Unix(),
			UserID:      userID,
		},
	}
}

// seedAuthenticated persists a session, registers a matching profile with an
// accepted agreement, and runs Initialize to land in authenticated.
func seedAuthenticated(t *testing.T, env *testEnv, userID string) AuthState {
	t.Helper()

	sess := testSession(userID)
	if err := env.o.sessions.Set(context.Background(), sess); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	env.profiles.put(&Profile{
		ID:    userID,
		Name:  "Alex",
		Email: sess.User.Email,
		Role:  "coach",
	})
	env.agreements.putRecord(&AgreementRecord{
		UserID:  userID,
		Role:    "coach",
		Version: 2,
		Status:  AgreementStatusAccepted,
	})

	state, err := env.o.Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !state.Authenticated {
		t.Fatalf("expected authenticated state, got phase %s error %q", state.Phase, state.Error)
	}
	return state
}

// waitForPhase subscribes and blocks until the orchestrator publishes the
// wanted phase, or fails the test after a deadline.
func waitForPhase(t *testing.T, o *Orchestrator, want AuthPhase) AuthState {
	t.Helper()

	if snap := o.Snapshot(); snap.Phase == want {
		return snap
	}

	ch := make(chan AuthState, 16)
	unsubscribe := o.Subscribe(func(s AuthState) {
		select {
		case ch <- s:
		default:
		}
	})
	defer unsubscribe()

	if snap := o.Snapshot(); snap.Phase == want {
		return snap
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.Phase == want {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for phase %s, current %s", want, o.Snapshot().Phase)
			return AuthState{}
		}
	}
}
