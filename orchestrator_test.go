package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestSubscribeNotifiesSynchronously(t *testing.T) {
	env := newTestEnv(t, testConfig())

	var phases []AuthPhase
	unsubscribe := env.o.Subscribe(func(s AuthState) {
		phases = append(phases, s.Phase)
	})
	defer unsubscribe()

	seedAuthenticated(t, env, "u1")

	// Initialize publishes at least the initializing and authenticated
	// transitions, in order, before it returns.
	if len(phases) < 2 {
		t.Fatalf("expected at least 2 notifications, got %v", phases)
	}
	if phases[0] != PhaseInitializing {
		t.Fatalf("first notification should be initializing, got %s", phases[0])
	}
	if phases[len(phases)-1] != PhaseAuthenticated {
		t.Fatalf("last notification should be authenticated, got %s", phases[len(phases)-1])
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	env := newTestEnv(t, testConfig())

	count := 0
	unsubscribe := env.o.Subscribe(func(AuthState) { count++ })
	unsubscribe()

	seedAuthenticated(t, env, "u1")
	if count != 0 {
		t.Fatalf("unsubscribed listener received %d notifications", count)
	}
}

func TestSubscriberStateIsIsolatedCopy(t *testing.T) {
	env := newTestEnv(t, testConfig())

	var received AuthState
	unsubscribe := env.o.Subscribe(func(s AuthState) { received = s })
	defer unsubscribe()

	seedAuthenticated(t, env, "u1")

	// A subscriber mutating its snapshot must not leak into the
	// orchestrator's state or into later snapshots.
	received.Profile.Name = "mutated"
	received.User.Email = "mutated@example.com"

	state := env.o.Snapshot()
	if state.Profile.Name == "mutated" || state.User.Email == "mutated@example.com" {
		t.Fatal("subscriber mutation leaked into orchestrator state")
	}
}

func TestSnapshotIsIsolatedCopy(t *testing.T) {
	env := newTestEnv(t, testConfig())
	seedAuthenticated(t, env, "u1")

	first := env.o.Snapshot()
	first.Profile.Role = "mutated"

	second := env.o.Snapshot()
	if second.Profile.Role != "coach" {
		t.Fatalf("snapshot mutation leaked, role %q", second.Profile.Role)
	}
}

func TestSubscriberCanCallBackIntoOrchestrator(t *testing.T) {
	env := newTestEnv(t, testConfig())

	// Listeners are invoked outside the state lock, so re-entrant calls
	// must not deadlock.
	unsubscribe := env.o.Subscribe(func(s AuthState) {
		_ = env.o.Snapshot()
	})
	defer unsubscribe()

	seedAuthenticated(t, env, "u1")
}

func TestNotificationsArriveInCommitOrder(t *testing.T) {
	env := newTestEnv(t, testConfig())
	seedAuthenticated(t, env, "u1")

	// Delivery is serialized with the commit, so after every concurrent
	// publisher has returned, the last snapshot a subscriber holds must be
	// the state the orchestrator settled on — never a stale predecessor.
	var mu sync.Mutex
	var last AuthState
	unsubscribe := env.o.Subscribe(func(s AuthState) {
		mu.Lock()
		last = s
		mu.Unlock()
	})
	defer unsubscribe()

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("Name-%d", i)
			if err := env.o.UpdateProfile(context.Background(), ProfilePatch{Name: strPtr(name)}); err != nil {
				t.Errorf("UpdateProfile failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	final := env.o.Snapshot()
	mu.Lock()
	got := last
	mu.Unlock()
	if got.Profile == nil || got.Profile.Name != final.Profile.Name {
		t.Fatalf("subscriber left holding a stale snapshot: last notified %+v, final %+v",
			got.Profile, final.Profile)
	}
}

func TestOperationsAfterCloseReturnErrClosed(t *testing.T) {
	env := newTestEnv(t, testConfig())
	seedAuthenticated(t, env, "u1")
	env.o.Close()

	ctx := context.Background()
	if _, err := env.o.Initialize(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Initialize after Close: expected ErrClosed, got %v", err)
	}
	if _, err := env.o.SignIn(ctx, Credentials{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("SignIn after Close: expected ErrClosed, got %v", err)
	}
	if err := env.o.SignOut(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("SignOut after Close: expected ErrClosed, got %v", err)
	}
	if err := env.o.AcceptAgreement(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("AcceptAgreement after Close: expected ErrClosed, got %v", err)
	}
	if err := env.o.UpdateProfile(ctx, ProfilePatch{Name: strPtr("x")}); !errors.Is(err, ErrClosed) {
		t.Fatalf("UpdateProfile after Close: expected ErrClosed, got %v", err)
	}
	if err := env.o.RefreshProfile(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("RefreshProfile after Close: expected ErrClosed, got %v", err)
	}
	if err := env.o.RememberRoute(ctx, "/teams/42"); !errors.Is(err, ErrClosed) {
		t.Fatalf("RememberRoute after Close: expected ErrClosed, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	env := newTestEnvWithEvents(t)
	if _, err := env.o.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	env.o.Close()
	env.o.Close()
}
