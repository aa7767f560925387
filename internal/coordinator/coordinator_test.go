package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/checkstore"
	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/cooldown"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCooldown(t *testing.T) *cooldown.Controller {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cooldowns.json")
	return cooldown.NewController(path, testLogger(),
		cooldown.Durations{ConnectionResetMS: 1000, TimeoutMS: 1000, DNSFailureMS: 1000}, nil)
}

func newTestStore(t *testing.T) *checkstore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "check_store.json")
	return checkstore.NewStore(path, testLogger(), nil)
}

// alwaysPassExecutor marks every check passed without error.
type alwaysPassExecutor struct{}

func (alwaysPassExecutor) Execute(context.Context, checkstore.CheckName, string) ExecutionResult {
	return ExecutionResult{Status: checkstore.StatusPassed}
}

func TestDriveChecks_AllPassedRemovesProfile(t *testing.T) {
	store := newTestStore(t)
	store.AddProfile("A", "alice", nil)

	c := New(Config{
		Store:        store,
		CooldownCtrl: newTestCooldown(t),
		Executor:     alwaysPassExecutor{},
		Logger:       testLogger(),
	})

	progressed := c.runCycle(context.Background())
	if !progressed {
		t.Fatal("runCycle should report progress when a profile is processable")
	}
	if store.Profile("A") != nil {
		t.Fatal("profile should be removed once every check passes")
	}
}

// erroringExecutor returns a classifiable connection error on every call.
type erroringExecutor struct{ err error }

func (e erroringExecutor) Execute(context.Context, checkstore.CheckName, string) ExecutionResult {
	return ExecutionResult{Err: e.err, RequestURL: "https://api.steampowered.com/ISteamUser/GetFriendList/v1/"}
}

func TestDriveChecks_CooldownErrorDefersCheck(t *testing.T) {
	store := newTestStore(t)
	store.AddProfile("A", "alice", nil)

	cd := newTestCooldown(t)
	c := New(Config{
		Store:        store,
		CooldownCtrl: cd,
		Executor:     erroringExecutor{err: errors.New("ECONNRESET")},
		Logger:       testLogger(),
	})

	c.runCycle(context.Background())

	p := store.Profile("A")
	if p == nil {
		t.Fatal("profile should still be present")
	}
	for _, check := range checkstore.CheckNames {
		if p.Checks[check] != checkstore.StatusDeferred {
			t.Errorf("check %s = %s, want deferred", check, p.Checks[check])
		}
	}
	if cd.IsEndpointAvailable(cooldown.EndpointFriends) {
		t.Fatal("friends endpoint should be in cooldown after a connection error")
	}
}

func TestRunCycle_DeferredOnlyProfileReportsNoProgress(t *testing.T) {
	store := newTestStore(t)
	store.AddProfile("A", "alice", nil)
	for _, check := range checkstore.CheckNames {
		store.UpdateCheck("A", check, checkstore.StatusDeferred)
	}

	c := New(Config{
		Store:        store,
		CooldownCtrl: newTestCooldown(t),
		Executor:     alwaysPassExecutor{},
		Logger:       testLogger(),
	})

	// Every check is deferred, not to_check: NextProcessable's second pass
	// hands the profile back, but nothing can be driven until the sweep
	// fires. runCycle must report no progress so Run sleeps instead of
	// spinning on the same profile every iteration.
	if c.runCycle(context.Background()) {
		t.Fatal("runCycle should report no progress on a deferred-only profile")
	}

	p := store.Profile("A")
	for _, check := range checkstore.CheckNames {
		if p.Checks[check] != checkstore.StatusDeferred {
			t.Errorf("check %s = %s, want still deferred (untouched)", check, p.Checks[check])
		}
	}
}

func TestRefill_NoQueueIsNoop(t *testing.T) {
	store := newTestStore(t)
	store.AddProfile("A", "existing", nil)

	cd := newTestCooldown(t)

	// A minimal in-package check against the private refill path: construct
	// a Coordinator with a nil Queue to exercise the "no queue configured"
	// branch, verifying refill is a no-op rather than panicking.
	c := New(Config{
		Store:        store,
		CooldownCtrl: cd,
		Executor:     alwaysPassExecutor{},
		Logger:       testLogger(),
	})

	if c.refill(context.Background()) {
		t.Fatal("refill with no queue configured should report no progress")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := newTestStore(t)
	cd := newTestCooldown(t)

	c := New(Config{
		Store:            store,
		CooldownCtrl:     cd,
		Executor:         alwaysPassExecutor{},
		Logger:           testLogger(),
		IdlePollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestEndpointForCheck(t *testing.T) {
	cases := []struct {
		check checkstore.CheckName
		want  cooldown.Endpoint
	}{
		{checkstore.CheckFriends, cooldown.EndpointFriends},
		{checkstore.CheckCSGOInventory, cooldown.EndpointInventory},
		{checkstore.CheckSteamLevel, cooldown.EndpointSteamLevel},
	}
	for _, tc := range cases {
		if got := endpointForCheck(tc.check); got != tc.want {
			t.Errorf("endpointForCheck(%v) = %v, want %v", tc.check, got, tc.want)
		}
	}
}
