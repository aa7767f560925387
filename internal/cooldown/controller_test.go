package cooldown

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, sequence []int) (*Controller, *fakeClock) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cooldowns.json")
	durations := Durations{ConnectionResetMS: 5_000, TimeoutMS: 10_000, DNSFailureMS: 15_000}
	c := NewController(path, testLogger(), durations, sequence)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c.now = clock.Now
	return c, clock
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func TestEndpointForURL(t *testing.T) {
	cases := []struct {
		url  string
		want Endpoint
	}{
		{"https://api.steampowered.com/ISteamUser/GetFriendList/v1/", EndpointFriends},
		{"https://steamcommunity.com/inventory/123/730/2", EndpointInventory},
		{"https://api.steampowered.com/IPlayerService/GetSteamLevel/v1/", EndpointSteamLevel},
		{"https://api.steampowered.com/.../GetAnimatedAvatar/", EndpointAnimatedAvatar},
		{"https://api.steampowered.com/.../GetAvatarFrame/", EndpointAvatarFrame},
		{"https://api.steampowered.com/.../GetMiniProfileBackground/", EndpointMiniProfileBackground},
		{"https://api.steampowered.com/.../GetProfileBackground/", EndpointProfileBackground},
		{"https://example.com/unknown", EndpointOther},
	}
	for _, tc := range cases {
		if got := EndpointForURL(tc.url); got != tc.want {
			t.Errorf("EndpointForURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestMarkCooldown_RateLimitEscalatesAcrossExpiry(t *testing.T) {
	c, clock := newTestController(t, []int{1, 2, 4})

	c.MarkCooldown(EndpointFriends, ErrorKindRateLimit, "429")
	if c.backoffLevels[EndpointFriends] != 0 {
		t.Fatalf("level after 1st 429 = %d, want 0", c.backoffLevels[EndpointFriends])
	}

	clock.Advance(61 * time.Second)
	if removed := c.CleanupExpired(); removed != 1 {
		t.Fatalf("CleanupExpired removed %d, want 1", removed)
	}
	if _, stillTracked := c.backoffLevels[EndpointFriends]; !stillTracked {
		t.Fatal("backoff level must survive cooldown expiry")
	}

	c.MarkCooldown(EndpointFriends, ErrorKindRateLimit, "429")
	if c.backoffLevels[EndpointFriends] != 1 {
		t.Fatalf("level after 2nd 429 = %d, want 1", c.backoffLevels[EndpointFriends])
	}

	clock.Advance(121 * time.Second)
	c.CleanupExpired()
	c.MarkCooldown(EndpointFriends, ErrorKindRateLimit, "429")
	if c.backoffLevels[EndpointFriends] != 2 {
		t.Fatalf("level after 3rd 429 = %d, want 2", c.backoffLevels[EndpointFriends])
	}

	clock.Advance(241 * time.Second)
	c.CleanupExpired()
	c.MarkCooldown(EndpointFriends, ErrorKindRateLimit, "429")
	if c.backoffLevels[EndpointFriends] != 2 {
		t.Fatalf("level after 4th 429 = %d, want 2 (capped at last index)", c.backoffLevels[EndpointFriends])
	}
}

func TestMarkCooldown_FixedDurationKinds(t *testing.T) {
	c, clock := newTestController(t, nil)

	c.MarkCooldown(EndpointInventory, ErrorKindConnectionError, "ECONNRESET")
	if c.IsEndpointAvailable(EndpointInventory) {
		t.Fatal("endpoint should be in cooldown immediately after MarkCooldown")
	}

	clock.Advance(4999 * time.Millisecond)
	if c.IsEndpointAvailable(EndpointInventory) {
		t.Fatal("endpoint should still be in cooldown just before deadline")
	}

	clock.Advance(2 * time.Millisecond)
	if !c.IsEndpointAvailable(EndpointInventory) {
		t.Fatal("endpoint should be available once the deadline passes")
	}
}

func TestResetOnSuccess_ClearsOnly429(t *testing.T) {
	c, _ := newTestController(t, []int{1, 2, 4})

	c.MarkCooldown(EndpointFriends, ErrorKindRateLimit, "429")
	c.MarkCooldown(EndpointInventory, ErrorKindConnectionError, "ECONNRESET")

	c.ResetOnSuccess(EndpointFriends)
	if _, ok := c.backoffLevels[EndpointFriends]; ok {
		t.Fatal("ResetOnSuccess should clear the backoff level for a 429 cooldown")
	}
	if !c.IsEndpointAvailable(EndpointFriends) {
		t.Fatal("ResetOnSuccess should clear the 429 cooldown record")
	}

	c.ResetOnSuccess(EndpointInventory)
	if c.IsEndpointAvailable(EndpointInventory) {
		t.Fatal("ResetOnSuccess must not clear a non-429 cooldown")
	}
}

func TestHandleRequestError_Classification(t *testing.T) {
	c, _ := newTestController(t, nil)

	cases := []struct {
		err      error
		wantKind ErrorKind
		wantOK   bool
	}{
		{errors.New("ENOTFOUND api.steampowered.com"), ErrorKindDNSFailure, true},
		{errors.New("request timeout after 15s"), ErrorKindTimeout, true},
		{errors.New("ECONNRESET"), ErrorKindConnectionError, true},
		{errors.New("socket hang up"), ErrorKindConnectionError, true},
		{errors.New("tls: certificate has expired"), ErrorKindConnectionError, true},
		{errors.New("unexpected end of JSON input"), "", false},
	}
	for _, tc := range cases {
		outcome := c.HandleRequestError(tc.err, "https://api.steampowered.com/ISteamUser/GetFriendList/v1/")
		if outcome.Cooldownworthy != tc.wantOK {
			t.Errorf("HandleRequestError(%v) cooldownworthy = %v, want %v", tc.err, outcome.Cooldownworthy, tc.wantOK)
		}
		if tc.wantOK && outcome.Kind != tc.wantKind {
			t.Errorf("HandleRequestError(%v) kind = %v, want %v", tc.err, outcome.Kind, tc.wantKind)
		}
	}
}

func TestAnyEndpointAvailable(t *testing.T) {
	c, _ := newTestController(t, nil)

	if !c.AnyEndpointAvailable() {
		t.Fatal("fresh controller should report at least one available endpoint")
	}

	for _, endpoint := range TrackedEndpoints {
		c.MarkCooldown(endpoint, ErrorKindConnectionError, "down")
	}
	if c.AnyEndpointAvailable() {
		t.Fatal("AnyEndpointAvailable should be false when every tracked endpoint is cooling down")
	}
}

func TestConnectionStatus(t *testing.T) {
	c, _ := newTestController(t, nil)
	c.MarkCooldown(EndpointFriends, ErrorKindTimeout, "timeout")

	report := c.ConnectionStatus()
	if report.Summary.TotalConnections != len(TrackedEndpoints) {
		t.Fatalf("TotalConnections = %d, want %d", report.Summary.TotalConnections, len(TrackedEndpoints))
	}
	if report.Summary.AvailableConnections != len(TrackedEndpoints)-1 {
		t.Fatalf("AvailableConnections = %d, want %d", report.Summary.AvailableConnections, len(TrackedEndpoints)-1)
	}

	var found bool
	for _, e := range report.Endpoints {
		if e.Endpoint == EndpointFriends {
			found = true
			if e.Available {
				t.Fatal("friends endpoint should be reported unavailable")
			}
			if e.Reason != ErrorKindTimeout {
				t.Errorf("Reason = %v, want timeout", e.Reason)
			}
		}
	}
	if !found {
		t.Fatal("friends endpoint missing from ConnectionStatus report")
	}
}

func TestMarkCooldown_PersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cooldowns.json")
	logger := testLogger()
	durations := Durations{ConnectionResetMS: 5_000, TimeoutMS: 10_000, DNSFailureMS: 15_000}

	c := NewController(path, logger, durations, []int{1, 2, 4})
	c.MarkCooldown(EndpointFriends, ErrorKindRateLimit, "429")

	reloaded := NewController(path, logger, durations, []int{1, 2, 4})
	if reloaded.IsEndpointAvailable(EndpointFriends) {
		t.Fatal("reloaded controller should see the persisted cooldown")
	}
	if reloaded.backoffLevels[EndpointFriends] != 0 {
		t.Fatalf("reloaded backoff level = %d, want 0 (rehydrated from persisted 429 record)",
			reloaded.backoffLevels[EndpointFriends])
	}
}

func TestNewController_DefaultsInvalidSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cooldowns.json")
	c := NewController(path, testLogger(), Durations{}, nil)
	if len(c.sequence) != len(DefaultBackoffSequenceMinutes) {
		t.Fatalf("sequence length = %d, want %d", len(c.sequence), len(DefaultBackoffSequenceMinutes))
	}
}
