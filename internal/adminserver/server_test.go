package adminserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/checkstore"
	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/cooldown"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	stats     checkstore.Stats
	deferred  checkstore.DeferredStats
	checks    []checkstore.DeferredCheck
	isHealthy bool
}

func (f fakeStore) Stats() checkstore.Stats                           { return f.stats }
func (f fakeStore) DeferredStats() checkstore.DeferredStats           { return f.deferred }
func (f fakeStore) DeferredChecks() []checkstore.DeferredCheck        { return f.checks }
func (f fakeStore) IsHealthy(cooldown checkstore.CooldownHealth) bool { return f.isHealthy }

type fakeCooldown struct {
	report    cooldown.ConnectionStatusReport
	available bool
}

func (f fakeCooldown) ConnectionStatus() cooldown.ConnectionStatusReport { return f.report }
func (f fakeCooldown) AnyEndpointAvailable() bool                       { return f.available }

func TestHandleHealthz(t *testing.T) {
	srv := New(fakeStore{isHealthy: true}, fakeCooldown{available: true}, prometheus.NewRegistry(), testLogger())
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if !body["healthy"] {
		t.Fatal("expected healthy=true")
	}
}

func TestHandleHealthz_Unhealthy(t *testing.T) {
	srv := New(fakeStore{isHealthy: false}, fakeCooldown{}, prometheus.NewRegistry(), testLogger())
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestHandleStats(t *testing.T) {
	stats := checkstore.Stats{TotalProfiles: 3}
	srv := New(fakeStore{stats: stats}, fakeCooldown{}, prometheus.NewRegistry(), testLogger())
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var got checkstore.Stats
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if got.TotalProfiles != 3 {
		t.Fatalf("TotalProfiles = %d, want 3", got.TotalProfiles)
	}
}

func TestHandleDeferred(t *testing.T) {
	deferred := checkstore.DeferredStats{TotalDeferred: 2}
	checks := []checkstore.DeferredCheck{{SteamID: "A", CheckName: checkstore.CheckFriends}}
	srv := New(fakeStore{deferred: deferred, checks: checks}, fakeCooldown{}, prometheus.NewRegistry(), testLogger())
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/deferred", nil))

	var body struct {
		Summary checkstore.DeferredStats   `json:"summary"`
		Checks  []checkstore.DeferredCheck `json:"checks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Summary.TotalDeferred != 2 || len(body.Checks) != 1 {
		t.Fatalf("body = %+v", body)
	}
}

func TestHandleCooldowns(t *testing.T) {
	report := cooldown.ConnectionStatusReport{Summary: cooldown.ConnectionSummary{TotalConnections: 7}}
	srv := New(fakeStore{}, fakeCooldown{report: report}, prometheus.NewRegistry(), testLogger())
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cooldowns", nil))

	var got cooldown.ConnectionStatusReport
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if got.Summary.TotalConnections != 7 {
		t.Fatalf("TotalConnections = %d, want 7", got.Summary.TotalConnections)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	srv := New(fakeStore{}, fakeCooldown{}, registry, testLogger())
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
