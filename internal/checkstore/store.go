// Package checkstore implements the local queue: a JSON-file-backed store
// of Profiles, each tracking the status of a fixed battery of checks.
package checkstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/atomicfile"
)

// CooldownHealth is the narrow slice of CooldownController that IsHealthy
// needs: whether at least one endpoint can currently accept requests.
type CooldownHealth interface {
	AnyEndpointAvailable() bool
}

// Store is the persistent local queue of profiles-with-checks. It is the
// single source of truth for in-flight work on this host.
//
// Store serializes access with a mutex even though spec.md's concurrency
// model assumes a single driver goroutine: the admin HTTP server reads
// Stats/DeferredStats concurrently with the coordinator's mutations, so the
// mutex protects that reader against a torn read of the in-memory slice.
type Store struct {
	mu       sync.Mutex
	path     string
	logger   *slog.Logger
	queue    QueueClient // nil if no QueueClient is configured
	profiles []Profile   // insertion order preserved
	index    map[string]int
	now      func() time.Time
}

// NewStore creates a Store backed by path, loading any existing document.
// A missing or malformed file is treated as an empty store (and logged).
// queue may be nil if no QueueClient is configured for this run.
func NewStore(path string, logger *slog.Logger, queue QueueClient) *Store {
	s := &Store{
		path:   path,
		logger: logger,
		queue:  queue,
		index:  make(map[string]int),
		now:    time.Now,
	}
	s.profiles = s.readDocument()
	s.rebuildIndex()
	return s
}

func (s *Store) rebuildIndex() {
	s.index = make(map[string]int, len(s.profiles))
	for i, p := range s.profiles {
		s.index[p.SteamID] = i
	}
}

// readDocument loads the JSON array document from disk. Absent or malformed
// content is logged and treated as an empty array — this is the "synchronous
// variant of the read" spec.md §4.1 calls out: Go's os.ReadFile is already
// synchronous, so there is no separate async/sync read path to maintain; the
// in-memory profiles slice this populates is what IsHealthy and
// nextProcessable consult without any further I/O.
func (s *Store) readDocument() []Profile {
	data, err := atomicfile.ReadJSON(s.path)
	if err != nil {
		s.logger.Warn("check store file unreadable, starting empty", "path", s.path, "error", err)
		return nil
	}

	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		s.logger.Warn("check store file malformed, starting empty", "path", s.path, "error", err)
		return nil
	}

	valid := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		if !p.hasCompleteCheckSet() {
			s.logger.Warn("dropping profile with incomplete check set on load", "steam_id", p.SteamID)
			continue
		}
		valid = append(valid, p)
	}
	return valid
}

// persist writes the full in-memory document to disk. Must be called with
// s.mu held.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling check store: %w", err)
	}
	if err := atomicfile.WriteJSON(s.path, data); err != nil {
		return fmt.Errorf("writing check store: %w", err)
	}
	return nil
}

// AddProfile inserts a new profile for steamID, unless one already exists
// (AddOutcomeAlreadyPresent) or an ExistenceProbe suppresses it
// (AddOutcomeSuppressedByProbe). probe may be nil to skip the check.
//
// Only a persistence failure on insert returns an error — every other
// outcome is reported through AddResult.Outcome, per spec.md §7's
// propagation policy.
func (s *Store) AddProfile(steamID, username string, probe ExistenceProbe) (AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.index[steamID]; ok {
		return AddResult{Profile: s.profiles[idx], Outcome: AddOutcomeAlreadyPresent}, nil
	}

	if probe != nil {
		result, err := probe.Check(steamID)
		if err != nil {
			s.logger.Warn("existence probe failed, inserting anyway", "steam_id", steamID, "error", err)
		} else if !result.Success {
			s.logger.Warn("existence probe unsuccessful, inserting anyway",
				"steam_id", steamID, "probe_error", result.Error)
		} else if result.Exists {
			return AddResult{Outcome: AddOutcomeSuppressedByProbe}, nil
		}
	}

	profile := newProfile(steamID, username, s.now().UnixMilli())
	s.profiles = append(s.profiles, profile)
	s.index[steamID] = len(s.profiles) - 1

	if err := s.persist(); err != nil {
		// Roll back the in-memory insert so a failed persist never leaves
		// memory and disk disagreeing about what was inserted.
		s.profiles = s.profiles[:len(s.profiles)-1]
		delete(s.index, steamID)
		return AddResult{}, fmt.Errorf("persisting new profile %s: %w", steamID, err)
	}

	return AddResult{Profile: profile, Outcome: AddOutcomeInserted}, nil
}

// UpdateCheck writes a new status for one check on one profile. It returns
// false (and logs) if the profile is absent, the check name is unknown, or
// the status is invalid — it never fails the process per spec.md §7.
func (s *Store) UpdateCheck(steamID string, check CheckName, status CheckStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !IsValidStatus(status) {
		s.logger.Warn("rejecting invalid check status", "steam_id", steamID, "check", check, "status", status)
		return false
	}

	idx, ok := s.index[steamID]
	if !ok {
		s.logger.Warn("updateCheck on unknown profile", "steam_id", steamID)
		return false
	}

	if _, ok := s.profiles[idx].Checks[check]; !ok {
		s.logger.Warn("updateCheck on unknown check name", "steam_id", steamID, "check", check)
		return false
	}

	s.profiles[idx].Checks[check] = status

	if err := s.persist(); err != nil {
		s.logger.Error("persisting check update", "steam_id", steamID, "check", check, "error", err)
		return false
	}
	return true
}

// RemoveProfile deletes steamID from the store if present, persists, and —
// best-effort — acknowledges completion to the QueueClient. A QueueClient
// failure is logged but never fails the remove.
func (s *Store) RemoveProfile(steamID string) bool {
	s.mu.Lock()

	idx, ok := s.index[steamID]
	if !ok {
		s.mu.Unlock()
		return false
	}

	s.profiles = append(s.profiles[:idx], s.profiles[idx+1:]...)
	s.rebuildIndex()

	if err := s.persist(); err != nil {
		s.logger.Error("persisting profile removal", "steam_id", steamID, "error", err)
		s.mu.Unlock()
		return false
	}

	queue := s.queue
	s.mu.Unlock()

	if queue != nil {
		if err := queue.CompleteItems([]string{steamID}); err != nil {
			s.logger.Warn("completing removed profile on queue service", "steam_id", steamID, "error", err)
		}
	}
	return true
}

// NextProcessable returns the next profile the coordinator should drive, per
// spec.md §4.1's two-pass selection algorithm: first, any profile with
// outstanding or fully-terminal work in strict insertion order; failing
// that, the first profile carrying only deferred/terminal checks.
func (s *Store) NextProcessable() *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.profiles {
		p := &s.profiles[i]
		hasToCheck := false
		hasDeferred := false
		for _, name := range CheckNames {
			switch p.Checks[name] {
			case StatusToCheck:
				hasToCheck = true
			case StatusDeferred:
				hasDeferred = true
			}
		}
		if hasToCheck {
			cp := *p
			return &cp
		}
		if !hasDeferred {
			// Every check terminal: hand back to the coordinator for removal.
			cp := *p
			return &cp
		}
	}

	for i := range s.profiles {
		p := &s.profiles[i]
		for _, name := range CheckNames {
			if p.Checks[name] == StatusDeferred {
				cp := *p
				return &cp
			}
		}
	}

	return nil
}

// Profile returns a copy of the profile for steamID, or nil if absent.
func (s *Store) Profile(steamID string) *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[steamID]
	if !ok {
		return nil
	}
	cp := s.profiles[idx]
	return &cp
}

// All returns a copy of every profile currently in the store, in insertion order.
func (s *Store) All() []Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Profile, len(s.profiles))
	copy(out, s.profiles)
	return out
}

// ConvertDeferredToToCheck sweeps every profile, rewriting every deferred
// status to to_check, and persists once if anything changed.
func (s *Store) ConvertDeferredToToCheck() SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result SweepResult
	for i := range s.profiles {
		affected := false
		for _, name := range CheckNames {
			if s.profiles[i].Checks[name] == StatusDeferred {
				s.profiles[i].Checks[name] = StatusToCheck
				result.Conversions++
				affected = true
			}
		}
		if affected {
			result.ProfilesAffected++
		}
	}

	if result.Conversions > 0 {
		if err := s.persist(); err != nil {
			s.logger.Error("persisting deferred sweep", "error", err)
		}
	}
	return result
}

// Stats summarizes the store's contents.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		TotalProfiles: len(s.profiles),
		ByUsername:    make(map[string]int),
		ByStatus: map[CheckStatus]int{
			StatusToCheck:  0,
			StatusPassed:   0,
			StatusFailed:   0,
			StatusDeferred: 0,
		},
	}
	for _, p := range s.profiles {
		stats.ByUsername[p.Username]++
		for _, name := range CheckNames {
			stats.ByStatus[p.Checks[name]]++
		}
	}
	return stats
}

// DeferredStats summarizes how much work is currently deferred.
func (s *Store) DeferredStats() DeferredStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := DeferredStats{TotalProfiles: len(s.profiles)}
	for _, p := range s.profiles {
		affected := false
		for _, name := range CheckNames {
			if p.Checks[name] == StatusDeferred {
				stats.TotalDeferred++
				affected = true
			}
		}
		if affected {
			stats.ProfilesWithDeferred++
		}
	}
	return stats
}

// DeferredChecks lists every (steam_id, check_name) pair currently deferred.
func (s *Store) DeferredChecks() []DeferredCheck {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []DeferredCheck
	for _, p := range s.profiles {
		for _, name := range CheckNames {
			if p.Checks[name] == StatusDeferred {
				out = append(out, DeferredCheck{SteamID: p.SteamID, CheckName: name})
			}
		}
	}
	return out
}

// Completion reports whether every check on steamID's profile is terminal,
// and whether all passed. The second return value is false if the profile
// does not exist.
func (s *Store) Completion(steamID string) (Completion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[steamID]
	if !ok {
		return Completion{}, false
	}
	return completionOf(s.profiles[idx]), true
}

// IsHealthy reports whether the worker may accept new claimed work: no
// profile may have any deferred check, and — when cooldown is non-nil — at
// least one endpoint must currently be available.
func (s *Store) IsHealthy(cooldown CooldownHealth) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.profiles {
		for _, name := range CheckNames {
			if p.Checks[name] == StatusDeferred {
				return false
			}
		}
	}

	if cooldown != nil && !cooldown.AnyEndpointAvailable() {
		return false
	}
	return true
}
