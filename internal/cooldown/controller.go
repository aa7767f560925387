// Package cooldown implements the per-endpoint cooldown controller: it
// tracks which upstream endpoints are currently rate-limited or unreachable,
// escalates 429 backoff across repeated hits, and persists its state so a
// restart does not forget an in-progress backoff.
package cooldown

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/atomicfile"
)

// Controller is the persistent, in-memory cooldown tracker for upstream
// endpoints.
//
// The single most important invariant it upholds is that the backoff level
// for an endpoint survives the cooldown record's own expiry: backoffLevels
// is a separate map from cooldowns, cleared only by ResetOnSuccess, never by
// CleanupExpired.
type Controller struct {
	mu        sync.Mutex
	path      string
	logger    *slog.Logger
	durations Durations
	sequence  []int // minutes, index == backoff level

	cooldowns     map[Endpoint]EndpointCooldown
	backoffLevels map[Endpoint]int
	now           func() time.Time
}

// NewController loads any persisted cooldown document from path and
// rehydrates the BackoffLevelTable from every 429 record found in it. An
// empty sequence, or one with an entry below 1 minute, is replaced with
// DefaultBackoffSequenceMinutes.
func NewController(path string, logger *slog.Logger, durations Durations, sequence []int) *Controller {
	valid := len(sequence) > 0
	for _, minutes := range sequence {
		if minutes < 1 {
			valid = false
		}
	}
	if !valid {
		sequence = DefaultBackoffSequenceMinutes
	}

	c := &Controller{
		path:          path,
		logger:        logger,
		durations:     durations,
		sequence:      sequence,
		cooldowns:     make(map[Endpoint]EndpointCooldown),
		backoffLevels: make(map[Endpoint]int),
		now:           time.Now,
	}

	doc := c.readDocument()
	c.cooldowns = doc
	for endpoint, cd := range doc {
		if cd.Reason == ErrorKindRateLimit && cd.BackoffLevel != nil {
			c.backoffLevels[endpoint] = *cd.BackoffLevel
		}
	}
	return c
}

func (c *Controller) readDocument() map[Endpoint]EndpointCooldown {
	data, err := atomicfile.ReadJSON(c.path)
	if err != nil {
		c.logger.Warn("cooldown file unreadable, starting empty", "path", c.path, "error", err)
		return make(map[Endpoint]EndpointCooldown)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		c.logger.Warn("cooldown file malformed, starting empty", "path", c.path, "error", err)
		return make(map[Endpoint]EndpointCooldown)
	}
	if doc.EndpointCooldowns == nil {
		return make(map[Endpoint]EndpointCooldown)
	}
	return doc.EndpointCooldowns
}

// persist writes the full cooldown document to disk. Must be called with
// c.mu held.
func (c *Controller) persist() error {
	doc := document{EndpointCooldowns: c.cooldowns}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling cooldown document: %w", err)
	}
	if err := atomicfile.WriteJSON(c.path, data); err != nil {
		return fmt.Errorf("writing cooldown document: %w", err)
	}
	return nil
}

// IsEndpointAvailable reports whether endpoint has no active cooldown, or
// its deadline has already passed.
func (c *Controller) IsEndpointAvailable(endpoint Endpoint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isAvailableLocked(endpoint)
}

func (c *Controller) isAvailableLocked(endpoint Endpoint) bool {
	cd, ok := c.cooldowns[endpoint]
	if !ok {
		return true
	}
	return c.now().UnixMilli() >= cd.CooldownUntil
}

// AnyEndpointAvailable satisfies checkstore.CooldownHealth: true if at least
// one tracked endpoint currently accepts requests.
func (c *Controller) AnyEndpointAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, endpoint := range TrackedEndpoints {
		if c.isAvailableLocked(endpoint) {
			return true
		}
	}
	return false
}

// MarkCooldown records a new cooldown for endpoint. For ErrorKindRateLimit it
// escalates the backoff level (capped at the last sequence index) and keeps
// escalating across a prior cooldown's natural expiry, since backoffLevels
// is never touched by CleanupExpired. Any other kind applies the matching
// fixed duration, falling back to 60 seconds for an unrecognized kind.
func (c *Controller) MarkCooldown(endpoint Endpoint, kind ErrorKind, errorMessage string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	nowMS := now.UnixMilli()

	if kind == ErrorKindRateLimit {
		cur, ok := c.backoffLevels[endpoint]
		if !ok {
			cur = -1
		}
		newLevel := min(cur+1, len(c.sequence)-1)
		durationMin := c.sequence[newLevel]
		cooldownUntil := nowMS + int64(durationMin)*60_000

		c.backoffLevels[endpoint] = newLevel
		level := newLevel
		applied := nowMS
		msg := errorMessage
		dur := durationMin
		c.cooldowns[endpoint] = EndpointCooldown{
			CooldownUntil: cooldownUntil,
			Reason:        ErrorKindRateLimit,
			BackoffLevel:  &level,
			DurationMin:   &dur,
			AppliedAt:     &applied,
			ErrorMessage:  &msg,
		}
	} else {
		durationMS := c.fixedDurationMS(kind)
		cooldownUntil := nowMS + durationMS
		dur := durationMS
		c.cooldowns[endpoint] = EndpointCooldown{
			CooldownUntil:  cooldownUntil,
			Reason:         kind,
			DurationUsedMS: &dur,
		}
	}

	if err := c.persist(); err != nil {
		c.logger.Error("persisting cooldown", "endpoint", endpoint, "kind", kind, "error", err)
	}
}

func (c *Controller) fixedDurationMS(kind ErrorKind) int64 {
	switch kind {
	case ErrorKindConnectionError:
		return c.durations.ConnectionResetMS
	case ErrorKindTimeout:
		return c.durations.TimeoutMS
	case ErrorKindDNSFailure:
		return c.durations.DNSFailureMS
	default:
		return 60_000
	}
}

// ResetOnSuccess clears a 429 backoff and cooldown record for endpoint. A
// non-429 cooldown is left untouched: it only clears by deadline expiry.
func (c *Controller) ResetOnSuccess(endpoint Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.backoffLevels, endpoint)

	cd, ok := c.cooldowns[endpoint]
	if !ok || cd.Reason != ErrorKindRateLimit {
		return
	}
	delete(c.cooldowns, endpoint)
	if err := c.persist(); err != nil {
		c.logger.Error("persisting cooldown reset", "endpoint", endpoint, "error", err)
	}
}

// HandleRequestError classifies err's message and, for a cooldown-worthy
// kind, applies MarkCooldown against the endpoint extracted from requestURL.
func (c *Controller) HandleRequestError(err error, requestURL string) RequestOutcome {
	endpoint := EndpointForURL(requestURL)
	if err == nil {
		return RequestOutcome{Endpoint: endpoint}
	}

	kind, ok := classifyError(err.Error())
	if !ok {
		return RequestOutcome{Endpoint: endpoint}
	}

	c.MarkCooldown(endpoint, kind, err.Error())
	return RequestOutcome{Kind: kind, Endpoint: endpoint, Cooldownworthy: true}
}

// CleanupExpired deletes every cooldown record whose deadline has passed,
// persisting once if anything was removed. BackoffLevelTable entries are
// never touched here.
func (c *Controller) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	nowMS := c.now().UnixMilli()
	removed := 0
	for endpoint, cd := range c.cooldowns {
		if nowMS >= cd.CooldownUntil {
			delete(c.cooldowns, endpoint)
			removed++
		}
	}

	if removed > 0 {
		if err := c.persist(); err != nil {
			c.logger.Error("persisting cooldown cleanup", "error", err)
		}
	}
	return removed
}

// ConnectionStatus cleans up expired records, then reports every tracked
// endpoint's availability.
func (c *Controller) ConnectionStatus() ConnectionStatusReport {
	c.CleanupExpired()

	c.mu.Lock()
	defer c.mu.Unlock()

	nowMS := c.now().UnixMilli()
	report := ConnectionStatusReport{}
	available := 0
	var nextAvailableIn int64 = -1

	for _, endpoint := range TrackedEndpoints {
		cd, inCooldown := c.cooldowns[endpoint]
		if !inCooldown {
			available++
			report.Endpoints = append(report.Endpoints, EndpointStatus{
				Endpoint:  endpoint,
				Available: true,
			})
			continue
		}

		remaining := cd.CooldownUntil - nowMS
		if remaining < 0 {
			remaining = 0
		}
		if nextAvailableIn == -1 || remaining < nextAvailableIn {
			nextAvailableIn = remaining
		}
		report.Endpoints = append(report.Endpoints, EndpointStatus{
			Endpoint:    endpoint,
			Available:   false,
			Reason:      cd.Reason,
			RemainingMS: remaining,
			Until:       cd.CooldownUntil,
		})
	}

	if nextAvailableIn == -1 {
		nextAvailableIn = 0
	}
	report.Summary = ConnectionSummary{
		AvailableConnections: available,
		TotalConnections:     len(TrackedEndpoints),
		NextAvailableInMS:    nextAvailableIn,
	}
	return report
}
