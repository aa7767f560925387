// Package coordinator drives the worker's main cycle: pulling the next
// processable profile out of the local check store, running outstanding
// checks against it, and refilling from the remote queue when idle and
// healthy.
package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/checkstore"
	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/cooldown"
	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/queueclient"
	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/telemetry"
)

// Coordinator is the single driver goroutine that owns every mutation of
// the check store and cooldown controller.
type Coordinator struct {
	store          *checkstore.Store
	cooldownCtrl   *cooldown.Controller
	queue          *queueclient.Client // nil disables the remote-queue refill path
	executor       UpstreamExecutor
	existenceProbe checkstore.ExistenceProbe
	metrics        *telemetry.Metrics // nil disables metric recording
	logger         *slog.Logger

	claimBatchSize        int
	idlePollInterval      time.Duration
	deferredSweepInterval time.Duration
}

// Config bundles Coordinator's construction parameters.
type Config struct {
	Store                 *checkstore.Store
	CooldownCtrl          *cooldown.Controller
	Queue                 *queueclient.Client
	Executor              UpstreamExecutor
	ExistenceProbe        checkstore.ExistenceProbe
	Metrics               *telemetry.Metrics
	Logger                *slog.Logger
	ClaimBatchSize        int
	IdlePollInterval      time.Duration
	DeferredSweepInterval time.Duration
}

// New builds a Coordinator from cfg, defaulting ClaimBatchSize to 5 and
// IdlePollInterval to 5 seconds when left at zero.
func New(cfg Config) *Coordinator {
	if cfg.ClaimBatchSize <= 0 {
		cfg.ClaimBatchSize = 5
	}
	if cfg.IdlePollInterval <= 0 {
		cfg.IdlePollInterval = 5 * time.Second
	}
	if cfg.DeferredSweepInterval <= 0 {
		cfg.DeferredSweepInterval = time.Minute
	}
	return &Coordinator{
		store:                 cfg.Store,
		cooldownCtrl:          cfg.CooldownCtrl,
		queue:                 cfg.Queue,
		executor:              cfg.Executor,
		existenceProbe:        cfg.ExistenceProbe,
		metrics:               cfg.Metrics,
		logger:                cfg.Logger,
		claimBatchSize:        cfg.ClaimBatchSize,
		idlePollInterval:      cfg.IdlePollInterval,
		deferredSweepInterval: cfg.DeferredSweepInterval,
	}
}

// Run executes the startup release, then loops the main cycle until ctx is
// cancelled. A SIGTERM delivered mid-cycle is honored between cycles, never
// mid-persist: every mutation the cycle performs has already completed its
// own synchronous persist by the time the next ctx.Done() check happens.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.queue != nil {
		released := c.queue.ReleaseInstance(ctx)
		c.logger.Info("released orphaned claims on startup", "count", released)
	}

	sweepTicker := time.NewTicker(c.deferredSweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopping")
			return nil
		case <-sweepTicker.C:
			result := c.store.ConvertDeferredToToCheck()
			if result.Conversions > 0 {
				c.logger.Info("deferred sweep converted checks",
					"conversions", result.Conversions, "profiles", result.ProfilesAffected)
				if c.metrics != nil {
					c.metrics.DeferredSweepsTotal.Inc()
				}
			}
		default:
			if c.runCycle(ctx) {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.idlePollInterval):
			}
		}
	}
}

// runCycle runs one iteration of the main cycle. It returns true if it made
// progress (so the caller should not sleep before the next iteration).
func (c *Coordinator) runCycle(ctx context.Context) bool {
	profile := c.store.NextProcessable()
	if profile == nil {
		return c.refill(ctx)
	}

	driven := c.driveChecks(ctx, profile)

	completion, ok := c.store.Completion(profile.SteamID)
	if ok && completion.AllComplete {
		if c.store.RemoveProfile(profile.SteamID) && c.metrics != nil {
			c.metrics.CompletesTotal.Inc()
		}
		return true
	}

	// A profile with no outstanding to_check work and not yet all-complete
	// carries only deferred/terminal checks (NextProcessable's second pass).
	// Nothing was driven and nothing will change until the deferred sweep
	// fires, so report no progress rather than spinning the loop on the
	// same profile every iteration.
	return driven > 0
}

// refill claims fresh work from the remote queue when the local store is
// empty of processable work, gated on health. Returns true if it claimed
// and attempted to insert at least one item.
func (c *Coordinator) refill(ctx context.Context) bool {
	if c.queue == nil {
		return false
	}
	if !c.store.IsHealthy(c.cooldownCtrl) {
		return false
	}

	items := c.queue.ClaimItems(ctx, c.claimBatchSize)
	if len(items) == 0 {
		return false
	}
	if c.metrics != nil {
		c.metrics.ClaimsTotal.Add(float64(len(items)))
	}

	for _, item := range items {
		result, err := c.store.AddProfile(item.ID, item.Username, c.existenceProbe)
		if err != nil {
			c.logger.Warn("adding claimed profile", "steam_id", item.ID, "error", err)
			c.releaseItem(item.ID, "add_failed")
			continue
		}
		switch result.Outcome {
		case checkstore.AddOutcomeAlreadyPresent:
			c.releaseItem(item.ID, "already_present")
		case checkstore.AddOutcomeSuppressedByProbe:
			c.releaseItem(item.ID, "suppressed_by_probe")
		}
	}
	return true
}

func (c *Coordinator) releaseItem(steamID, reason string) {
	c.queue.ReleaseItems([]string{steamID})
	if c.metrics != nil {
		c.metrics.ReleasesTotal.WithLabelValues(reason).Inc()
	}
}

// driveChecks runs every outstanding (to_check) check on profile, applying
// each result back to the store. It returns how many checks it actually ran.
func (c *Coordinator) driveChecks(ctx context.Context, profile *checkstore.Profile) int {
	driven := 0
	for _, check := range checkstore.CheckNames {
		if profile.Checks[check] != checkstore.StatusToCheck {
			continue
		}
		c.runCheck(ctx, profile.SteamID, check)
		driven++
	}
	return driven
}

func (c *Coordinator) runCheck(ctx context.Context, steamID string, check checkstore.CheckName) {
	result := c.executor.Execute(ctx, check, steamID)

	status := result.Status
	if result.Err != nil {
		status = checkstore.StatusDeferred
		if c.cooldownCtrl != nil {
			outcome := c.cooldownCtrl.HandleRequestError(result.Err, result.RequestURL)
			if !outcome.Cooldownworthy {
				// Non-cooldown transient error: defer rather than fail, so a
				// one-off blip doesn't cost a profile a terminal check.
				c.logger.Warn("non-cooldown check error, deferring",
					"steam_id", steamID, "check", check, "error", result.Err)
			}
			if c.metrics != nil && outcome.Cooldownworthy {
				c.metrics.CooldownTransitionsTotal.WithLabelValues(string(outcome.Endpoint), string(outcome.Kind)).Inc()
			}
		}
	} else if c.cooldownCtrl != nil {
		c.cooldownCtrl.ResetOnSuccess(endpointForCheck(check))
	}

	c.store.UpdateCheck(steamID, check, status)
	if c.metrics != nil {
		c.metrics.CheckOutcomesTotal.WithLabelValues(string(check), string(status)).Inc()
	}
}

// endpointForCheck maps a CheckName to the cooldown endpoint bucket that
// backs it, for clearing a backoff on an observed success. The check and
// endpoint enumerations are structurally parallel per spec.md §4.2 but not
// spelled identically (e.g. csgo_inventory vs. inventory).
func endpointForCheck(check checkstore.CheckName) cooldown.Endpoint {
	switch check {
	case checkstore.CheckFriends:
		return cooldown.EndpointFriends
	case checkstore.CheckCSGOInventory:
		return cooldown.EndpointInventory
	case checkstore.CheckSteamLevel:
		return cooldown.EndpointSteamLevel
	case checkstore.CheckAnimatedAvatar:
		return cooldown.EndpointAnimatedAvatar
	case checkstore.CheckAvatarFrame:
		return cooldown.EndpointAvatarFrame
	case checkstore.CheckMiniProfileBackground:
		return cooldown.EndpointMiniProfileBackground
	case checkstore.CheckProfileBackground:
		return cooldown.EndpointProfileBackground
	default:
		return cooldown.EndpointOther
	}
}
