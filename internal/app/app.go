// Package app wires every component together and runs the worker until its
// context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/adminserver"
	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/checkstore"
	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/config"
	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/cooldown"
	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/coordinator"
	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/queueclient"
	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/telemetry"
)

// Run wires up the check store, cooldown controller, queue client and
// coordinator, starts the optional admin HTTP server, and blocks until ctx
// is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting worker", "instance_id", cfg.InstanceID, "queue", cfg.QueueName)

	metrics := telemetry.NewMetrics()
	registry := prometheus.NewRegistry()
	for _, c := range metrics.Collectors() {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}

	queue := queueclient.New(cfg.QueueBaseURL, cfg.QueueAPIKey, cfg.InstanceID, cfg.QueueName, logger)

	store := checkstore.NewStore(cfg.CheckStoreFile, logger, queue)

	cooldownCtrl := cooldown.NewController(cfg.CooldownFile, logger, cooldown.Durations{
		ConnectionResetMS: cfg.CooldownConnectionResetMS,
		TimeoutMS:         cfg.CooldownTimeoutMS,
		DNSFailureMS:      cfg.CooldownDNSFailureMS,
	}, cfg.BackoffSequenceMinutes)

	coord := coordinator.New(coordinator.Config{
		Store:                 store,
		CooldownCtrl:          cooldownCtrl,
		Queue:                 queue,
		Executor:              noopExecutor{},
		ExistenceProbe:        nil,
		Metrics:               metrics,
		Logger:                logger,
		ClaimBatchSize:        cfg.ClaimBatchSize,
		IdlePollInterval:      time.Duration(cfg.IdlePollInterval) * time.Millisecond,
		DeferredSweepInterval: time.Duration(cfg.DeferredSweepInterval) * time.Millisecond,
	})

	errCh := make(chan error, 1)
	var adminSrv *adminserver.Server
	if cfg.AdminListenAddr != "" {
		adminSrv = adminserver.New(store, cooldownCtrl, registry, logger)
		go func() {
			logger.Info("admin server listening", "addr", cfg.AdminListenAddr)
			if err := adminSrv.ListenAndServe(cfg.AdminListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	coordErrCh := make(chan error, 1)
	go func() { coordErrCh <- coord.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-coordErrCh:
		return err
	case err := <-errCh:
		return err
	}
}

// noopExecutor is the default UpstreamExecutor wired when no real one is
// supplied. Check execution's HTTP transport and response parsing are an
// external collaborator spec.md explicitly scopes out of the core; a
// production deployment supplies its own coordinator.UpstreamExecutor
// implementation and wires it in place of this one.
type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, checkstore.CheckName, string) coordinator.ExecutionResult {
	return coordinator.ExecutionResult{
		Err:        errUpstreamExecutorNotConfigured,
		RequestURL: "",
	}
}

var errUpstreamExecutorNotConfigured = fmt.Errorf("no upstream executor configured")
