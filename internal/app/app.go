package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"parley/internal/retention"
	"parley/pkg/broker"
	"parley/pkg/config"
	"parley/pkg/convo"
	"parley/pkg/directory"
	"parley/pkg/logger"
	"parley/pkg/notify"
	"parley/pkg/state"
	"parley/pkg/store"
	"parley/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	broker        *broker.Broker
	dir           *directory.Static
	conversations *convo.Service
	notifications *notify.Service

	retCancel context.CancelFunc
	srv       *http.Server
}

// New initializes resources that do not require a running context (state
// dirs, DB, validation limits, runtime keys, services). It does not start
// the retention scheduler or the HTTP server; call Run to start those and
// block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")
	logger.InitWithLevel(eff.Config.Logging.Level)

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	// runtime keys: backend keys double as message signing keys
	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range eff.Config.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	// validation limits
	initValidation(eff)

	// state dirs then store
	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to prepare state dirs at %s: %w", eff.DBPath, err)
	}
	if err := store.Open(state.PathsVar.Store); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}

	b := broker.New()
	dir := directory.NewStatic(eff.Config.Directory.Users)

	a := &App{
		eff:           eff,
		version:       version,
		commit:        commit,
		buildDate:     buildDate,
		broker:        b,
		dir:           dir,
		conversations: convo.New(b, dir),
		notifications: notify.New(b),
	}
	return a, nil
}

// Run starts the retention scheduler and the HTTP server, and blocks until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	retention.SetEffectiveConfig(a.eff)
	cancel, err := retention.Start(ctx, a.eff)
	if err != nil {
		return err
	}
	a.retCancel = cancel

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

// shutdown stops the scheduler, drains the HTTP server and closes the store.
func (a *App) shutdown() {
	if a.retCancel != nil {
		a.retCancel()
	}
	if a.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(sctx); err != nil {
			logger.Warn("http_shutdown_failed", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Warn("store_close_failed", "error", err)
	}
	logger.Info("shutdown_complete")
}

// initValidation builds input limits from config and sets them globally.
func initValidation(eff config.EffectiveConfigResult) {
	l := validation.Limits{}
	if v := eff.Config.Limits.MaxMessageBytes.Int64(); v > 0 {
		l.MaxMessageBytes = int(v)
	}
	if v := eff.Config.Limits.MaxNameBytes.Int64(); v > 0 {
		l.MaxNameBytes = int(v)
	}
	if v := eff.Config.Limits.NotificationPage; v > 0 {
		l.NotificationPage = v
	}
	validation.SetLimits(l)
}
