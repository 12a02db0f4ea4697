package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/hookwarden/internal/alert"
	"github.com/ppiankov/hookwarden/internal/audit"
	"github.com/ppiankov/hookwarden/internal/clock"
	"github.com/ppiankov/hookwarden/internal/config"
	"github.com/ppiankov/hookwarden/internal/detect"
	"github.com/ppiankov/hookwarden/internal/escape"
	"github.com/ppiankov/hookwarden/internal/policy"
	"github.com/ppiankov/hookwarden/internal/session"
	"github.com/ppiankov/hookwarden/internal/sweep"
	"github.com/ppiankov/hookwarden/internal/validate"
)

// Runtime is an Engine assembled from configuration, together with the
// resources it owns.
type Runtime struct {
	Engine *Engine

	// SQLite is the database sink, or nil when none is configured. Kept for
	// queries across restarts.
	SQLite *audit.SQLiteSink

	clock  clock.Clock
	logger *slog.Logger
	sweeps *sweep.Scheduler

	mu sync.Mutex
	// configTrust holds normalized global trust names owned by the config
	// file, so a reload can revoke the ones it drops.
	configTrust map[string]bool
}

// Build wires detector, validator, sessions, escapes, audit sinks and alerts
// from cfg. clk and logger may be nil. Close the Runtime when done.
func Build(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	clk = clock.OrReal(clk)

	policies, err := cfg.Policies()
	if err != nil {
		return nil, fmt.Errorf("levels: %w", err)
	}

	det, err := detect.LoadPatternDetector(cfg.Detector.Rules)
	if err != nil {
		return nil, err
	}

	var sinks []audit.Sink
	closeSinks := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}
	if cfg.Audit.File != "" {
		fs, err := audit.OpenFile(cfg.Audit.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		sinks = append(sinks, fs)
	}
	var db *audit.SQLiteSink
	if cfg.Audit.DB != "" {
		db, err = audit.OpenSQLite(cfg.Audit.DB)
		if err != nil {
			closeSinks()
			return nil, fmt.Errorf("failed to open audit db: %w", err)
		}
		sinks = append(sinks, db)
	}
	auditLog := audit.New(cfg.Audit.Config, clk, logger.With("component", "audit"), sinks...)

	alerts, err := alert.NewManager(cfg.Alerts, clk, logger.With("component", "alert"))
	if err != nil {
		_ = auditLog.Close()
		return nil, err
	}

	coord := escape.NewCoordinator(escape.NewAllowOnce(clk), escape.NewPause(clk), escape.NewTrust(clk))
	owned, err := applyGlobalTrust(coord.Trust, nil, cfg.Escape.GlobalTrust)
	if err != nil {
		_ = alerts.Close()
		_ = auditLog.Close()
		return nil, err
	}

	engine, err := New(Deps{
		Validator: validate.New(validate.Config{
			Detector:       det,
			TrustedTools:   cfg.Tools.Trusted,
			DangerousTools: cfg.Tools.Dangerous,
			Clock:          clk,
			Logger:         logger.With("component", "validate"),
		}),
		Sessions: session.NewManager(cfg.Session, clk, logger.With("component", "session")),
		Escape:   coord,
		Audit:    auditLog,
		Alerts:   alerts,
		Logger:   logger,
	}, Options{
		Level:    cfg.Level,
		Policies: policies,
		Anomaly:  cfg.Anomaly,
	})
	if err != nil {
		_ = alerts.Close()
		_ = auditLog.Close()
		return nil, err
	}

	return &Runtime{Engine: engine, SQLite: db, clock: clk, logger: logger, configTrust: owned}, nil
}

// Apply swaps the parts of cfg that can change while running: level, level
// definitions, global trust, webhooks and the alert switch. Detector, tool
// lists and store limits need a restart. A cfg that fails validation leaves
// the running state untouched.
func (r *Runtime) Apply(cfg *config.Config) error {
	level, err := policy.ParseLevel(string(cfg.Level))
	if err != nil {
		return err
	}
	policies, err := cfg.Policies()
	if err != nil {
		return fmt.Errorf("levels: %w", err)
	}
	alerts := r.Engine.Alerts()
	if err := alerts.SetWebhooks(cfg.Alerts.Webhooks); err != nil {
		return err
	}
	r.Engine.SetPolicies(policies)
	if err := r.Engine.SetLevel(level); err != nil {
		return err
	}
	if cfg.Alerts.Enabled {
		alerts.Enable()
	} else {
		alerts.Disable()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	owned, err := applyGlobalTrust(r.Engine.Escape().Trust, r.configTrust, cfg.Escape.GlobalTrust)
	r.configTrust = owned
	return err
}

// StartSweeps reclaims expired escapes, idle sessions and aged audit entries
// every interval until Close.
func (r *Runtime) StartSweeps(cfg *config.Config) {
	if r.sweeps != nil {
		return
	}
	r.sweeps = sweep.NewScheduler(r.logger.With("component", "sweep"))
	e := r.Engine
	r.sweeps.Register("escape", cfg.SweepInterval, e.Escape().Sweep)
	r.sweeps.Register("session", cfg.SweepInterval, e.Sessions().Sweep)
	if ttl := cfg.Audit.EntryTTL; ttl > 0 {
		r.sweeps.Register("audit", cfg.SweepInterval, e.Audit().Sweep)
		if r.SQLite != nil {
			r.sweeps.Register("audit_db", cfg.SweepInterval, func() int {
				return r.pruneDB(ttl)
			})
		}
	}
}

func (r *Runtime) pruneDB(ttl time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := r.SQLite.Prune(ctx, r.clock.Now().Add(-ttl))
	if err != nil {
		r.logger.Warn("audit db prune failed", "error", err)
		return 0
	}
	return int(n)
}

// Close stops sweeps, drains alert workers and closes audit sinks.
func (r *Runtime) Close() error {
	if r.sweeps != nil {
		r.sweeps.Close()
	}
	return errors.Join(r.Engine.Alerts().Close(), r.Engine.Audit().Close())
}

// applyGlobalTrust makes names the config-owned global trust set. prev is the
// set the config owned before; entries it no longer lists are revoked. Names
// that were already trusted from the console are left to the console.
func applyGlobalTrust(t *escape.Trust, prev map[string]bool, names []string) (map[string]bool, error) {
	owned := make(map[string]bool, len(names))
	var errs []error
	for _, n := range names {
		key := escape.NormalizeToolName(n)
		_, err := t.TrustGlobal(n, escape.TrustOptions{Level: escape.TrustPermanent})
		switch {
		case err == nil:
			owned[key] = true
		case errors.Is(err, escape.ErrAlreadyTrusted):
			if prev[key] {
				owned[key] = true
			}
		default:
			errs = append(errs, fmt.Errorf("global trust %q: %w", n, err))
		}
	}
	for key := range prev {
		if !owned[key] {
			t.Revoke(escape.GlobalSessionID, key)
		}
	}
	return owned, errors.Join(errs...)
}
