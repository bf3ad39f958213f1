package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Extender is the auth refresh collaborator. Extend pushes the session
// expiry forward and returns the new expiry time.
type Extender interface {
	Extend(ctx context.Context, sessionID uuid.UUID) (time.Time, error)
}

// Monitor periodically re-validates tracked sessions independent of
// navigation. It surfaces a warning phase before expiry, requests an
// extension when the user has been recently active, and clears sessions
// that run out. It is advisory: the route guard's CheckValid remains
// the authoritative gate.
type Monitor struct {
	logger           *slog.Logger
	registry         *Registry
	extender         Extender
	interval         time.Duration
	warningThreshold time.Duration
	activityWindow   time.Duration
	onWarning        func(sessionID uuid.UUID, remaining time.Duration)
	onExpired        func(sessionID uuid.UUID)
	nowFn            func() time.Time
}

// MonitorConfig bundles monitor construction knobs.
type MonitorConfig struct {
	Interval         time.Duration
	WarningThreshold time.Duration
	// ActivityWindow is how recently the user must have acted for a
	// warning-phase session to earn an extension attempt.
	ActivityWindow time.Duration
	OnWarning      func(sessionID uuid.UUID, remaining time.Duration)
	OnExpired      func(sessionID uuid.UUID)
	NowFn          func() time.Time
}

// NewMonitor constructs the timeout sweep loop with safe defaults.
func NewMonitor(logger *slog.Logger, registry *Registry, extender Extender, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = 2 * time.Minute
	}
	if cfg.ActivityWindow <= 0 {
		cfg.ActivityWindow = 5 * time.Minute
	}
	if cfg.NowFn == nil {
		cfg.NowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Monitor{
		logger:           logger,
		registry:         registry,
		extender:         extender,
		interval:         cfg.Interval,
		warningThreshold: cfg.WarningThreshold,
		activityWindow:   cfg.ActivityWindow,
		onWarning:        cfg.OnWarning,
		onExpired:        cfg.OnExpired,
		nowFn:            cfg.NowFn,
	}
}

// Run executes the periodic sweep until context cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.sweepOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce runs a single pass over the registry. Exported for the
// runtime's shutdown path and for tests driving time directly.
func (m *Monitor) SweepOnce(ctx context.Context) {
	m.sweepOnce(ctx)
}

func (m *Monitor) sweepOnce(ctx context.Context) {
	now := m.nowFn()
	swept := 0
	warned := 0
	extended := 0
	expired := 0

	m.registry.Range(func(sessionID uuid.UUID, st *State) {
		swept++
		snap := st.Snapshot()
		if !snap.IsAuthenticated {
			m.registry.Remove(sessionID)
			return
		}

		remaining := snap.SessionExpiresAt.Sub(now)
		if remaining <= 0 {
			if st.expire() {
				expired++
				m.registry.Remove(sessionID)
				m.logger.InfoContext(ctx, "session expired",
					"module", "session.monitor",
					"operation", "sweep",
					"outcome", "expired",
					"session_id", sessionID,
				)
				if m.onExpired != nil {
					m.onExpired(sessionID)
				}
			}
			return
		}

		if remaining > m.warningThreshold {
			return
		}

		if st.markWarning() {
			warned++
			if m.onWarning != nil {
				m.onWarning(sessionID, remaining)
			}
		}

		// Recent activity inside the warning window earns one extension
		// attempt per sweep. The generation check discards results that
		// arrive after a logout or a newer login replaced the session.
		if m.extender == nil || now.Sub(st.lastActivity()) > m.activityWindow {
			return
		}
		gen := st.Generation()
		newExpiry, err := m.extender.Extend(ctx, sessionID)
		if err != nil {
			m.logger.WarnContext(ctx, "session extension failed",
				"module", "session.monitor",
				"operation", "extend",
				"outcome", "failure",
				"session_id", sessionID,
				"error", err,
			)
			return
		}
		if st.ExtendIfCurrent(gen, newExpiry) {
			extended++
		}
	})

	if warned > 0 || extended > 0 || expired > 0 {
		m.logger.InfoContext(ctx, "session sweep completed",
			"module", "session.monitor",
			"operation", "sweep",
			"outcome", "success",
			"swept", swept,
			"warned", warned,
			"extended", extended,
			"expired", expired,
		)
	}
}
