package connection

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hivegrid/hub/pkg/wire"
)

// SweeperConfig tunes the liveness sweep.
type SweeperConfig struct {
	// PingInterval is how often every live connection is pinged.
	PingInterval time.Duration

	// SweepInterval is how often stale connections are evicted.
	SweepInterval time.Duration

	// ConnectGrace is how long a connection that has never signalled may
	// live before eviction.
	ConnectGrace time.Duration

	// SendTimeout bounds each ping write so one unresponsive client
	// cannot stall the sweep for all others.
	SendTimeout time.Duration
}

// DefaultSweeperConfig mirrors the reference deployment: ping every 30s,
// sweep every 60s, 2 minute grace for silent connections, 2s ping writes.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		PingInterval:  30 * time.Second,
		SweepInterval: 60 * time.Second,
		ConnectGrace:  2 * time.Minute,
		SendTimeout:   2 * time.Second,
	}
}

// Sweeper is the named background responsibility that keeps the connection
// table honest: it pings every connection on a fixed interval and evicts
// connections that stop signalling.
//
// Staleness policy: a connection is stale when its last liveness signal is
// older than two ping intervals, or, if it has never signalled, when it has
// been connected longer than the grace period.
type Sweeper struct {
	registry *Registry
	cfg      SweeperConfig
	logger   zerolog.Logger

	now func() time.Time
}

// NewSweeper creates a sweeper over the given registry.
func NewSweeper(registry *Registry, cfg SweeperConfig, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, pinging and sweeping on their
// intervals. It always returns nil; sweep errors are logged, not fatal.
func (s *Sweeper) Run(ctx context.Context) error {
	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()
	sweepTicker := time.NewTicker(s.cfg.SweepInterval)
	defer sweepTicker.Stop()

	s.logger.Info().
		Dur("ping_interval", s.cfg.PingInterval).
		Dur("sweep_interval", s.cfg.SweepInterval).
		Msg("liveness sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("liveness sweeper stopped")
			return nil
		case <-pingTicker.C:
			s.pingAll(ctx)
		case <-sweepTicker.C:
			s.evictStale()
		}
	}
}

// pingAll sends a ping frame to every live connection with a short
// per-connection timeout.
func (s *Sweeper) pingAll(ctx context.Context) {
	env, err := wire.New(wire.TypePing, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build ping envelope")
		return
	}
	payload, err := env.Encode()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode ping envelope")
		return
	}

	for _, info := range s.registry.List() {
		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		// A failed ping already tears the connection down inside SendTo.
		_ = s.registry.SendTo(sendCtx, info.ID, payload)
		cancel()
	}
}

// evictStale disconnects every connection past the staleness policy.
func (s *Sweeper) evictStale() {
	now := s.now()
	staleAfter := 2 * s.cfg.PingInterval

	for _, info := range s.registry.List() {
		var stale bool
		if info.LastSignal.IsZero() {
			stale = now.Sub(info.CreatedAt) > s.cfg.ConnectGrace
		} else {
			stale = now.Sub(info.LastSignal) > staleAfter
		}
		if !stale {
			continue
		}

		s.logger.Warn().
			Str("connection_id", info.ID).
			Str("node_id", info.NodeID).
			Time("last_signal", info.LastSignal).
			Msg("evicting stale connection")
		s.registry.Disconnect(info.ID)
	}
}
