// Package hub wires the registries, the coordinator and the blackboard into
// one process: it owns the per-connection receive loops, the closed message
// dispatch, the HTTP/websocket surface and the fixed set of background
// responsibilities (liveness sweep, task reaper).
package hub

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hivegrid/hub/internal/config"
	"github.com/hivegrid/hub/internal/connection"
	"github.com/hivegrid/hub/internal/logging"
	"github.com/hivegrid/hub/internal/memory"
	"github.com/hivegrid/hub/internal/mission"
	"github.com/hivegrid/hub/internal/node"
	"github.com/hivegrid/hub/pkg/store"
)

// Hub is the aggregate root of the coordination process.
type Hub struct {
	cfg    *config.Config
	store  *store.RedisStore
	conns  *connection.Registry
	nodes  *node.Registry
	coord  *mission.Coordinator
	board  *memory.Blackboard
	logger zerolog.Logger
}

// New assembles a Hub over an already-connected store.
func New(cfg *config.Config, st *store.RedisStore) *Hub {
	logger := logging.New("hub", cfg.Instance)
	conns := connection.NewRegistry(logging.New("connection", cfg.Instance))
	nodes := node.NewRegistry(st, logging.New("node", cfg.Instance))
	coord := mission.NewCoordinator(st, st, nodes, conns, logging.New("mission", cfg.Instance))
	board := memory.NewBlackboard(st, nodes, logging.New("memory", cfg.Instance))

	return &Hub{
		cfg:    cfg,
		store:  st,
		conns:  conns,
		nodes:  nodes,
		coord:  coord,
		board:  board,
		logger: logger,
	}
}

// Nodes exposes the node registry, for the CLI status command.
func (h *Hub) Nodes() *node.Registry { return h.nodes }

// Missions exposes the mission coordinator.
func (h *Hub) Missions() *mission.Coordinator { return h.coord }

// Blackboard exposes the shared memory surface.
func (h *Hub) Blackboard() *memory.Blackboard { return h.board }

// Connections exposes the connection registry.
func (h *Hub) Connections() *connection.Registry { return h.conns }

// Run rebuilds the caches from the store and then runs the background
// responsibilities until the context is cancelled: the connection liveness
// sweeper, the stale-assignment reaper and the HTTP/websocket server. It
// returns once all of them have stopped.
func (h *Hub) Run(ctx context.Context) error {
	if err := h.nodes.Load(ctx); err != nil {
		return err
	}
	if err := h.coord.Load(ctx); err != nil {
		return err
	}

	sweepCfg := connection.DefaultSweeperConfig()
	sweepCfg.PingInterval = h.cfg.Liveness.PingInterval
	sweepCfg.SweepInterval = h.cfg.Liveness.SweepInterval
	sweepCfg.ConnectGrace = h.cfg.Liveness.ConnectGrace
	sweeper := connection.NewSweeper(h.conns, sweepCfg, logging.New("sweeper", h.cfg.Instance))
	reaper := mission.NewReaper(h.coord, h.cfg.Liveness.ReapInterval, logging.New("reaper", h.cfg.Instance))
	server := newServer(h, h.cfg.Server.Addr, logging.New("http", h.cfg.Instance))

	h.logger.Info().
		Str("instance", h.cfg.Instance).
		Str("addr", h.cfg.Server.Addr).
		Msg("hub starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error { return reaper.Run(ctx) })
	g.Go(func() error { return server.run(ctx) })

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Error().Err(err).Msg("hub stopped")
		return err
	}
	h.logger.Info().Msg("hub stopped")
	return nil
}

// Status is the operator-facing snapshot served at /status.
type Status struct {
	Instance        string             `json:"instance"`
	Connections     int                `json:"connections"`
	NodesRegistered int                `json:"nodes_registered"`
	NodesHealthy    int                `json:"nodes_healthy"`
	NodesConnected  int                `json:"nodes_connected"`
	ActiveMissions  int                `json:"active_missions"`
	Missions        []mission.Progress `json:"missions,omitempty"`
}

// Status derives the operator snapshot from the registries.
func (h *Hub) Status(ctx context.Context) (Status, error) {
	connStats := h.conns.Stats()
	total, healthy := h.nodes.Count()
	progress, err := h.coord.ProgressSummaries(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Instance:        h.cfg.Instance,
		Connections:     connStats.TotalConnections,
		NodesRegistered: total,
		NodesHealthy:    healthy,
		NodesConnected:  connStats.NodeBound,
		ActiveMissions:  h.coord.ActiveCount(),
		Missions:        progress,
	}, nil
}
