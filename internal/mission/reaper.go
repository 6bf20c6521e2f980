package mission

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hivegrid/hub/internal/fault"
)

// defaultReapInterval paces the background requeue scan.
const defaultReapInterval = 60 * time.Second

// Reaper periodically requeues tasks whose assigned node has gone stale or
// unregistered, then reruns assignment so the work lands on a live node.
// Without it, one dead node would strand its tasks forever.
type Reaper struct {
	coord    *Coordinator
	interval time.Duration
	logger   zerolog.Logger
}

// NewReaper builds a Reaper. A non-positive interval uses the default.
func NewReaper(coord *Coordinator, interval time.Duration, logger zerolog.Logger) *Reaper {
	if interval <= 0 {
		interval = defaultReapInterval
	}
	return &Reaper{coord: coord, interval: interval, logger: logger}
}

// Run scans until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("task reaper started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("task reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			requeued, err := r.coord.ReapStaleAssignments(ctx)
			if err != nil {
				r.logger.Warn().Err(err).Msg("reap pass failed")
				continue
			}
			if requeued > 0 {
				r.logger.Info().Int("requeued", requeued).Msg("reaped stale task assignments")
			}
		}
	}
}

// ReapStaleAssignments requeues every assigned or in-progress task whose
// node is stale or no longer registered, then runs an assignment round for
// each affected mission. Returns the number of tasks requeued.
func (c *Coordinator) ReapStaleAssignments(ctx context.Context) (int, error) {
	c.mu.RLock()
	states := make(map[string]*missionState, len(c.missions))
	for id, ms := range c.missions {
		states[id] = ms
	}
	c.mu.RUnlock()

	requeued := 0
	for missionID, ms := range states {
		n, err := c.reapMission(ctx, ms)
		if err != nil {
			c.logger.Warn().Str("mission_id", missionID).Err(err).Msg("reap pass skipped mission")
			continue
		}
		requeued += n
		if n > 0 {
			if _, err := c.AssignTasks(ctx, missionID); err != nil && !fault.IsKind(err, fault.KindInvalidState) {
				c.logger.Warn().Str("mission_id", missionID).Err(err).Msg("reassignment after reap failed")
			}
		}
	}
	return requeued, nil
}

func (c *Coordinator) reapMission(ctx context.Context, ms *missionState) (int, error) {
	// Node liveness is read outside the mission lock; a node going stale
	// mid-pass is caught next tick.
	type probe struct {
		taskID string
		nodeID string
	}
	ms.mu.Lock()
	m := ms.mission
	if m.Status != StatusActive {
		ms.mu.Unlock()
		return 0, nil
	}
	var probes []probe
	for _, t := range m.Tasks {
		if t.Status == TaskAssigned || t.Status == TaskInProgress {
			probes = append(probes, probe{taskID: t.ID, nodeID: t.AssignedNodeID})
		}
	}
	ms.mu.Unlock()

	dead := make(map[string]bool)
	for _, p := range probes {
		if dead[p.nodeID] {
			continue
		}
		info, err := c.nodes.Get(ctx, p.nodeID)
		if err != nil {
			if fault.IsNotFound(err) {
				dead[p.nodeID] = true
				continue
			}
			return 0, err
		}
		if info.Stale {
			dead[p.nodeID] = true
		}
	}
	if len(dead) == 0 {
		return 0, nil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if m.Status != StatusActive {
		return 0, nil
	}
	requeued := 0
	for _, t := range m.Tasks {
		if (t.Status == TaskAssigned || t.Status == TaskInProgress) && dead[t.AssignedNodeID] {
			c.logger.Info().
				Str("mission_id", m.ID).
				Str("task_id", t.ID).
				Str("node_id", t.AssignedNodeID).
				Msg("requeuing task from dead node")
			t.Status = TaskPending
			t.AssignedNodeID = ""
			t.ProgressPercent = 0
			requeued++
		}
	}
	if requeued == 0 {
		return 0, nil
	}
	if err := c.persist(ctx, m); err != nil {
		return 0, err
	}
	return requeued, nil
}
