package mission

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hivegrid/hub/internal/connection"
	"github.com/hivegrid/hub/internal/fault"
	"github.com/hivegrid/hub/internal/node"
	"github.com/hivegrid/hub/pkg/store"
	"github.com/hivegrid/hub/pkg/wire"
)

// Validator is an optional pre-dispatch hook. When configured, the
// coordinator consults it before assigning a task; a rejection leaves the
// task pending for a later round rather than failing the mission.
type Validator interface {
	ValidateParameters(ctx context.Context, taskType string, params json.RawMessage) error
}

// Coordinator owns mission lifecycles: creation, the state machine,
// capability-based task assignment, result bookkeeping and coordination
// event relay.
//
// The store is the source of truth; the in-memory map is a cache rebuilt by
// Load after a restart. Each mission carries its own lock so long dispatch
// fan-outs on one mission never stall progress on another.
type Coordinator struct {
	store     store.Store
	publisher store.Publisher // optional event mirror, may be nil
	nodes     *node.Registry
	conns     *connection.Registry
	validator Validator // may be nil
	logger    zerolog.Logger

	mu       sync.RWMutex
	missions map[string]*missionState

	now func() time.Time
}

type missionState struct {
	mu      sync.Mutex
	mission *Mission
}

// NewCoordinator builds a Coordinator over the given collaborators.
// publisher and validator may be nil.
func NewCoordinator(st store.Store, pub store.Publisher, nodes *node.Registry, conns *connection.Registry, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:     st,
		publisher: pub,
		nodes:     nodes,
		conns:     conns,
		logger:    logger,
		missions:  make(map[string]*missionState),
		now:       time.Now,
	}
}

// SetValidator installs the optional pre-dispatch hook. It must be called
// during wiring, before any assignment round runs; the field is read by
// AssignTasks without synchronization.
func (c *Coordinator) SetValidator(v Validator) {
	c.validator = v
}

// Load rebuilds the mission cache from the store. Records that fail to
// decode are skipped with a warning so one corrupt entry cannot block
// recovery of the rest.
func (c *Coordinator) Load(ctx context.Context) error {
	ids, err := c.store.MembersOf(ctx, store.MissionsSetKey)
	if err != nil {
		return fault.Wrap(fault.KindStoreFailure, err, "loading mission index")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		raw, err := c.store.Get(ctx, store.MissionKey(id))
		if err != nil {
			if fault.IsNotFound(err) {
				continue
			}
			return fault.Wrap(fault.KindStoreFailure, err, "loading mission %s", id)
		}
		var m Mission
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			c.logger.Warn().Str("mission_id", id).Err(err).Msg("skipping undecodable mission record")
			continue
		}
		c.missions[m.ID] = &missionState{mission: &m}
	}
	c.logger.Info().Int("missions", len(c.missions)).Msg("mission cache rebuilt")
	return nil
}

// Create validates and persists a new mission in the planned state.
func (c *Coordinator) Create(ctx context.Context, spec Spec) (Mission, error) {
	if err := validateSpec(spec, c.now()); err != nil {
		return Mission{}, err
	}

	now := c.now()
	m := &Mission{
		ID:                  uuid.New().String(),
		Name:                spec.Name,
		Type:                spec.Type,
		Domain:              spec.Domain,
		Priority:            spec.Priority,
		Status:              StatusPlanned,
		TotalTasks:          len(spec.Tasks),
		ParticipatingNodes:  []string{},
		CreatedAt:           now,
		Deadline:            spec.Deadline,
		AllowPartialSuccess: spec.AllowPartialSuccess,
		CreatedBy:           spec.CreatedBy,
		Tags:                spec.Tags,
	}
	if m.Priority == "" {
		m.Priority = PriorityMedium
	}
	for _, ts := range spec.Tasks {
		id := ts.ID
		if id == "" {
			id = uuid.New().String()
		}
		m.Tasks = append(m.Tasks, &Task{
			ID:                   id,
			Name:                 ts.Name,
			Type:                 ts.Type,
			RequiredCapabilities: ts.RequiredCapabilities,
			Parameters:           ts.Parameters,
			Dependencies:         ts.Dependencies,
			MaxRetries:           ts.MaxRetries,
			Status:               TaskPending,
		})
	}
	if err := validateDependencies(m); err != nil {
		return Mission{}, err
	}

	if err := c.persist(ctx, m); err != nil {
		return Mission{}, err
	}
	if err := c.store.AddToSet(ctx, store.MissionsSetKey, m.ID); err != nil {
		return Mission{}, fault.Wrap(fault.KindStoreFailure, err, "indexing mission %s", m.ID)
	}

	c.mu.Lock()
	c.missions[m.ID] = &missionState{mission: m}
	c.mu.Unlock()

	c.logger.Info().
		Str("mission_id", m.ID).
		Str("name", m.Name).
		Int("tasks", m.TotalTasks).
		Msg("mission created")
	return *snapshotMission(m), nil
}

// Start moves a planned mission to active and runs a first assignment round.
func (c *Coordinator) Start(ctx context.Context, missionID, startedBy string) (Mission, error) {
	ms, err := c.state(missionID)
	if err != nil {
		return Mission{}, err
	}

	ms.mu.Lock()
	m := ms.mission
	if expired, err := c.expireIfDueLocked(ctx, m); expired || err != nil {
		ms.mu.Unlock()
		if err != nil {
			return Mission{}, err
		}
		return Mission{}, fault.InvalidState("mission %s has expired", missionID)
	}
	if !m.Status.CanTransition(StatusActive) {
		ms.mu.Unlock()
		return Mission{}, fault.InvalidState("cannot start mission %s in state %s", missionID, m.Status)
	}
	m.Status = StatusActive
	m.StartedAt = c.now()
	if startedBy != "" {
		m.CoordinatorNodeID = startedBy
	}
	if err := c.persist(ctx, m); err != nil {
		ms.mu.Unlock()
		return Mission{}, err
	}
	if err := c.store.AddToSet(ctx, store.ActiveMissionsSetKey, m.ID); err != nil {
		c.logger.Warn().Str("mission_id", m.ID).Err(err).Msg("failed to index active mission")
	}
	ms.mu.Unlock()

	c.logger.Info().Str("mission_id", missionID).Str("started_by", startedBy).Msg("mission started")
	if _, err := c.AssignTasks(ctx, missionID); err != nil {
		// Assignment failures never roll the mission back; the next
		// round retries.
		c.logger.Warn().Str("mission_id", missionID).Err(err).Msg("initial assignment round failed")
	}
	return c.Get(ctx, missionID)
}

// Pause suspends dispatch for an active mission. In-flight tasks are not
// recalled; nodes finish what they already hold.
func (c *Coordinator) Pause(ctx context.Context, missionID string) error {
	return c.transition(ctx, missionID, StatusPaused, "mission paused")
}

// Resume reactivates a paused mission and runs an assignment round.
func (c *Coordinator) Resume(ctx context.Context, missionID string) error {
	ms, err := c.state(missionID)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	m := ms.mission
	if m.Status != StatusPaused {
		ms.mu.Unlock()
		return fault.InvalidState("cannot resume mission %s in state %s", missionID, m.Status)
	}
	m.Status = StatusActive
	if err := c.persist(ctx, m); err != nil {
		ms.mu.Unlock()
		return err
	}
	ms.mu.Unlock()

	c.logger.Info().Str("mission_id", missionID).Msg("mission resumed")
	if _, err := c.AssignTasks(ctx, missionID); err != nil {
		c.logger.Warn().Str("mission_id", missionID).Err(err).Msg("resume assignment round failed")
	}
	return nil
}

// Cancel terminates a mission from any non-terminal state.
func (c *Coordinator) Cancel(ctx context.Context, missionID string) error {
	return c.transition(ctx, missionID, StatusCancelled, "mission cancelled")
}

// transition applies a simple status change with no side effects beyond
// persistence and active-index maintenance.
func (c *Coordinator) transition(ctx context.Context, missionID string, next Status, logMsg string) error {
	ms, err := c.state(missionID)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	m := ms.mission
	if !m.Status.CanTransition(next) {
		return fault.InvalidState("cannot move mission %s from %s to %s", missionID, m.Status, next)
	}
	m.Status = next
	if next.Terminal() {
		m.CompletedAt = c.now()
	}
	if err := c.persist(ctx, m); err != nil {
		return err
	}
	if next.Terminal() {
		if err := c.store.RemoveFromSet(ctx, store.ActiveMissionsSetKey, m.ID); err != nil {
			c.logger.Warn().Str("mission_id", m.ID).Err(err).Msg("failed to drop mission from active index")
		}
	}
	c.logger.Info().Str("mission_id", missionID).Str("status", string(next)).Msg(logMsg)
	return nil
}

// AssignTasks runs one assignment round: every pending task whose
// dependencies have completed is matched to a capable, live node. The round
// is idempotent; already-assigned tasks are never reassigned. Returns the
// number of tasks assigned this round.
//
// Candidate selection is deterministic: among capable non-stale nodes the
// coordinator prefers the one holding the fewest in-flight tasks across all
// missions, breaking ties by earliest registration, then node ID.
func (c *Coordinator) AssignTasks(ctx context.Context, missionID string) (int, error) {
	ms, err := c.state(missionID)
	if err != nil {
		return 0, err
	}

	candidates, err := c.nodes.List(ctx, node.Filter{})
	if err != nil {
		return 0, err
	}
	inFlight := c.inFlightCounts()

	type dispatch struct {
		nodeID  string
		payload []byte
	}
	var dispatches []dispatch

	ms.mu.Lock()
	m := ms.mission
	if expired, err := c.expireIfDueLocked(ctx, m); expired || err != nil {
		ms.mu.Unlock()
		if err != nil {
			return 0, err
		}
		return 0, fault.InvalidState("mission %s has expired", missionID)
	}
	if m.Status != StatusActive {
		ms.mu.Unlock()
		return 0, fault.InvalidState("cannot assign tasks for mission %s in state %s", missionID, m.Status)
	}

	assigned := 0
	for _, t := range m.Tasks {
		if t.Status != TaskPending || !m.dependenciesMet(t) {
			continue
		}
		if c.validator != nil {
			if err := c.validator.ValidateParameters(ctx, t.Type, t.Parameters); err != nil {
				c.logger.Warn().
					Str("mission_id", m.ID).
					Str("task_id", t.ID).
					Err(err).
					Msg("task parameters rejected, leaving pending")
				continue
			}
		}
		best := pickNode(candidates, t.RequiredCapabilities, inFlight)
		if best == nil {
			c.logger.Debug().
				Str("mission_id", m.ID).
				Str("task_id", t.ID).
				Strs("required", t.RequiredCapabilities).
				Msg("no capable node available")
			continue
		}

		t.Status = TaskAssigned
		t.AssignedNodeID = best.ID
		t.StartedAt = c.now()
		inFlight[best.ID]++
		if !contains(m.ParticipatingNodes, best.ID) {
			m.ParticipatingNodes = append(m.ParticipatingNodes, best.ID)
		}
		assigned++

		env, err := wire.New(wire.TypeTaskAssigned, wire.TaskAssignedPayload{
			MissionID:  m.ID,
			TaskID:     t.ID,
			TaskType:   t.Type,
			Parameters: t.Parameters,
		})
		if err != nil {
			c.logger.Error().Str("task_id", t.ID).Err(err).Msg("failed to build assignment envelope")
			continue
		}
		payload, err := env.Encode()
		if err != nil {
			c.logger.Error().Str("task_id", t.ID).Err(err).Msg("failed to encode assignment envelope")
			continue
		}
		dispatches = append(dispatches, dispatch{nodeID: best.ID, payload: payload})
	}

	var persistErr error
	if assigned > 0 {
		persistErr = c.persist(ctx, m)
	}
	ms.mu.Unlock()
	if persistErr != nil {
		return 0, persistErr
	}

	// Delivery is best effort: a node that registered but has no live
	// connection keeps the assignment and learns of it on reconnect or
	// via the event mirror.
	for _, d := range dispatches {
		if err := c.conns.SendToNode(ctx, d.nodeID, d.payload); err != nil {
			c.logger.Debug().
				Str("node_id", d.nodeID).
				Err(err).
				Msg("assignment not delivered over live connection")
		}
		c.publishMirror(ctx, d.payload)
	}

	if assigned > 0 {
		c.logger.Info().Str("mission_id", missionID).Int("assigned", assigned).Msg("assignment round complete")
	}
	return assigned, nil
}

// ReportTaskResult records a node's report for a task. in_progress reports
// update task progress only; completed, failed and skipped settle the task
// and may settle the mission. A failed task with retry budget left is
// requeued to pending instead of counting as failed.
func (c *Coordinator) ReportTaskResult(ctx context.Context, missionID, taskID string, status TaskStatus, progress float64, result json.RawMessage, errMsg string) (Mission, error) {
	if err := status.Validate(); err != nil {
		return Mission{}, fault.New(fault.KindInvalidState, "%v", err)
	}
	switch status {
	case TaskPending, TaskAssigned:
		return Mission{}, fault.InvalidState("nodes cannot report task status %s", status)
	}

	ms, err := c.state(missionID)
	if err != nil {
		return Mission{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	m := ms.mission
	if m.Status.Terminal() {
		return Mission{}, fault.InvalidState("mission %s is %s and accepts no further results", missionID, m.Status)
	}
	t := m.task(taskID)
	if t == nil {
		return Mission{}, fault.NotFound("task %s not found in mission %s", taskID, missionID)
	}
	if t.Status != TaskAssigned && t.Status != TaskInProgress {
		return Mission{}, fault.InvalidState("task %s is %s and accepts no result", taskID, t.Status)
	}

	now := c.now()
	switch status {
	case TaskInProgress:
		t.Status = TaskInProgress
		if progress > 0 {
			t.ProgressPercent = progress
		}

	case TaskCompleted:
		t.Status = TaskCompleted
		t.ProgressPercent = 100
		t.CompletedAt = now
		t.Result = result
		m.CompletedTasks++
		if result != nil {
			if m.Results == nil {
				m.Results = make(map[string]json.RawMessage)
			}
			m.Results[taskID] = result
		}

	case TaskFailed:
		t.RetryCount++
		if t.RetryCount <= t.MaxRetries {
			// Requeue for the next assignment round.
			t.Status = TaskPending
			t.AssignedNodeID = ""
			t.Error = errMsg
			c.logger.Info().
				Str("mission_id", missionID).
				Str("task_id", taskID).
				Int("retry", t.RetryCount).
				Int("max_retries", t.MaxRetries).
				Msg("task failed, requeued for retry")
		} else {
			t.Status = TaskFailed
			t.CompletedAt = now
			t.Error = errMsg
			m.FailedTasks++
		}

	case TaskSkipped:
		t.Status = TaskSkipped
		t.CompletedAt = now
	}

	c.settleLocked(m, now)
	m.recomputeProgress()

	if err := c.persist(ctx, m); err != nil {
		return Mission{}, err
	}
	if m.Status.Terminal() {
		if err := c.store.RemoveFromSet(ctx, store.ActiveMissionsSetKey, m.ID); err != nil {
			c.logger.Warn().Str("mission_id", m.ID).Err(err).Msg("failed to drop mission from active index")
		}
		c.logger.Info().
			Str("mission_id", m.ID).
			Str("status", string(m.Status)).
			Int("completed", m.CompletedTasks).
			Int("failed", m.FailedTasks).
			Msg("mission settled")
	}
	return *snapshotMission(m), nil
}

// settleLocked moves an active mission to its terminal state once every task
// has settled. Skipped tasks count toward neither completed nor failed but
// do count as settled.
func (c *Coordinator) settleLocked(m *Mission, now time.Time) {
	if m.Status != StatusActive {
		return
	}
	settled := 0
	for _, t := range m.Tasks {
		if t.Status.Terminal() {
			settled++
		}
	}
	if settled < m.TotalTasks {
		// A task that exhausted its retries fails the whole mission
		// immediately unless partial success is allowed.
		if m.FailedTasks > 0 && !m.AllowPartialSuccess {
			m.Status = StatusFailed
			m.CompletedAt = now
		}
		return
	}
	if m.FailedTasks > 0 && !m.AllowPartialSuccess {
		m.Status = StatusFailed
	} else {
		m.Status = StatusCompleted
	}
	m.CompletedAt = now
}

// SendCoordinationEvent relays an event between mission participants. The
// relay mutates no mission state; delivery is best effort. Explicit targets
// take precedence over the participant broadcast.
func (c *Coordinator) SendCoordinationEvent(ctx context.Context, missionID string, ev Event) (int, error) {
	ms, err := c.state(missionID)
	if err != nil {
		return 0, err
	}
	ms.mu.Lock()
	participants := append([]string(nil), ms.mission.ParticipatingNodes...)
	ms.mu.Unlock()

	env, err := wire.New(wire.TypeCoordinationEvent, wire.CoordinationPayload{
		MissionID:     missionID,
		EventType:     ev.EventType,
		Message:       ev.Message,
		Data:          ev.Data,
		TargetNodeIDs: ev.TargetNodeIDs,
	})
	if err != nil {
		return 0, fault.Internal(err, "building coordination envelope")
	}
	env.SourceID = ev.SourceNodeID
	payload, err := env.Encode()
	if err != nil {
		return 0, fault.Internal(err, "encoding coordination envelope")
	}

	targets := ev.TargetNodeIDs
	if len(targets) == 0 {
		targets = participants
	}
	delivered := 0
	for _, nodeID := range targets {
		if nodeID == ev.SourceNodeID {
			continue
		}
		if err := c.conns.SendToNode(ctx, nodeID, payload); err != nil {
			c.logger.Debug().Str("node_id", nodeID).Err(err).Msg("coordination event not delivered")
			continue
		}
		delivered++
	}
	c.publishMirror(ctx, payload)

	c.logger.Debug().
		Str("mission_id", missionID).
		Str("event_type", ev.EventType).
		Int("delivered", delivered).
		Msg("coordination event relayed")
	return delivered, nil
}

// Get returns a snapshot of one mission, applying lazy deadline expiry.
func (c *Coordinator) Get(ctx context.Context, missionID string) (Mission, error) {
	ms, err := c.state(missionID)
	if err != nil {
		return Mission{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, err := c.expireIfDueLocked(ctx, ms.mission); err != nil {
		return Mission{}, err
	}
	return *snapshotMission(ms.mission), nil
}

// List returns snapshots of all missions, optionally filtered by status.
func (c *Coordinator) List(ctx context.Context, statusFilter Status) ([]Mission, error) {
	c.mu.RLock()
	states := make([]*missionState, 0, len(c.missions))
	for _, ms := range c.missions {
		states = append(states, ms)
	}
	c.mu.RUnlock()

	out := make([]Mission, 0, len(states))
	for _, ms := range states {
		ms.mu.Lock()
		if _, err := c.expireIfDueLocked(ctx, ms.mission); err != nil {
			ms.mu.Unlock()
			return nil, err
		}
		if statusFilter == "" || ms.mission.Status == statusFilter {
			out = append(out, *snapshotMission(ms.mission))
		}
		ms.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ProgressSummaries reports per-mission progress for the status surface.
func (c *Coordinator) ProgressSummaries(ctx context.Context) ([]Progress, error) {
	missions, err := c.List(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]Progress, 0, len(missions))
	for _, m := range missions {
		out = append(out, Progress{
			MissionID:       m.ID,
			Name:            m.Name,
			Status:          m.Status,
			ProgressPercent: m.ProgressPercent,
			CompletedTasks:  m.CompletedTasks,
			FailedTasks:     m.FailedTasks,
			TotalTasks:      m.TotalTasks,
		})
	}
	return out, nil
}

// ActiveCount reports how many cached missions are currently active.
func (c *Coordinator) ActiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, ms := range c.missions {
		ms.mu.Lock()
		if ms.mission.Status == StatusActive {
			n++
		}
		ms.mu.Unlock()
	}
	return n
}

// expireIfDueLocked applies lazy deadline expiry. Caller holds ms.mu.
func (c *Coordinator) expireIfDueLocked(ctx context.Context, m *Mission) (bool, error) {
	if m.Status.Terminal() || m.Deadline.IsZero() || !c.now().After(m.Deadline) {
		return false, nil
	}
	m.Status = StatusExpired
	m.CompletedAt = c.now()
	if err := c.persist(ctx, m); err != nil {
		return false, err
	}
	if err := c.store.RemoveFromSet(ctx, store.ActiveMissionsSetKey, m.ID); err != nil {
		c.logger.Warn().Str("mission_id", m.ID).Err(err).Msg("failed to drop expired mission from active index")
	}
	c.logger.Info().Str("mission_id", m.ID).Time("deadline", m.Deadline).Msg("mission expired")
	return true, nil
}

// state looks up the cached aggregate for a mission.
func (c *Coordinator) state(missionID string) (*missionState, error) {
	c.mu.RLock()
	ms, ok := c.missions[missionID]
	c.mu.RUnlock()
	if !ok {
		return nil, fault.NotFound("mission %s not found", missionID)
	}
	return ms, nil
}

// persist writes the mission record to the store. Caller holds ms.mu.
func (c *Coordinator) persist(ctx context.Context, m *Mission) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fault.Internal(err, "encoding mission %s", m.ID)
	}
	if err := c.store.Set(ctx, store.MissionKey(m.ID), string(data), 0); err != nil {
		return fault.Wrap(fault.KindStoreFailure, err, "persisting mission %s", m.ID)
	}
	return nil
}

// publishMirror copies an already-encoded envelope onto the mission event
// channel. Best effort; mirror failures never fail the operation.
func (c *Coordinator) publishMirror(ctx context.Context, payload []byte) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, store.MissionEventsChannel, payload); err != nil {
		c.logger.Warn().Err(err).Msg("failed to mirror event to store channel")
	}
}

// inFlightCounts tallies assigned and in-progress tasks per node across all
// cached missions, for the assignment tie-break.
func (c *Coordinator) inFlightCounts() map[string]int {
	counts := make(map[string]int)
	c.mu.RLock()
	states := make([]*missionState, 0, len(c.missions))
	for _, ms := range c.missions {
		states = append(states, ms)
	}
	c.mu.RUnlock()
	for _, ms := range states {
		ms.mu.Lock()
		for _, t := range ms.mission.Tasks {
			if t.Status == TaskAssigned || t.Status == TaskInProgress {
				counts[t.AssignedNodeID]++
			}
		}
		ms.mu.Unlock()
	}
	return counts
}

// pickNode selects the assignment target: capable, not stale, not offline,
// fewest in-flight tasks, then earliest registration, then node ID.
func pickNode(candidates []node.Info, required []string, inFlight map[string]int) *node.Info {
	var best *node.Info
	for i := range candidates {
		n := &candidates[i]
		if n.Stale || n.Status == node.StatusOffline {
			continue
		}
		if !n.HasCapabilities(required) {
			continue
		}
		if best == nil || lessLoaded(n, best, inFlight) {
			best = n
		}
	}
	return best
}

func lessLoaded(a, b *node.Info, inFlight map[string]int) bool {
	la, lb := inFlight[a.ID], inFlight[b.ID]
	if la != lb {
		return la < lb
	}
	if !a.RegisteredAt.Equal(b.RegisteredAt) {
		return a.RegisteredAt.Before(b.RegisteredAt)
	}
	return a.ID < b.ID
}

func validateSpec(spec Spec, now time.Time) error {
	if spec.Name == "" {
		return fault.New(fault.KindInvalidState, "mission name cannot be empty")
	}
	if len(spec.Tasks) == 0 {
		return fault.New(fault.KindInvalidState, "mission must define at least one task")
	}
	if spec.Priority != "" {
		if err := spec.Priority.Validate(); err != nil {
			return fault.New(fault.KindInvalidState, "%v", err)
		}
	}
	if !spec.Deadline.IsZero() && !spec.Deadline.After(now) {
		return fault.New(fault.KindInvalidState, "mission deadline must be in the future")
	}
	if !spec.ScheduledStart.IsZero() && !spec.ScheduledStart.After(now) {
		return fault.New(fault.KindInvalidState, "mission scheduled start must be in the future")
	}
	for _, t := range spec.Tasks {
		if t.Name == "" || t.Type == "" {
			return fault.New(fault.KindInvalidState, "every task needs a name and a type")
		}
		if t.MaxRetries < 0 {
			return fault.New(fault.KindInvalidState, "task max_retries cannot be negative")
		}
	}
	return nil
}

// validateDependencies checks that every dependency names a task in the same
// mission and that no task depends on itself.
func validateDependencies(m *Mission) error {
	ids := make(map[string]bool, len(m.Tasks))
	for _, t := range m.Tasks {
		if ids[t.ID] {
			return fault.Conflict("duplicate task id %s", t.ID)
		}
		ids[t.ID] = true
	}
	for _, t := range m.Tasks {
		for _, dep := range t.Dependencies {
			if dep == t.ID {
				return fault.New(fault.KindInvalidState, "task %s cannot depend on itself", t.ID)
			}
			if !ids[dep] {
				return fault.New(fault.KindInvalidState, "task %s depends on unknown task %s", t.ID, dep)
			}
		}
	}
	return nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// snapshotMission deep-copies a mission for return to callers.
func snapshotMission(m *Mission) *Mission {
	cp := *m
	cp.Tasks = make([]*Task, len(m.Tasks))
	for i, t := range m.Tasks {
		tc := *t
		cp.Tasks[i] = &tc
	}
	cp.ParticipatingNodes = append([]string(nil), m.ParticipatingNodes...)
	cp.Tags = append([]string(nil), m.Tags...)
	if m.Results != nil {
		cp.Results = make(map[string]json.RawMessage, len(m.Results))
		for k, v := range m.Results {
			cp.Results[k] = v
		}
	}
	return &cp
}
