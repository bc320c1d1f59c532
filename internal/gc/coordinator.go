package gc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teresy/marathon/internal/events"
	"github.com/teresy/marathon/internal/logging"
	"github.com/teresy/marathon/internal/metrics"
	"github.com/teresy/marathon/internal/state"
	"github.com/teresy/marathon/internal/storage"
)

// Config configures the GC coordinator.
type Config struct {
	// MaxVersions caps the stored root count and every app and pod
	// version history. Must be positive.
	MaxVersions int

	// ScanBatchSize is the number of pinning roots hydrated per batch
	// during a scan. Default: 32.
	ScanBatchSize int

	// CleaningInterval is how long the coordinator rests after a cycle
	// before accepting the next trigger. Zero disables resting: the
	// coordinator is then always ready.
	CleaningInterval time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		MaxVersions:      25,
		ScanBatchSize:    32,
		CleaningInterval: 30 * time.Second,
	}
}

// Repositories bundles the four stores a coordinator works against.
type Repositories struct {
	Apps        storage.AppRepository
	Pods        storage.PodRepository
	Groups      storage.GroupRepository
	Deployments storage.DeploymentRepository
}

// phase is the coordinator's position in the collection cycle.
type phase int

const (
	phaseResting phase = iota
	phaseReady
	phaseScanning
	phaseCompacting
)

func (p phase) String() string {
	switch p {
	case phaseResting:
		return "resting"
	case phaseReady:
		return "ready"
	case phaseScanning:
		return "scanning"
	case phaseCompacting:
		return "compacting"
	default:
		return "unknown"
	}
}

// Coordinator serializes triggers, store announcements, and task completions
// through a single mailbox goroutine. Message handlers never block; scan and
// compaction run as background tasks whose only effect on the coordinator is
// the completion message they enqueue.
type Coordinator struct {
	cfg       Config
	repos     Repositories
	logger    *logging.Logger
	metrics   *metrics.GCMetrics
	publisher events.Publisher

	mailbox chan message

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc

	// Cycle state below is owned by the run goroutine.
	ctx          context.Context
	phase        phase
	tracked      *trackedWrites
	blocked      *blockedWrites
	timer        *time.Timer
	cycleID      string
	cycleLog     *logging.Logger
	scanDuration time.Duration
}

// NewCoordinator creates a coordinator over the given repositories.
// A nil logger falls back to the global logger, nil metrics register into a
// private registry, and a nil publisher disables event publishing.
func NewCoordinator(cfg Config, repos Repositories, logger *logging.Logger, m *metrics.GCMetrics, publisher events.Publisher) *Coordinator {
	if cfg.MaxVersions <= 0 {
		cfg.MaxVersions = DefaultConfig().MaxVersions
	}
	if cfg.ScanBatchSize <= 0 {
		cfg.ScanBatchSize = DefaultConfig().ScanBatchSize
	}
	if cfg.CleaningInterval < 0 {
		cfg.CleaningInterval = 0
	}
	if logger == nil {
		logger = logging.L()
	}
	if m == nil {
		m = metrics.NewGCMetricsWithRegistry(prometheus.NewRegistry())
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Coordinator{
		cfg:       cfg,
		repos:     repos,
		logger:    logger,
		metrics:   m,
		publisher: publisher,
		mailbox:   make(chan message, 1024),
	}
}

// Start launches the coordinator goroutine.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	c.ctx = ctx
	c.cancel = cancel
	c.mu.Unlock()

	go c.run()
}

// Stop shuts the coordinator down and waits for the goroutine to exit.
// Every writer still waiting on a handle is acknowledged before return;
// in-flight scan or compaction tasks are cancelled.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	c.cancel()
	c.mu.Unlock()

	<-c.doneCh

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// RunGC asks the coordinator to start a collection cycle. Triggers are
// coalesced: any number of requests during an active cycle queue at most one
// follow-up cycle, and requests while resting are dropped.
func (c *Coordinator) RunGC() {
	c.enqueue(runGCMsg{})
}

// StoreApp announces a successfully stored app. A nil version announces the
// app itself; otherwise the specific version that was written.
func (c *Coordinator) StoreApp(id state.PathID, version *state.Version) *Handle {
	h := newHandle()
	c.enqueue(storeAppMsg{id: id, version: version, handle: h})
	return h
}

// StorePod announces a successfully stored pod, symmetrically to StoreApp.
func (c *Coordinator) StorePod(id state.PathID, version *state.Version) *Handle {
	h := newHandle()
	c.enqueue(storePodMsg{id: id, version: version, handle: h})
	return h
}

// StoreRoot announces a successfully stored root snapshot.
func (c *Coordinator) StoreRoot(root state.RootSnapshot) *Handle {
	h := newHandle()
	c.enqueue(storeRootMsg{root: root, handle: h})
	return h
}

// StorePlan announces a successfully stored deployment plan. The handle
// resolves once both of the plan's roots are safe to acknowledge.
func (c *Coordinator) StorePlan(plan state.Plan) *Handle {
	h := newHandle()
	c.enqueue(storePlanMsg{plan: plan, handle: h})
	return h
}

// enqueue delivers a message to the run goroutine. Once the coordinator is
// stopped (or stopping), store announcements resolve immediately so no
// writer is left hanging.
func (c *Coordinator) enqueue(msg message) {
	c.mu.Lock()
	running := c.running
	stopCh := c.stopCh
	c.mu.Unlock()

	if !running {
		resolveMessage(msg)
		return
	}
	select {
	case c.mailbox <- msg:
	case <-stopCh:
		resolveMessage(msg)
	}
}

func (c *Coordinator) run() {
	defer close(c.doneCh)

	if c.cfg.CleaningInterval > 0 {
		c.enterResting()
	} else {
		c.phase = phaseReady
	}

	for {
		select {
		case <-c.stopCh:
			c.shutdown()
			return
		case msg := <-c.mailbox:
			c.dispatch(msg)
		}
	}
}

func (c *Coordinator) dispatch(msg message) {
	switch m := msg.(type) {
	case wakeUpMsg:
		if c.phase == phaseResting {
			c.phase = phaseReady
		}
	case runGCMsg:
		switch c.phase {
		case phaseResting:
			// Dropped: resting exists to save this work.
		case phaseReady:
			c.startScan()
		case phaseScanning:
			c.tracked.gcRequested = true
		case phaseCompacting:
			c.blocked.gcRequested = true
		}
	case scanDoneMsg:
		if c.phase == phaseScanning {
			c.onScanDone(m)
		}
	case compactDoneMsg:
		if c.phase == phaseCompacting {
			c.onCompactDone(m)
		}
	case storeAppMsg:
		c.onStoreApp(m)
	case storePodMsg:
		c.onStorePod(m)
	case storeRootMsg:
		c.onStoreRoot(m)
	case storePlanMsg:
		c.onStorePlan(m)
	}
}

func (c *Coordinator) onStoreApp(m storeAppMsg) {
	switch c.phase {
	case phaseScanning:
		c.tracked.noteApp(m.id, m.version)
		m.handle.resolve()
	case phaseCompacting:
		if c.blocked.shouldPinApp(m.id, m.version) {
			c.blocked.pin(m.handle)
			c.metrics.RecordBlockedWriters(len(c.blocked.pending))
		} else {
			m.handle.resolve()
		}
	default:
		m.handle.resolve()
	}
}

func (c *Coordinator) onStorePod(m storePodMsg) {
	switch c.phase {
	case phaseScanning:
		c.tracked.notePod(m.id, m.version)
		m.handle.resolve()
	case phaseCompacting:
		if c.blocked.shouldPinPod(m.id, m.version) {
			c.blocked.pin(m.handle)
			c.metrics.RecordBlockedWriters(len(c.blocked.pending))
		} else {
			m.handle.resolve()
		}
	default:
		m.handle.resolve()
	}
}

func (c *Coordinator) onStoreRoot(m storeRootMsg) {
	switch c.phase {
	case phaseScanning:
		c.tracked.noteRoot(m.root)
		m.handle.resolve()
	case phaseCompacting:
		c.admitRoot(m.root, m.handle)
	default:
		m.handle.resolve()
	}
}

// onStorePlan decomposes a plan announcement into one announcement per
// root. During compaction each root is pinned or released independently and
// the plan's handle resolves when both have resolved.
func (c *Coordinator) onStorePlan(m storePlanMsg) {
	switch c.phase {
	case phaseScanning:
		c.tracked.notePlan(m.plan)
		m.handle.resolve()
	case phaseCompacting:
		original := newHandle()
		target := newHandle()
		c.admitRoot(m.plan.Original, original)
		c.admitRoot(m.plan.Target, target)
		outer := m.handle
		go func() {
			<-original.Done()
			<-target.Done()
			outer.resolve()
		}()
	default:
		m.handle.resolve()
	}
}

func (c *Coordinator) admitRoot(root state.RootSnapshot, h *Handle) {
	if c.blocked.shouldPinRoot(root) {
		c.blocked.pin(h)
		c.metrics.RecordBlockedWriters(len(c.blocked.pending))
		return
	}
	h.resolve()
}

func (c *Coordinator) startScan() {
	c.phase = phaseScanning
	c.tracked = newTrackedWrites()
	c.cycleID = uuid.NewString()
	c.cycleLog = c.logger.WithCorrelationID(c.cycleID)
	c.cycleLog.Infof("gc scan started", map[string]any{
		"maxVersions":   c.cfg.MaxVersions,
		"scanBatchSize": c.cfg.ScanBatchSize,
	})

	s := &scanner{
		apps:        c.repos.Apps,
		pods:        c.repos.Pods,
		groups:      c.repos.Groups,
		deployments: c.repos.Deployments,
		maxVersions: c.cfg.MaxVersions,
		batchSize:   c.cfg.ScanBatchSize,
		logger:      c.cycleLog,
	}
	ctx := c.ctx
	logger := c.cycleLog
	go func() {
		start := time.Now()
		result, err := s.scan(ctx)
		elapsed := time.Since(start)
		if err != nil {
			logger.Warnf("gc scan failed", map[string]any{"error": err.Error()})
			result = state.EmptyScanResult()
		}
		c.metrics.ObserveScan(elapsed)
		c.enqueue(scanDoneMsg{result: result, duration: elapsed})
	}()
}

func (c *Coordinator) onScanDone(m scanDoneMsg) {
	tracked := c.tracked
	c.tracked = nil
	c.scanDuration = m.duration

	if m.result.IsEmpty() {
		c.cycleLog.Info("gc scan found nothing to delete")
		if tracked.gcRequested {
			c.startScan()
		} else {
			c.enterIdle()
		}
		return
	}

	effective := tracked.filter(m.result)
	c.blocked = newBlockedWrites(effective, tracked.gcRequested)
	c.phase = phaseCompacting
	c.cycleLog.Infof("gc compaction started", map[string]any{
		"candidates": m.result.Counts(),
		"effective":  effective.Counts(),
	})

	comp := &compactor{
		apps:   c.repos.Apps,
		pods:   c.repos.Pods,
		groups: c.repos.Groups,
		logger: c.cycleLog,
	}
	ctx := c.ctx
	go func() {
		start := time.Now()
		comp.run(ctx, effective)
		elapsed := time.Since(start)
		c.metrics.ObserveCompaction(elapsed)
		c.enqueue(compactDoneMsg{duration: elapsed, counts: effective.Counts()})
	}()
}

func (c *Coordinator) onCompactDone(m compactDoneMsg) {
	blocked := c.blocked
	c.blocked = nil

	released := len(blocked.pending)
	blocked.releaseAll()
	c.metrics.RecordBlockedWriters(0)
	c.metrics.RecordRun()
	c.metrics.RecordDeleted(m.counts.Apps, m.counts.AppVersions, m.counts.Pods, m.counts.PodVersions, m.counts.Roots)

	c.cycleLog.Infof("gc cycle completed", map[string]any{
		"deleted":         m.counts,
		"releasedWriters": released,
	})
	c.publisher.PublishCycle(c.ctx, events.CycleEvent{
		CycleID:              c.cycleID,
		CompletedAt:          time.Now().UTC(),
		ScanDurationMs:       c.scanDuration.Milliseconds(),
		CompactionDurationMs: m.duration.Milliseconds(),
		Deleted:              m.counts,
	})

	if blocked.gcRequested {
		c.startScan()
	} else {
		c.enterIdle()
	}
}

func (c *Coordinator) enterIdle() {
	if c.cfg.CleaningInterval > 0 {
		c.enterResting()
	} else {
		c.phase = phaseReady
	}
}

func (c *Coordinator) enterResting() {
	c.phase = phaseResting
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cfg.CleaningInterval, func() {
		c.enqueue(wakeUpMsg{})
	})
}

// shutdown acknowledges every writer still waiting so no caller hangs on a
// handle after Stop.
func (c *Coordinator) shutdown() {
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.blocked != nil {
		c.blocked.releaseAll()
		c.blocked = nil
	}
	for {
		select {
		case msg := <-c.mailbox:
			resolveMessage(msg)
		default:
			return
		}
	}
}
