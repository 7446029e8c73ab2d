package tasks

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"localtube/internal/domain"
	"localtube/internal/metrics"
)

const (
	completedTaskTTL = 5 * time.Second
	failedTaskTTL    = 30 * time.Second
	sweepInterval    = time.Second

	subscriberBuffer = 100
)

type taskEntry struct {
	id          string
	kind        domain.TaskKind
	title       string
	createdAt   time.Time
	state       domain.TaskState
	failure     string
	completedAt *time.Time
	status      string
}

type kindMetrics struct {
	success             uint64
	failure             uint64
	consecutiveFailures uint64
	lastSuccess         *time.Time
	lastFailure         *time.Time
}

// restartMetrics is the registry-wide VPN restart block. It is surfaced
// under every kind's TaskMetrics view.
type restartMetrics struct {
	count         uint64
	lastStarted   *time.Time
	lastCompleted *time.Time
	lastOutcome   *string
	lastError     *string
	inProgress    bool
}

// TaskSubscription delivers task-list snapshots. A slow subscriber loses
// its oldest pending snapshot so the newest always arrives.
type TaskSubscription struct {
	ch  chan domain.TaskListUpdate
	reg *Registry
}

func (s *TaskSubscription) C() <-chan domain.TaskListUpdate { return s.ch }

func (s *TaskSubscription) Close() { s.reg.dropTaskSub(s) }

// MetricsSubscription delivers metrics snapshots with the same lag
// semantics as TaskSubscription.
type MetricsSubscription struct {
	ch  chan domain.MetricsSnapshot
	reg *Registry
}

func (s *MetricsSubscription) C() <-chan domain.MetricsSnapshot { return s.ch }

func (s *MetricsSubscription) Close() { s.reg.dropMetricsSub(s) }

// Registry tracks every background job from Queued through a terminal
// state, owns the per-kind metrics, and fans out snapshots to
// subscribers. Terminal entries are garbage-collected by Run's sweep.
type Registry struct {
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	tasks map[string]*taskEntry

	metricsMu   sync.RWMutex
	kindMetrics map[domain.TaskKind]*kindMetrics
	restart     restartMetrics

	subMu       sync.Mutex
	taskSubs    map[*TaskSubscription]struct{}
	metricsSubs map[*MetricsSubscription]struct{}

	vpnEnabled           atomic.Bool
	vpnRestartInProgress atomic.Bool
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger,
		now:    time.Now,
		tasks:  make(map[string]*taskEntry),
		kindMetrics: map[domain.TaskKind]*kindMetrics{
			domain.TaskRefreshIndex:  {},
			domain.TaskDownloadVideo: {},
		},
		taskSubs:    make(map[*TaskSubscription]struct{}),
		metricsSubs: make(map[*MetricsSubscription]struct{}),
	}
}

// Add registers a Queued task and returns its handle.
func (r *Registry) Add(kind domain.TaskKind, title string) *QueuedTask {
	id := uuid.NewString()
	entry := &taskEntry{
		id:        id,
		kind:      kind,
		title:     title,
		createdAt: r.now(),
		state:     domain.TaskQueued,
	}
	r.mu.Lock()
	r.tasks[id] = entry
	r.mu.Unlock()

	metrics.TasksStarted.WithLabelValues(string(kind)).Inc()
	r.broadcastTasks()
	return &QueuedTask{id: id, reg: r}
}

func (r *Registry) updateTitle(id, title string) {
	r.mu.Lock()
	if entry, ok := r.tasks[id]; ok {
		entry.title = title
	}
	r.mu.Unlock()
	r.broadcastTasks()
}

func (r *Registry) updateStatus(id, status string) {
	r.mu.Lock()
	if entry, ok := r.tasks[id]; ok {
		entry.status = status
	}
	r.mu.Unlock()
	r.broadcastTasks()
}

func (r *Registry) markStarted(id string) {
	r.mu.Lock()
	if entry, ok := r.tasks[id]; ok {
		entry.state = domain.TaskInProgress
	}
	r.mu.Unlock()
	r.broadcastTasks()
}

func (r *Registry) markCompleted(id string) {
	now := r.now()
	r.mu.Lock()
	if entry, ok := r.tasks[id]; ok {
		entry.state = domain.TaskCompleted
		entry.completedAt = &now
	}
	r.mu.Unlock()
	r.broadcastTasks()
}

func (r *Registry) markFailed(id, message string) {
	now := r.now()
	r.mu.Lock()
	if entry, ok := r.tasks[id]; ok {
		entry.state = domain.TaskFailed
		entry.failure = message
		entry.completedAt = &now
	}
	r.mu.Unlock()
	r.broadcastTasks()
}

// finalize stamps completed_at if absent and settles the metrics for the
// task's final state. The entry stays in the map until the sweep drops it.
func (r *Registry) finalize(id string) {
	now := r.now()

	var kind domain.TaskKind
	var state domain.TaskState
	found := false

	r.mu.Lock()
	if entry, ok := r.tasks[id]; ok {
		if entry.completedAt == nil {
			entry.completedAt = &now
		}
		kind = entry.kind
		state = entry.state
		found = true
	}
	r.mu.Unlock()

	if found {
		r.metricsMu.Lock()
		if data, ok := r.kindMetrics[kind]; ok {
			switch state {
			case domain.TaskCompleted:
				data.success++
				data.consecutiveFailures = 0
				t := now
				data.lastSuccess = &t
			case domain.TaskFailed:
				data.failure++
				data.consecutiveFailures++
				t := now
				data.lastFailure = &t
			}
		}
		r.metricsMu.Unlock()
		metrics.TasksFinished.WithLabelValues(string(kind), string(state)).Inc()
	}

	r.broadcastTasks()
	r.broadcastMetrics()
}

// Run ticks the terminal-entry sweep until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep drops Completed entries older than 5s, Failed entries older than
// 30s, and drop-finalized Queued/InProgress entries older than 5s.
func (r *Registry) sweep() {
	now := r.now()

	r.mu.Lock()
	var expired []string
	for id, entry := range r.tasks {
		if entry.completedAt == nil {
			continue
		}
		ttl := completedTaskTTL
		if entry.state == domain.TaskFailed {
			ttl = failedTaskTTL
		}
		if now.Sub(*entry.completedAt) > ttl {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(r.tasks, id)
	}
	r.mu.Unlock()

	if len(expired) > 0 {
		r.broadcastTasks()
	}
}

// Snapshot returns the current task list, oldest first.
func (r *Registry) Snapshot() domain.TaskListUpdate {
	r.mu.Lock()
	snapshots := make([]domain.TaskSnapshot, 0, len(r.tasks))
	for _, entry := range r.tasks {
		snapshots = append(snapshots, domain.TaskSnapshot{
			ID:        entry.id,
			Kind:      entry.kind,
			Title:     entry.title,
			State:     entry.state,
			Error:     entry.failure,
			Status:    entry.status,
			CreatedAt: entry.createdAt,
		})
	}
	r.mu.Unlock()

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].ID < snapshots[j].ID
		}
		return snapshots[i].CreatedAt.Before(snapshots[j].CreatedAt)
	})
	return domain.TaskListUpdate{Tasks: snapshots}
}

// Metrics returns the current per-kind metrics snapshot.
func (r *Registry) Metrics() domain.MetricsSnapshot {
	now := r.now()

	r.metricsMu.RLock()
	tasks := make(map[domain.TaskKind]domain.TaskMetrics, len(r.kindMetrics))
	restartSecondsAgo := r.restartSecondsAgoLocked(now)
	for kind, data := range r.kindMetrics {
		tasks[kind] = domain.TaskMetrics{
			SuccessCount:          data.success,
			FailureCount:          data.failure,
			ConsecutiveFailures:   data.consecutiveFailures,
			LastSuccessSecondsAgo: secondsSince(now, data.lastSuccess),
			LastFailureSecondsAgo: secondsSince(now, data.lastFailure),
			RestartCount:          r.restart.count,
			LastRestartSecondsAgo: restartSecondsAgo,
			LastRestartOutcome:    r.restart.lastOutcome,
			LastRestartError:      r.restart.lastError,
			RestartInProgress:     r.restart.inProgress,
		}
	}
	r.metricsMu.RUnlock()

	return domain.MetricsSnapshot{Tasks: tasks, VPNEnabled: r.vpnEnabled.Load()}
}

// restartSecondsAgoLocked reads the restart reference instant: the start
// of the running restart while one is in progress, otherwise the last
// completion (falling back to the last start).
func (r *Registry) restartSecondsAgoLocked(now time.Time) *uint64 {
	reference := r.restart.lastCompleted
	if r.restart.inProgress || reference == nil {
		reference = r.restart.lastStarted
	}
	return secondsSince(now, reference)
}

func secondsSince(now time.Time, t *time.Time) *uint64 {
	if t == nil {
		return nil
	}
	elapsed := now.Sub(*t)
	if elapsed < 0 {
		elapsed = 0
	}
	seconds := uint64(elapsed / time.Second)
	return &seconds
}

func (r *Registry) SubscribeTasks() *TaskSubscription {
	sub := &TaskSubscription{ch: make(chan domain.TaskListUpdate, subscriberBuffer), reg: r}
	r.subMu.Lock()
	r.taskSubs[sub] = struct{}{}
	r.subMu.Unlock()
	return sub
}

func (r *Registry) SubscribeMetrics() *MetricsSubscription {
	sub := &MetricsSubscription{ch: make(chan domain.MetricsSnapshot, subscriberBuffer), reg: r}
	r.subMu.Lock()
	r.metricsSubs[sub] = struct{}{}
	r.subMu.Unlock()
	return sub
}

func (r *Registry) dropTaskSub(sub *TaskSubscription) {
	r.subMu.Lock()
	delete(r.taskSubs, sub)
	r.subMu.Unlock()
}

func (r *Registry) dropMetricsSub(sub *MetricsSubscription) {
	r.subMu.Lock()
	delete(r.metricsSubs, sub)
	r.subMu.Unlock()
}

func (r *Registry) broadcastTasks() {
	update := r.Snapshot()
	r.subMu.Lock()
	for sub := range r.taskSubs {
		if !trySend(sub.ch, update) {
			r.logger.Debug("task subscriber lagging, dropped snapshot")
		}
	}
	r.subMu.Unlock()
}

func (r *Registry) broadcastMetrics() {
	snapshot := r.Metrics()
	r.subMu.Lock()
	for sub := range r.metricsSubs {
		if !trySend(sub.ch, snapshot) {
			r.logger.Debug("metrics subscriber lagging, dropped snapshot")
		}
	}
	r.subMu.Unlock()
}

// trySend delivers v, evicting the subscriber's oldest pending value when
// the buffer is full. Returns false when an eviction happened.
func trySend[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
	return false
}

// VPNEnabled reports whether a VPN supervisor is active.
func (r *Registry) VPNEnabled() bool {
	return r.vpnEnabled.Load()
}

// SetVPNEnabled flips supervisor availability. Disabling also clears any
// in-progress restart so a later activation starts clean.
func (r *Registry) SetVPNEnabled(enabled bool) {
	r.vpnEnabled.Store(enabled)
	if !enabled {
		r.vpnRestartInProgress.Store(false)
		r.metricsMu.Lock()
		r.restart.inProgress = false
		r.metricsMu.Unlock()
	}
	r.broadcastTasks()
	r.broadcastMetrics()
}

// BeginVPNRestart opens a restart cycle. It returns true exactly once per
// cycle: the VPN must be enabled and no other restart in progress.
func (r *Registry) BeginVPNRestart(kind *domain.TaskKind) bool {
	if !r.vpnEnabled.Load() {
		return false
	}
	if !r.vpnRestartInProgress.CompareAndSwap(false, true) {
		return false
	}

	now := r.now()
	r.metricsMu.Lock()
	r.restart.inProgress = true
	r.restart.lastStarted = &now
	r.restart.lastError = nil
	r.restart.lastOutcome = nil
	r.metricsMu.Unlock()

	r.logger.Info("vpn restart started", slog.String("trigger", triggerName(kind)))
	r.broadcastMetrics()
	return true
}

// FinishVPNRestart closes the cycle opened by BeginVPNRestart. A
// successful restart resets the trigger kind's consecutive failures; a
// nil kind (manual trigger) resets none.
func (r *Registry) FinishVPNRestart(kind *domain.TaskKind, outcome string, restartErr error) {
	now := r.now()
	r.metricsMu.Lock()
	r.restart.inProgress = false
	r.restart.lastCompleted = &now
	if restartErr == nil {
		r.restart.count++
		r.restart.lastOutcome = &outcome
		r.restart.lastError = nil
		if kind != nil {
			if data, ok := r.kindMetrics[*kind]; ok {
				data.consecutiveFailures = 0
			}
		}
	} else {
		message := restartErr.Error()
		r.restart.lastError = &message
	}
	r.metricsMu.Unlock()

	r.vpnRestartInProgress.Store(false)
	if restartErr == nil {
		metrics.VPNRestarts.WithLabelValues("ok").Inc()
		r.logger.Info("vpn restart finished", slog.String("trigger", triggerName(kind)), slog.String("outcome", outcome))
	} else {
		metrics.VPNRestarts.WithLabelValues("error").Inc()
		r.logger.Warn("vpn restart failed", slog.String("trigger", triggerName(kind)), slog.String("error", restartErr.Error()))
	}
	r.broadcastMetrics()
}

func triggerName(kind *domain.TaskKind) string {
	if kind == nil {
		return "manual"
	}
	return string(*kind)
}
