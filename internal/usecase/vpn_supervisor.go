package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"localtube/internal/domain"
	"localtube/internal/domain/ports"
	"localtube/internal/services/tasks"
)

// Restart policy for the failure-driven VPN supervisor. Surfaced on the
// status endpoint so operators can see the thresholds in effect.
const (
	MaxConsecutiveFailuresBeforeRestart = 3
	MinSuccessAgeBeforeRestart          = 30 * time.Minute
)

// restartTriggerOrder ranks the kinds competing for a restart. Downloads
// outrank refreshes: a stuck download is user-visible sooner.
var restartTriggerOrder = [...]domain.TaskKind{
	domain.TaskDownloadVideo,
	domain.TaskRefreshIndex,
}

// VPNSupervisor watches the registry's metrics stream and restarts the
// VPN container once a task kind keeps failing. At most one watcher runs
// at a time; Activate replaces the previous one.
type VPNSupervisor struct {
	registry *tasks.Registry
	logger   *slog.Logger

	mu         sync.Mutex
	controller ports.VPNController
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewVPNSupervisor(registry *tasks.Registry, logger *slog.Logger) *VPNSupervisor {
	return &VPNSupervisor{registry: registry, logger: logger}
}

// Activate installs the controller and starts the watcher goroutine,
// replacing any previous one. The subscription is opened before the
// enabled flag flips so the watcher sees every update from that point.
func (s *VPNSupervisor) Activate(controller ports.VPNController) {
	s.mu.Lock()
	s.stopLocked()

	sub := s.registry.SubscribeMetrics()
	s.registry.SetVPNEnabled(true)
	initial := s.registry.Metrics()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.controller = controller
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.logger.Info("vpn supervisor activated")
	go s.watch(ctx, sub, initial, controller, done)
}

// Deactivate stops the watcher and marks the VPN unavailable.
func (s *VPNSupervisor) Deactivate() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
	s.registry.SetVPNEnabled(false)
}

// Controller returns the active controller, or nil when deactivated.
func (s *VPNSupervisor) Controller() ports.VPNController {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller
}

// TriggerManualRestart runs the begin/finish protocol with no trigger
// kind, so it competes with automatic restarts for the same cycle. It
// reports false when the VPN is deactivated or a restart is already
// running.
func (s *VPNSupervisor) TriggerManualRestart() bool {
	s.mu.Lock()
	controller := s.controller
	s.mu.Unlock()
	if controller == nil {
		return false
	}
	if !s.registry.BeginVPNRestart(nil) {
		return false
	}
	s.logger.Info("vpn restart triggered manually")
	go s.runRestart(nil, controller)
	return true
}

// stopLocked cancels the watcher and waits for it to exit, so two
// watchers never overlap. Callers hold s.mu; the watcher never takes it.
func (s *VPNSupervisor) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.controller = nil
	s.cancel = nil
	s.done = nil
}

func (s *VPNSupervisor) watch(ctx context.Context, sub *tasks.MetricsSubscription, initial domain.MetricsSnapshot, controller ports.VPNController, done chan struct{}) {
	defer close(done)
	defer sub.Close()

	s.handleSnapshot(initial, controller)
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-sub.C():
			s.handleSnapshot(snapshot, controller)
		}
	}
}

func (s *VPNSupervisor) handleSnapshot(snapshot domain.MetricsSnapshot, controller ports.VPNController) {
	if !snapshot.VPNEnabled {
		return
	}
	kind := selectRestartTrigger(snapshot)
	if kind == nil {
		return
	}
	if !s.registry.BeginVPNRestart(kind) {
		return
	}
	s.logger.Info("vpn restart triggered by sustained failures",
		slog.String("trigger", string(*kind)))
	go s.runRestart(kind, controller)
}

// runRestart drives the controller and settles the cycle. A begun
// restart runs to completion even if the supervisor is replaced
// mid-flight: aborting between stop and start would leave the tunnel
// down.
func (s *VPNSupervisor) runRestart(kind *domain.TaskKind, controller ports.VPNController) {
	outcome, err := controller.Restart(context.Background())
	s.registry.FinishVPNRestart(kind, outcome.String(), err)
}

// selectRestartTrigger picks the first kind, in priority order, whose
// metrics satisfy the restart condition.
func selectRestartTrigger(snapshot domain.MetricsSnapshot) *domain.TaskKind {
	for _, kind := range restartTriggerOrder {
		metrics, ok := snapshot.Tasks[kind]
		if !ok {
			return nil
		}
		if shouldTriggerRestart(metrics) {
			k := kind
			return &k
		}
	}
	return nil
}

func shouldTriggerRestart(m domain.TaskMetrics) bool {
	if m.RestartInProgress {
		return false
	}
	if m.ConsecutiveFailures < MaxConsecutiveFailuresBeforeRestart {
		return false
	}
	return restartGateAllows(m)
}

// restartGateAllows applies the anti-flap gate: a restart needs the last
// success and the last restart both to be old enough. A kind that has
// never succeeded and never restarted passes, otherwise the most recent
// of the known events decides.
func restartGateAllows(m domain.TaskMetrics) bool {
	threshold := uint64(MinSuccessAgeBeforeRestart / time.Second)
	success, restart := m.LastSuccessSecondsAgo, m.LastRestartSecondsAgo
	switch {
	case success == nil && restart == nil:
		return true
	case success == nil:
		return *restart >= threshold
	case restart == nil:
		return *success >= threshold
	default:
		return min(*success, *restart) >= threshold
	}
}
