package apihttp

import (
	"net/http"
	"sort"
	"time"

	"localtube/internal/domain"
	"localtube/internal/usecase"
)

type statusTaskEntry struct {
	Name    string             `json:"name"`
	Metrics domain.TaskMetrics `json:"metrics"`
}

type statusResponse struct {
	GluetunEnabled                     bool                `json:"gluetun_enabled"`
	GluetunRestartFailureThreshold     uint64              `json:"gluetun_restart_failure_threshold"`
	GluetunRestartMinSuccessAgeMinutes uint64              `json:"gluetun_restart_min_success_age_minutes"`
	Tasks                              []statusTaskEntry   `json:"tasks"`
	DownloadMetrics                    *domain.TaskMetrics `json:"download_metrics,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.registry == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "task registry not configured")
		return
	}

	snapshot := s.registry.Metrics()

	entries := make([]statusTaskEntry, 0, len(snapshot.Tasks))
	for kind, m := range snapshot.Tasks {
		entries = append(entries, statusTaskEntry{Name: string(kind), Metrics: m})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	resp := statusResponse{
		GluetunEnabled:                     snapshot.VPNEnabled,
		GluetunRestartFailureThreshold:     usecase.MaxConsecutiveFailuresBeforeRestart,
		GluetunRestartMinSuccessAgeMinutes: minutesRoundedUp(usecase.MinSuccessAgeBeforeRestart),
		Tasks:                              entries,
	}
	if download, ok := snapshot.Tasks[domain.TaskDownloadVideo]; ok {
		resp.DownloadMetrics = &download
	}

	writeJSON(w, http.StatusOK, resp)
}

func minutesRoundedUp(d time.Duration) uint64 {
	seconds := uint64(d / time.Second)
	return (seconds + 59) / 60
}

// handleMetricsJSON returns the raw metrics snapshot. The Prometheus
// scrape lives at /metrics without the trailing slash.
func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/metrics/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.registry == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "task registry not configured")
		return
	}

	writeJSON(w, http.StatusOK, s.registry.Metrics())
}

type restartResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleGluetunRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if s.vpn == nil || !s.vpn.TriggerManualRestart() {
		writeError(w, http.StatusConflict, "restart_unavailable",
			"vpn restart not started: integration disabled or a restart is already running")
		return
	}

	writeJSON(w, http.StatusAccepted, restartResponse{Status: "restart started"})
}
