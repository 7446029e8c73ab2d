package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "localtube",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "localtube",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	TasksStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "localtube",
		Name:      "tasks_started_total",
		Help:      "Total background tasks registered by kind.",
	}, []string{"kind"})

	TasksFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "localtube",
		Name:      "tasks_finished_total",
		Help:      "Total background tasks finished by kind and final state.",
	}, []string{"kind", "state"})

	YtdlpInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "localtube",
		Name:      "ytdlp_invocations_total",
		Help:      "Total yt-dlp processes spawned by operation.",
	}, []string{"operation"})

	MediaDownloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "localtube",
		Name:      "media_downloads_total",
		Help:      "Total media download attempts by result.",
	}, []string{"result"})

	ActiveDownloads = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "localtube",
		Name:      "active_downloads",
		Help:      "Number of yt-dlp download permits currently held.",
	})

	StreamedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "localtube",
		Name:      "streamed_bytes_total",
		Help:      "Total media bytes served by the streaming endpoint.",
	})

	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "localtube",
		Name:      "ws_clients",
		Help:      "Number of currently connected status websocket clients.",
	})

	VPNRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "localtube",
		Name:      "vpn_restarts_total",
		Help:      "Total VPN container restarts by result.",
	}, []string{"result"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TasksStarted,
		TasksFinished,
		YtdlpInvocations,
		MediaDownloads,
		ActiveDownloads,
		StreamedBytes,
		WSClients,
		VPNRestarts,
	)
}
