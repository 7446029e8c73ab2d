package apihttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"localtube/internal/domain"
	"localtube/internal/domain/ports"
	"localtube/internal/services/tasks"
	"localtube/internal/usecase"
)

type CreateSourceUseCase interface {
	Execute(ctx context.Context, input usecase.CreateSourceInput) (domain.Source, error)
}

type UpdateSourceUseCase interface {
	Execute(ctx context.Context, id domain.SourceID, input usecase.UpdateSourceInput) (domain.Source, error)
}

type RedownloadMediaUseCase interface {
	Execute(ctx context.Context, id domain.MediaID) error
}

// VPNRestartTrigger starts a manual VPN restart cycle; false means the
// integration is disabled or a restart is already running.
type VPNRestartTrigger interface {
	TriggerManualRestart() bool
}

type Server struct {
	createSource   CreateSourceUseCase
	updateSource   UpdateSourceUseCase
	redownload     RedownloadMediaUseCase
	store          ports.Store
	registry       *tasks.Registry
	vpn            VPNRestartTrigger
	mediaDir       string
	allowedOrigins []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
	wsDone         chan struct{}
}

type ServerOption func(*Server)

func WithStore(store ports.Store) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

func WithUpdateSource(uc UpdateSourceUseCase) ServerOption {
	return func(s *Server) {
		s.updateSource = uc
	}
}

func WithRedownloadMedia(uc RedownloadMediaUseCase) ServerOption {
	return func(s *Server) {
		s.redownload = uc
	}
}

func WithRegistry(registry *tasks.Registry) ServerOption {
	return func(s *Server) {
		s.registry = registry
	}
}

func WithVPNRestartTrigger(vpn VPNRestartTrigger) ServerOption {
	return func(s *Server) {
		s.vpn = vpn
	}
}

// WithMediaDir sets the root directory stored media paths resolve under.
func WithMediaDir(dir string) ServerOption {
	return func(s *Server) {
		s.mediaDir = dir
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(create CreateSourceUseCase, opts ...ServerOption) *Server {
	s := &Server{
		createSource: create,
		mediaDir:     "media",
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	if s.registry != nil {
		s.wsDone = make(chan struct{})
		go s.pumpTaskUpdates(s.registry.SubscribeTasks())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/sources", s.handleSources)
	mux.HandleFunc("/sources/", s.handleSourceByID)
	mux.HandleFunc("/medias", s.handleMedias)
	mux.HandleFunc("/medias/", s.handleMediaByID)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status/gluetun/restart", s.handleGluetunRestart)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/metrics/", s.handleMetricsJSON)
	mux.HandleFunc("/ws/status", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "localtube",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/metrics/" && p != "/ws/status"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	// Queue the current task list before the pumps start, so the first
	// frame every client sees is a full snapshot.
	if s.registry != nil {
		if frame, err := json.Marshal(s.registry.Snapshot()); err == nil {
			client.send <- frame
		}
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// pumpTaskUpdates forwards registry task broadcasts to the hub until the
// server closes.
func (s *Server) pumpTaskUpdates(sub *tasks.TaskSubscription) {
	defer sub.Close()
	for {
		select {
		case <-s.wsDone:
			return
		case update := <-sub.C():
			s.wsHub.BroadcastTaskList(update)
		}
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops the task-update pump and shuts down the WebSocket hub,
// disconnecting all clients.
func (s *Server) Close() {
	if s.wsDone != nil {
		close(s.wsDone)
	}
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
