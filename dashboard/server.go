package dashboard

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mjpeg-rtsp-streamer/session"
)

// Server is the dashboard's HTTP surface: /health, /api/stats, and the
// /ws/stats upgrade endpoint, all read-only.
type Server struct {
	manager    *session.Manager
	hub        *Hub
	logger     *zap.Logger
	httpServer *http.Server

	cancel context.CancelFunc
}

// NewServer builds a dashboard server over manager. broadcastInterval
// controls how often connected WebSocket clients receive a fresh
// snapshot.
func NewServer(manager *session.Manager, broadcastInterval time.Duration, logger *zap.Logger) *Server {
	return &Server{
		manager: manager,
		hub:     NewHub(manager, broadcastInterval, logger),
		logger:  logger,
	}
}

// Start binds addr and begins serving. It returns once the listener is
// up; errors encountered afterward are logged.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleAPIStats)
	mux.HandleFunc("/ws/stats", s.hub.ServeWS)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.withLogging(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.hub.Run(ctx)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("dashboard: server error", zap.Error(err))
		}
	}()

	s.logger.Info("dashboard started", zap.String("address", addr))
	return nil
}

func (s *Server) withLogging(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler.ServeHTTP(lw, r)
		s.logger.Debug("dashboard request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", lw.statusCode),
			zap.Duration("duration", time.Since(start)))
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":       "ok",
		"sessions":     s.manager.Count(),
		"dashboard_ws": s.hub.ClientCount(),
	})
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, snapshotFromManager(s.manager, time.Now()))
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}

// Stop gracefully shuts the dashboard down.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.hub.Close()

	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
