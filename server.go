package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/config"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/monitor"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/notify"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/server"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// statusPushInterval is the WebSocket status push cadence.
const statusPushInterval = time.Second

// LoopStatus is the read side of the monitor loop.
type LoopStatus interface {
	Status() monitor.Status
	Healthy() bool
}

// CaptureStatus is the read side of the audio sampler.
type CaptureStatus interface {
	Status() types.CaptureStatus
	Levels() types.AudioLevels
}

// ArchiveStatus is the read side of the event log archiver.
type ArchiveStatus interface {
	Pending() int
	Uploaded() int
}

// ServerOptions holds the dependencies of a Server.
type ServerOptions struct {
	Config       config.Snapshot
	Loop         LoopStatus
	Capture      CaptureStatus
	EventLogPath string
	Archive      ArchiveStatus // nil when archiving is off
	Version      *VersionChecker
	Metrics      http.Handler // default: promhttp.Handler()
}

// Server is the HTTP status surface.
type Server struct {
	config       config.Snapshot
	loop         LoopStatus
	capture      CaptureStatus
	eventLogPath string
	archive      ArchiveStatus
	version      *VersionChecker
	metrics      http.Handler
	expiry       *notify.SecretExpiryChecker
	ctx          context.Context
}

// NewServer returns a new Server.
func NewServer(opts ServerOptions) *Server {
	s := &Server{
		config:       opts.Config,
		loop:         opts.Loop,
		capture:      opts.Capture,
		eventLogPath: opts.EventLogPath,
		archive:      opts.Archive,
		version:      opts.Version,
		metrics:      opts.Metrics,
		ctx:          context.Background(),
	}
	if s.metrics == nil {
		s.metrics = promhttp.Handler()
	}
	if s.version == nil {
		s.version = NewVersionChecker()
	}
	if s.config.HasGraph() {
		s.expiry = notify.NewSecretExpiryChecker(notify.BuildGraphConfig(&s.config))
	}
	return s
}

// handleWebSocket pushes the status to the client every second.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	server.Push(s.ctx, conn, statusPushInterval, func() any {
		return s.buildStatus(r.Context())
	})
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleAPIStatus)
	mux.HandleFunc("GET /api/events", s.handleAPIEvents)
	mux.HandleFunc("GET /api/version", s.handleAPIVersion)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start begins the HTTP server. WebSocket pushes stop when ctx is cancelled.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start(ctx context.Context) *http.Server {
	s.ctx = ctx
	addr := net.JoinHostPort(s.config.WebBind, strconv.Itoa(s.config.WebPort))
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
