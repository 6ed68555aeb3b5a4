package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/eventlog"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/monitor"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/server"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/types"
)

// expiryTimeout bounds the Graph secret expiry lookup in status responses.
const expiryTimeout = 5 * time.Second

// StatusResponse is the body of GET /api/status and of every /ws push.
type StatusResponse struct {
	Type         string                  `json:"type"`
	EntityID     string                  `json:"entity_id"`
	Threshold    float64                 `json:"threshold"`
	Monitor      monitor.Status          `json:"monitor"`
	Capture      types.CaptureStatus     `json:"capture"`
	Levels       types.AudioLevels       `json:"levels"`
	Version      types.VersionInfo       `json:"version"`
	Archive      *types.ArchiveStatus    `json:"archive,omitempty"`
	SecretExpiry *types.SecretExpiryInfo `json:"graph_secret_expiry,omitempty"`
}

// EventsResponse is the body of GET /api/events.
type EventsResponse struct {
	Events  []eventlog.Event `json:"events"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
	HasMore bool             `json:"has_more"`
}

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, types.ErrorResponse{Error: message})
}

// buildStatus returns the current status of the loop and the capture.
func (s *Server) buildStatus(ctx context.Context) StatusResponse {
	resp := StatusResponse{
		Type:      "status",
		EntityID:  s.config.EntityID,
		Threshold: s.config.Threshold,
		Monitor:   s.loop.Status(),
		Capture:   s.capture.Status(),
		Levels:    s.capture.Levels(),
		Version:   s.version.Info(),
	}
	if s.archive != nil {
		resp.Archive = &types.ArchiveStatus{Pending: s.archive.Pending(), Uploaded: s.archive.Uploaded()}
	}
	if s.expiry != nil {
		ctx, cancel := context.WithTimeout(ctx, expiryTimeout)
		defer cancel()
		info := s.expiry.GetInfo(ctx)
		resp.SecretExpiry = &info
	}
	return resp
}

// handleAPIStatus returns the monitor and capture status.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.buildStatus(r.Context()))
}

// handleAPIEvents returns logged events, newest first.
// GET /api/events?limit=50&offset=0&filter=switch
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	q, err := server.ParseEventsQuery(r.URL.Query())
	if err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			s.writeJSON(w, http.StatusBadRequest, verr)
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, hasMore, err := eventlog.ReadLast(s.eventLogPath, q.Limit, q.Offset, q.TypeFilter())
	if err != nil {
		slog.Error("failed to read event log", "path", s.eventLogPath, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read event log")
		return
	}
	if events == nil {
		events = []eventlog.Event{}
	}

	s.writeJSON(w, http.StatusOK, EventsResponse{
		Events:  events,
		Limit:   q.Limit,
		Offset:  q.Offset,
		HasMore: hasMore,
	})
}

// handleHealthz reports 200 while the sampler works and 503 when degraded.
// GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	st := s.loop.Status()
	if s.loop.Healthy() {
		s.writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok", Failures: st.ConsecutiveFailures})
		return
	}
	s.writeJSON(w, http.StatusServiceUnavailable, types.HealthResponse{
		Status:   "degraded",
		Reason:   st.LastSamplerError,
		Failures: st.ConsecutiveFailures,
	})
}

// handleAPIVersion returns the running and latest released version.
// GET /api/version
func (s *Server) handleAPIVersion(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.version.Info())
}
