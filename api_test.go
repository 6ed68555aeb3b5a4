package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/matryer/is"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/config"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/eventlog"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/monitor"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/playback"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/types"
)

type fakeLoop struct {
	status  monitor.Status
	healthy bool
}

func (f *fakeLoop) Status() monitor.Status { return f.status }
func (f *fakeLoop) Healthy() bool          { return f.healthy }

type fakeCapture struct{}

func (fakeCapture) Status() types.CaptureStatus {
	return types.CaptureStatus{State: types.ProcessRunning, Command: "parec"}
}

func (fakeCapture) Levels() types.AudioLevels {
	return types.AudioLevels{Peak: 0.25, Active: true}
}

func newTestServer(t *testing.T, loop *fakeLoop) (*Server, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "events.jsonl")
	srv := NewServer(ServerOptions{
		Config:       config.Snapshot{EntityID: "switch.speakers", Threshold: 0.001},
		Loop:         loop,
		Capture:      fakeCapture{},
		EventLogPath: logPath,
		Version:      NewVersionChecker(),
		Metrics:      http.NotFoundHandler(),
	})
	return srv, logPath
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestAPIStatus(t *testing.T) {
	is := is.New(t)
	loop := &fakeLoop{healthy: true, status: monitor.Status{
		Running:       true,
		State:         playback.StateActive,
		SwitchOnCount: 2,
	}}
	srv, _ := newTestServer(t, loop)

	rec := get(t, srv.SetupRoutes(), "/api/status")
	is.Equal(rec.Code, http.StatusOK)
	is.Equal(rec.Header().Get("X-Frame-Options"), "DENY")

	var resp StatusResponse
	is.NoErr(json.NewDecoder(rec.Body).Decode(&resp))
	is.Equal(resp.Type, "status")
	is.Equal(resp.EntityID, "switch.speakers")
	is.Equal(resp.Monitor.State, playback.StateActive)
	is.Equal(resp.Monitor.SwitchOnCount, int64(2))
	is.Equal(resp.Capture.State, types.ProcessRunning)
	is.True(resp.Levels.Active)
	is.Equal(resp.Version.Current, "dev")
	is.True(resp.SecretExpiry == nil)
	is.True(resp.Archive == nil) // archiving off
}

type fakeArchive struct{ pending, uploaded int }

func (f fakeArchive) Pending() int  { return f.pending }
func (f fakeArchive) Uploaded() int { return f.uploaded }

func TestAPIStatusReportsArchive(t *testing.T) {
	is := is.New(t)
	srv, _ := newTestServer(t, &fakeLoop{healthy: true})
	srv.archive = fakeArchive{pending: 2, uploaded: 5}

	rec := get(t, srv.SetupRoutes(), "/api/status")
	is.Equal(rec.Code, http.StatusOK)

	var resp StatusResponse
	is.NoErr(json.NewDecoder(rec.Body).Decode(&resp))
	is.True(resp.Archive != nil)
	is.Equal(*resp.Archive, types.ArchiveStatus{Pending: 2, Uploaded: 5})
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		loop       *fakeLoop
		wantCode   int
		wantStatus string
	}{
		{"healthy", &fakeLoop{healthy: true}, http.StatusOK, "ok"},
		{"degraded", &fakeLoop{status: monitor.Status{
			Degraded:            true,
			ConsecutiveFailures: 3,
			LastSamplerError:    "audio capture stalled",
		}}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			srv, _ := newTestServer(t, tt.loop)

			rec := get(t, srv.SetupRoutes(), "/healthz")
			is.Equal(rec.Code, tt.wantCode)

			var resp types.HealthResponse
			is.NoErr(json.NewDecoder(rec.Body).Decode(&resp))
			is.Equal(resp.Status, tt.wantStatus)
			is.Equal(resp.Failures, tt.loop.status.ConsecutiveFailures)
			is.Equal(resp.Reason, tt.loop.status.LastSamplerError)
		})
	}
}

func TestAPIEvents(t *testing.T) {
	is := is.New(t)
	srv, logPath := newTestServer(t, &fakeLoop{healthy: true})

	logger, err := eventlog.NewLogger(logPath)
	is.NoErr(err)
	for _, typ := range []monitor.EventType{
		monitor.EventSwitchOn,
		monitor.EventConfirmStarted,
		monitor.EventSwitchOff,
		monitor.EventSamplerDegraded,
	} {
		is.NoErr(logger.Log(&eventlog.Event{Type: typ}))
	}
	is.NoErr(logger.Close())

	h := srv.SetupRoutes()

	rec := get(t, h, "/api/events?limit=1&filter=switch")
	is.Equal(rec.Code, http.StatusOK)
	var resp EventsResponse
	is.NoErr(json.NewDecoder(rec.Body).Decode(&resp))
	is.Equal(len(resp.Events), 1)
	is.Equal(resp.Events[0].Type, monitor.EventSwitchOff) // newest first
	is.True(resp.HasMore)
	is.Equal(resp.Limit, 1)

	rec = get(t, h, "/api/events")
	resp = EventsResponse{}
	is.NoErr(json.NewDecoder(rec.Body).Decode(&resp))
	is.Equal(len(resp.Events), 4)
	is.True(!resp.HasMore)
}

func TestAPIEventsEmptyLog(t *testing.T) {
	is := is.New(t)
	srv, _ := newTestServer(t, &fakeLoop{healthy: true})

	rec := get(t, srv.SetupRoutes(), "/api/events")
	is.Equal(rec.Code, http.StatusOK)

	var raw map[string]json.RawMessage
	is.NoErr(json.NewDecoder(rec.Body).Decode(&raw))
	is.Equal(string(raw["events"]), "[]")
}

func TestAPIEventsRejectsBadQuery(t *testing.T) {
	is := is.New(t)
	srv, _ := newTestServer(t, &fakeLoop{healthy: true})

	rec := get(t, srv.SetupRoutes(), "/api/events?limit=9999&filter=nope")
	is.Equal(rec.Code, http.StatusBadRequest)

	var verr types.ValidationError
	is.NoErr(json.NewDecoder(rec.Body).Decode(&verr))
	is.Equal(len(verr.Errors), 2)
}

func TestAPIVersion(t *testing.T) {
	is := is.New(t)
	srv, _ := newTestServer(t, &fakeLoop{healthy: true})

	rec := get(t, srv.SetupRoutes(), "/api/version")
	is.Equal(rec.Code, http.StatusOK)

	var info types.VersionInfo
	is.NoErr(json.NewDecoder(rec.Body).Decode(&info))
	is.Equal(info.Current, "dev")
	is.True(!info.UpdateAvail)
}

func TestMethodNotAllowed(t *testing.T) {
	is := is.New(t)
	srv, _ := newTestServer(t, &fakeLoop{healthy: true})

	rec := httptest.NewRecorder()
	srv.SetupRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	is.Equal(rec.Code, http.StatusMethodNotAllowed)
}
