package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/config"
)

func TestCheckHomeAssistantReportsPower(t *testing.T) {
	tests := []struct {
		state string
		want  string
	}{
		{"on", `entity: switch.speakers (Studio speakers) is on (state "on")`},
		{"off", `entity: switch.speakers (Studio speakers) is off (state "off")`},
		{"unavailable", `entity: switch.speakers (Studio speakers) is off (state "unavailable")`},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			is := is.New(t)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/api/":
					_, _ = w.Write([]byte(`{"message": "API running."}`))
				case "/api/states/switch.speakers":
					_, _ = w.Write([]byte(`{"entity_id": "switch.speakers", "state": "` + tt.state +
						`", "attributes": {"friendly_name": "Studio speakers"}}`))
				default:
					http.NotFound(w, r)
				}
			}))
			defer srv.Close()

			snap := config.Snapshot{
				BaseURL:   srv.URL,
				Token:     "token",
				EntityID:  "switch.speakers",
				Transport: config.TransportREST,
				Timeout:   5 * time.Second,
			}
			var out bytes.Buffer
			is.NoErr(checkHomeAssistant(context.Background(), &out, &snap))
			is.True(strings.Contains(out.String(), tt.want))
		})
	}
}
