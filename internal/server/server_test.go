package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/eventlog"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/types"
)

func TestParseEventsQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    EventsQuery
		wantErr string // field that must be reported
	}{
		{"defaults", "", EventsQuery{Limit: DefaultEventsLimit}, ""},
		{"explicit", "limit=10&offset=20&filter=switch", EventsQuery{Limit: 10, Offset: 20, Filter: "switch"}, ""},
		{"max limit", "limit=500", EventsQuery{Limit: 500}, ""},
		{"limit too big", "limit=501", EventsQuery{}, "limit"},
		{"limit zero", "limit=0", EventsQuery{}, "limit"},
		{"negative offset", "offset=-1", EventsQuery{}, "offset"},
		{"not a number", "limit=ten", EventsQuery{}, "limit"},
		{"unknown filter", "filter=bogus", EventsQuery{}, "filter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			values, err := url.ParseQuery(tt.query)
			is.NoErr(err)

			q, err := ParseEventsQuery(values)
			if tt.wantErr == "" {
				is.NoErr(err)
				is.Equal(q, tt.want)
				return
			}

			var verr *types.ValidationError
			is.True(errors.As(err, &verr))
			is.Equal(len(verr.Errors), 1)
			is.Equal(verr.Errors[0].Field, tt.wantErr)
		})
	}
}

func TestEventsQueryTypeFilter(t *testing.T) {
	is := is.New(t)
	is.Equal(EventsQuery{Filter: "health"}.TypeFilter(), eventlog.FilterHealth)
	is.Equal(EventsQuery{}.TypeFilter(), eventlog.FilterAll)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "example.com", true},
		{"http://localhost:3000", "example.com", true},
		{"http://192.168.1.10", "example.com", true},
		{"http://studio.example.com", "studio.example.com:8088", true},
		{"http://evil.example.net", "studio.example.com", false},
		{"://bad", "studio.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			is := is.New(t)
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			is.Equal(checkOrigin(r), tt.want)
		})
	}
}

func TestPush(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := UpgradeConnection(w, r)
		if err != nil {
			return
		}
		Push(ctx, conn, 20*time.Millisecond, func() any {
			n++
			return map[string]int{"seq": n}
		})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	is.NoErr(err)
	defer conn.Close()

	var first, second map[string]int
	is.NoErr(conn.ReadJSON(&first))
	is.NoErr(conn.ReadJSON(&second))
	is.Equal(first["seq"], 1)
	is.Equal(second["seq"], 2)
}
