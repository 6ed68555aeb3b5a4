package main

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/config"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/homeassistant"
)

func TestNewSwitchTransport(t *testing.T) {
	is := is.New(t)

	snap := config.Snapshot{
		BaseURL:   "http://ha.local:8123",
		Token:     "token",
		EntityID:  "switch.speakers",
		Transport: config.TransportREST,
		Timeout:   5 * time.Second,
	}
	sw, closeFn := newSwitch(&snap)
	_, ok := sw.(*homeassistant.RESTClient)
	is.True(ok)
	is.NoErr(closeFn())

	snap.Transport = config.TransportWebSocket
	sw, closeFn = newSwitch(&snap)
	_, ok = sw.(*homeassistant.WSClient)
	is.True(ok)
	is.NoErr(closeFn())
}

func TestResolveBaseURLKeepsConfiguredURL(t *testing.T) {
	is := is.New(t)
	snap := config.Snapshot{BaseURL: "http://ha.local:8123", Discover: true}
	is.NoErr(resolveBaseURL(context.Background(), &snap))
	is.Equal(snap.BaseURL, "http://ha.local:8123")
}

func TestNewCaptureSourceDegradesWithoutBinary(t *testing.T) {
	is := is.New(t)
	snap := config.Snapshot{
		CapturePath:   "/nonexistent/capture-binary",
		Threshold:     0.001,
		CheckInterval: time.Second,
	}
	src := newCaptureSource(&snap)

	_, err := src.Sample(context.Background())
	is.True(err != nil)
	is.Equal(string(src.Status().State), "unavailable")
}
