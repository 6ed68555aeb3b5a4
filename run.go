package main

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/archive"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/audio"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/config"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/eventlog"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/homeassistant"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/metrics"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/monitor"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/notify"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the HTTP server shutdown.
const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor audio playback and switch the speakers",
	Args:  cobra.NoArgs,
	RunE:  runMonitor,
}

// captureSource is the status side of the audio sampler.
type captureSource interface {
	monitor.Sampler
	CaptureStatus
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), util.ShutdownSignals()...)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireActuator(); err != nil {
		return err
	}
	snap := cfg.Snapshot()

	if err := resolveBaseURL(ctx, &snap); err != nil {
		return err
	}

	sw, closeSwitch := newSwitch(&snap)
	capture := newCaptureSource(&snap)

	logPath := cmp.Or(snap.EventLogPath, eventlog.DefaultLogPath())
	events, err := eventlog.NewLogger(logPath)
	if err != nil {
		return util.WrapError("open event log", err)
	}

	var wg sync.WaitGroup

	if c, ok := capture.(*audio.Capture); ok {
		wg.Go(func() {
			if err := c.Run(ctx); err != nil {
				slog.Error("audio capture stopped", "error", err)
			}
		})
	}

	var archiveStatus ArchiveStatus
	if snap.HasArchive() {
		if arch := startArchiver(ctx, &wg, &snap, events, logPath); arch != nil {
			archiveStatus = arch
		}
	}

	notifier := notify.NewHealthNotifier(snap)
	loop := monitor.New(monitor.Config{
		PollInterval:   snap.CheckInterval,
		ConfirmSamples: snap.ConfirmSamples,
		ReaffirmOff:    snap.StartupOff,
	}, capture, sw, events, metrics.New(prometheus.DefaultRegisterer), notifier)

	versions := NewVersionChecker()
	wg.Go(func() { versions.Run(ctx) })

	var httpServer *http.Server
	if snap.WebPort != 0 {
		srv := NewServer(ServerOptions{
			Config:       snap,
			Loop:         loop,
			Capture:      capture,
			EventLogPath: logPath,
			Archive:      archiveStatus,
			Version:      versions,
		})
		httpServer = srv.Start(ctx)
	} else {
		slog.Info("web server disabled")
	}

	slog.Info("speakerswitch started",
		"version", Version,
		"entity_id", snap.EntityID,
		"transport", snap.Transport,
		"threshold", snap.Threshold,
		"check_interval", snap.CheckInterval,
		"silence_delay_samples", snap.ConfirmSamples)

	var errs []error
	if err := loop.Run(ctx); err != nil {
		errs = append(errs, util.WrapError("run monitor", err))
	}

	slog.Info("shutting down")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, util.WrapError("shut down HTTP server", err))
		}
		cancel()
	}

	wg.Wait()
	notifier.Wait()

	if err := closeSwitch(); err != nil {
		errs = append(errs, util.WrapError("close home assistant connection", err))
	}
	if err := events.Close(); err != nil {
		errs = append(errs, util.WrapError("close event log", err))
	}

	slog.Info("shutdown complete")
	return errors.Join(errs...)
}

// resolveBaseURL fills in the Home Assistant URL via mDNS when it is not
// configured and discovery is enabled.
func resolveBaseURL(ctx context.Context, snap *config.Snapshot) error {
	if snap.BaseURL != "" || !snap.Discover {
		return nil
	}
	inst, err := homeassistant.Discover(ctx)
	if err != nil {
		return util.WrapError("discover home assistant", err)
	}
	snap.BaseURL = inst.BaseURL
	return nil
}

// haOptions builds client options from the config snapshot.
func haOptions(snap *config.Snapshot) homeassistant.Options {
	return homeassistant.Options{
		BaseURL:    snap.BaseURL,
		Token:      snap.Token,
		EntityID:   snap.EntityID,
		Domain:     snap.Domain,
		Timeout:    snap.Timeout,
		MaxRetries: snap.MaxRetries,
	}
}

// newSwitch returns the configured actuator and a function that releases it.
func newSwitch(snap *config.Snapshot) (monitor.Switch, func() error) {
	opts := haOptions(snap)
	if snap.Transport == config.TransportWebSocket {
		ws := homeassistant.NewWebSocket(opts)
		return ws, ws.Close
	}
	return homeassistant.NewREST(opts), func() error { return nil }
}

// newCaptureSource returns the audio sampler. When capture cannot be set up
// the monitor runs degraded with a sampler that always fails.
func newCaptureSource(snap *config.Snapshot) captureSource {
	c, err := audio.NewCapture(snap.Device, snap.CapturePath, snap.Threshold, snap.CheckInterval)
	if err != nil {
		slog.Error("audio capture unavailable, running degraded", "error", err)
		return audio.Unavailable{Err: err}
	}
	return c
}

// startArchiver uploads rotated event logs, including any left over from
// earlier runs.
func startArchiver(ctx context.Context, wg *sync.WaitGroup, snap *config.Snapshot, events *eventlog.Logger, logPath string) *archive.Archiver {
	arch, err := archive.New(snap.Archive)
	if err != nil {
		slog.Error("event log archive disabled", "error", err)
		return nil
	}

	backlog, err := eventlog.RotatedFiles(logPath)
	if err != nil {
		slog.Warn("failed to list rotated event logs", "error", err)
	}

	events.OnRotate(arch.Enqueue)
	wg.Go(func() { arch.Run(ctx, backlog...) })
	return arch
}
