package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/archive"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/config"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/eventlog"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/homeassistant"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/notify"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
	"github.com/spf13/cobra"
)

// checkTimeout bounds each external check.
const checkTimeout = 30 * time.Second

var (
	checkNotify  bool
	checkArchive bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and test the Home Assistant connection",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkNotify, "notify", false, "Send a test message to every configured notification channel")
	checkCmd.Flags().BoolVar(&checkArchive, "archive", false, "Test the event log archive bucket")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "config: ok (%s)\n", cfg.Path())

	if err := cfg.RequireActuator(); err != nil {
		return err
	}
	snap := cfg.Snapshot()

	if err := resolveBaseURL(ctx, &snap); err != nil {
		return err
	}

	if err := checkHomeAssistant(ctx, out, &snap); err != nil {
		return err
	}

	var errs []error
	logPath := cmp.Or(snap.EventLogPath, eventlog.DefaultLogPath())
	if err := checkWritable(out, "event_log.path", logPath); err != nil {
		errs = append(errs, err)
	}
	if snap.HasLogPath() {
		if err := checkWritable(out, "notifications.log.path", snap.LogPath); err != nil {
			errs = append(errs, err)
		}
	}
	if checkNotify {
		errs = append(errs, checkNotifications(ctx, out, &snap)...)
	}
	if snap.HasGraph() {
		reportSecretExpiry(ctx, out, &snap)
	}
	if checkArchive {
		if err := checkArchiveBucket(ctx, out, &snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// checkHomeAssistant pings the API and reads the configured entity.
func checkHomeAssistant(ctx context.Context, out io.Writer, snap *config.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	client := homeassistant.NewREST(haOptions(snap))
	if err := client.Ping(ctx); err != nil {
		return util.WrapError("reach home assistant", err)
	}
	fmt.Fprintf(out, "home assistant: ok (%s)\n", snap.BaseURL)

	state, err := client.State(ctx)
	if err != nil {
		return util.WrapError("read entity state", err)
	}
	power := "off"
	if state.IsOn() {
		power = "on"
	}
	fmt.Fprintf(out, "entity: %s (%s) is %s (state %q)\n", state.EntityID, state.FriendlyName(), power, state.State)

	if snap.Transport == config.TransportWebSocket {
		url, err := homeassistant.WebSocketURL(snap.BaseURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "websocket: %s\n", url)
	}
	return nil
}

// checkWritable verifies that the directory holding path accepts new files.
func checkWritable(out io.Writer, field, path string) error {
	if err := util.ValidatePath(field, path); err != nil {
		return err
	}
	if err := util.CheckPathWritable(filepath.Dir(path)); err != nil {
		fmt.Fprintf(out, "%s: %v\n", field, err)
		return err
	}
	fmt.Fprintf(out, "%s: ok (%s)\n", field, path)
	return nil
}

// checkNotifications sends a test message on every configured channel.
func checkNotifications(ctx context.Context, out io.Writer, snap *config.Snapshot) []error {
	type channel struct {
		name       string
		configured bool
		send       func(context.Context) error
	}
	channels := []channel{
		{"webhook", snap.HasWebhook(), func(ctx context.Context) error {
			return notify.SendTestWebhook(ctx, snap.WebhookURL)
		}},
		{"log", snap.HasLogPath(), func(context.Context) error {
			return notify.WriteTestLog(snap.LogPath)
		}},
		{"zabbix", snap.HasZabbix(), func(ctx context.Context) error {
			return notify.SendTestZabbix(ctx, snap.ZabbixConfig())
		}},
		{"email", snap.HasGraph(), func(ctx context.Context) error {
			return notify.SendTestEmail(ctx, notify.BuildGraphConfig(snap))
		}},
	}

	var errs []error
	for _, ch := range channels {
		if !ch.configured {
			fmt.Fprintf(out, "notify %s: not configured\n", ch.name)
			continue
		}
		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := ch.send(ctx)
		cancel()
		if err != nil {
			fmt.Fprintf(out, "notify %s: failed: %v\n", ch.name, err)
			errs = append(errs, fmt.Errorf("notify %s: %w", ch.name, err))
			continue
		}
		fmt.Fprintf(out, "notify %s: ok\n", ch.name)
	}
	return errs
}

// reportSecretExpiry prints when the Graph client secret expires.
func reportSecretExpiry(ctx context.Context, out io.Writer, snap *config.Snapshot) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	info := notify.NewSecretExpiryChecker(notify.BuildGraphConfig(snap)).GetInfo(ctx)
	switch {
	case info.Error != "":
		fmt.Fprintf(out, "graph secret: unknown (%s)\n", info.Error)
	case info.ExpiresSoon:
		fmt.Fprintf(out, "graph secret: expires in %d days (%s), renew it\n", info.DaysLeft, info.ExpiresAt)
	case info.ExpiresAt != "":
		fmt.Fprintf(out, "graph secret: expires %s\n", info.ExpiresAt)
	}
}

// checkArchiveBucket tests write access to the archive bucket.
func checkArchiveBucket(ctx context.Context, out io.Writer, snap *config.Snapshot) error {
	if !snap.HasArchive() {
		fmt.Fprintln(out, "archive: not configured")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := archive.TestConnection(ctx, snap.Archive); err != nil {
		fmt.Fprintf(out, "archive: failed: %v\n", err)
		return util.WrapError("test archive bucket", err)
	}
	fmt.Fprintf(out, "archive: ok (%s)\n", snap.Archive.Bucket)
	return nil
}
