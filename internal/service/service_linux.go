package service

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// manager holds the systemd paths and command runner.
type manager struct {
	unitDir    string
	run        runner
	privileged func() bool
}

func newManager() *manager {
	return &manager{
		unitDir:    "/etc/systemd/system",
		run:        runCommand,
		privileged: func() bool { return os.Geteuid() == 0 },
	}
}

func (m *manager) unitPath() string {
	return filepath.Join(m.unitDir, Name+".service")
}

// Install writes the unit file and enables the service.
func Install(ctx context.Context, opts Options) error {
	return newManager().install(ctx, opts)
}

// Uninstall stops and disables the service and removes its unit file.
func Uninstall(ctx context.Context) error {
	return newManager().uninstall(ctx)
}

func (m *manager) install(ctx context.Context, opts Options) error {
	if !m.privileged() {
		return ErrNotPrivileged
	}
	opts, err := opts.resolve()
	if err != nil {
		return err
	}

	unit, err := renderUnit(opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.unitPath(), []byte(unit), 0o644); err != nil {
		return util.WrapError("write unit file", err)
	}
	slog.Info("systemd unit written", "path", m.unitPath())

	if _, err := m.run(ctx, "systemctl", "daemon-reload"); err != nil {
		return err
	}
	if _, err := m.run(ctx, "systemctl", "enable", "--now", Name); err != nil {
		return err
	}
	slog.Info("service installed and started", "name", Name)
	return nil
}

func (m *manager) uninstall(ctx context.Context) error {
	if !m.privileged() {
		return ErrNotPrivileged
	}

	// A unit that is already gone is not an error.
	if _, err := m.run(ctx, "systemctl", "disable", "--now", Name); err != nil {
		slog.Warn("failed to disable service", "name", Name, "error", err)
	}
	if err := os.Remove(m.unitPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return util.WrapError("remove unit file", err)
	}
	if _, err := m.run(ctx, "systemctl", "daemon-reload"); err != nil {
		return err
	}
	slog.Info("service uninstalled", "name", Name)
	return nil
}
