package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// manager holds the sc.exe command runner.
type manager struct {
	run runner
}

func newManager() *manager {
	return &manager{run: runCommand}
}

// Install registers the service with the service control manager and starts it.
func Install(ctx context.Context, opts Options) error {
	return newManager().install(ctx, opts)
}

// Uninstall stops and deletes the service.
func Uninstall(ctx context.Context) error {
	return newManager().uninstall(ctx)
}

func (m *manager) install(ctx context.Context, opts Options) error {
	opts, err := opts.resolve()
	if err != nil {
		return err
	}

	if err := m.sc(ctx, scCreateArgs(opts)...); err != nil {
		return err
	}
	if err := m.sc(ctx, "description", Name, Description); err != nil {
		slog.Warn("failed to set service description", "error", err)
	}
	if err := m.sc(ctx, "failure", Name, "reset=", "86400", "actions=", "restart/5000"); err != nil {
		slog.Warn("failed to set service recovery actions", "error", err)
	}
	if err := m.sc(ctx, "start", Name); err != nil {
		slog.Warn("service installed but failed to start; start it from services.msc", "error", err)
		return nil
	}
	slog.Info("service installed and started", "name", Name)
	return nil
}

func (m *manager) uninstall(ctx context.Context) error {
	if err := m.sc(ctx, "stop", Name); err != nil {
		slog.Warn("failed to stop service", "name", Name, "error", err)
	}
	if err := m.sc(ctx, "delete", Name); err != nil {
		return err
	}
	slog.Info("service uninstalled", "name", Name)
	return nil
}

// sc runs sc.exe and maps access denied (error 5) to ErrNotPrivileged.
func (m *manager) sc(ctx context.Context, args ...string) error {
	out, err := m.run(ctx, "sc", args...)
	if err != nil && strings.Contains(string(out), "FAILED 5") {
		return errors.Join(ErrNotPrivileged, err)
	}
	return err
}
