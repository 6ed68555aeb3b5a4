package util

import "log/slog"

// LogNotifyResult executes a notification function and logs the result.
func LogNotifyResult(fn func() error, notifyType, event string) {
	if err := fn(); err != nil {
		slog.Error("notification failed", "type", notifyType, "event", event, "error", err)
		return
	}
	slog.Info("notification sent", "type", notifyType, "event", event)
}
