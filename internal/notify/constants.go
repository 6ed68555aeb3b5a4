package notify

import "time"

// AppName is the application name used in notifications.
const AppName = "ZuidWest FM Speaker Switch"

// Event names shared by every channel.
const (
	EventDegraded  = "sampler_degraded"
	EventRecovered = "sampler_recovered"
	EventTest      = "test"
)

// timestampUTC formats t in UTC RFC3339.
func timestampUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
