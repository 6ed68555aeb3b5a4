// Package notify alerts operators when the audio sampler degrades and when
// it recovers, over webhook, log file, Zabbix and Microsoft Graph email.
package notify

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/config"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/monitor"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// sendTimeout bounds a single delivery on one channel.
const sendTimeout = 2 * time.Minute

// Alert is the channel-independent content of a notification.
type Alert struct {
	Event    string
	Source   string // host and entity the alert is about
	Time     time.Time
	Failures int
	Error    string
	Duration time.Duration // degraded period, recovery only
}

// HealthNotifier sends one alert per degraded period and a recovery alert on
// every channel that carried the degraded alert. It implements
// monitor.Observer.
type HealthNotifier struct {
	cfg    config.Snapshot
	source string

	// mu protects the notification state fields below
	mu          sync.Mutex
	webhookSent bool
	emailSent   bool
	logSent     bool
	zabbixSent  bool
	degradedAt  time.Time
	graphClient *GraphClient

	wg sync.WaitGroup
}

// NewHealthNotifier returns a HealthNotifier for the given configuration.
//
//nolint:gocritic // hugeParam: snapshot is copied once at startup
func NewHealthNotifier(cfg config.Snapshot) *HealthNotifier {
	return &HealthNotifier{cfg: cfg, source: sourceName(cfg.EntityID)}
}

// sourceName identifies this instance in alerts.
func sourceName(entityID string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	if entityID == "" {
		return host
	}
	return fmt.Sprintf("%s (%s)", host, entityID)
}

// Observe implements monitor.Observer.
func (n *HealthNotifier) Observe(e monitor.Event) {
	switch e.Type {
	case monitor.EventSamplerDegraded:
		alert := Alert{Event: EventDegraded, Source: n.source, Time: e.Time, Failures: e.Failures}
		if e.Err != nil {
			alert.Error = e.Err.Error()
		}
		n.handleDegraded(alert)
	case monitor.EventSamplerRecovered:
		n.handleRecovered(Alert{Event: EventRecovered, Source: n.source, Time: e.Time})
	}
}

// Wait blocks until all in-flight deliveries have finished.
func (n *HealthNotifier) Wait() {
	n.wg.Wait()
}

func (n *HealthNotifier) handleDegraded(alert Alert) {
	n.mu.Lock()
	if n.degradedAt.IsZero() {
		n.degradedAt = alert.Time
	}
	n.mu.Unlock()

	n.trySend(&n.webhookSent, n.cfg.HasWebhook(), "webhook", alert, n.sendWebhook)
	n.trySend(&n.emailSent, n.cfg.HasGraph(), "email", alert, n.sendEmail)
	n.trySend(&n.logSent, n.cfg.HasLogPath(), "log", alert, n.appendLog)
	n.trySend(&n.zabbixSent, n.cfg.HasZabbix(), "zabbix", alert, n.sendZabbix)
}

// trySend delivers alert if the channel is configured and has not already
// carried a degraded alert for this period.
func (n *HealthNotifier) trySend(sent *bool, configured bool, channel string, alert Alert, send func(context.Context, Alert) error) {
	n.mu.Lock()
	shouldSend := configured && !*sent
	if shouldSend {
		*sent = true
	}
	n.mu.Unlock()

	if shouldSend {
		n.dispatch(channel, alert, send)
	}
}

func (n *HealthNotifier) handleRecovered(alert Alert) {
	n.mu.Lock()
	webhook, email, logFile, zabbix := n.webhookSent, n.emailSent, n.logSent, n.zabbixSent
	if !n.degradedAt.IsZero() {
		alert.Duration = alert.Time.Sub(n.degradedAt)
	}
	n.webhookSent, n.emailSent, n.logSent, n.zabbixSent = false, false, false, false
	n.degradedAt = time.Time{}
	n.mu.Unlock()

	if webhook {
		n.dispatch("webhook", alert, n.sendWebhook)
	}
	if email {
		n.dispatch("email", alert, n.sendEmail)
	}
	if logFile {
		n.dispatch("log", alert, n.appendLog)
	}
	if zabbix {
		n.dispatch("zabbix", alert, n.sendZabbix)
	}
}

func (n *HealthNotifier) dispatch(channel string, alert Alert, send func(context.Context, Alert) error) {
	n.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		util.LogNotifyResult(func() error { return send(ctx, alert) }, channel, alert.Event)
	})
}

// reset clears the per-period bookkeeping.
func (n *HealthNotifier) reset() {
	n.mu.Lock()
	n.webhookSent, n.emailSent, n.logSent, n.zabbixSent = false, false, false, false
	n.degradedAt = time.Time{}
	n.mu.Unlock()
}

func (n *HealthNotifier) sendWebhook(ctx context.Context, alert Alert) error {
	return SendWebhook(ctx, n.cfg.WebhookURL, alert)
}

func (n *HealthNotifier) appendLog(_ context.Context, alert Alert) error {
	return AppendLog(n.cfg.LogPath, alert)
}

func (n *HealthNotifier) sendZabbix(ctx context.Context, alert Alert) error {
	return SendZabbix(ctx, n.cfg.ZabbixConfig(), alert)
}

func (n *HealthNotifier) sendEmail(ctx context.Context, alert Alert) error {
	client, err := n.getOrCreateGraphClient()
	if err != nil {
		return util.WrapError("create Graph client", err)
	}
	return sendAlertEmail(ctx, client, n.cfg.GraphRecipients, alert)
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *HealthNotifier) getOrCreateGraphClient() (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}
	client, err := NewGraphClient(BuildGraphConfig(&n.cfg))
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// BuildGraphConfig creates a GraphConfig from the config snapshot.
func BuildGraphConfig(cfg *config.Snapshot) *GraphConfig {
	return &GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		FromAddress:  cfg.GraphFromAddress,
		Recipients:   cfg.GraphRecipients,
	}
}
