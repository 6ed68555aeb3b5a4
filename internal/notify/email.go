package notify

import (
	"context"
	"fmt"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/types"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// GraphConfig is the configuration for email notifications.
type GraphConfig = types.GraphConfig

// alertEmail renders the subject and body for alert.
func alertEmail(alert Alert) (subject, body string) {
	switch alert.Event {
	case EventDegraded:
		subject = "[ALERT] Audio Sampler Degraded - " + alert.Source
		body = fmt.Sprintf(
			"The speaker switch can no longer read the audio output.\n\n"+
				"Source:     %s\n"+
				"Failures:   %d in a row\n"+
				"Last error: %s\n"+
				"Time:       %s\n\n"+
				"The speakers stay in their current state until sampling recovers.",
			alert.Source, alert.Failures, alert.Error, util.HumanTime(),
		)
	case EventRecovered:
		subject = "[OK] Audio Sampler Recovered - " + alert.Source
		body = fmt.Sprintf(
			"Audio sampling recovered on the speaker switch.\n\n"+
				"Source:          %s\n"+
				"Degraded for:    %s\n"+
				"Time:            %s",
			alert.Source, util.FormatDuration(alert.Duration), util.HumanTime(),
		)
	default:
		subject = "[INFO] " + AppName + " - " + alert.Source
		body = alertSummary(alert)
	}
	return subject, body
}

// sendAlertEmail mails alert to every recipient.
func sendAlertEmail(ctx context.Context, client *GraphClient, recipients string, alert Alert) error {
	to := ParseRecipients(recipients)
	if len(to) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	subject, body := alertEmail(alert)
	if err := client.SendMail(ctx, to, subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}
	return nil
}

// SendTestEmail sends a test email to verify email configuration.
func SendTestEmail(ctx context.Context, cfg *GraphConfig) error {
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return fmt.Errorf("create Graph client: %w", err)
	}

	if err := client.ValidateAuth(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	subject := "[TEST] " + AppName
	body := fmt.Sprintf(
		"Test email from the speaker switch on %s.\n\n"+
			"Time: %s\n\n"+
			"Microsoft Graph configuration is working correctly.",
		sourceName(""), util.HumanTime(),
	)

	if err := client.SendMail(ctx, ParseRecipients(cfg.Recipients), subject, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}
