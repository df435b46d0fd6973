package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/resilience/retry"
)

// SlackConfig contains configuration for Slack webhook alerts.
type SlackConfig struct {
	Enabled bool

	// WebhookURL is the Slack Incoming Webhook URL (includes authentication token)
	WebhookURL string

	Timeout time.Duration

	// Retry overrides retry.WebhookConfig when set.
	Retry *retry.Config
}

// SlackNotifier posts alerts to a Slack Incoming Webhook using Block Kit.
type SlackNotifier struct {
	config  SlackConfig
	webhook *webhook
}

// NewSlackNotifier allows one request per second, the Incoming Webhook limit.
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		config:  config,
		webhook: newWebhook("slack", config.WebhookURL, config.Timeout, NewRateLimiter(1.0, 1), config.Retry),
	}
}

// SlackWebhookPayload represents the JSON payload sent to Slack webhook using Block Kit.
type SlackWebhookPayload struct {
	Text   string       `json:"text"`   // Fallback text (required)
	Blocks []SlackBlock `json:"blocks"` // Rich formatting blocks
}

// SlackBlock represents a Slack Block Kit block.
type SlackBlock struct {
	Type     string            `json:"type"`               // "header", "section", "context"
	Text     *SlackTextObject  `json:"text,omitempty"`     // Text content (for header and section)
	Fields   []SlackTextObject `json:"fields,omitempty"`   // Two-column fields (for section)
	Elements []SlackTextObject `json:"elements,omitempty"` // Elements (for context)
}

// SlackTextObject represents a text object in Slack Block Kit.
type SlackTextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"`
}

const (
	maxSlackHeaderLength  = 150
	maxSectionTextLength  = 3000
	maxSlackFields        = 10
	maxFallbackLength     = 150
	slackTruncationSuffix = "..."
)

var slackSeverityEmoji = map[string]string{
	entity.SeverityInfo:     ":information_source:",
	entity.SeverityWarning:  ":warning:",
	entity.SeverityCritical: ":rotating_light:",
}

func (s *SlackNotifier) buildBlockKitPayload(alert *entity.Alert) SlackWebhookPayload {
	fallback := truncate(fmt.Sprintf("[%s] %s", alert.Severity, alert.Title), maxFallbackLength, slackTruncationSuffix)

	blocks := []SlackBlock{{
		Type: "header",
		Text: &SlackTextObject{
			Type: "plain_text",
			Text: truncate(alert.Title, maxSlackHeaderLength, slackTruncationSuffix),
		},
	}}

	text := alert.Summary
	if emoji, ok := slackSeverityEmoji[alert.Severity]; ok {
		text = emoji + " " + text
	}
	if len(alert.Details) > 0 {
		text += "\n• " + strings.Join(alert.Details, "\n• ")
	}
	section := SlackBlock{
		Type: "section",
		Text: &SlackTextObject{Type: "mrkdwn", Text: truncate(text, maxSectionTextLength, slackTruncationSuffix)},
	}
	for i, f := range alert.Fields {
		if i == maxSlackFields {
			break
		}
		section.Fields = append(section.Fields, SlackTextObject{
			Type: "mrkdwn",
			Text: fmt.Sprintf("*%s*\n%s", f.Name, f.Value),
		})
	}
	blocks = append(blocks, section, SlackBlock{
		Type: "context",
		Elements: []SlackTextObject{{
			Type: "mrkdwn",
			Text: fmt.Sprintf("%s • %s", alert.Severity, alert.OccurredAt.UTC().Format(time.RFC3339)),
		}},
	})

	return SlackWebhookPayload{Text: fallback, Blocks: blocks}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) IsEnabled() bool {
	return s.config.Enabled && s.config.WebhookURL != ""
}

// NotifyAlert posts alert. Client errors other than 429 are not retried.
func (s *SlackNotifier) NotifyAlert(ctx context.Context, alert *entity.Alert) error {
	return s.webhook.send(ctx, s.buildBlockKitPayload(alert))
}
