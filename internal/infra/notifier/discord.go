package notifier

import (
	"context"
	"strings"
	"time"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/resilience/retry"
)

// DiscordConfig contains configuration for Discord webhook alerts.
type DiscordConfig struct {
	Enabled bool

	// WebhookURL is the Discord webhook URL (includes authentication token)
	WebhookURL string

	Timeout time.Duration

	// Retry overrides retry.WebhookConfig when set.
	Retry *retry.Config
}

// DiscordNotifier posts alerts to a Discord webhook as embeds.
type DiscordNotifier struct {
	config  DiscordConfig
	webhook *webhook
}

// NewDiscordNotifier allows 30 requests per minute with a burst of 3.
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		config:  config,
		webhook: newWebhook("discord", config.WebhookURL, config.Timeout, NewRateLimiter(0.5, 3), config.Retry),
	}
}

// DiscordWebhookPayload represents the JSON payload sent to Discord webhook.
type DiscordWebhookPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed represents a Discord embed message.
type DiscordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Color       int                 `json:"color"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Footer      DiscordEmbedFooter  `json:"footer"`
	Timestamp   string              `json:"timestamp"`
}

// DiscordEmbedField is an inline name/value pair.
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// DiscordEmbedFooter represents the footer of a Discord embed.
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

const (
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	maxDiscordFields     = 25
	truncationSuffix     = "..."

	discordBlueColor   = 5793266  // #5865F2
	discordYellowColor = 16705372 // #FEE75C
	discordRedColor    = 15548997 // #ED4245
)

func severityColor(severity string) int {
	switch severity {
	case entity.SeverityCritical:
		return discordRedColor
	case entity.SeverityWarning:
		return discordYellowColor
	default:
		return discordBlueColor
	}
}

func (d *DiscordNotifier) buildEmbedPayload(alert *entity.Alert) DiscordWebhookPayload {
	description := alert.Summary
	if len(alert.Details) > 0 {
		description += "\n- " + strings.Join(alert.Details, "\n- ")
	}

	embed := DiscordEmbed{
		Title:       truncate(alert.Title, maxTitleLength, ""),
		Description: truncate(description, maxDescriptionLength, truncationSuffix),
		Color:       severityColor(alert.Severity),
		Footer:      DiscordEmbedFooter{Text: "feed-resilience • " + alert.Severity},
		Timestamp:   alert.OccurredAt.UTC().Format(time.RFC3339),
	}
	for i, f := range alert.Fields {
		if i == maxDiscordFields {
			break
		}
		embed.Fields = append(embed.Fields, DiscordEmbedField{Name: f.Name, Value: f.Value, Inline: true})
	}
	return DiscordWebhookPayload{Embeds: []DiscordEmbed{embed}}
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) IsEnabled() bool {
	return d.config.Enabled && d.config.WebhookURL != ""
}

// NotifyAlert posts alert. Client errors other than 429 are not retried.
func (d *DiscordNotifier) NotifyAlert(ctx context.Context, alert *entity.Alert) error {
	return d.webhook.send(ctx, d.buildEmbedPayload(alert))
}
