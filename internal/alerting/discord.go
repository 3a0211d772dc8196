package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const discordEmbedColor = 0x2ecc71

// DiscordNotifier posts alerts to a Discord webhook as rich embeds.
type DiscordNotifier struct {
	webhookURL string
	username   string
	client     *http.Client
	logger     zerolog.Logger
}

// NewDiscordNotifier 构造 Discord webhook 告警器。
func NewDiscordNotifier(webhookURL, username string, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if username == "" {
		username = "PricePilot"
	}

	return &DiscordNotifier{
		webhookURL: webhookURL,
		username:   username,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

// Name implements Notifier.
func (n *DiscordNotifier) Name() string { return "discord" }

type discordEmbed struct {
	Title       string            `json:"title"`
	URL         string            `json:"url,omitempty"`
	Description string            `json:"description,omitempty"`
	Color       int               `json:"color"`
	Thumbnail   *discordThumbnail `json:"thumbnail,omitempty"`
	Footer      *discordFooter    `json:"footer,omitempty"`
	Timestamp   string            `json:"timestamp,omitempty"`
}

type discordThumbnail struct {
	URL string `json:"url"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// Notify posts one embed per event.
func (n *DiscordNotifier) Notify(ctx context.Context, event Event) error {
	payload := discordPayload{
		Username: n.username,
		Embeds:   []discordEmbed{buildEmbed(event)},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}

	n.logger.Info().
		Str("shop", event.ShopID).
		Str("product", event.ProductID).
		Str("price", event.CurrentPriceRef.StringFixed(2)).
		Msg("告警已发送 (Discord)")
	return nil
}

func buildEmbed(event Event) discordEmbed {
	desc := fmt.Sprintf("**%s**", formatAmount(event.CurrentPriceRef, event.RefCurrency))
	if event.OriginalCurrency != "" && event.OriginalCurrency != event.RefCurrency {
		desc += fmt.Sprintf(" (%s)", formatAmount(event.OriginalPrice, event.OriginalCurrency))
	}
	if event.PreviousPriceRef != nil {
		desc += fmt.Sprintf("\nwas %s", formatAmount(*event.PreviousPriceRef, event.RefCurrency))
	}
	if event.PriceDropPct.IsPositive() {
		desc += fmt.Sprintf("\ndown %s", formatPct(event.PriceDropPct))
	}
	if event.DiscountPct.IsPositive() {
		desc += fmt.Sprintf("\ndiscount %s", formatPct(event.DiscountPct))
	}
	if event.Brand != "" {
		desc += "\n" + event.Brand
	}

	embed := discordEmbed{
		Title:       event.Title,
		URL:         event.URL,
		Description: desc,
		Color:       discordEmbedColor,
		Footer:      &discordFooter{Text: shopLabel(event)},
	}
	if event.ImageURL != "" {
		embed.Thumbnail = &discordThumbnail{URL: event.ImageURL}
	}
	if !event.ObservedAt.IsZero() {
		embed.Timestamp = event.ObservedAt.UTC().Format(time.RFC3339)
	}
	return embed
}

var _ Notifier = (*DiscordNotifier)(nil)
