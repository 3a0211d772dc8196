package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Name implements Notifier.
func (n *TelegramNotifier) Name() string { return "telegram" }

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, event Event) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(event),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().
		Str("shop", event.ShopID).
		Str("product", event.ProductID).
		Str("price", event.CurrentPriceRef.StringFixed(2)).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(event Event) string {
	builder := strings.Builder{}
	builder.WriteString("[PricePilot Alert]\n")
	builder.WriteString(fmt.Sprintf("%s\n", event.Title))
	if event.Brand != "" {
		builder.WriteString(fmt.Sprintf("Brand: %s\n", event.Brand))
	}
	builder.WriteString(fmt.Sprintf("Shop: %s\n", shopLabel(event)))
	builder.WriteString(fmt.Sprintf("Price: %s", formatAmount(event.CurrentPriceRef, event.RefCurrency)))
	if event.OriginalCurrency != "" && event.OriginalCurrency != event.RefCurrency {
		builder.WriteString(fmt.Sprintf(" (%s)", formatAmount(event.OriginalPrice, event.OriginalCurrency)))
	}
	builder.WriteString("\n")
	if event.PreviousPriceRef != nil {
		builder.WriteString(fmt.Sprintf("Was: %s\n", formatAmount(*event.PreviousPriceRef, event.RefCurrency)))
	}
	if event.PriceDropPct.IsPositive() {
		builder.WriteString(fmt.Sprintf("Drop: %s\n", formatPct(event.PriceDropPct)))
	}
	if event.DiscountPct.IsPositive() {
		builder.WriteString(fmt.Sprintf("Discount: %s\n", formatPct(event.DiscountPct)))
	}
	builder.WriteString(event.URL)
	return builder.String()
}

func shopLabel(event Event) string {
	if event.ShopName != "" {
		return event.ShopName
	}
	return event.ShopID
}

var _ Notifier = (*TelegramNotifier)(nil)
