package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testEvent() Event {
	prev := decimal.NewFromInt(100)
	return Event{
		ShopID:           "asos",
		ShopName:         "ASOS",
		ProductID:        "https://www.asos.com/x/prd/123",
		Title:            "Leather Boots",
		Brand:            "Dr Martens",
		URL:              "https://www.asos.com/x/prd/123",
		PreviousPriceRef: &prev,
		CurrentPriceRef:  decimal.NewFromInt(80),
		RefCurrency:      "SEK",
		OriginalPrice:    decimal.NewFromFloat(7.5),
		OriginalCurrency: "EUR",
		DiscountPct:      decimal.NewFromInt(20),
		PriceDropPct:     decimal.NewFromInt(20),
		ObservedAt:       time.Now().UTC(),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "Leather Boots") {
		t.Fatalf("text 应包含标题: %q", received["text"])
	}
	if !strings.Contains(received["text"], "80.00 SEK") {
		t.Fatalf("text 应包含参考价: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testEvent()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestDiscordNotifierEmbed(t *testing.T) {
	var payload discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewDiscordNotifier(srv.URL, "", time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(payload.Embeds) != 1 {
		t.Fatalf("expected one embed, got %d", len(payload.Embeds))
	}
	embed := payload.Embeds[0]
	if embed.Title != "Leather Boots" {
		t.Fatalf("embed title = %q", embed.Title)
	}
	if !strings.Contains(embed.Description, "80.00 SEK") {
		t.Fatalf("description should carry the reference price: %q", embed.Description)
	}
	if !strings.Contains(embed.Description, "7.50 EUR") {
		t.Fatalf("description should carry the original price: %q", embed.Description)
	}
	if embed.Footer == nil || embed.Footer.Text != "ASOS" {
		t.Fatalf("footer should be the shop name: %#v", embed.Footer)
	}
}

func TestDiscordNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	notifier := NewDiscordNotifier(srv.URL, "", time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testEvent()); err == nil {
		t.Fatal("429 应报错")
	}
}

type stubNotifier struct {
	name  string
	err   error
	calls int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Notify(_ context.Context, _ Event) error {
	s.calls++
	return s.err
}

func TestMultiNotifierFansOutDespiteFailure(t *testing.T) {
	broken := &stubNotifier{name: "broken", err: errors.New("boom")}
	healthy := &stubNotifier{name: "healthy"}

	multi := NewMulti(broken, healthy)
	err := multi.Notify(context.Background(), testEvent())
	if err == nil {
		t.Fatal("expected joined error from broken channel")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("error should name the failing channel: %v", err)
	}
	if healthy.calls != 1 {
		t.Fatalf("healthy channel should still be called, got %d", healthy.calls)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
