package engine

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/kitetick/engine/internal/requests"
)

// TelegramAlerter sends one message when the websocket backoff hits its
// 30s ceiling, as a signal that the connection is struggling rather than
// just hitting a single transient blip. It is wired into a session by
// assigning kite.WsSession.OnBackoffCeiling to NotifyBackoffCeiling.
//
// There's no stable calling convention for a Telegram bot SDK to adapt here,
// so this talks to Telegram's plain HTTP bot API directly, which needs no
// SDK.
type TelegramAlerter struct {
	BotToken string
	ChatID   string

	fired bool
}

// NotifyBackoffCeiling sends the alert the first time it's called in a
// run; later calls are no-ops so a flapping connection doesn't spam the chat.
func (a *TelegramAlerter) NotifyBackoffCeiling(ctx context.Context, detail string) {
	if a.fired {
		return
	}
	a.fired = true

	text := fmt.Sprintf("kite ws backoff reached ceiling: %s", detail)
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage?chat_id=%s&text=%s",
		a.BotToken, url.QueryEscape(a.ChatID), url.QueryEscape(text))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, code, err := requests.Get(ctx, apiURL, nil); err != nil || code != 200 {
		log.Printf("telegram alert failed: code=%d err=%v", code, err)
	}
}
