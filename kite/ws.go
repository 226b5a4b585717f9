package kite

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"
)

// TickLogConfig controls the rate-limited "kite tick" info log emitted from
// the read loop: first tick per token always logs, afterward at most once
// per Interval per token-stream.
type TickLogConfig struct {
	Enabled  bool
	Interval time.Duration
}

// TickLogConfigFromEnv reads TICK_LOG_FULL (default on) and
// TICK_LOG_INTERVAL_MS (default 500).
func TickLogConfigFromEnv() TickLogConfig {
	return TickLogConfig{
		Enabled:  envBoolDefault("TICK_LOG_FULL", true),
		Interval: time.Duration(envUintDefault("TICK_LOG_INTERVAL_MS", 500)) * time.Millisecond,
	}
}

func envBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "no", "NO", "off", "OFF":
		return false
	default:
		return def
	}
}

func envUintDefault(key string, def uint64) uint64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n == 0 {
		return def
	}
	return n
}

const subscribeChunkSize = 300

// WsSession is the websocket tick feed for one user: connects to
// wss://ws.kite.trade, subscribes the configured tokens in full mode, and
// folds every decoded tick into Store. Reconnects with exponential backoff
// on any error, starting at 250ms and doubling to a 30s ceiling; a clean
// server-initiated close also reconnects, but resets the backoff first.
type WsSession struct {
	APIKey      string
	AccessToken string
	Tokens      []int32
	Store       *TickStore
	Log         TickLogConfig

	// OnBackoffCeiling, if set, is invoked (at most once per ceiling hit)
	// each time the reconnect backoff reaches its 30s cap.
	OnBackoffCeiling func(detail string)

	// WsURL overrides the dial target; empty means the real
	// wss://ws.kite.trade endpoint. Tests point this at a local server.
	WsURL string

	allowed map[int32]struct{}
}

// NewWsSession builds a session over the given token set. Tokens must be
// non-empty; RunForever returns ErrNoSubscription immediately otherwise.
func NewWsSession(apiKey, accessToken string, tokens []int32, store *TickStore, log TickLogConfig) *WsSession {
	allowed := make(map[int32]struct{}, len(tokens))
	for _, t := range tokens {
		allowed[t] = struct{}{}
	}
	return &WsSession{
		APIKey:      apiKey,
		AccessToken: accessToken,
		Tokens:      tokens,
		Store:       store,
		Log:         log,
		allowed:     allowed,
	}
}

// RunForever blocks, reconnecting until ctx is cancelled.
func (s *WsSession) RunForever(ctx context.Context) error {
	if len(s.Tokens) == 0 {
		return ErrNoSubscription
	}

	backoff := 250 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.runOnce(ctx)
		if err == nil {
			backoff = 250 * time.Millisecond
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Printf("kite ws error, reconnecting in %s: %v", backoff, err)
		if backoff >= maxBackoff && s.OnBackoffCeiling != nil {
			s.OnBackoffCeiling(err.Error())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *WsSession) runOnce(ctx context.Context) error {
	base := s.WsURL
	if base == "" {
		base = "wss://ws.kite.trade/"
	}
	wsURL := base + "?api_key=" + url.QueryEscape(s.APIKey) + "&access_token=" + url.QueryEscape(s.AccessToken)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: map[string][]string{
			"Origin":         {"https://kite.zerodha.com"},
			"User-Agent":     {"kitetick-engine/1.0"},
			"X-Kite-Version": {"3"},
		},
	})
	if err != nil {
		return &WsError{Op: "dial", Err: err}
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := s.subscribeFull(ctx, conn); err != nil {
		return err
	}
	log.Printf("kite ws subscribed + mode=full, token_count=%d", len(s.Tokens))

	lastTickLog := time.Now()
	loggedFirst := make(map[int32]struct{})

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			// nhooyr.io/websocket answers pings transparently at the
			// protocol layer and surfaces a clean remote close as a
			// CloseStatus-bearing error rather than a distinct message
			// type, unlike gorilla/websocket's explicit Close frame.
			if websocket.CloseStatus(err) != -1 {
				log.Printf("kite ws close: %v", err)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &WsError{Op: "read", Err: err}
		}

		switch typ {
		case websocket.MessageBinary:
			receivedNs := NowUnixNs()
			for _, t := range DecodeBinaryTicks(data, receivedNs) {
				if _, ok := s.allowed[t.InstrumentToken]; !ok {
					continue
				}
				if s.Log.Enabled {
					_, firstSeen := loggedFirst[t.InstrumentToken]
					due := time.Since(lastTickLog) >= s.Log.Interval
					if !firstSeen || due {
						loggedFirst[t.InstrumentToken] = struct{}{}
						symbol, _ := s.Store.GetSymbol(t.InstrumentToken)
						log.Printf("kite tick token=%d symbol=%q mode=%s last_price=%.2f", t.InstrumentToken, symbol, t.Mode, t.LastPrice)
						lastTickLog = time.Now()
					}
				}
				s.Store.UpdateTick(t)
			}
		case websocket.MessageText:
			log.Printf("kite ws text: %s", data)
		}
	}
}

func (s *WsSession) subscribeFull(ctx context.Context, conn *websocket.Conn) error {
	for start := 0; start < len(s.Tokens); start += subscribeChunkSize {
		end := start + subscribeChunkSize
		if end > len(s.Tokens) {
			end = len(s.Tokens)
		}
		chunk := s.Tokens[start:end]

		subMsg, err := json.Marshal(map[string]any{"a": "subscribe", "v": chunk})
		if err != nil {
			return fmt.Errorf("marshal subscribe: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, subMsg); err != nil {
			return &WsError{Op: "subscribe", Err: err}
		}

		modeMsg, err := json.Marshal(map[string]any{"a": "mode", "v": []any{"full", chunk}})
		if err != nil {
			return fmt.Errorf("marshal mode: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, modeMsg); err != nil {
			return &WsError{Op: "mode", Err: err}
		}
	}
	return nil
}
