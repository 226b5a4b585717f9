package engine

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kitetick/engine/kite"
)

// NatsSink publishes periodic tick-store snapshots to a NATS subject. This
// is purely additive: nothing in the store's invariants depends on it, and
// a publish failure never affects the websocket session.
type NatsSink struct {
	Conn     *nats.Conn
	Subject  string
	Interval time.Duration
	Tokens   []int32
}

// NewNatsSink connects to url and returns a sink ready to run. Callers
// should treat a connect failure as "NATS disabled" rather than fatal.
func NewNatsSink(url, subject string, interval time.Duration, tokens []int32) (*NatsSink, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &NatsSink{Conn: conn, Subject: subject, Interval: interval, Tokens: tokens}, nil
}

type tickSnapshot struct {
	Token     int32   `json:"token"`
	Symbol    string  `json:"symbol,omitempty"`
	LastPrice float64 `json:"last_price"`
	Mode      string  `json:"mode"`
}

// RunPeriodicSnapshots publishes one JSON message per tracked token, every
// Interval, until ctx is cancelled.
func (s *NatsSink) RunPeriodicSnapshots(ctx context.Context, store *kite.TickStore) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	defer s.Conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, token := range s.Tokens {
				st, ok := store.GetState(token)
				if !ok || !st.HasTick {
					continue
				}
				snap := tickSnapshot{
					Token:     token,
					Symbol:    st.Meta.TradingSymbol,
					LastPrice: st.LastTick.LastPrice,
					Mode:      st.LastTick.Mode.String(),
				}
				data, err := json.Marshal(snap)
				if err != nil {
					log.Printf("nats snapshot marshal error for token %d: %v", token, err)
					continue
				}
				if err := s.Conn.Publish(s.Subject, data); err != nil {
					log.Printf("nats publish error for token %d: %v", token, err)
				}
			}
		}
	}
}
