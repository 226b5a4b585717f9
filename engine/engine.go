// Package engine runs the ticker supervisor: it resolves which instruments
// to subscribe to, seeds the tick store, starts the websocket session, and
// keeps reporting liveness until told to stop.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitetick/engine/internal/creds"
	"github.com/kitetick/engine/internal/dao"
	"github.com/kitetick/engine/kite"
)

// Supervisor wires together credential resolution, instrument selection,
// the tick store, and the websocket session for one user's ticker run.
type Supervisor struct {
	Pool   *pgxpool.Pool
	Creds  creds.Store
	UserID string
	OSType string

	// WindowDays bounds how far into the future the weekly-option expiry
	// search looks; clamped to [1,14] by the selector.
	WindowDays int

	// NATSURL is optional: when non-empty, periodic snapshots of the
	// selected tokens are published once the subscription set is known.
	NATSURL     string
	NATSSubject string
	// Telegram is optional: when non-nil, an alert fires once the
	// websocket backoff hits its ceiling.
	Telegram *TelegramAlerter

	TickLog kite.TickLogConfig
}

// Run resolves credentials and instruments, seeds a fresh TickStore, starts
// the websocket session, and blocks until ctx is cancelled or runFor
// elapses (runFor<=0 means "until ctx is done").
func (s *Supervisor) Run(ctx context.Context, runFor time.Duration) error {
	kiteCreds, err := s.Creds.GetCreds(ctx, s.UserID, s.OSType)
	if err != nil {
		return fmt.Errorf("engine: resolve credentials: %w", err)
	}
	if !kiteCreds.HasAccess || kiteCreds.AccessToken == "" {
		return fmt.Errorf("engine: %w: no access_token for user %s (run login first)", kite.ErrMissingCredentials, s.UserID)
	}
	log.Printf("resolved credentials for user=%s os_type=%s access_token=%s", s.UserID, s.OSType, maskToken(kiteCreds.AccessToken))

	client := kite.NewKite(kiteCreds.APIKey, kiteCreds.APISecret, kiteCreds.AccessToken)

	if profile, err := client.GetProfile(ctx); err != nil {
		log.Printf("REST preflight failed (continuing anyway): %v", err)
	} else {
		log.Printf("REST preflight ok: user_id=%s broker=%s", profile.UserID, profile.Broker)
	}

	expiry, metas, err := kite.SelectNiftyCurrentWeekOptions(ctx, s.Pool, s.WindowDays)
	if err != nil {
		return fmt.Errorf("engine: select instruments: %w", err)
	}
	log.Printf("selected current-week NIFTY options: expiry=%s rows=%d", expiry, len(metas))
	logSample(metas, 20)

	client.Store.SeedMeta(metas)
	tokens := kite.SubscriptionTokens(metas)

	session := kite.NewWsSession(kiteCreds.APIKey, kiteCreds.AccessToken, tokens, client.Store, s.TickLog)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.Telegram != nil {
		session.OnBackoffCeiling = func(detail string) {
			s.Telegram.NotifyBackoffCeiling(runCtx, detail)
		}
	}

	wsDone := make(chan error, 1)
	go func() { wsDone <- session.RunForever(runCtx) }()

	if s.NATSURL != "" {
		subject := s.NATSSubject
		if subject == "" {
			subject = "kitetick.snapshots"
		}
		sink, err := NewNatsSink(s.NATSURL, subject, s.TickLog.Interval, tokens)
		if err != nil {
			log.Printf("NATS disabled, connect failed: %v", err)
		} else {
			go sink.RunPeriodicSnapshots(runCtx, client.Store)
		}
	}

	statsDone := s.runStatsLoop(runCtx, client.Store, len(tokens))
	defer func() { <-statsDone }()

	if runFor > 0 {
		select {
		case <-time.After(runFor):
			cancel()
		case err := <-wsDone:
			return err
		}
		return nil
	}

	select {
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	case err := <-wsDone:
		return err
	}
}

// runStatsLoop logs subscribed/received token counts every 2s. It returns a
// channel closed once the loop exits.
func (s *Supervisor) runStatsLoop(ctx context.Context, store *kite.TickStore, subscribed int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				received := store.ReceivedTokenCount()
				log.Printf("ticker stats: subscribed_tokens=%d received_tokens=%d", subscribed, received)
			}
		}
	}()
	return done
}

func logSample(metas []kite.TokenMeta, n int) {
	if n > len(metas) {
		n = len(metas)
	}
	for _, m := range metas[:n] {
		log.Printf("  token=%d symbol=%s type=%s expiry=%s strike=%v", m.InstrumentToken, m.TradingSymbol, m.InstrumentType, m.Expiry, m.Strike)
	}
}

func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return fmt.Sprintf("len=%d tail=%s", len(token), token[len(token)-4:])
}

// RunSecsFromEnv reads TICKER_RUN_SECS, used by the CLI to bound a run for
// scripted / CI use instead of waiting on an interrupt signal.
func RunSecsFromEnv() time.Duration {
	v := strings.TrimSpace(os.Getenv("TICKER_RUN_SECS"))
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// WindowDaysFromEnv reads TICKER_WINDOW_DAYS (default 7, matching the
// original weekly-series default).
func WindowDaysFromEnv() int {
	v := strings.TrimSpace(os.Getenv("TICKER_WINDOW_DAYS"))
	if v == "" {
		return 7
	}
	days, err := strconv.Atoi(v)
	if err != nil {
		return 7
	}
	return days
}

// InstrumentMetaFromRows adapts raw DAO rows to kite.TokenMeta.
func InstrumentMetaFromRows(rows []dao.InstrumentMetaRow) []kite.TokenMeta {
	out := make([]kite.TokenMeta, 0, len(rows))
	for _, r := range rows {
		out = append(out, kite.TokenMeta{
			InstrumentToken: r.InstrumentToken,
			TradingSymbol:   r.TradingSymbol,
			InstrumentType:  r.InstrumentType,
			Expiry:          r.Expiry,
			HasExpiry:       r.HasExpiry,
			Strike:          r.Strike,
			HasStrike:       r.HasStrike,
		})
	}
	return out
}
