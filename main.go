package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/robfig/cron"

	"github.com/kitetick/engine/engine"
	"github.com/kitetick/engine/internal/catalogcsv"
	"github.com/kitetick/engine/internal/config"
	"github.com/kitetick/engine/internal/creds"
	"github.com/kitetick/engine/internal/dao"
	"github.com/kitetick/engine/kite"
	"github.com/kitetick/engine/server"
)

func main() {
	if os.Getenv("TA_ID") == "" {
		godotenv.Load()
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "ticker":
		err = runTicker(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "refresh-catalog":
		err = runRefreshCatalog(os.Args[2:])
	case "cron":
		err = runCron(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kitetick <ticker|serve|refresh-catalog|cron> [flags]")
}

// runTicker implements the `ticker <USER_ID>` subcommand: it runs the
// supervisor until TICKER_RUN_SECS elapses (if set) or the process is
// interrupted. Exit code is non-zero only on unrecoverable setup error.
func runTicker(args []string) error {
	fs := flag.NewFlagSet("ticker", flag.ExitOnError)
	printTicks := fs.Bool("print-ticks", true, "log every tick at the TICK_LOG_INTERVAL_MS rate (overrides TICK_LOG_FULL)")
	noPrintTicks := fs.Bool("no-print-ticks", false, "disable tick logging (overrides TICK_LOG_FULL)")
	osType := fs.String("os-type", "", "override OS_TYPE for credential lookup")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("ticker: missing USER_ID argument")
	}
	userID := fs.Arg(0)

	cfg := config.FromEnvTicker()
	if *osType != "" {
		cfg.OSType = *osType
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("ticker: connect to catalog store: %w", err)
	}
	defer pool.Close()

	credStore, err := creds.NewFromEnv(pool)
	if err != nil {
		return fmt.Errorf("ticker: %w", err)
	}

	printTicksSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "print-ticks" {
			printTicksSet = true
		}
	})

	tickLog := kite.TickLogConfigFromEnv()
	if *noPrintTicks {
		tickLog.Enabled = false
	} else if printTicksSet {
		tickLog.Enabled = *printTicks
	}

	sup := &engine.Supervisor{
		Pool:       pool,
		Creds:      credStore,
		UserID:     userID,
		OSType:     cfg.OSType,
		WindowDays: engine.WindowDaysFromEnv(),
		TickLog:    tickLog,
	}

	if telegramToken := os.Getenv("TELEGRAM_BOT_TOKEN"); telegramToken != "" {
		sup.Telegram = &engine.TelegramAlerter{BotToken: telegramToken, ChatID: os.Getenv("TELEGRAM_CHAT_ID")}
	}
	sup.NATSURL = os.Getenv("NATS_URL")
	sup.NATSSubject = envOrDefault("NATS_SUBJECT", "kitetick.snapshots")

	if err := sup.Run(ctx, engine.RunSecsFromEnv()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runServe starts the REST surface (health check + OAuth login/callback).
func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "override SERVER_ADDR")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if *addr != "" {
		cfg.ServerAddr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("serve: connect to catalog store: %w", err)
	}
	defer pool.Close()

	srv := server.New(pool, cfg)
	log.Printf("serving on %s", cfg.ServerAddr)
	return srv.Run(ctx)
}

// runRefreshCatalog downloads the instruments CSV dump and upserts it into
// the catalog store, outside of cron for manual/smoke-test use.
func runRefreshCatalog(args []string) error {
	fs := flag.NewFlagSet("refresh-catalog", flag.ExitOnError)
	url := fs.String("url", "https://api.kite.trade/instruments", "instruments CSV dump URL")
	cachePath := fs.String("cache", "/tmp/kitetick-instruments.zst", "local cache path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.FromEnvTicker()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("refresh-catalog: connect to catalog store: %w", err)
	}
	defer pool.Close()

	rows, err := catalogcsv.FetchAndCache(ctx, *url, *cachePath)
	if err != nil {
		return fmt.Errorf("refresh-catalog: %w", err)
	}

	upserts := catalogcsv.ToUpsertRows(rows)
	n, err := dao.ReplaceInstruments(ctx, pool, upserts)
	if err != nil {
		return fmt.Errorf("refresh-catalog: %w", err)
	}

	log.Printf("refresh-catalog: upserted %d instruments", n)
	return nil
}

// runCron keeps the process alive and runs the catalog refresh on a
// schedule, pre-market by default, instead of relying on an external
// scheduler to invoke refresh-catalog.
func runCron(args []string) error {
	fs := flag.NewFlagSet("cron", flag.ExitOnError)
	url := fs.String("url", "https://api.kite.trade/instruments", "instruments CSV dump URL")
	cachePath := fs.String("cache", "/tmp/kitetick-instruments.zst", "local cache path")
	spec := fs.String("spec", "0 0 8 * * *", "cron schedule for the refresh job")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.FromEnvTicker()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("cron: connect to catalog store: %w", err)
	}
	defer pool.Close()

	refresh := func() {
		rows, err := catalogcsv.FetchAndCache(ctx, *url, *cachePath)
		if err != nil {
			log.Printf("cron: refresh failed: %v", err)
			return
		}
		n, err := dao.ReplaceInstruments(ctx, pool, catalogcsv.ToUpsertRows(rows))
		if err != nil {
			log.Printf("cron: upsert failed: %v", err)
			return
		}
		log.Printf("cron: upserted %d instruments", n)
	}

	c := cron.New()
	if err := c.AddFunc(*spec, refresh); err != nil {
		return fmt.Errorf("cron: bad schedule %q: %w", *spec, err)
	}
	log.Printf("cron: scheduled catalog refresh %q", *spec)
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
