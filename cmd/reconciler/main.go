// Command reconciler resolves transactions that never received a provider
// callback. Run it from cron; -interval keeps it running instead.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/config"
	"marketplace/internal/app"
	"marketplace/internal/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	staleAfter := flag.Duration("stale-after", cfg.Reconcile.StaleAfter, "reconcile transactions older than this")
	batch := flag.Int("batch", cfg.Reconcile.BatchSize, "transactions per pass")
	interval := flag.Duration("interval", 0, "repeat every interval; 0 runs once")
	flag.Parse()

	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup", zap.Error(err))
	}
	defer a.Close()

	pass := func() bool {
		report, err := a.Transactions.ReconcileStale(ctx, *staleAfter, *batch)
		if err != nil {
			log.Error("reconcile pass", zap.Error(err))
			return false
		}
		log.Info("reconcile pass",
			zap.Int("checked", report.Checked),
			zap.Int("completed", report.Completed),
			zap.Int("failed", report.Failed),
			zap.Int("expired", report.Expired),
			zap.Int("unresolved", report.Unresolved),
			zap.Int("errors", report.Errors))
		return report.Errors == 0
	}

	if *interval <= 0 {
		if !pass() {
			a.Close()
			os.Exit(1)
		}
		return
	}
	tick := time.NewTicker(*interval)
	defer tick.Stop()
	for {
		pass()
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}
