package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/propdesk/config"
	"github.com/rustyeddy/propdesk/desk"
	"github.com/rustyeddy/propdesk/internal/logger"
	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/risk"
	"github.com/rustyeddy/propdesk/signal"
	"go.uber.org/zap"
)

// app is the composition root shared by run and replay.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	store  *ledger.SQLiteStore
	engine *risk.Engine
	desk   *desk.Desk
}

// newApp opens the ledger and builds the desk. Trade events always go to
// the log and then to each of extra.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, clock func() time.Time, extra ...desk.Notifier) (*app, error) {
	store, err := ledger.NewSQLite(cfg.Ledger.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	engine := risk.NewEngine(cfg.RiskRules(), cfg.RiskProfiles())
	now := time.Now()
	if clock != nil {
		now = clock()
	}
	initial := engine.NewAccount(cfg.Account.Funded, cfg.Account.MonthsFunded, now)

	l, open, err := ledger.Open(ctx, store, engine, initial, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	notifier := append(desk.MultiNotifier{desk.LogNotifier{Log: logger.Module(log, "events")}}, extra...)
	d, err := desk.New(desk.Options{
		Engine:             engine,
		Sizer:              risk.NewSizer(cfg.SizingRules()),
		Parser:             signal.NewParser(cfg.SignalOptions()),
		Manager:            lifecycle.NewManager(cfg.LifecycleRules()),
		Ledger:             l,
		Notifier:           notifier,
		Log:                log,
		DuplicateTolerance: cfg.Signal.DuplicateTolerance,
		Clock:              clock,
	}, open)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: store, engine: engine, desk: d}, nil
}

func (a *app) Close() error {
	_ = a.log.Sync()
	return a.store.Close()
}
