package cmd

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/rustyeddy/propdesk/api"
	"github.com/rustyeddy/propdesk/config"
	"github.com/rustyeddy/propdesk/desk"
	"github.com/rustyeddy/propdesk/feed"
	"github.com/rustyeddy/propdesk/internal/logger"
	"github.com/rustyeddy/propdesk/market"
	"github.com/rustyeddy/propdesk/telegram"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live desk",
	Long: `Run the desk with the sources enabled in the config file: the
Telegram signal poller, the price feed and the HTTP API. The daily reset
runs at the configured boundary.

Example:
  propdesk run -c propdesk.yaml`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LoggerOptions())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		notifiers []desk.Notifier
		bot       telegramBot
	)
	if cfg.Telegram.Enabled {
		b, err := telegram.NewBot(cfg.Telegram.Token, "")
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		bot = b
		if cfg.Telegram.NotifyChatID != 0 {
			notifiers = append(notifiers, telegram.NewNotifier(b, cfg.Telegram.NotifyChatID, log))
		}
	}

	a, err := newApp(ctx, cfg, log, nil, notifiers...)
	if err != nil {
		return err
	}
	defer a.Close()

	st := a.desk.Status()
	log.Info("desk ready",
		zap.String("mode", string(st.Mode)),
		zap.Float64("balance", st.Balance),
		zap.Int("open_positions", len(a.desk.Positions())),
		zap.String("db", cfg.Ledger.DBPath))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.desk.Run(gctx) })

	if cfg.API.Enabled {
		srv := api.NewServer(a.desk, cfg.API.Addr, log)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if f, err := newFeed(cfg, log); err != nil {
		return err
	} else if f != nil {
		g.Go(func() error {
			return f.Run(gctx, func(ctx context.Context, t market.Tick) error {
				_, err := a.desk.SubmitPriceTick(ctx, t.Symbol, t.Price, t.Time)
				return err
			})
		})
	}

	if bot != nil && len(cfg.Telegram.SignalChats) > 0 {
		p := telegram.NewPoller(bot, bot, a.desk, telegram.PollerOptions{
			Chats:   cfg.Telegram.SignalChats,
			Timeout: cfg.Telegram.Timeout,
			Reply:   true,
			Log:     log,
		})
		g.Go(func() error { return p.Run(gctx) })
	}

	err = g.Wait()
	log.Info("desk stopped", zap.Error(err))
	return err
}

// telegramBot is satisfied by *tgbotapi.BotAPI.
type telegramBot interface {
	telegram.Sender
	telegram.Updates
}

func newFeed(cfg *config.Config, log *zap.Logger) (feed.Feed, error) {
	switch cfg.Feed.Kind {
	case "ws":
		return feed.NewWSFeed(feed.WSOptions{
			URL:     cfg.Feed.URL,
			Symbols: cfg.Feed.Symbols,
			Stream:  cfg.Feed.Stream,
			Log:     log,
		})
	case "rest":
		return feed.NewRESTPoller(feed.RESTOptions{
			BaseURL:  cfg.Feed.URL,
			Symbols:  cfg.Feed.Symbols,
			Interval: cfg.Feed.PollInterval,
			Log:      log,
		})
	}
	return nil, nil
}
