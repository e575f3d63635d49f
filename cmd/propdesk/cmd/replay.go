package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rustyeddy/propdesk/internal/logger"
	"github.com/rustyeddy/propdesk/replay"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <session.csv>",
	Short: "Replay recorded ticks and signals through the desk",
	Long: `Replay a CSV session through a desk running on replay time.

CSV format:
  time,symbol,price,event,arg1,arg2,arg3

Events: SIGNAL, CLOSE, CLOSE_ALL, RESET, FUNDING.

Without --db the replay writes to a fresh database in a temp directory so
live state is never touched.

Example:
  propdesk replay examples/session.csv --start 2026-03-02T09:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var (
	replayStart      string
	replayEventFirst bool
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayStart, "start", "", "replay clock start (RFC3339); defaults to the first row")
	replayCmd.Flags().BoolVar(&replayEventFirst, "event-first", false, "apply each row's event before its tick")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dbPath == "" {
		dir, err := os.MkdirTemp("", "propdesk-replay-")
		if err != nil {
			return err
		}
		cfg.Ledger.DBPath = filepath.Join(dir, "replay.db")
	}

	start := time.Time{}
	if replayStart != "" {
		if start, err = time.Parse(time.RFC3339, replayStart); err != nil {
			return fmt.Errorf("bad --start: %w", err)
		}
	} else if start, err = firstRowTime(args[0]); err != nil {
		return err
	}
	clock := replay.NewClock(start)

	log, err := logger.New(cfg.LoggerOptions())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a, err := newApp(cmd.Context(), cfg, log, clock.Now)
	if err != nil {
		return err
	}
	defer a.Close()

	sum, err := replay.CSV(cmd.Context(), args[0], a.desk, clock, replay.Options{
		TickThenEvent: !replayEventFirst,
		Log:           log,
	})
	fmt.Print(renderSummary(sum))
	fmt.Print(renderStatus(a.desk.Status(), a.desk.Positions()))
	fmt.Printf("ledger: %s\n", cfg.Ledger.DBPath)
	return err
}

// firstRowTime reads the time of the first data row.
func firstRowTime(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	t, err := replay.FirstTime(f)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
