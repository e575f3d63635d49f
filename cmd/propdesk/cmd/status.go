package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/risk"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show account mode, limits and open positions",
	Long: `Read the latest account snapshot and open positions from the ledger
and show the current mode and remaining limits.

Examples:
  propdesk status
  propdesk status --json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print JSON instead of the panel")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := ledger.NewSQLite(cfg.Ledger.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	engine := risk.NewEngine(cfg.RiskRules(), cfg.RiskProfiles())
	acct, err := store.LoadAccount(ctx)
	if errors.Is(err, ledger.ErrNotFound) {
		acct = engine.NewAccount(cfg.Account.Funded, cfg.Account.MonthsFunded, time.Now())
	} else if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	ps, err := store.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}

	st := engine.Status(acct)
	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"account": acct, "status": st, "positions": ps})
	}
	fmt.Print(renderStatus(st, ps))
	return nil
}
