package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/market"
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Query the decision and exit ledger",
	Long: `Query and export ledger records from the SQLite database.

Subcommands:
  decisions - Admission decisions, accepted and rejected
  exits     - Partial and full exits
  days      - Archived trading days

Examples:
  propdesk ledger decisions --decision rejected --limit 20
  propdesk ledger exits --format org
  propdesk ledger days --format csv > days.csv`,
}

var ledgerDecisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List admission decisions",
	Args:  cobra.NoArgs,
	RunE:  runLedgerDecisions,
}

var ledgerExitsCmd = &cobra.Command{
	Use:   "exits",
	Short: "List position exits",
	Args:  cobra.NoArgs,
	RunE:  runLedgerExits,
}

var ledgerDaysCmd = &cobra.Command{
	Use:   "days",
	Short: "List archived trading days",
	Args:  cobra.NoArgs,
	RunE:  runLedgerDays,
}

var (
	ledgerFormat   string
	ledgerLimit    int
	ledgerDecision string
	ledgerSymbol   string
	ledgerPosition string
	ledgerSince    string
)

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerDecisionsCmd)
	ledgerCmd.AddCommand(ledgerExitsCmd)
	ledgerCmd.AddCommand(ledgerDaysCmd)

	ledgerCmd.PersistentFlags().StringVarP(&ledgerFormat, "format", "F", "csv", "output format: csv, json or org (exits only)")
	ledgerCmd.PersistentFlags().IntVarP(&ledgerLimit, "limit", "n", 0, "max rows (0 = all)")
	ledgerCmd.PersistentFlags().StringVar(&ledgerSymbol, "symbol", "", "filter by symbol")
	ledgerCmd.PersistentFlags().StringVar(&ledgerSince, "since", "", "only records at or after this time (RFC3339 or YYYY-MM-DD)")
	ledgerDecisionsCmd.Flags().StringVar(&ledgerDecision, "decision", "", "accepted or rejected")
	ledgerExitsCmd.Flags().StringVar(&ledgerPosition, "position", "", "filter by position id")
}

func ledgerQuery() (ledger.Query, error) {
	q := ledger.Query{
		Decision:   ledger.Decision(strings.ToLower(ledgerDecision)),
		PositionID: ledgerPosition,
		Limit:      ledgerLimit,
	}
	if ledgerSymbol != "" {
		q.Symbol = market.NormalizeSymbol(ledgerSymbol)
	}
	if ledgerSince != "" {
		t, err := time.Parse(time.RFC3339, ledgerSince)
		if err != nil {
			if t, err = time.Parse("2006-01-02", ledgerSince); err != nil {
				return q, fmt.Errorf("bad --since %q", ledgerSince)
			}
		}
		q.Since = t
	}
	return q, nil
}

func openLedger() (*ledger.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := ledger.NewSQLite(cfg.Ledger.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return store, nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runLedgerDecisions(cmd *cobra.Command, args []string) error {
	q, err := ledgerQuery()
	if err != nil {
		return err
	}
	store, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.Decisions(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("query decisions: %w", err)
	}
	switch ledgerFormat {
	case "json":
		return writeJSON(recs)
	case "csv":
		return ledger.WriteDecisionsCSV(os.Stdout, recs)
	}
	return fmt.Errorf("unsupported format %q for decisions", ledgerFormat)
}

func runLedgerExits(cmd *cobra.Command, args []string) error {
	q, err := ledgerQuery()
	if err != nil {
		return err
	}
	store, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.Exits(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("query exits: %w", err)
	}
	switch ledgerFormat {
	case "json":
		return writeJSON(recs)
	case "csv":
		return ledger.WriteExitsCSV(os.Stdout, recs)
	case "org":
		for _, r := range recs {
			fmt.Println(ledger.FormatExitOrg(r))
		}
		return nil
	}
	return fmt.Errorf("unsupported format %q for exits", ledgerFormat)
}

func runLedgerDays(cmd *cobra.Command, args []string) error {
	store, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	days, err := store.Days(cmd.Context(), ledgerLimit)
	if err != nil {
		return fmt.Errorf("query days: %w", err)
	}
	switch ledgerFormat {
	case "json":
		return writeJSON(days)
	case "csv":
		return ledger.WriteDaysCSV(os.Stdout, days)
	}
	return fmt.Errorf("unsupported format %q for days", ledgerFormat)
}
