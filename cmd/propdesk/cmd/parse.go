package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rustyeddy/propdesk/risk"
	"github.com/rustyeddy/propdesk/signal"
	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse [text]",
	Short: "Parse a trade signal without submitting it",
	Long: `Parse a signal message and print the trade intent. The text is read
from the arguments or, when there are none, from stdin.

Examples:
  propdesk parse "BTCUSDT Long Entry: 45000 TP: 47000 SL: 43000"
  pbpaste | propdesk parse`,
	RunE: runParse,
}

var parseTemplates bool

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().BoolVar(&parseTemplates, "templates", false, "list the recognized message formats")
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p := signal.NewParser(cfg.SignalOptions())

	if parseTemplates {
		for _, name := range p.Templates() {
			fmt.Println(name)
		}
		return nil
	}

	text := strings.Join(args, " ")
	if text == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		text = string(b)
	}

	intent, err := p.Parse(text)
	if err != nil {
		var pe *signal.ParseError
		if errors.As(err, &pe) {
			return fmt.Errorf("parse failed (%s): %w", pe.Kind, err)
		}
		return err
	}

	out := struct {
		signal.TradeIntent
		RiskReward      float64 `json:"risk_reward"`
		StopDistancePct float64 `json:"stop_distance_pct"`
	}{
		TradeIntent:     intent,
		RiskReward:      risk.RiskReward(intent.Side, intent.Entry, intent.StopLoss, intent.TakeProfit),
		StopDistancePct: 100 * risk.StopDistancePct(intent.Entry, intent.StopLoss),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
