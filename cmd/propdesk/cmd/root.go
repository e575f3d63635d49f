package cmd

import (
	"fmt"

	"github.com/rustyeddy/propdesk/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "propdesk",
	Short: "Prop-firm trade admission and position desk",
	Long: `Propdesk turns trade signals from chat channels into risk-checked
positions for a proprietary trading firm account.

It provides tools for:
  - Parsing free-form trade signals
  - Admitting trades against evaluation and funded account rules
  - Sizing positions from account risk
  - Managing open positions with scale-outs and trailing stops
  - Keeping a durable ledger of every decision and exit
  - Replaying recorded sessions`,
	SilenceUsage: true,
}

var (
	cfgPath string
	envPath string
	dbPath  string
	debug   bool
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "propdesk.yaml", "config file (YAML or JSON); defaults apply when missing")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", "dotenv file with secrets (default ./.env)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "ledger database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")
}

func loadConfig() (*config.Config, error) {
	var envFiles []string
	if envPath != "" {
		envFiles = append(envFiles, envPath)
	}
	cfg, err := config.Load(cfgPath, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.Ledger.DBPath = dbPath
	}
	if debug {
		cfg.Log.Debug = true
	}
	return cfg, nil
}
