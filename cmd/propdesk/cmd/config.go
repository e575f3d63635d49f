package cmd

import (
	"fmt"

	"github.com/rustyeddy/propdesk/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage desk configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  propdesk config init -o propdesk.yaml
  propdesk config validate -f propdesk.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Create a new configuration file with the stock prop-firm rules.
Secrets such as TELEGRAM_BOT_TOKEN belong in .env, not in this file.

Example:
  propdesk config init -o propdesk.yaml`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check if a configuration file is valid and can be loaded.

Example:
  propdesk config validate -f propdesk.yaml`,
	RunE: runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "propdesk.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  propdesk run -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	phase := "evaluation"
	if cfg.Account.Funded {
		phase = fmt.Sprintf("funded, %d months", cfg.Account.MonthsFunded)
	}
	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Account: $%.2f (%s)\n", cfg.Account.InitialCapital, phase)
	fmt.Printf("  Limits: target $%.2f, drawdown $%.2f, daily loss $%.2f\n",
		cfg.Rules.ProfitTarget, cfg.Rules.MaxDrawdown, cfg.Rules.MaxDailyLoss)
	fmt.Printf("  Ledger: %s\n", cfg.Ledger.DBPath)
	fmt.Printf("  Feed: %s | Telegram: %v | API: %v\n", cfg.Feed.Kind, cfg.Telegram.Enabled, cfg.API.Enabled)
	return nil
}
