package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rustyeddy/propdesk/internal/logger"
	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/market"
	"github.com/rustyeddy/propdesk/risk"
	"github.com/rustyeddy/propdesk/signal"
	"gopkg.in/yaml.v3"
)

// Config is the complete desk configuration.
type Config struct {
	Account   AccountConfig    `json:"account" yaml:"account"`
	Rules     RulesConfig      `json:"rules" yaml:"rules"`
	Profiles  risk.Profiles    `json:"profiles,omitempty" yaml:"profiles,omitempty" validate:"omitempty,dive"`
	Sizing    risk.SizingRules `json:"sizing" yaml:"sizing"`
	Lifecycle lifecycle.Rules  `json:"lifecycle" yaml:"lifecycle"`
	Signal    SignalConfig     `json:"signal" yaml:"signal"`
	Ledger    LedgerConfig     `json:"ledger" yaml:"ledger"`
	Telegram  TelegramConfig   `json:"telegram" yaml:"telegram"`
	Feed      FeedConfig       `json:"feed" yaml:"feed"`
	API       APIConfig        `json:"api" yaml:"api"`
	Log       LogConfig        `json:"log" yaml:"log"`
}

// AccountConfig describes the account a fresh ledger starts with.
type AccountConfig struct {
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital" validate:"gt=0"`
	Funded         bool    `json:"funded" yaml:"funded"`
	MonthsFunded   int     `json:"months_funded" yaml:"months_funded" validate:"gte=0"`
}

// RulesConfig holds the prop-firm limits and mode thresholds.
type RulesConfig struct {
	ProfitTarget           float64 `json:"profit_target" yaml:"profit_target" validate:"gt=0"`
	MaxDrawdown            float64 `json:"max_drawdown" yaml:"max_drawdown" validate:"gt=0"`
	MaxDailyLoss           float64 `json:"max_daily_loss" yaml:"max_daily_loss" validate:"gt=0"`
	RecoveryDrawdown       float64 `json:"recovery_drawdown" yaml:"recovery_drawdown" validate:"gt=0"`
	FundedRecoveryDrawdown float64 `json:"funded_recovery_drawdown" yaml:"funded_recovery_drawdown" validate:"gt=0"`
	ConservativeMonths     int     `json:"conservative_months" yaml:"conservative_months" validate:"gte=0"`
	GrowthMonths           int     `json:"growth_months" yaml:"growth_months" validate:"gte=0"`
	FinalModeProgress      float64 `json:"final_mode_progress" yaml:"final_mode_progress" validate:"gt=0,lte=1"`
	FinalApproachProgress  float64 `json:"final_approach_progress" yaml:"final_approach_progress" validate:"gt=0,lte=1"`
	WarningThreshold       float64 `json:"warning_threshold" yaml:"warning_threshold" validate:"gt=0,lte=1"`
	ReduceSizeNearLimits   bool    `json:"reduce_size_near_limits" yaml:"reduce_size_near_limits"`
	DailyReset             string  `json:"daily_reset" yaml:"daily_reset" validate:"required"` // UTC "HH:MM"
	KeepLossStreak         bool    `json:"keep_loss_streak" yaml:"keep_loss_streak"`
}

type SignalConfig struct {
	DefaultConfluence  int     `json:"default_confluence" yaml:"default_confluence" validate:"gte=0"`
	DefaultConfidence  float64 `json:"default_confidence" yaml:"default_confidence" validate:"gte=0,lte=1"`
	DuplicateTolerance float64 `json:"duplicate_tolerance" yaml:"duplicate_tolerance" validate:"gte=0,lt=1"`
}

type LedgerConfig struct {
	DBPath string `json:"db_path" yaml:"db_path" validate:"required"`
}

// TelegramConfig configures the signal poller and the alert notifier. The
// bot token is never written to the config file; it comes from
// TELEGRAM_BOT_TOKEN.
type TelegramConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	Token        string  `json:"-" yaml:"-"`
	SignalChats  []int64 `json:"signal_chats,omitempty" yaml:"signal_chats,omitempty"`
	NotifyChatID int64   `json:"notify_chat_id,omitempty" yaml:"notify_chat_id,omitempty"`
	Timeout      int     `json:"timeout" yaml:"timeout" validate:"gte=0"` // long-poll seconds
}

// FeedConfig selects the price source.
type FeedConfig struct {
	Kind         string        `json:"kind" yaml:"kind" validate:"oneof=none ws rest"`
	URL          string        `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	Stream       string        `json:"stream,omitempty" yaml:"stream,omitempty" validate:"omitempty,oneof=bookTicker aggTrade"`
	Symbols      []string      `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	PollInterval time.Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" validate:"required_if=Enabled true"`
}

type LogConfig struct {
	Dir        string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Debug      bool   `json:"debug" yaml:"debug"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty" validate:"gte=0"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadFromFile loads configuration from a file (YAML or JSON) and applies
// environment overrides.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load reads path when it exists and falls back to Default otherwise. The
// .env files named in envFiles (or ./.env) are loaded first; a missing .env
// is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return LoadFromFile(path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}
	cfg := Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("PROPDESK_DB"); v != "" {
		c.Ledger.DBPath = v
	}
	if v := os.Getenv("PROPDESK_API_ADDR"); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("PROPDESK_LOG_DIR"); v != "" {
		c.Log.Dir = v
	}
	if v := os.Getenv("PROPDESK_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Log.Debug = b
		}
	}
}

// SaveToFile saves configuration to a file (YAML or JSON by extension).
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks struct tags first, then the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q (%v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	if _, err := c.dailyReset(); err != nil {
		return err
	}
	if c.Rules.FinalModeProgress > c.Rules.FinalApproachProgress {
		return fmt.Errorf("rules.final_mode_progress must not exceed final_approach_progress")
	}
	if c.Rules.MaxDailyLoss > c.Rules.MaxDrawdown {
		return fmt.Errorf("rules.max_daily_loss must not exceed max_drawdown")
	}
	if c.Rules.GrowthMonths < c.Rules.ConservativeMonths {
		return fmt.Errorf("rules.growth_months must be >= conservative_months")
	}
	if c.Account.MonthsFunded > 0 && !c.Account.Funded {
		return fmt.Errorf("account.months_funded set on an evaluation account")
	}
	if err := c.RiskProfiles().Validate(); err != nil {
		return fmt.Errorf("profiles: %w", err)
	}
	if err := c.Sizing.Validate(); err != nil {
		return fmt.Errorf("sizing: %w", err)
	}
	if err := c.Lifecycle.Validate(); err != nil {
		return fmt.Errorf("lifecycle: %w", err)
	}

	switch c.Feed.Kind {
	case "ws", "rest":
		if c.Feed.URL == "" {
			return fmt.Errorf("feed.url required for %s feed", c.Feed.Kind)
		}
		if len(c.Feed.Symbols) == 0 {
			return fmt.Errorf("feed.symbols required for %s feed", c.Feed.Kind)
		}
	}
	if c.Feed.Kind == "rest" && c.Feed.PollInterval <= 0 {
		return fmt.Errorf("feed.poll_interval must be positive for rest feed")
	}

	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			return fmt.Errorf("telegram enabled but TELEGRAM_BOT_TOKEN is not set")
		}
		if len(c.Telegram.SignalChats) == 0 && c.Telegram.NotifyChatID == 0 {
			return fmt.Errorf("telegram enabled without signal_chats or notify_chat_id")
		}
	}
	return nil
}

func (c *Config) dailyReset() (time.Duration, error) {
	t, err := time.Parse("15:04", c.Rules.DailyReset)
	if err != nil {
		return 0, fmt.Errorf("rules.daily_reset %q: want HH:MM", c.Rules.DailyReset)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// RiskRules converts the configuration to engine rules.
func (c *Config) RiskRules() risk.Rules {
	reset, _ := c.dailyReset()
	return risk.Rules{
		InitialCapital:         c.Account.InitialCapital,
		ProfitTarget:           c.Rules.ProfitTarget,
		MaxDrawdown:            c.Rules.MaxDrawdown,
		MaxDailyLoss:           c.Rules.MaxDailyLoss,
		RecoveryDrawdown:       c.Rules.RecoveryDrawdown,
		FundedRecoveryDrawdown: c.Rules.FundedRecoveryDrawdown,
		ConservativeMonths:     c.Rules.ConservativeMonths,
		GrowthMonths:           c.Rules.GrowthMonths,
		FinalModeProgress:      c.Rules.FinalModeProgress,
		FinalApproachProgress:  c.Rules.FinalApproachProgress,
		WarningThreshold:       c.Rules.WarningThreshold,
		ReduceSizeNearLimits:   c.Rules.ReduceSizeNearLimits,
		DailyReset:             reset,
		KeepLossStreak:         c.Rules.KeepLossStreak,
	}
}

// RiskProfiles returns the configured profiles, overlaid on the defaults.
// Symbols are normalized.
func (c *Config) RiskProfiles() risk.Profiles {
	out := risk.DefaultProfiles()
	for m, p := range c.Profiles.Clone() {
		syms := make([]string, 0, len(p.AllowedSymbols))
		for _, s := range p.AllowedSymbols {
			syms = append(syms, market.NormalizeSymbol(s))
		}
		p.AllowedSymbols = syms
		out[m] = p
	}
	return out
}

func (c *Config) SizingRules() risk.SizingRules { return c.Sizing }

func (c *Config) LifecycleRules() lifecycle.Rules { return c.Lifecycle }

func (c *Config) SignalOptions() signal.Options {
	return signal.Options{
		DefaultConfluence: c.Signal.DefaultConfluence,
		DefaultConfidence: c.Signal.DefaultConfidence,
	}
}

func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Log.Dir,
		Debug:      c.Log.Debug,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

// Default returns a configuration with the stock prop-firm rules.
func Default() *Config {
	r := risk.DefaultRules()
	return &Config{
		Account: AccountConfig{
			InitialCapital: r.InitialCapital,
		},
		Rules: RulesConfig{
			ProfitTarget:           r.ProfitTarget,
			MaxDrawdown:            r.MaxDrawdown,
			MaxDailyLoss:           r.MaxDailyLoss,
			RecoveryDrawdown:       r.RecoveryDrawdown,
			FundedRecoveryDrawdown: r.FundedRecoveryDrawdown,
			ConservativeMonths:     r.ConservativeMonths,
			GrowthMonths:           r.GrowthMonths,
			FinalModeProgress:      r.FinalModeProgress,
			FinalApproachProgress:  r.FinalApproachProgress,
			WarningThreshold:       r.WarningThreshold,
			ReduceSizeNearLimits:   r.ReduceSizeNearLimits,
			DailyReset:             "00:30",
		},
		Sizing:    risk.DefaultSizingRules(),
		Lifecycle: lifecycle.DefaultRules(),
		Signal: SignalConfig{
			DefaultConfluence:  2,
			DefaultConfidence:  0.5,
			DuplicateTolerance: 0.01,
		},
		Ledger: LedgerConfig{
			DBPath: "./propdesk.db",
		},
		Telegram: TelegramConfig{
			Timeout: 30,
		},
		Feed: FeedConfig{
			Kind:         "none",
			Stream:       "bookTicker",
			PollInterval: 5 * time.Second,
		},
		API: APIConfig{
			Addr: "127.0.0.1:8080",
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}
