// Package config loads the service configuration and builds the logger.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFile is used when no -config flag is given.
const DefaultConfigFile = "config.yaml"

// EnvPrefix is prepended to environment overrides, e.g. FUNDLEDGER_SERVER_ADDRESS.
const EnvPrefix = "FUNDLEDGER"

// Configuration holds all configuration for the service.
type Configuration struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LedgerConfig holds the fund's business policies.
type LedgerConfig struct {
	AccountPrefix       string  `mapstructure:"account_prefix"`
	Installments        int     `mapstructure:"installments"`
	InterestRatePercent float64 `mapstructure:"interest_rate_percent"`
}

// SchedulerConfig controls the overdue sweep.
type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	OverdueSchedule string `mapstructure:"overdue_schedule"` // cron spec or descriptor such as "@daily"
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `mapstructure:"level"`      // debug, info, warn, error
	Format     string `mapstructure:"format"`     // json, console
	OutputFile string `mapstructure:"outputFile"` // optional file output
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("database.path", "fundledger.db")
	v.SetDefault("ledger.account_prefix", "AZH")
	v.SetDefault("ledger.installments", 24)
	v.SetDefault("ledger.interest_rate_percent", 3)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.overdue_schedule", "@daily")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// LoadConfiguration reads the YAML file at configPath, falling back to
// defaults when the file does not exist. Environment variables override both.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file, %s", err)
		}
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return &configuration, nil
}

// Validate rejects settings the ledger cannot run with.
func (c *Configuration) Validate() error {
	if strings.TrimSpace(c.Ledger.AccountPrefix) == "" {
		return errors.New("ledger.account_prefix must not be empty")
	}
	if c.Ledger.Installments < 1 {
		return fmt.Errorf("ledger.installments must be at least 1, got %d", c.Ledger.Installments)
	}
	if c.Ledger.InterestRatePercent < 0 {
		return fmt.Errorf("ledger.interest_rate_percent must not be negative, got %v", c.Ledger.InterestRatePercent)
	}
	if c.Scheduler.Enabled && strings.TrimSpace(c.Scheduler.OverdueSchedule) == "" {
		return errors.New("scheduler.overdue_schedule is required when the scheduler is enabled")
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}
