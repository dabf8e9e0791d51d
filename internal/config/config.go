// Package config provides Viper-based configuration loading for the dice
// tray server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// TrayConfig holds the tray engine's admission and settlement settings.
type TrayConfig struct {
	// TickInterval is how often the engine polls the physics world.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// MaxPhysicalDice caps live physical dice across all tracked rolls.
	MaxPhysicalDice int `mapstructure:"max_physical_dice"`
	// SpawnStagger is the base delay between consecutive die throws of one roll.
	SpawnStagger time.Duration `mapstructure:"spawn_stagger"`
	// SpawnJitter is the maximum random extra delay per throw.
	SpawnJitter time.Duration `mapstructure:"spawn_jitter"`
	// SettleTicks is the number of consecutive settled polls before a die
	// counts as settled.
	SettleTicks int `mapstructure:"settle_ticks"`
	// MaxAwakeTicks is the awake-duration threshold before damping escalates
	// on a stuck die.
	MaxAwakeTicks int `mapstructure:"max_awake_ticks"`
}

// PhysicsConfig holds the reference simulator's tuning.
type PhysicsConfig struct {
	// TrayExtent is the half-width of the square throwing area.
	TrayExtent float64 `mapstructure:"tray_extent"`
	// MinSettleSteps and MaxSettleSteps bound a throw's tumble duration.
	MinSettleSteps int `mapstructure:"min_settle_steps"`
	MaxSettleSteps int `mapstructure:"max_settle_steps"`
	// Damping is the per-step velocity decay factor in (0, 1).
	Damping float64 `mapstructure:"damping"`
}

// DiceConfig holds die geometry settings.
type DiceConfig struct {
	// DefinitionsDir optionally overlays custom die geometry from YAML files.
	// Empty means built-ins only.
	DefinitionsDir string `mapstructure:"definitions_dir"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Tray     TrayConfig     `mapstructure:"tray"`
	Physics  PhysicsConfig  `mapstructure:"physics"`
	Dice     DiceConfig     `mapstructure:"dice"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTray(c.Tray); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validatePhysics(c.Physics); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTray(t TrayConfig) error {
	var errs []string
	if t.TickInterval <= 0 {
		errs = append(errs, fmt.Sprintf("tray.tick_interval must be positive, got %s", t.TickInterval))
	}
	if t.MaxPhysicalDice < 1 {
		errs = append(errs, fmt.Sprintf("tray.max_physical_dice must be >= 1, got %d", t.MaxPhysicalDice))
	}
	if t.SpawnStagger < 0 {
		errs = append(errs, "tray.spawn_stagger must not be negative")
	}
	if t.SpawnJitter < 0 {
		errs = append(errs, "tray.spawn_jitter must not be negative")
	}
	if t.SettleTicks < 1 {
		errs = append(errs, fmt.Sprintf("tray.settle_ticks must be >= 1, got %d", t.SettleTicks))
	}
	if t.MaxAwakeTicks < 1 {
		errs = append(errs, fmt.Sprintf("tray.max_awake_ticks must be >= 1, got %d", t.MaxAwakeTicks))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validatePhysics(p PhysicsConfig) error {
	var errs []string
	if p.TrayExtent <= 0 {
		errs = append(errs, fmt.Sprintf("physics.tray_extent must be positive, got %g", p.TrayExtent))
	}
	if p.MinSettleSteps < 1 {
		errs = append(errs, fmt.Sprintf("physics.min_settle_steps must be >= 1, got %d", p.MinSettleSteps))
	}
	if p.MaxSettleSteps < p.MinSettleSteps {
		errs = append(errs, "physics.max_settle_steps must not be below physics.min_settle_steps")
	}
	if p.Damping <= 0 || p.Damping >= 1 {
		errs = append(errs, fmt.Sprintf("physics.damping must be in (0, 1), got %g", p.Damping))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with DICETRAY_ prefix
	v.SetEnvPrefix("DICETRAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "dicetray")
	v.SetDefault("database.password", "dicetray")
	v.SetDefault("database.name", "dicetray")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("tray.tick_interval", "16ms")
	v.SetDefault("tray.max_physical_dice", 64)
	v.SetDefault("tray.spawn_stagger", "150ms")
	v.SetDefault("tray.spawn_jitter", "50ms")
	v.SetDefault("tray.settle_ticks", 3)
	v.SetDefault("tray.max_awake_ticks", 600)

	v.SetDefault("physics.tray_extent", 1.0)
	v.SetDefault("physics.min_settle_steps", 5)
	v.SetDefault("physics.max_settle_steps", 40)
	v.SetDefault("physics.damping", 0.9)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
