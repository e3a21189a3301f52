package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required,url|uri"`

	// Redis carries both the asset bus (streams and mailboxes) and the asynq queues.
	RedisAddr     string `mapstructure:"REDIS_ADDR" validate:"required,hostname_port"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	AsynqConcurrency int `mapstructure:"ASYNQ_CONCURRENCY" validate:"gte=1,lte=1000"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`

	// AgentName is the mailbox address of the main actor.
	AgentName string `mapstructure:"AGENT_NAME" validate:"required,excludesall=@ "`
	// AssetsRepeat is the period between automatic full republishes (BIOS_ASSETS_REPEAT, seconds).
	AssetsRepeat time.Duration `mapstructure:"-" validate:"required"`
	// BusRequestTimeout bounds every mailbox reply and oracle call.
	BusRequestTimeout time.Duration `mapstructure:"BUS_REQUEST_TIMEOUT" validate:"required"`
	// EnameMaxLength caps the external name before a ~N suffix is applied.
	EnameMaxLength int `mapstructure:"ENAME_MAX_LENGTH" validate:"gte=4,lte=255"`
	// MaxPowerSources caps the incoming power links of one asset.
	MaxPowerSources int `mapstructure:"MAX_POWER_SOURCES" validate:"gte=1,lte=64"`
}

// WakeupPeriod is the fixed AutoUpdate period.
const WakeupPeriod = 300 * time.Second

var (
	cfg      *Config
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Load initializes configuration using Viper. It loads from .env if present,
// applies defaults, binds env vars, and validates the result.
func Load() (*Config, error) {
	// Load .env if present (non-fatal)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fty-asset")

	v.AutomaticEnv()

	// Defaults
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("HTTP_ADDR", "127.0.0.1:8088")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("ASYNQ_CONCURRENCY", 4)
	v.SetDefault("GOMAXPROCS", 0)
	v.SetDefault("AGENT_NAME", "asset-agent")
	v.SetDefault("BIOS_ASSETS_REPEAT", 3600)
	v.SetDefault("BUS_REQUEST_TIMEOUT", "5s")
	v.SetDefault("ENAME_MAX_LENGTH", 50)
	v.SetDefault("MAX_POWER_SOURCES", 8)

	// Optional config file
	_ = v.ReadInConfig()

	keys := []string{
		"APP_ENV",
		"HTTP_ADDR",
		"SHUTDOWN_TIMEOUT",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"DATABASE_URL",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"ASYNQ_CONCURRENCY",
		"GOMAXPROCS",
		"AGENT_NAME",
		"BIOS_ASSETS_REPEAT",
		"BUS_REQUEST_TIMEOUT",
		"ENAME_MAX_LENGTH",
		"MAX_POWER_SOURCES",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	// Parse duration types that may come as string
	for key, dst := range map[string]*time.Duration{
		"SHUTDOWN_TIMEOUT":    &c.ShutdownTimeout,
		"BUS_REQUEST_TIMEOUT": &c.BusRequestTimeout,
	} {
		if s := v.GetString(key); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	// BIOS_ASSETS_REPEAT is expressed in plain seconds
	repeat := v.GetInt("BIOS_ASSETS_REPEAT")
	if repeat <= 0 {
		return nil, fmt.Errorf("invalid BIOS_ASSETS_REPEAT: %q", v.GetString("BIOS_ASSETS_REPEAT"))
	}
	c.AssetsRepeat = time.Duration(repeat) * time.Second

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}

	cfg = &c
	return cfg, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// Get returns the loaded configuration. Panics if not loaded.
func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call config.Load or config.MustLoad first")
	}
	return cfg
}
