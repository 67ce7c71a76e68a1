package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Gateway struct {
		SecretKey     string `yaml:"secret_key"`
		WebhookSecret string `yaml:"webhook_secret"`
		BaseURL       string `yaml:"base_url"`
		FrontendURL   string `yaml:"frontend_url"`
	} `yaml:"gateway"`
	Payments struct {
		Currency        string `yaml:"currency"`
		WinnerTTLHours  int    `yaml:"winner_ttl_hours"`
		FeaturedTTLDays int    `yaml:"featured_ttl_days"`
	} `yaml:"payments"`
	Sweeper struct {
		IntervalSeconds int64  `yaml:"interval_seconds"`
		APIKey          string `yaml:"api_key"`
	} `yaml:"sweeper"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("GATEWAY_SECRET_KEY"); v != "" {
		cfg.Gateway.SecretKey = v
	}
	if v := os.Getenv("GATEWAY_WEBHOOK_SECRET"); v != "" {
		cfg.Gateway.WebhookSecret = v
	}
	if v := os.Getenv("GATEWAY_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.Gateway.FrontendURL = v
	}
	if v := os.Getenv("PAYMENT_CURRENCY"); v != "" {
		cfg.Payments.Currency = v
	}
	if v := os.Getenv("WINNER_TTL_HOURS"); v != "" {
		cfg.Payments.WinnerTTLHours = atoiOr(cfg.Payments.WinnerTTLHours, v)
	}
	if v := os.Getenv("FEATURED_TTL_DAYS"); v != "" {
		cfg.Payments.FeaturedTTLDays = atoiOr(cfg.Payments.FeaturedTTLDays, v)
	}
	if v := os.Getenv("SWEEP_INTERVAL_SECONDS"); v != "" {
		cfg.Sweeper.IntervalSeconds = atoi64Or(cfg.Sweeper.IntervalSeconds, v)
	}
	if v := os.Getenv("SWEEP_API_KEY"); v != "" {
		cfg.Sweeper.APIKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Payments.Currency == "" {
		cfg.Payments.Currency = "AED"
	}
	if cfg.Payments.WinnerTTLHours <= 0 {
		cfg.Payments.WinnerTTLHours = 48
	}
	if cfg.Payments.FeaturedTTLDays <= 0 {
		cfg.Payments.FeaturedTTLDays = 7
	}
	if cfg.Sweeper.IntervalSeconds <= 0 {
		cfg.Sweeper.IntervalSeconds = 300
	}
	if cfg.Gateway.FrontendURL == "" {
		cfg.Gateway.FrontendURL = "http://localhost:3000"
	}
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
