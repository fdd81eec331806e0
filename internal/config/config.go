package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/bylinehq/bylined/pkg/logger"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logger   logger.Config  `yaml:"logger"`
	Pitches  PitchConfig    `yaml:"pitches"`
	Escrow   EscrowConfig   `yaml:"escrow"`
	CMS      CMSConfig      `yaml:"cms"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type PitchConfig struct {
	// WeeklyLimit caps pitches a freelancer may submit per calendar week
	// (Monday 00:00 UTC).
	WeeklyLimit      int `yaml:"weekly_limit"`
	DefaultWindowMax int `yaml:"default_window_max"`
}

type EscrowConfig struct {
	// FeePercent is the platform cut, e.g. 10.0 for 10%. Pointers so an
	// explicit zero rate survives defaulting.
	FeePercent        *float64 `yaml:"fee_percent"`
	Currency          string   `yaml:"currency"`
	Threshold1099     *float64 `yaml:"threshold_1099"`
	KillFeePercent    *float64 `yaml:"kill_fee_percent"`
	GatewaySecretKey  string   `yaml:"gateway_secret_key"`
	GatewayWebhookKey string   `yaml:"gateway_webhook_key"`
}

type CMSConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
}

// Float returns a pointer to v, for escrow rate literals.
func Float(v float64) *float64 {
	return &v
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5583
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Pitches.WeeklyLimit == 0 {
		cfg.Pitches.WeeklyLimit = 5
	}
	if cfg.Pitches.DefaultWindowMax == 0 {
		cfg.Pitches.DefaultWindowMax = 50
	}
	if cfg.Escrow.FeePercent == nil {
		cfg.Escrow.FeePercent = Float(10.0)
	}
	if cfg.Escrow.Currency == "" {
		cfg.Escrow.Currency = "USD"
	}
	if cfg.Escrow.Threshold1099 == nil {
		cfg.Escrow.Threshold1099 = Float(600.00)
	}
	if cfg.Escrow.KillFeePercent == nil {
		cfg.Escrow.KillFeePercent = Float(25.0)
	}

	return cfg, nil
}
