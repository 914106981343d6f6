package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Issuer   string   `env:"AUTH_ISSUER" envDefault:"authcore"`
	Audience []string `env:"AUTH_AUDIENCE" envSeparator:","`

	Algorithm      string `env:"AUTH_ALGORITHM" envDefault:"HS256"` // HS256 or EdDSA
	HS256Secret    string `env:"AUTH_HS256_SECRET"`                 // Required for HS256 (min 32 bytes)
	SigningKeyFile string `env:"AUTH_SIGNING_KEY_FILE"`             // Required for EdDSA (PKCS8 PEM)

	AccessTTL  time.Duration `env:"AUTH_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"AUTH_REFRESH_TTL" envDefault:"168h"`

	DatabaseFile string `env:"AUTH_DATABASE_FILE" envDefault:"auth.db"`
	PepperFile   string `env:"AUTH_PEPPER_FILE" envDefault:"pepper"`

	SweepInterval       time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`

	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	GoogleClientID        string `env:"OAUTH_GOOGLE_CLIENT_ID"`
	GoogleClientSecret    string `env:"OAUTH_GOOGLE_CLIENT_SECRET"`
	GitHubClientID        string `env:"OAUTH_GITHUB_CLIENT_ID"`
	GitHubClientSecret    string `env:"OAUTH_GITHUB_CLIENT_SECRET"`
	MicrosoftClientID     string `env:"OAUTH_MICROSOFT_CLIENT_ID"`
	MicrosoftClientSecret string `env:"OAUTH_MICROSOFT_CLIENT_SECRET"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	switch cfg.Algorithm {
	case "HS256":
		if cfg.HS256Secret == "" {
			return Config{}, fmt.Errorf("AUTH_HS256_SECRET is required for HS256")
		}
	case "EdDSA":
		if cfg.SigningKeyFile == "" {
			return Config{}, fmt.Errorf("AUTH_SIGNING_KEY_FILE is required for EdDSA")
		}
	default:
		return Config{}, fmt.Errorf("unsupported algorithm %q", cfg.Algorithm)
	}

	if len(cfg.Audience) == 0 {
		cfg.Audience = []string{cfg.Issuer}
	}
	return cfg, nil
}
