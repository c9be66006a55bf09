package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config collects everything the extractor needs from the environment.
type Config struct {
	FHIRBaseURL      string   `mapstructure:"FHIR_BASE_URL"`
	TokenURL         string   `mapstructure:"TOKEN_URL"`
	ClientID         string   `mapstructure:"CLIENT_ID"`
	Scope            string   `mapstructure:"SCOPE"`
	PrivateKeyFile   string   `mapstructure:"PRIVATE_KEY_FILE"`
	KeyID            string   `mapstructure:"KEY_ID"`
	JWKSetURL        string   `mapstructure:"JWK_SET_URL"`
	SpecDir          string   `mapstructure:"SPEC_DIR"`
	ResourceTypes    []string `mapstructure:"RESOURCE_TYPES"`
	PageSize         int      `mapstructure:"PAGE_SIZE"`
	MaxPages         int      `mapstructure:"MAX_PAGES"`
	MaxRetries       int      `mapstructure:"MAX_RETRIES"`
	LossThresholdPct float64  `mapstructure:"LOSS_THRESHOLD_PCT"`
	DatabaseURL      string   `mapstructure:"DATABASE_URL"`
	ListenAddr       string   `mapstructure:"LISTEN_ADDR"`
}

// Load reads configuration from .env and the process environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("SCOPE", "system/*.read")
	v.SetDefault("SPEC_DIR", "specs")
	v.SetDefault("PAGE_SIZE", 100)
	v.SetDefault("MAX_PAGES", 1000)
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("LOSS_THRESHOLD_PCT", 5.0)
	v.SetDefault("LISTEN_ADDR", ":8080")

	for _, key := range []string{
		"FHIR_BASE_URL", "TOKEN_URL", "CLIENT_ID", "SCOPE",
		"PRIVATE_KEY_FILE", "KEY_ID", "JWK_SET_URL", "SPEC_DIR",
		"RESOURCE_TYPES", "PAGE_SIZE", "MAX_PAGES", "MAX_RETRIES",
		"LOSS_THRESHOLD_PCT", "DATABASE_URL", "LISTEN_ADDR",
	} {
		v.BindEnv(key)
	}

	// The .env file is optional; env vars alone are enough.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ResourceTypes == nil {
		if types := v.GetString("RESOURCE_TYPES"); types != "" {
			cfg.ResourceTypes = strings.Split(types, ",")
		}
	}
	// Comma lists from the environment may carry spaces.
	cleaned := cfg.ResourceTypes[:0]
	for _, rt := range cfg.ResourceTypes {
		if rt = strings.TrimSpace(rt); rt != "" {
			cleaned = append(cleaned, rt)
		}
	}
	cfg.ResourceTypes = cleaned

	if cfg.FHIRBaseURL == "" {
		return nil, fmt.Errorf("FHIR_BASE_URL is required")
	}
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("TOKEN_URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("CLIENT_ID is required")
	}
	if cfg.PrivateKeyFile == "" {
		return nil, fmt.Errorf("PRIVATE_KEY_FILE is required")
	}
	return cfg, nil
}
