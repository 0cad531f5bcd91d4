package tokenforge

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names read by [ConfigFromEnv].
const (
	EnvSecretKey       = "APP_SECRET_KEY"
	EnvIssuer          = "APP_TOKEN_ISSUER"
	EnvAudience        = "APP_TOKEN_AUDIENCE"
	EnvAccessTTL       = "APP_ACCESS_TOKEN_TTL"
	EnvRefreshTTL      = "APP_REFRESH_TOKEN_TTL"
	EnvResetTTL        = "APP_RESET_TOKEN_TTL"
	EnvVerificationTTL = "APP_VERIFICATION_TOKEN_TTL"
)

// LoadEnvFile loads a .env file into the process environment unless GO_ENV
// marks a deployed environment where configuration comes from the platform.
// A missing .env file is not an error.
func LoadEnvFile() error {
	goEnv := os.Getenv("GO_ENV")
	if goEnv != "" && goEnv != "development" {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}

// ConfigFromEnv builds a [Config] from the process environment on top of the
// defaults. TTL variables are whole seconds. A missing APP_SECRET_KEY is left
// for [Builder.Build] to reject, so there is a single place that decides what
// a fatal secret looks like.
func ConfigFromEnv() (Config, error) {
	cfg := defaultConfig()

	cfg.Token.Secret = []byte(os.Getenv(EnvSecretKey))
	if v := os.Getenv(EnvIssuer); v != "" {
		cfg.Token.Issuer = v
	}
	if v := os.Getenv(EnvAudience); v != "" {
		cfg.Token.Audience = v
	}

	ttls := []struct {
		name   string
		target *time.Duration
	}{
		{EnvAccessTTL, &cfg.Token.AccessTTL},
		{EnvRefreshTTL, &cfg.Token.RefreshTTL},
		{EnvResetTTL, &cfg.Token.ResetTTL},
		{EnvVerificationTTL, &cfg.Token.VerificationTTL},
	}
	for _, ttl := range ttls {
		raw := os.Getenv(ttl.name)
		if raw == "" {
			continue
		}
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs <= 0 {
			return Config{}, fmt.Errorf("invalid %s value %q: want positive seconds", ttl.name, raw)
		}
		*ttl.target = time.Duration(secs) * time.Second
	}

	return cfg, nil
}
