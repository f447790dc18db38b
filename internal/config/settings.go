package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Settings is the persisted plugin-style settings document. Each value is
// either a literal or "$NAME", which reads the environment variable NAME.
type Settings struct {
	SecretKey   string `yaml:"jwtSecretKey"`
	Issuer      string `yaml:"jwtIssuer"`
	Audience    string `yaml:"jwtAudience"`
	RequestTime string `yaml:"jwtRequestTime"`
	Expire      string `yaml:"jwtExpire"`
}

// jwtEnv holds the environment fallbacks consulted when a setting is empty.
type jwtEnv struct {
	SecretKey   string `env:"JWT_SECRET_KEY"`
	Issuer      string `env:"JWT_ISSUER"`
	Audience    string `env:"JWT_AUDIENCE"`
	SiteURL     string `env:"PRIMARY_SITE_URL"`
	RequestTime string `env:"JWT_REQUEST_TIME"`
	Expire      string `env:"JWT_EXPIRE"`
}

// LoadSettings reads the YAML settings file. An empty path or a missing file
// yields empty settings.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

func resolveJWT(s Settings) (JWTConfig, error) {
	var raw jwtEnv
	if err := env.Parse(&raw); err != nil {
		return JWTConfig{}, fmt.Errorf("parse jwt env: %w", err)
	}

	siteURL := strings.TrimSpace(raw.SiteURL)
	cfg := JWTConfig{
		SecretKey: resolveSetting(s.SecretKey, raw.SecretKey),
		Issuer:    resolveSetting(s.Issuer, firstNonEmpty(raw.Issuer, siteURL)),
	}
	cfg.Audience = resolveSetting(s.Audience, firstNonEmpty(raw.Audience, siteURL, cfg.Issuer))

	if v := resolveSetting(s.RequestTime, raw.RequestTime); v != "" {
		d, err := ParseOffset(v)
		if err != nil {
			return JWTConfig{}, fmt.Errorf("jwt request time: %w", err)
		}
		if d < 0 {
			return JWTConfig{}, fmt.Errorf("jwt request time must not be negative: %s", v)
		}
		cfg.RequestTimeOffset, cfg.hasRequestTimeOffset = d, true
	}
	if v := resolveSetting(s.Expire, raw.Expire); v != "" {
		d, err := ParseOffset(v)
		if err != nil {
			return JWTConfig{}, fmt.Errorf("jwt expire: %w", err)
		}
		if d < time.Second {
			return JWTConfig{}, fmt.Errorf("jwt expire must be at least 1s: %s", v)
		}
		cfg.ExpireOffset, cfg.hasExpireOffset = d, true
	}
	// Token time claims have whole-second precision, so a window shorter
	// than a second can encode as nbf == exp.
	if cfg.hasRequestTimeOffset && cfg.hasExpireOffset && cfg.ExpireOffset-cfg.RequestTimeOffset < time.Second {
		return JWTConfig{}, fmt.Errorf("jwt expire (%s) must exceed request time (%s) by at least 1s", cfg.ExpireOffset, cfg.RequestTimeOffset)
	}
	return cfg, nil
}

// resolveSetting returns the setting value, dereferencing "$NAME" against the
// environment, or the fallback when the setting yields nothing.
func resolveSetting(value, fallback string) string {
	value = strings.TrimSpace(value)
	if name, ok := strings.CutPrefix(value, "$"); ok {
		value = strings.TrimSpace(os.Getenv(name))
	}
	if value != "" {
		return value
	}
	return strings.TrimSpace(fallback)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
