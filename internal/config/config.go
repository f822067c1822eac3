package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port       string
	SQLitePath string
	LogLevel   string

	ChannelSecret      string
	ChannelAccessToken string

	// PublicBaseURL roots the links sent through the chat. Empty means the
	// origin is taken from the incoming webhook request.
	PublicBaseURL string

	LinkSigningKey     string
	LinkTokenTTL       time.Duration
	RequireSignedLinks bool

	AdminUser     string
	AdminPassword string
}

// ErrMissingSecret is returned when a required credential is not set.
var ErrMissingSecret = errors.New("required secret not set")

// Load reads .env (if present) and the environment. Missing channel
// credentials are an error; no placeholder is ever substituted.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Port:               get("PORT", "8080"),
		SQLitePath:         get("SQLITE_PATH", "./membership.db"),
		LogLevel:           get("LOG_LEVEL", "info"),
		ChannelSecret:      get("LINE_CHANNEL_SECRET", get("YOUR_CHANNEL_SECRET", "")),
		ChannelAccessToken: get("LINE_CHANNEL_ACCESS_TOKEN", get("YOUR_CHANNEL_ACCESS_TOKEN", "")),
		PublicBaseURL:      strings.TrimRight(get("PUBLIC_BASE_URL", ""), "/"),
		AdminUser:          get("ADMIN_USER", ""),
		AdminPassword:      get("ADMIN_PASSWORD", ""),
	}

	var errs []error
	if cfg.ChannelSecret == "" {
		errs = append(errs, fmt.Errorf("%w: LINE_CHANNEL_SECRET", ErrMissingSecret))
	}
	if cfg.ChannelAccessToken == "" {
		errs = append(errs, fmt.Errorf("%w: LINE_CHANNEL_ACCESS_TOKEN", ErrMissingSecret))
	}
	if (cfg.AdminUser == "") != (cfg.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_USER and ADMIN_PASSWORD must be set together"))
	}

	cfg.LinkSigningKey = get("LINK_SIGNING_KEY", cfg.ChannelSecret)

	ttl, err := time.ParseDuration(get("LINK_TOKEN_TTL", "30m"))
	if err != nil || ttl <= 0 {
		errs = append(errs, fmt.Errorf("invalid LINK_TOKEN_TTL %q", getenv("LINK_TOKEN_TTL")))
	}
	cfg.LinkTokenTTL = ttl

	if v := get("REQUIRE_SIGNED_LINKS", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid REQUIRE_SIGNED_LINKS %q", v))
		}
		cfg.RequireSignedLinks = b
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		errs = append(errs, fmt.Errorf("invalid PORT %q", cfg.Port))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// Addr is the listen address.
func (c Config) Addr() string { return ":" + c.Port }

// AdminAuthEnabled reports whether /admin is behind basic auth.
func (c Config) AdminAuthEnabled() bool { return c.AdminUser != "" }
