package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Placeholder fragments that scaffolding tools leave in client ids. A client
// id containing one of these is treated as unconfigured and rejected before
// any network call or randomness is spent on the attempt.
var placeholderFragments = []string{
	"YOUR_",
	"CHANGEME",
	"CHANGE_ME",
	"REPLACE_ME",
	"<",
}

type Config struct {
	// App
	Env string // dev / staging / prod
	// HTTP
	HTTPAddr string

	// Case-app access tokens (HS256) used to gate every endpoint except the
	// provider redirect callback.
	JWTSecret string
	JWTIssuer string

	// OAuth client configuration (one client id per provider).
	GoogleClientID    string
	MicrosoftClientID string
	RedirectURI       string
	FrontendOrigin    string

	// Popup flow tuning
	FlowTimeout     time.Duration
	ClosePollEvery  time.Duration
	AttemptTTL      time.Duration
	RefreshSoonSkew time.Duration

	// Infrastructure
	RedisAddr     string // empty => in-memory stores (dev only)
	RedisPassword string
	RedisDB       int
	RabbitURL     string // empty => event publishing disabled

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "dev"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8086"),
	}

	// required values
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing required env var: JWT_SECRET")
	}
	cfg.JWTIssuer = getEnv("JWT_ISSUER", "caseflow-auth")

	// Client ids are required configuration. A recognizable placeholder is as
	// fatal as an empty value: it means the deployment never got real
	// credentials, and letting the flow start would only fail later at the
	// provider with a confusing error.
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if err := validateClientID("GOOGLE_CLIENT_ID", cfg.GoogleClientID); err != nil {
		return nil, err
	}
	cfg.MicrosoftClientID = os.Getenv("MICROSOFT_CLIENT_ID")
	if err := validateClientID("MICROSOFT_CLIENT_ID", cfg.MicrosoftClientID); err != nil {
		return nil, err
	}

	cfg.RedirectURI = os.Getenv("OAUTH_REDIRECT_URI")
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("missing required env var: OAUTH_REDIRECT_URI")
	}
	cfg.FrontendOrigin = os.Getenv("FRONTEND_ORIGIN")
	if cfg.FrontendOrigin == "" {
		return nil, fmt.Errorf("missing required env var: FRONTEND_ORIGIN")
	}

	// popup flow knobs, optional with defaults
	ft, err := getDuration("FLOW_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.FlowTimeout = ft

	cp, err := getDuration("FLOW_CLOSE_POLL", time.Second)
	if err != nil {
		return nil, err
	}
	cfg.ClosePollEvery = cp

	at, err := getDuration("ATTEMPT_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.AttemptTTL = at

	rs, err := getDuration("REFRESH_SOON_SKEW", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.RefreshSoonSkew = rs

	// Infrastructure is optional: without redis the service falls back to
	// in-memory stores, without rabbit it simply does not publish events.
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	db, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	cfg.RedisDB = db
	cfg.RabbitURL = os.Getenv("RABBIT_URL")

	rt, err := getDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.HTTPReadTimeout = rt

	// must outlast the popup flow window: the attempt long-poll holds its
	// response open until the flow terminates
	wt, err := getDuration("HTTP_WRITE_TIMEOUT", cfg.FlowTimeout+30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.HTTPWriteTimeout = wt

	it, err := getDuration("HTTP_IDLE_TIMEOUT", time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.HTTPIdleTimeout = it

	return cfg, nil
}

// IsPlaceholderClientID reports whether the value is empty or an obvious
// scaffold placeholder.
func IsPlaceholderClientID(v string) bool {
	if strings.TrimSpace(v) == "" {
		return true
	}
	upper := strings.ToUpper(v)
	for _, frag := range placeholderFragments {
		if strings.Contains(upper, frag) {
			return true
		}
	}
	return false
}

func validateClientID(name, v string) error {
	if v == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	if IsPlaceholderClientID(v) {
		return fmt.Errorf("%s looks like a placeholder: %q", name, v)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q: %w", key, v, err)
	}
	return d, nil
}
