package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DBDSN    string
	HTTPAddr string
	LogLevel string
	RedisDSN string

	// raw secrets kept in-memory only; never log these
	TokenSecret   string
	SnowflakeNode int64
	CORSOrigins   []string

	Register RegisterPolicy
}

// RegisterPolicy is the immutable registration policy snapshot. It is read
// once at process start and injected into the guard/factory; nothing mutates
// it afterwards.
type RegisterPolicy struct {
	Enabled               bool
	RequireInvite         bool
	RequireEmail          bool
	RequireDateOfBirth    bool
	MinimumAge            int
	AllowMultipleAccounts bool
	BlockProxies          bool
	ProxyCheckURL         string
	DefaultRights         string
	DefaultLocale         string
	AutoJoinGuilds        []string

	Captcha CaptchaPolicy
}

type CaptchaPolicy struct {
	Enabled bool
	Service string // "hcaptcha" or "recaptcha"
	SiteKey string
	Secret  string
}

func Load() (Config, error) {
	cfg := Config{
		DBDSN:       os.Getenv("DB_DSN"),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:    getenvDefault("LOG_LEVEL", "info"),
		RedisDSN:    getenvDefault("REDIS_DSN", "redis://localhost:6379/0"),
		TokenSecret: os.Getenv("TOKEN_SECRET"),
	}

	if cfg.DBDSN == "" {
		return Config{}, errors.New("missing DB_DSN")
	}
	if cfg.TokenSecret == "" {
		return Config{}, errors.New("missing TOKEN_SECRET")
	}

	node, err := strconv.ParseInt(getenvDefault("SNOWFLAKE_NODE", "0"), 10, 64)
	if err != nil || node < 0 || node > 1023 {
		return Config{}, errors.New("SNOWFLAKE_NODE must be an integer in [0,1023]")
	}
	cfg.SnowflakeNode = node

	// parse CORS origins
	corsOrigins := getenvDefault("CORS_ORIGINS", "")
	if corsOrigins != "" {
		cfg.CORSOrigins = splitList(corsOrigins)
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"} // default
	}

	cfg.Register = RegisterPolicy{
		Enabled:               getenvBool("REGISTRATION_ENABLED", true),
		RequireInvite:         getenvBool("REGISTRATION_INVITE_ONLY", false),
		RequireEmail:          getenvBool("REGISTRATION_REQUIRE_EMAIL", false),
		RequireDateOfBirth:    getenvBool("REGISTRATION_REQUIRE_DOB", false),
		AllowMultipleAccounts: getenvBool("REGISTRATION_ALLOW_MULTI_ACCOUNT", true),
		BlockProxies:          getenvBool("REGISTRATION_BLOCK_PROXIES", false),
		ProxyCheckURL:         getenvDefault("PROXY_CHECK_URL", ""),
		DefaultRights:         getenvDefault("REGISTRATION_DEFAULT_RIGHTS", "0"),
		DefaultLocale:         getenvDefault("REGISTRATION_DEFAULT_LOCALE", "en-US"),
		AutoJoinGuilds:        splitList(getenvDefault("REGISTRATION_AUTO_JOIN_GUILDS", "")),
	}

	minAge := getenvDefault("REGISTRATION_MINIMUM_AGE", "0")
	cfg.Register.MinimumAge, err = strconv.Atoi(minAge)
	if err != nil || cfg.Register.MinimumAge < 0 {
		return Config{}, errors.New("REGISTRATION_MINIMUM_AGE must be a non-negative integer")
	}

	cfg.Register.Captcha = CaptchaPolicy{
		Enabled: getenvBool("CAPTCHA_ENABLED", false),
		Service: getenvDefault("CAPTCHA_SERVICE", "hcaptcha"),
		SiteKey: os.Getenv("CAPTCHA_SITEKEY"),
		Secret:  os.Getenv("CAPTCHA_SECRET"),
	}

	if cfg.Register.Captcha.Enabled {
		if cfg.Register.Captcha.SiteKey == "" || cfg.Register.Captcha.Secret == "" {
			return Config{}, errors.New("captcha enabled but CAPTCHA_SITEKEY/CAPTCHA_SECRET not set")
		}
		switch cfg.Register.Captcha.Service {
		case "hcaptcha", "recaptcha":
		default:
			return Config{}, fmt.Errorf("unknown CAPTCHA_SERVICE %q", cfg.Register.Captcha.Service)
		}
	}

	if cfg.Register.BlockProxies && cfg.Register.ProxyCheckURL == "" {
		return Config{}, errors.New("REGISTRATION_BLOCK_PROXIES requires PROXY_CHECK_URL")
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvBool(k string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
