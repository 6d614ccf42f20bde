// internal/config/environment.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MinRefreshInterval is the shortest refresh interval accepted.
const MinRefreshInterval = time.Minute

type Config struct {
	Port          int
	Production    bool
	BaseURL       string // public API root; empty means derive it per request
	AllowedOrigin string

	DB      Database
	Fetch   Fetch
	Refresh Refresh
	Auth    Auth
	Log     Log
}

type Database struct {
	Driver   string // sqlite or postgres
	Path     string
	URL      string
	MaxConns int32
}

type Fetch struct {
	Provider   string
	APIKey     string
	NewsAPIURL string
	RSSURL     string
	PageSize   int
	Timeout    time.Duration
	RateLimit  float64
}

type Refresh struct {
	Interval    time.Duration
	Concurrency int
}

type Auth struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

type Log struct {
	Level  string
	Pretty bool
}

// New returns a viper instance with defaults and environment bindings set.
// Keys are dotted ("fetch.page_size") and map to STORYWATCH_FETCH_PAGE_SIZE.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("storywatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 8080)
	v.SetDefault("production", false)
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "data/storywatch.db")
	v.SetDefault("db.url", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("fetch.provider", "newsapi")
	v.SetDefault("fetch.newsapi.key", "")
	v.SetDefault("fetch.newsapi.base_url", "https://newsapi.org/v2/everything")
	v.SetDefault("fetch.rss.base_url", "https://news.google.com/rss/search")
	v.SetDefault("fetch.page_size", 10)
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.rate_limit", 1.0)
	v.SetDefault("refresh.interval", "15m")
	v.SetDefault("refresh.concurrency", 1)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "authenticated")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Variable names used by existing deployments.
	_ = v.BindEnv("fetch.newsapi.key", "STORYWATCH_FETCH_NEWSAPI_KEY", "NEWS_API_KEY")
	_ = v.BindEnv("auth.jwt_secret", "STORYWATCH_AUTH_JWT_SECRET", "JWT_SECRET_KEY")
	_ = v.BindEnv("db.url", "STORYWATCH_DB_URL", "DATABASE_URL")
	return v
}

// LoadDotEnv loads path into the process environment when it exists.
// Variables already set are left alone.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from v, applying defaults and validation.
// A config file, when set on v, is read first.
func Load(v *viper.Viper) (Config, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := Config{
		Port:          v.GetInt("port"),
		Production:    v.GetBool("production"),
		BaseURL:       strings.TrimRight(v.GetString("server.base_url"), "/"),
		AllowedOrigin: v.GetString("server.allowed_origin"),
		DB: Database{
			Driver:   strings.ToLower(strings.TrimSpace(v.GetString("db.driver"))),
			Path:     v.GetString("db.path"),
			URL:      v.GetString("db.url"),
			MaxConns: v.GetInt32("db.max_conns"),
		},
		Fetch: Fetch{
			Provider:   strings.ToLower(strings.TrimSpace(v.GetString("fetch.provider"))),
			APIKey:     v.GetString("fetch.newsapi.key"),
			NewsAPIURL: v.GetString("fetch.newsapi.base_url"),
			RSSURL:     v.GetString("fetch.rss.base_url"),
			PageSize:   v.GetInt("fetch.page_size"),
			Timeout:    v.GetDuration("fetch.timeout"),
			RateLimit:  v.GetFloat64("fetch.rate_limit"),
		},
		Refresh: Refresh{
			Interval:    v.GetDuration("refresh.interval"),
			Concurrency: v.GetInt("refresh.concurrency"),
		},
		Auth: Auth{
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
			Audience:  v.GetString("auth.audience"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
	}

	if cfg.Refresh.Interval < MinRefreshInterval {
		cfg.Refresh.Interval = MinRefreshInterval
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			errs = append(errs, errors.New("db.path is required for sqlite"))
		}
	case "postgres":
		if c.DB.URL == "" {
			errs = append(errs, errors.New("db.url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown db.driver %q", c.DB.Driver))
	}
	switch c.Fetch.Provider {
	case "newsapi", "rss":
	default:
		errs = append(errs, fmt.Errorf("unknown fetch.provider %q", c.Fetch.Provider))
	}
	if c.Fetch.PageSize <= 0 {
		errs = append(errs, errors.New("fetch.page_size must be positive"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if c.Refresh.Concurrency <= 0 {
		errs = append(errs, errors.New("refresh.concurrency must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) GetAddress() string {
	return fmt.Sprintf(":%d", c.Port)
}
