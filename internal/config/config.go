// Package config loads server settings from the environment.
//
// Values come from, in order of precedence:
//  1. the process environment
//  2. a .env file in the working directory, if there is one
//  3. the defaults below
//
// A .env file is convenient for local development (copy .env.example);
// in production the environment is set by the deployment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Mail drivers.
const (
	MailLog = "log"
	MailSES = "ses"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port int

	StoreDriver   string
	DBPath        string
	MongoURI      string
	MongoDatabase string

	JWTSecret   string
	BackendURL  string
	FrontendURL string

	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MailDriver string
	AWSRegion  string
	SESEmail   string

	LogLevel  string
	LogFormat string
}

// Load reads the configuration. files are .env files to read; with none
// given it tries ".env". A missing file is not an error.
//
// godotenv.Read parses the file without touching the process environment,
// so a real environment variable always wins over the file.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	fileEnv := map[string]string{}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: reading %s: %w", f, err)
		}
		for k, v := range vals {
			if _, seen := fileEnv[k]; !seen {
				fileEnv[k] = v
			}
		}
	}

	e := env{file: fileEnv}
	cfg := &Config{
		StoreDriver:   e.get("STORE_DRIVER", StoreSQLite),
		DBPath:        e.get("DB_PATH", "data/dietcraft.db"),
		MongoURI:      e.get("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: e.get("MONGO_DATABASE", "dietcraft"),

		JWTSecret:   e.get("JWT_SECRET", ""),
		FrontendURL: e.get("FRONTEND_URL", "http://localhost:5173"),

		GitHubClientID:     e.get("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: e.get("GITHUB_CLIENT_SECRET", ""),
		GoogleClientID:     e.get("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: e.get("GOOGLE_CLIENT_SECRET", ""),

		RedisAddr:     e.get("REDIS_ADDR", ""),
		RedisPassword: e.get("REDIS_PASSWORD", ""),

		MailDriver: strings.ToLower(e.get("MAIL_DRIVER", MailLog)),
		AWSRegion:  e.get("AWS_REGION", "us-east-1"),
		SESEmail:   e.get("SES_EMAIL", ""),

		LogLevel:  strings.ToLower(e.get("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(e.get("LOG_FORMAT", "text")),
	}

	var err error
	if cfg.Port, err = e.getInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = e.getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	cfg.BackendURL = strings.TrimRight(e.get("BACKEND_URL", fmt.Sprintf("http://localhost:%d", cfg.Port)), "/")
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")

	return cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be set to at least 16 characters"))
	}

	switch c.StoreDriver {
	case StoreSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite store"))
		}
	case StoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			errs = append(errs, errors.New("MONGO_URI and MONGO_DATABASE are required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of sqlite, mongo", c.StoreDriver))
	}

	switch c.MailDriver {
	case MailLog:
	case MailSES:
		if c.SESEmail == "" {
			errs = append(errs, errors.New("SES_EMAIL is required when MAIL_DRIVER=ses"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_DRIVER %q is not one of log, ses", c.MailDriver))
	}

	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		errs = append(errs, errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together"))
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together"))
	}

	if _, ok := logLevels[c.LogLevel]; !ok {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not one of text, json", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// GitHubEnabled reports whether GitHub login is configured.
func (c *Config) GitHubEnabled() bool { return c.GitHubClientID != "" }

// GoogleEnabled reports whether Google login is configured.
func (c *Config) GoogleEnabled() bool { return c.GoogleClientID != "" }

// CallbackURL is the redirect URL registered with provider's OAuth app.
func (c *Config) CallbackURL(provider string) string {
	return c.BackendURL + "/api/auth/" + provider + "/callback"
}

// RedisEnabled reports whether session revocation is backed by Redis.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel converts LOG_LEVEL. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	if l, ok := logLevels[c.LogLevel]; ok {
		return l
	}
	return slog.LevelInfo
}

type env struct {
	file map[string]string
}

func (e env) get(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	if v := e.file[key]; v != "" {
		return v
	}
	return def
}

func (e env) getInt(key string, def int) (int, error) {
	v := e.get(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v) // Atoi = ASCII to Integer
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	return n, nil
}
