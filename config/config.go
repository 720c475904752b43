/*
Package config loads server configuration.

LAYERS (later wins):
  1. Defaults()
  2. YAML file (-config flag or STAMPCARD_CONFIG)
  3. .env file, loaded into the process environment (godotenv)
  4. STAMPCARD_* environment variables (envdecode)
  5. Command-line flags (applied by cmd/server)

EXAMPLE YAML:
  port: 8080
  db_path: ./data/stampcard.db
  jwt_secret: change-me-to-something-long
  cors_origins: [http://localhost:5173]
  birthday_sweep_cron: "0 8 * * *"
  scan_interval: 1s

ENVIRONMENT:
  STAMPCARD_PORT, STAMPCARD_DB_PATH, STAMPCARD_JWT_SECRET, ...
  List values are semicolon separated: STAMPCARD_CORS_ORIGINS="a;b"

SEE ALSO:
  - cmd/server/main.go: Flag overrides
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Env  string `yaml:"env" env:"STAMPCARD_ENV"`
	Port int    `yaml:"port" env:"STAMPCARD_PORT"`

	DBPath      string `yaml:"db_path" env:"STAMPCARD_DB_PATH"`
	ProgramFile string `yaml:"program_file" env:"STAMPCARD_PROGRAM_FILE"`

	JWTSecret   string   `yaml:"jwt_secret" env:"STAMPCARD_JWT_SECRET"`
	JWTIssuer   string   `yaml:"jwt_issuer" env:"STAMPCARD_JWT_ISSUER"`
	CORSOrigins []string `yaml:"cors_origins" env:"STAMPCARD_CORS_ORIGINS"`

	LogLevel  string `yaml:"log_level" env:"STAMPCARD_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"STAMPCARD_LOG_FORMAT"` // json | text
	LogFile   string `yaml:"log_file" env:"STAMPCARD_LOG_FILE"`     // empty = stdout only

	SchedulerEnabled  bool   `yaml:"scheduler_enabled" env:"STAMPCARD_SCHEDULER_ENABLED"`
	BirthdaySweepCron string `yaml:"birthday_sweep_cron" env:"STAMPCARD_BIRTHDAY_SWEEP_CRON"`
	Timezone          string `yaml:"timezone" env:"STAMPCARD_TIMEZONE"`

	// Duplicate-scan guard: one scan per customer per ScanInterval.
	ScanInterval time.Duration `yaml:"scan_interval" env:"STAMPCARD_SCAN_INTERVAL"`
	ScanBurst    int           `yaml:"scan_burst" env:"STAMPCARD_SCAN_BURST"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"STAMPCARD_SHUTDOWN_TIMEOUT"`
}

// Defaults returns a configuration suitable for local development.
func Defaults() Config {
	return Config{
		Env:               "development",
		Port:              8080,
		DBPath:            "stampcard.db",
		JWTSecret:         "dev-only-secret-change-me-please",
		JWTIssuer:         "stampcard",
		CORSOrigins:       []string{"http://localhost:5173", "http://localhost:8080"},
		LogLevel:          "info",
		LogFormat:         "json",
		SchedulerEnabled:  true,
		BirthdaySweepCron: "0 8 * * *",
		Timezone:          "UTC",
		ScanInterval:      time.Second,
		ScanBurst:         1,
		ShutdownTimeout:   30 * time.Second,
	}
}

// Load builds a Config from defaults, the YAML file at path (optional), the
// .env file at envFile (optional, missing is fine) and the environment.
func Load(path, envFile string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the environment.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("jwt_secret must be at least 16 characters"))
	}
	if c.IsProduction() && strings.HasPrefix(c.JWTSecret, "dev-only-") {
		errs = append(errs, errors.New("jwt_secret must be set in production"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be json or text", c.LogFormat))
	}
	if c.ScanInterval < 0 {
		errs = append(errs, errors.New("scan_interval cannot be negative"))
	}
	if c.ScanBurst < 1 {
		errs = append(errs, errors.New("scan_burst must be at least 1"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if c.SchedulerEnabled && strings.TrimSpace(c.BirthdaySweepCron) == "" {
		errs = append(errs, errors.New("birthday_sweep_cron is required when the scheduler is enabled"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether Env names a production deployment.
func (c Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// Location returns the configured time zone, UTC when invalid.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
