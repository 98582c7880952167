package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the full application configuration loaded from environment variables or .env file.
//
// It is composed of smaller structs that represent different concerns of the system.
// A Config value is built once by LoadConfig and passed explicitly to every component
// that needs it; nothing reads configuration through package-level state.
//
// Example ENV equivalent:
//
//	POSTGRES_HOST=localhost
//	POSTGRES_PASSWORD=secret
//	STOCK_SYMBOLS=AAPL,MSFT
//	YAHOO_RANGE=1y
//	ROLLING_VOLATILITY=20
type Config struct {
	Server   ServerConfig   // HTTP server configuration (read API)
	Postgres PostgresConfig // PostgreSQL connection settings
	Fetch    FetchConfig    // Price-chart API settings
	Windows  WindowConfig   // Rolling-window sizes for derived features
	Pipeline PipelineConfig // Batch, artifact and scheduling settings
	Log      LogConfig      // Logger settings
}

// ServerConfig holds HTTP server settings such as the port to listen on.
type ServerConfig struct {
	Port            string        // The TCP port the HTTP server will listen on (e.g., "8080")
	CacheTTL        time.Duration // read-API cache lifetime; 0 disables caching
	ShutdownTimeout time.Duration
	AllowedOrigins  []string // CORS origins for the read API; "*" allows any
}

// PostgresConfig defines connection details for PostgreSQL.
//
// Fields:
//   - Host, Port, User, Password, DBName, SSLMode: connection parameters.
//   - MaxOpenConns, MaxIdleConns, ConnMaxLifetime: pool sizing for the shared handle.
//   - URL: computed DSN used by database/sql to connect.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	URL             string
}

// FetchConfig controls the outbound call to the price-chart endpoint.
type FetchConfig struct {
	BaseURL     string        // endpoint root; the symbol is appended as a path segment
	Range       string        // historical range, e.g. "1y"
	Interval    string        // bar granularity, e.g. "1d"
	Timeout     time.Duration // per-request timeout
	MaxAttempts int           // total attempts including the first one
	BackoffBase time.Duration // delay before attempt 2; doubles afterwards
	MinInterval time.Duration // minimum spacing between outbound requests (0 = unthrottled)
}

// WindowConfig sets the row counts of the rolling statistics.
type WindowConfig struct {
	Volatility int
	MAShort    int
	MALong     int
}

// PipelineConfig covers batch behavior, artifacts and scheduling.
type PipelineConfig struct {
	Symbols      []string
	RawDataDir   string
	DateLocation *time.Location
	BatchPolicy  string // "best-effort" or "fail-fast"
	Parallelism  int
	ScheduleCron string
	RunTimeout   time.Duration // bound on one scheduled batch; 0 = unbounded
}

// LogConfig drives logger.Init.
type LogConfig struct {
	Level  string
	Pretty bool
	File   string
}

const (
	PolicyBestEffort = "best-effort"
	PolicyFailFast   = "fail-fast"
)

// envFile is the optional dotenv file read before the environment; overridden in tests.
var envFile = ".env"

// LoadConfig builds a Config from defaults, an optional .env file and the environment.
//
// Precedence (from lowest to highest):
//  1. Defaults set in this function.
//  2. Values from .env file (if present); never overrides variables already exported.
//  3. Environment variables.
//
// Returns an error listing every missing or invalid key.
func LoadConfig() (Config, error) {
	_ = godotenv.Load(envFile) // ignore error if no .env

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	loc, locErr := time.LoadLocation(v.GetString("DATE_LOCATION"))

	cfg := Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			CacheTTL:        v.GetDuration("API_CACHE_TTL"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
			AllowedOrigins:  splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Postgres: PostgresConfig{
			Host:            v.GetString("POSTGRES_HOST"),
			Port:            v.GetInt("POSTGRES_PORT"),
			User:            v.GetString("POSTGRES_USER"),
			Password:        v.GetString("POSTGRES_PASSWORD"),
			DBName:          v.GetString("POSTGRES_DB"),
			SSLMode:         v.GetString("POSTGRES_SSLMODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Fetch: FetchConfig{
			BaseURL:     strings.TrimRight(v.GetString("YAHOO_BASE_URL"), "/"),
			Range:       v.GetString("YAHOO_RANGE"),
			Interval:    v.GetString("YAHOO_INTERVAL"),
			Timeout:     v.GetDuration("API_TIMEOUT"),
			MaxAttempts: v.GetInt("FETCH_MAX_ATTEMPTS"),
			BackoffBase: v.GetDuration("FETCH_BACKOFF_BASE"),
			MinInterval: v.GetDuration("FETCH_MIN_INTERVAL"),
		},
		Windows: WindowConfig{
			Volatility: v.GetInt("ROLLING_VOLATILITY"),
			MAShort:    v.GetInt("ROLLING_MA_SHORT"),
			MALong:     v.GetInt("ROLLING_MA_LONG"),
		},
		Pipeline: PipelineConfig{
			Symbols:      splitSymbols(v.GetString("STOCK_SYMBOLS")),
			RawDataDir:   v.GetString("RAW_DATA_DIR"),
			DateLocation: loc,
			BatchPolicy:  strings.ToLower(v.GetString("BATCH_POLICY")),
			Parallelism:  v.GetInt("BATCH_PARALLELISM"),
			ScheduleCron: v.GetString("SCHEDULE_CRON"),
			RunTimeout:   v.GetDuration("RUN_TIMEOUT"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Pretty: v.GetBool("LOG_PRETTY"),
			File:   v.GetString("LOG_FILE"),
		},
	}

	cfg.Postgres.URL = cfg.Postgres.DSN()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if locErr != nil {
		return Config{}, fmt.Errorf("invalid DATE_LOCATION: %w", locErr)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("API_CACHE_TTL", "1m")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "postgres")
	v.SetDefault("POSTGRES_DB", "stock_pipeline")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")

	v.SetDefault("YAHOO_BASE_URL", "https://query1.finance.yahoo.com/v8/finance/chart")
	v.SetDefault("YAHOO_RANGE", "1y")
	v.SetDefault("YAHOO_INTERVAL", "1d")
	v.SetDefault("API_TIMEOUT", "10s")
	v.SetDefault("FETCH_MAX_ATTEMPTS", 3)
	v.SetDefault("FETCH_BACKOFF_BASE", "2s")
	v.SetDefault("FETCH_MIN_INTERVAL", "0s")

	v.SetDefault("ROLLING_VOLATILITY", 20)
	v.SetDefault("ROLLING_MA_SHORT", 20)
	v.SetDefault("ROLLING_MA_LONG", 50)

	v.SetDefault("STOCK_SYMBOLS", "AAPL")
	v.SetDefault("RAW_DATA_DIR", "data/raw")
	v.SetDefault("DATE_LOCATION", "Local")
	v.SetDefault("BATCH_POLICY", PolicyBestEffort)
	v.SetDefault("BATCH_PARALLELISM", 1)
	v.SetDefault("SCHEDULE_CRON", "0 30 18 * * 1-5")
	v.SetDefault("RUN_TIMEOUT", "30m")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("LOG_FILE", "")
}

// DSN renders the PostgreSQL connection string used by database/sql.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.DBName,
		p.SSLMode,
	)
}

// Validate checks that every required field is present and within range.
//
// Behavior:
//   - Collects every offending key in a slice instead of stopping at the first one.
//   - Returns nil when the configuration is usable.
func (c Config) Validate() error {
	var missing []string

	if c.Postgres.Host == "" {
		missing = append(missing, "POSTGRES_HOST")
	}
	if c.Postgres.Port == 0 {
		missing = append(missing, "POSTGRES_PORT")
	}
	if c.Postgres.User == "" {
		missing = append(missing, "POSTGRES_USER")
	}
	if c.Postgres.Password == "" {
		missing = append(missing, "POSTGRES_PASSWORD")
	}
	if c.Postgres.DBName == "" {
		missing = append(missing, "POSTGRES_DB")
	}
	if c.Fetch.BaseURL == "" {
		missing = append(missing, "YAHOO_BASE_URL")
	}
	if c.Fetch.Range == "" {
		missing = append(missing, "YAHOO_RANGE")
	}
	if c.Fetch.Interval == "" {
		missing = append(missing, "YAHOO_INTERVAL")
	}
	if c.Fetch.Timeout <= 0 {
		missing = append(missing, "API_TIMEOUT")
	}
	if c.Fetch.MaxAttempts < 1 {
		missing = append(missing, "FETCH_MAX_ATTEMPTS")
	}
	if c.Fetch.BackoffBase <= 0 {
		missing = append(missing, "FETCH_BACKOFF_BASE")
	}
	if c.Windows.Volatility < 2 {
		missing = append(missing, "ROLLING_VOLATILITY")
	}
	if c.Windows.MAShort < 1 {
		missing = append(missing, "ROLLING_MA_SHORT")
	}
	if c.Windows.MALong < 1 {
		missing = append(missing, "ROLLING_MA_LONG")
	}
	if len(c.Pipeline.Symbols) == 0 {
		missing = append(missing, "STOCK_SYMBOLS")
	}
	if c.Pipeline.RawDataDir == "" {
		missing = append(missing, "RAW_DATA_DIR")
	}
	if c.Pipeline.BatchPolicy != PolicyBestEffort && c.Pipeline.BatchPolicy != PolicyFailFast {
		missing = append(missing, "BATCH_POLICY")
	}
	if c.Pipeline.Parallelism < 1 {
		missing = append(missing, "BATCH_PARALLELISM")
	}

	if len(missing) > 0 {
		return errors.New("missing or invalid configuration: " + strings.Join(missing, ", "))
	}
	return nil
}

// splitSymbols turns "aapl, msft,,GOOG" into ["AAPL", "MSFT", "GOOG"], dropping repeats.
func splitSymbols(raw string) []string {
	return NormalizeSymbols(strings.Split(raw, ","))
}

// NormalizeSymbols upper-cases and trims tickers, dropping blanks and repeats
// while keeping first-seen order.
func NormalizeSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// splitList splits a comma separated value, trimming blanks.
func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
