package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

const dateLayout = "2006-01-02"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	StartDate time.Time
	EndDate   time.Time

	MaxConcurrency     int
	LocatorConcurrency int
	LocatorRatePerSec  float64
	RateLimitMs        int
	MaxRetries         int
	RetryBaseDelayMs   int
	RetryMaxDelayMs    int
	FetchTimeoutSec    int
	CDXPageSize        int

	CDXEndpoint     string
	ArchiveBaseURL  string
	RawContent      bool
	UserAgent       string
	EmitNoPriceRows bool
	LogLevel        string

	InputCSVPath  string
	CSVOutputPath string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "pricing"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "pricing123"),
		PostgresDB:       getEnv("POSTGRES_DB", "pricing_history"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		StartDate: getEnvDate("START_DATE", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)),
		EndDate:   getEnvDate("END_DATE", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),

		MaxConcurrency:     getEnvInt("MAX_WORKERS", 10),
		LocatorConcurrency: getEnvInt("LOCATOR_CONCURRENCY", 2),
		LocatorRatePerSec:  getEnvFloat("LOCATOR_RATE_PER_SEC", 1),
		RateLimitMs:        getEnvInt("RATE_LIMIT_MS", 0),
		MaxRetries:         getEnvInt("MAX_RETRIES", 5),
		RetryBaseDelayMs:   getEnvInt("RETRY_BASE_DELAY_MS", 2000),
		RetryMaxDelayMs:    getEnvInt("RETRY_MAX_DELAY_MS", 60000),
		FetchTimeoutSec:    getEnvInt("FETCH_TIMEOUT_SEC", 10),
		CDXPageSize:        getEnvInt("CDX_PAGE_SIZE", 5000),

		CDXEndpoint:     getEnv("CDX_ENDPOINT", "https://web.archive.org/cdx/search/cdx"),
		ArchiveBaseURL:  getEnv("ARCHIVE_BASE_URL", "https://web.archive.org/web"),
		RawContent:      getEnvBool("ARCHIVE_RAW_CONTENT", true),
		UserAgent:       getEnv("USER_AGENT", defaultUserAgent),
		EmitNoPriceRows: getEnvBool("EMIT_NO_PRICE_ROWS", false),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		InputCSVPath:  getEnv("INPUT_CSV_PATH", "./data/has_subscribe_pages.csv"),
		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/historical_pricing_snapshots.csv"),
	}
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Validate reports the first setting that would make a run meaningless.
func (c *Config) Validate() error {
	switch {
	case c.InputCSVPath == "":
		return fmt.Errorf("%w: input path is empty", ErrInvalid)
	case c.CSVOutputPath == "":
		return fmt.Errorf("%w: output path is empty", ErrInvalid)
	case c.StartDate.IsZero() || c.EndDate.IsZero():
		return fmt.Errorf("%w: start and end dates are required", ErrInvalid)
	case c.EndDate.Before(c.StartDate):
		return fmt.Errorf("%w: end date %s is before start date %s",
			ErrInvalid, c.EndDate.Format(dateLayout), c.StartDate.Format(dateLayout))
	case c.MaxConcurrency < 1:
		return fmt.Errorf("%w: MAX_WORKERS must be at least 1", ErrInvalid)
	case c.LocatorConcurrency < 1:
		return fmt.Errorf("%w: LOCATOR_CONCURRENCY must be at least 1", ErrInvalid)
	case c.LocatorConcurrency > c.MaxConcurrency:
		return fmt.Errorf("%w: LOCATOR_CONCURRENCY (%d) must not exceed MAX_WORKERS (%d)",
			ErrInvalid, c.LocatorConcurrency, c.MaxConcurrency)
	case c.LocatorRatePerSec <= 0:
		return fmt.Errorf("%w: LOCATOR_RATE_PER_SEC must be positive", ErrInvalid)
	case c.MaxRetries < 1:
		return fmt.Errorf("%w: MAX_RETRIES must be at least 1", ErrInvalid)
	case c.FetchTimeoutSec < 1:
		return fmt.Errorf("%w: FETCH_TIMEOUT_SEC must be at least 1", ErrInvalid)
	case c.CDXPageSize < 1:
		return fmt.Errorf("%w: CDX_PAGE_SIZE must be at least 1", ErrInvalid)
	}
	return nil
}

// FetchTimeout is the fixed per-request timeout for archive requests.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// RetryBaseDelay is the first Locator backoff delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// RetryMaxDelay caps the Locator backoff delay.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// ParseDate parses an ISO date (YYYY-MM-DD) as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", ErrInvalid, s, err)
	}
	return t, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDate(key string, fallback time.Time) time.Time {
	if val := os.Getenv(key); val != "" {
		t, err := ParseDate(val)
		if err == nil {
			return t
		}
		log.Printf("[config] Ignoring %s=%q: %v", key, val, err)
	}
	return fallback
}
