package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // venue zone must resolve on hosts without zoneinfo

	"github.com/caarlos0/env/v11" // struct-tag driven environment parsing
	"github.com/joho/godotenv"    // optional .env file for local runs
)

// Config holds all runtime configuration values.  Each leaf field maps to an
// environment variable; groups are split per concern the same way the Redis,
// rate limit and projection cache settings live in their own files.
type Config struct {
	Env         string `env:"APP_ENV" envDefault:"dev"`    // application environment (dev/test/prod)
	Port        string `env:"APP_PORT" envDefault:"8080"`  // HTTP port to listen on
	JWTSecret   string `env:"JWT_SECRET,notEmpty"`         // secret used to verify access tokens
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"` // debug, info, warn or error
	ServiceName string `env:"SERVICE_NAME" envDefault:"venue-reservations"`

	DB        DBConfig
	Booking   BookingConfig
	Payment   PaymentConfig
	Broker    BrokerConfig
	Telemetry TelemetryConfig
}

// DBConfig selects and configures the reservation store backend.
type DBConfig struct {
	Driver       string `env:"DB_DRIVER" envDefault:"mysql"` // mysql or sqlite
	User         string `env:"DB_USER" envDefault:"venue"`
	Pass         string `env:"DB_PASS"` // empty allowed
	Host         string `env:"DB_HOST" envDefault:"localhost"`
	Port         string `env:"DB_PORT" envDefault:"3306"`
	Name         string `env:"DB_NAME" envDefault:"venue"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"data/venue.db"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
}

// BookingConfig tunes holds and the expiry sweeper.
type BookingConfig struct {
	HoldTTL       time.Duration `env:"HOLD_TTL" envDefault:"15m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	SweepBatch    int           `env:"SWEEP_BATCH" envDefault:"100"`
	Timezone      string        `env:"VENUE_TIMEZONE" envDefault:"Europe/Moscow"`
	HorizonDays   int           `env:"BOOKING_HORIZON_DAYS" envDefault:"7"`
}

// PaymentConfig configures the payment provider and callback signatures.
// An empty APIURL selects the local gateway, which only redirects.
type PaymentConfig struct {
	APIURL     string        `env:"PAYMENT_API_URL"`
	ShopID     string        `env:"PAYMENT_SHOP_ID"`
	SecretKey  string        `env:"PAYMENT_SECRET_KEY"`
	SigningKey string        `env:"PAYMENT_SIGNING_KEY,notEmpty"`
	Currency   string        `env:"PAYMENT_CURRENCY" envDefault:"RUB"`
	ReturnURL  string        `env:"PAYMENT_RETURN_URL" envDefault:"http://localhost:8080/payments/return"`
	Timeout    time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"10s"`
}

// BrokerConfig configures RabbitMQ.  An empty URL disables both the
// notification publisher and the payment event consumer.
type BrokerConfig struct {
	URL          string `env:"RABBITMQ_URL"`
	Exchange     string `env:"RABBITMQ_EXCHANGE" envDefault:"venue.reservations"`
	PaymentQueue string `env:"RABBITMQ_PAYMENT_QUEUE" envDefault:"payment.events"`
}

// TelemetryConfig configures OTLP trace export.  Tracing stays a no-op when
// OTLPEndpoint is empty.
type TelemetryConfig struct {
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
}

// Load reads a .env file when one exists, parses the environment into a
// Config and validates it.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot run with.
func (c Config) Validate() error {
	switch c.DB.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.Booking.HoldTTL <= 0 {
		return errors.New("HOLD_TTL must be positive")
	}
	if c.Booking.SweepInterval <= 0 || c.Booking.SweepInterval >= c.Booking.HoldTTL {
		return fmt.Errorf("SWEEP_INTERVAL (%s) must be positive and shorter than HOLD_TTL (%s)",
			c.Booking.SweepInterval, c.Booking.HoldTTL)
	}
	if c.Booking.SweepBatch < 1 {
		return errors.New("SWEEP_BATCH must be at least 1")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the venue time zone used to compute "today".
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return nil, fmt.Errorf("VENUE_TIMEZONE %q: %w", c.Booking.Timezone, err)
	}
	return loc, nil
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set.  A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
