package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"enroute_tracker/internal/feeds"
	"enroute_tracker/internal/route"
)

type DBConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	User     string `validate:"required"`
	Password string
	Name     string `validate:"required"`
	SSLMode  string `validate:"oneof=disable allow prefer require verify-ca verify-full"`
	TimeZone string `validate:"required"`
}

// DSN renders the postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode, c.TimeZone,
	)
}

type MongoConfig struct {
	URI      string `validate:"required_if=Backend mongo"`
	Database string `validate:"required"`
	Backend  string `validate:"-"`
}

type SpotConfig struct {
	URLTemplate     string        `validate:"required,contains=%s"`
	TTL             time.Duration `validate:"gt=0"`
	PolitenessDelay time.Duration `validate:"gte=0"`
}

type TrackLeadersConfig struct {
	// Empty disables the aggregated provider.
	URL string        `validate:"omitempty,url"`
	TTL time.Duration `validate:"gt=0"`
}

type AppConfig struct {
	HTTPAddr string `validate:"required,hostname_port"`
	LogLevel string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFile  string

	StoreBackend string      `validate:"oneof=postgres mongo memory"`
	DB           DBConfig    `validate:"-"`
	Mongo        MongoConfig

	Spot         SpotConfig
	TrackLeaders TrackLeadersConfig

	ProviderTimeout    time.Duration `validate:"gt=0"`
	PathWindow         time.Duration `validate:"gt=0"`
	MaxDeviationMeters float64       `validate:"gt=0"`
	RouteCacheSize     int           `validate:"gt=0"`
}

// Load reads the configuration from the environment, after loading .env
// when one is present, and validates it.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found; relying on env vars")
	}

	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}
	number := func(key, def string) float64 {
		f, err := strconv.ParseFloat(getEnv(key, def), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return f
	}

	backend := getEnv("STORE_BACKEND", "postgres")
	cfg := &AppConfig{
		HTTPAddr:     getEnv("HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFile:      getEnv("LOG_FILE", "./logs/app.log"),
		StoreBackend: backend,
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "enroute"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			TimeZone: getEnv("DB_TIMEZONE", "UTC"),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGODB_URI", ""),
			Database: getEnv("MONGODB_DATABASE", "enroute"),
			Backend:  backend,
		},
		Spot: SpotConfig{
			URLTemplate:     getEnv("SPOT_URL_TEMPLATE", feeds.DefaultSpotURLTemplate),
			TTL:             duration("SPOT_TTL", "5m"),
			PolitenessDelay: duration("SPOT_POLITENESS_DELAY", "2s"),
		},
		TrackLeaders: TrackLeadersConfig{
			URL: getEnv("TRACKLEADERS_URL", ""),
			TTL: duration("TRACKLEADERS_TTL", "1m"),
		},
		ProviderTimeout:    duration("PROVIDER_TIMEOUT", "15s"),
		PathWindow:         duration("PATH_WINDOW", "1h"),
		MaxDeviationMeters: number("MAX_DEVIATION_METERS", strconv.FormatFloat(route.DefaultMaxDeviationMeters, 'f', -1, 64)),
		RouteCacheSize:     int(number("ROUTE_CACHE_SIZE", "64")),
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(errs...))
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *AppConfig) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.StoreBackend == "postgres" {
		if err := v.Struct(cfg.DB); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// getEnv reads an environment variable or returns the provided default
func getEnv(key, defaultValue string) string {
	if v, exists := os.LookupEnv(key); exists {
		return v
	}
	return defaultValue
}
