package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/Temutjin2k/dispatch-core/pkg/configparser"
)

var configPathFlag = flag.String("config", "", "path to YAML config file")

// Config contains all configuration variables of the dispatch core.
type (
	Config struct {
		HTTP      HTTPConfig
		Database  DatabaseConfig
		RabbitMQ  RabbitMQConfig
		Redis     RedisConfig
		Auth      AuthConfig
		Phases    PhasesConfig
		Offers    OffersConfig
		Rides     RidesConfig
		Dispatch  DispatchConfig
		Geo       GeoConfig
		Geocache  GeocacheConfig
		LogLevel  string `env:"LOG_LEVEL" default:"INFO"`
	}

	HTTPConfig struct {
		Port string `env:"HTTP_PORT" default:"8080"`
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"dispatch_user"`
		Password string `env:"DATABASE_PASSWORD" default:"dispatch_pass"`
		Database string `env:"DATABASE_DATABASE" default:"dispatch_db"`

		MaxConns        int32         `env:"DATABASE_MAXCONNS" default:"20"`
		MinConns        int32         `env:"DATABASE_MINCONNS" default:"2"`
		MaxConnLifetime time.Duration `env:"DATABASE_MAXCONNLIFETIME" default:"30m"`
		MaxConnIdleTime time.Duration `env:"DATABASE_MAXCONNIDLETIME" default:"5m"`
	}

	RabbitMQConfig struct {
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
		Exchange string `env:"RABBITMQ_EXCHANGE" default:"dispatch.events"`
	}

	RedisConfig struct {
		Addr     string `env:"REDIS_ADDR" default:"localhost:6379"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" default:"0"`
	}

	AuthConfig struct {
		JWTSecret string `env:"AUTH_JWT_SECRET" default:"supersecretkey"`
	}

	// PhasesConfig holds the 3-phase broadcast radii/TTLs.
	PhasesConfig struct {
		Phase1RadiusKm float64       `env:"PHASE1_RADIUS_KM" default:"5"`
		Phase1TTL      time.Duration `env:"PHASE1_TTL" default:"15s"`
		Phase2RadiusKm float64       `env:"PHASE2_RADIUS_KM" default:"5"`
		Phase2TTL      time.Duration `env:"PHASE2_TTL" default:"7s"`
		Phase3RadiusKm float64       `env:"PHASE3_RADIUS_KM" default:"10"`
		Phase3TTL      time.Duration `env:"PHASE3_TTL" default:"12s"`
	}

	OffersConfig struct {
		ActiveReadLimit int `env:"OFFERS_ACTIVE_READ_LIMIT" default:"20"`
	}

	RidesConfig struct {
		HistoryReadLimit int `env:"RIDES_HISTORY_READ_LIMIT" default:"50"`
	}

	DispatchConfig struct {
		InitialStatus     string `env:"DISPATCH_INITIAL_STATUS" default:"SEARCHING"`
		CandidateFetchCap int    `env:"DISPATCH_CANDIDATE_FETCH_CAP" default:"50"`
	}

	GeoConfig struct {
		EarthRadiusKm float64 `env:"GEO_EARTH_RADIUS_KM" default:"6371.0"`
	}

	// GeocacheConfig tunes the H3/Redis candidate pre-filter.
	GeocacheConfig struct {
		H3Resolution int           `env:"GEOCACHE_H3_RESOLUTION" default:"8"`
		LocationTTL  time.Duration `env:"GEOCACHE_LOCATION_TTL" default:"30s"`
	}
)

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Password, c.Host, c.Port)
}

func NewConfig() (*Config, error) {
	cfg := &Config{}

	if !flag.Parsed() {
		flag.Parse()
	}

	if err := configparser.LoadAndParseYaml(*configPathFlag, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	return cfg, nil
}
