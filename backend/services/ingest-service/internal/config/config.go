package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "gasledger/backend/libs/config"
	"gasledger/backend/libs/secret"
	"gasledger/backend/services/ingest-service/internal/portal"
	"gasledger/backend/services/ingest-service/internal/service"
)

const (
	defaultPort     = "8090"
	defaultSchedule = "0 0 3 * * *"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config defines ingest service configuration.
type Config struct {
	HTTP   HTTPConfig   `yaml:"http"`
	Portal PortalConfig `yaml:"portal"`
	Store  StoreConfig  `yaml:"store"`
	Redis  RedisConfig  `yaml:"redis"`
	Ingest IngestConfig `yaml:"ingest"`
	JWT    JWTConfig    `yaml:"jwt"`
}

type HTTPConfig struct {
	Port string `yaml:"port" env:"INGEST_HTTP_PORT"`
}

// PortalConfig selects the provider deployment and the account credentials. The password is
// given either in clear or sealed with secretKey (see libs/secret).
type PortalConfig struct {
	Provider          string        `yaml:"provider" env:"INGEST_PORTAL_PROVIDER"`
	Username          string        `yaml:"username" env:"INGEST_PORTAL_USERNAME"`
	Password          string        `yaml:"password" env:"INGEST_PORTAL_PASSWORD"`
	SealedPassword    string        `yaml:"sealedPassword" env:"INGEST_PORTAL_SEALED_PASSWORD"`
	SecretKey         string        `yaml:"secretKey" env:"INGEST_PORTAL_SECRET_KEY"`
	Timeout           time.Duration `yaml:"timeout" env:"INGEST_PORTAL_TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" env:"INGEST_PORTAL_RPS"`
	StrictLogin       bool          `yaml:"strictLogin" env:"INGEST_PORTAL_STRICT_LOGIN"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" env:"INGEST_STORE_DRIVER"`
	DSN    string `yaml:"dsn" env:"INGEST_STORE_DSN"`
}

// RedisConfig is optional; an empty Addr keeps the latest snapshot in process.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"INGEST_REDIS_ADDR"`
	Password string        `yaml:"password" env:"INGEST_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"INGEST_REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"INGEST_REDIS_TTL"`
}

type IngestConfig struct {
	Schedule         string        `yaml:"schedule" env:"INGEST_SCHEDULE"`
	RunOnStart       bool          `yaml:"runOnStart" env:"INGEST_RUN_ON_START"`
	MarkerReadPolicy string        `yaml:"markerReadPolicy" env:"INGEST_MARKER_READ_POLICY"`
	CycleTimeout     time.Duration `yaml:"cycleTimeout" env:"INGEST_CYCLE_TIMEOUT"`
	FetchPayments    bool          `yaml:"fetchPayments" env:"INGEST_FETCH_PAYMENTS"`
}

// JWTConfig guards the HTTP API. An empty Secret leaves it open.
type JWTConfig struct {
	Secret   string        `yaml:"secret" env:"INGEST_JWT_SECRET"`
	TokenTTL time.Duration `yaml:"tokenTTL" env:"INGEST_JWT_TOKEN_TTL"`
}

// Load configuration from file/env.
func Load() (*Config, error) {
	cfg := defaults()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{Port: defaultPort},
		Portal: PortalConfig{
			Provider:          "OH",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 2,
		},
		Store: StoreConfig{Driver: DriverMemory},
		Redis: RedisConfig{TTL: 7 * 24 * time.Hour},
		Ingest: IngestConfig{
			Schedule:         defaultSchedule,
			MarkerReadPolicy: string(service.MarkerFailOpen),
			CycleTimeout:     5 * time.Minute,
		},
	}
}

func (c *Config) finalize() error {
	if _, err := portal.LookupProvider(c.Portal.Provider); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if strings.TrimSpace(c.Portal.Username) == "" {
		return errors.New("config: portal username required")
	}
	if err := c.unsealPassword(); err != nil {
		return err
	}
	if c.Portal.Password == "" {
		return errors.New("config: portal password required")
	}

	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case DriverPostgres, DriverSQLite:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("config: store dsn required for driver %q", c.Store.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))

	if _, err := service.ParseMarkerPolicy(c.Ingest.MarkerReadPolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if strings.TrimSpace(c.Ingest.Schedule) == "" {
		c.Ingest.Schedule = defaultSchedule
	}
	return nil
}

func (c *Config) unsealPassword() error {
	if c.Portal.SealedPassword == "" {
		return nil
	}
	if c.Portal.SecretKey == "" {
		return errors.New("config: sealed password needs a secret key")
	}
	key, err := secret.ParseKey(c.Portal.SecretKey)
	if err != nil {
		return fmt.Errorf("config: secret key: %w", err)
	}
	password, err := secret.Open(key, c.Portal.SealedPassword)
	if err != nil {
		return fmt.Errorf("config: sealed password: %w", err)
	}
	c.Portal.Password = password
	return nil
}

// HTTPAddress returns :port style string.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// MarkerPolicy returns the parsed marker read policy.
func (c *Config) MarkerPolicy() service.MarkerPolicy {
	policy, _ := service.ParseMarkerPolicy(c.Ingest.MarkerReadPolicy)
	return policy
}
