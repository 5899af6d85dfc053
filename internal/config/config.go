package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables; "__" separates nested keys,
// e.g. INTAKE_SERVER__PORT -> server.port.
const EnvPrefix = "INTAKE_"

type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Intake        IntakeConfig         `koanf:"intake" validate:"required"`
	Sinks         SinksConfig          `koanf:"sinks" validate:"required"`
	Database      DatabaseConfig       `koanf:"database"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	BodyLimit          string   `koanf:"body_limit" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required"`
}

type IntakeConfig struct {
	DefaultCountryCode string `koanf:"default_country_code" validate:"required,startswith=+"`
}

// SinksConfig selects the recording sinks and carries their settings.
// The log sink is always active; Enabled adds durable stores and notifiers.
type SinksConfig struct {
	Enabled []string      `koanf:"enabled" validate:"dive,oneof=log postgres sqlite mysql mongo o3 webhook"`
	SQLite  SQLiteConfig  `koanf:"sqlite"`
	MySQL   MySQLConfig   `koanf:"mysql"`
	Mongo   MongoConfig   `koanf:"mongo"`
	O3      *O3Config     `koanf:"o3"`
	Webhook WebhookConfig `koanf:"webhook"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type MySQLConfig struct {
	DSN string `koanf:"dsn"`
}

type MongoConfig struct {
	URI            string `koanf:"uri"`
	Database       string `koanf:"database"`
	Collection     string `koanf:"collection"`
	ConnectTimeout int    `koanf:"connect_timeout"`
}

// O3Config points at an S3-compatible bucket (Akave O3, MinIO, AWS S3).
type O3Config struct {
	Endpoint  string `koanf:"endpoint"`
	Region    string `koanf:"region"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
}

// WebhookConfig targets a messenger gateway that relays admin notifications.
type WebhookConfig struct {
	Endpoint     string `koanf:"endpoint"`
	Destination  string `koanf:"destination"`
	Recipient    string `koanf:"recipient"`
	Timeout      int    `koanf:"timeout"`
	Attempts     int    `koanf:"attempts"`
	RetryDelayMS int    `koanf:"retry_delay_ms"`
}

type DatabaseConfig struct {
	Host            string `koanf:"host"`
	Port            int    `koanf:"port"`
	User            string `koanf:"user"`
	Password        string `koanf:"password"`
	Name            string `koanf:"name"`
	SSLMode         string `koanf:"ssl_mode"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	MinConns        int    `koanf:"min_conns"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time"`
}

// URL renders the database settings as a postgres connection string.
// Credentials are escaped, so they may contain URL delimiters.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// DefaultConfig returns the settings used when no environment overrides them.
func DefaultConfig() *Config {
	return &Config{
		Primary: Primary{Env: "development"},
		Server: ServerConfig{
			Port:               "8080",
			ReadTimeout:        10,
			WriteTimeout:       15,
			IdleTimeout:        60,
			BodyLimit:          "64K",
			CORSAllowedOrigins: []string{"*"},
		},
		Intake: IntakeConfig{DefaultCountryCode: "+1"},
		Sinks: SinksConfig{
			Enabled: []string{"log"},
			SQLite:  SQLiteConfig{Path: "intake.db"},
			Mongo: MongoConfig{
				URI:            "mongodb://localhost:27017",
				Database:       "pathway",
				Collection:     "applications",
				ConnectTimeout: 10,
			},
			Webhook: WebhookConfig{
				Destination:  "discord",
				Recipient:    "admin",
				Timeout:      3,
				Attempts:     3,
				RetryDelayMS: 200,
			},
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Name:            "pathway",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			ConnMaxLifetime: 1800,
			ConnMaxIdleTime: 300,
		},
		Observability: DefaultObservabilityConfig(),
	}
}

// listKeys are comma-separated in the environment.
var listKeys = map[string]bool{
	"server.cors_allowed_origins": true,
	"sinks.enabled":               true,
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// LoadConfig loads the configuration from environment variables using koanf.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")
	err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = envKey(key)
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// a nil section can only come from an explicit empty override
	if cfg.Observability == nil {
		cfg.Observability = DefaultObservabilityConfig()
	}
	cfg.Observability.ServiceName = "pathway-intake"
	cfg.Observability.Environment = cfg.Primary.Env

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags plus the settings each enabled sink needs.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var errs []error
	if c.SinkEnabled("postgres") && (c.Database.Host == "" || c.Database.Name == "") {
		errs = append(errs, errors.New("postgres sink needs database.host and database.name"))
	}
	if c.SinkEnabled("sqlite") && c.Sinks.SQLite.Path == "" {
		errs = append(errs, errors.New("sqlite sink needs sinks.sqlite.path"))
	}
	if c.SinkEnabled("mysql") && c.Sinks.MySQL.DSN == "" {
		errs = append(errs, errors.New("mysql sink needs sinks.mysql.dsn"))
	}
	if c.SinkEnabled("mongo") && (c.Sinks.Mongo.URI == "" || c.Sinks.Mongo.Database == "") {
		errs = append(errs, errors.New("mongo sink needs sinks.mongo.uri and sinks.mongo.database"))
	}
	if c.SinkEnabled("o3") && (c.Sinks.O3 == nil || c.Sinks.O3.Endpoint == "" || c.Sinks.O3.Bucket == "") {
		errs = append(errs, errors.New("o3 sink needs sinks.o3.endpoint and sinks.o3.bucket"))
	}
	if c.SinkEnabled("webhook") && c.Sinks.Webhook.Endpoint == "" {
		errs = append(errs, errors.New("webhook sink needs sinks.webhook.endpoint"))
	}
	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SinkEnabled reports whether the named sink type is switched on.
func (c *Config) SinkEnabled(name string) bool {
	return slices.Contains(c.Sinks.Enabled, name)
}

// IsProduction reports whether the service runs with primary.env=production.
func (c *Config) IsProduction() bool {
	return c.Primary.Env == "production"
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
