package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DBConfig selects the item store. Path applies to sqlite, the Mongo
// fields to mongo.
type DBConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type StorageConfig struct {
	Root      string `yaml:"root"`
	MaxPixels int    `yaml:"max_pixels"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"`
}

type AuthConfig struct {
	Enabled  bool          `yaml:"enabled"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

type TelemetryConfig struct {
	Exporter     string `yaml:"exporter"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"

	ModeHTTP  = "http"
	ModeStdio = "stdio"
)

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Driver:        DriverSQLite,
			Path:          "dsheet.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "dsheet",
		},
		Storage: StorageConfig{
			Root:      "images",
			MaxPixels: 100_000,
		},
		Log: LogConfig{
			Level: "info",
		},
		Transport: TransportConfig{
			Mode: ModeHTTP,
		},
		Auth: AuthConfig{
			Enabled:  true,
			TokenTTL: 30 * 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			Exporter: "none",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("DSHEET_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("DSHEET_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("DSHEET_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DSHEET_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if driver := os.Getenv("DSHEET_DB_DRIVER"); driver != "" {
		cfg.DB.Driver = driver
	}
	if dbPath := os.Getenv("DSHEET_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if uri := os.Getenv("DSHEET_MONGO_URI"); uri != "" {
		cfg.DB.MongoURI = uri
	}
	if name := os.Getenv("DSHEET_MONGO_DATABASE"); name != "" {
		cfg.DB.MongoDatabase = name
	}
	if root := os.Getenv("DSHEET_STORAGE_ROOT"); root != "" {
		cfg.Storage.Root = root
	}
	if maxStr := os.Getenv("DSHEET_STORAGE_MAX_PIXELS"); maxStr != "" {
		max, err := strconv.Atoi(maxStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DSHEET_STORAGE_MAX_PIXELS: %w", err)
		}
		cfg.Storage.MaxPixels = max
	}
	if level := os.Getenv("DSHEET_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("DSHEET_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}
	if mode := os.Getenv("DSHEET_TRANSPORT_MODE"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if enabled := os.Getenv("DSHEET_AUTH_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DSHEET_AUTH_ENABLED: %w", err)
		}
		cfg.Auth.Enabled = v
	}
	if exporter := os.Getenv("DSHEET_TRACE_EXPORTER"); exporter != "" {
		cfg.Telemetry.Exporter = exporter
	}
	if endpoint := os.Getenv("DSHEET_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Telemetry.OTLPEndpoint = endpoint
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" {
			errs = append(errs, errors.New("db path is required for sqlite"))
		}
	case DriverMongo:
		if c.DB.MongoURI == "" || c.DB.MongoDatabase == "" {
			errs = append(errs, errors.New("mongo uri and database are required for mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown db driver %q", c.DB.Driver))
	}
	if c.Storage.Root == "" {
		errs = append(errs, errors.New("storage root is required"))
	}
	if c.Storage.MaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("storage max pixels must be positive, got %d", c.Storage.MaxPixels))
	}
	switch c.Transport.Mode {
	case ModeHTTP, ModeStdio:
	default:
		errs = append(errs, fmt.Errorf("unknown transport mode %q", c.Transport.Mode))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth token ttl must be positive"))
	}
	switch c.Telemetry.Exporter {
	case "none", "stdout":
	case "otlp":
		if c.Telemetry.OTLPEndpoint == "" {
			errs = append(errs, errors.New("otlp exporter requires an endpoint"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown trace exporter %q", c.Telemetry.Exporter))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
