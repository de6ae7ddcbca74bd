package config

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"    envPrefix:"SERVER_"`
	Database  DatabaseConfig  `yaml:"database"  envPrefix:"DATABASE_"`
	Redis     RedisConfig     `yaml:"redis"     envPrefix:"REDIS_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	Policy    PolicyConfig    `yaml:"policy"    envPrefix:"POLICY_"`
	GRPC      GRPCConfig      `yaml:"grpc"      envPrefix:"GRPC_"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"              env:"HOST"`
	Port             int           `yaml:"port"              env:"PORT"`
	ReadTimeout      time.Duration `yaml:"read_timeout"      env:"READ_TIMEOUT"`
	WriteTimeout     time.Duration `yaml:"write_timeout"     env:"WRITE_TIMEOUT"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"      env:"IDLE_TIMEOUT"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown" env:"GRACEFUL_SHUTDOWN"`
	CORSOrigins      []string      `yaml:"cors_origins"      env:"CORS_ORIGINS" envSeparator:","`
}

// DatabaseConfig selects the usage store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"            env:"DRIVER"`
	Path            string        `yaml:"path"              env:"PATH"`
	Host            string        `yaml:"host"              env:"HOST"`
	Port            int           `yaml:"port"              env:"PORT"`
	Name            string        `yaml:"name"              env:"NAME"`
	User            string        `yaml:"user"              env:"USER"`
	Password        string        `yaml:"password"          env:"PASSWORD"`
	SSLMode         string        `yaml:"sslmode"           env:"SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns"    env:"MAX_OPEN_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `yaml:"auto_migrate"      env:"AUTO_MIGRATE"`
}

// DSN returns a postgres connection URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

type RedisConfig struct {
	Address  string        `yaml:"address"   env:"ADDRESS"`
	Password string        `yaml:"password"  env:"PASSWORD"`
	DB       int           `yaml:"db"        env:"DB"`
	PoolSize int           `yaml:"pool_size" env:"POOL_SIZE"`
	SpendTTL time.Duration `yaml:"spend_ttl" env:"SPEND_TTL"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"    env:"LOG_LEVEL"`
	LogFormat   string `yaml:"log_format"   env:"LOG_FORMAT"`
	MetricsPath string `yaml:"metrics_path" env:"METRICS_PATH"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"            env:"ENABLED"`
	BundlePath        string        `yaml:"bundle_path"        env:"BUNDLE_PATH"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout" env:"EVALUATION_TIMEOUT"`
}

type GRPCConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	Port    int  `yaml:"port"    env:"PORT"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 15 * time.Second,
			CORSOrigins:      []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "data/costs.db",
			Host:            "localhost",
			Port:            5432,
			Name:            "costrouter",
			User:            "costrouter",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			PoolSize: 10,
			SpendTTL: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPath: "/metrics",
		},
		Policy: PolicyConfig{
			Enabled:           false,
			BundlePath:        "configs/policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
		GRPC: GRPCConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}
