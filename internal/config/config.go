package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"radar-uptime/pkg/database"
)

// EnvPrefix is prepended to every environment override, e.g.
// RADAR_UPTIME_DATABASE_HOST.
const EnvPrefix = "RADAR_UPTIME"

// Config is the process configuration shared by all commands.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`

	// ConfigFile is the file the values were read from, if any.
	ConfigFile string `mapstructure:"-"`
}

// DatabaseConfig selects and tunes the record store.
// Driver is "postgres" or "duckdb"; Path is only used by duckdb, where an
// empty path means an in-memory database.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max-open-conns"`
	MaxIdleConns    int           `mapstructure:"max-idle-conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn-max-lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn-max-idle-time"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read-timeout"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle-timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// File additionally receives every log line when set.
	File string `mapstructure:"file"`
}

// IngestConfig controls the file ingestion pipeline.
type IngestConfig struct {
	Workers        int    `mapstructure:"workers"`
	BatchSize      int    `mapstructure:"batch-size"`
	WorkDir        string `mapstructure:"work-dir"`
	BadRawacfsFile string `mapstructure:"bad-rawacfs-file"`
	BadCPIDsFile   string `mapstructure:"bad-cpids-file"`
	KeepFiles      bool   `mapstructure:"keep-files"`
}

// RemoteConfig points at the S3-compatible archive rawacf files are
// fetched from. An empty Endpoint disables remote fetching.
type RemoteConfig struct {
	Endpoint  string  `mapstructure:"endpoint"`
	AccessKey string  `mapstructure:"access-key"`
	SecretKey string  `mapstructure:"secret-key"`
	Bucket    string  `mapstructure:"bucket"`
	Region    string  `mapstructure:"region"`
	Prefix    string  `mapstructure:"prefix"`
	UseSSL    bool    `mapstructure:"use-ssl"`
	RateLimit float64 `mapstructure:"rate-limit"`
	RateBurst int     `mapstructure:"rate-burst"`
}

// KafkaConfig enables publishing built records. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "radar")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "radar_uptime")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "")
	v.SetDefault("database.max-open-conns", 10)
	v.SetDefault("database.max-idle-conns", 5)
	v.SetDefault("database.conn-max-lifetime", 30*time.Minute)
	v.SetDefault("database.conn-max-idle-time", 5*time.Minute)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read-timeout", 15*time.Second)
	v.SetDefault("server.write-timeout", 15*time.Second)
	v.SetDefault("server.idle-timeout", 60*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")

	v.SetDefault("ingest.workers", runtime.NumCPU())
	v.SetDefault("ingest.batch-size", 100)
	v.SetDefault("ingest.work-dir", "./rawacf")
	v.SetDefault("ingest.bad-rawacfs-file", "./bad_rawacfs.txt")
	v.SetDefault("ingest.bad-cpids-file", "./bad_cpids.txt")
	v.SetDefault("ingest.keep-files", false)

	v.SetDefault("remote.endpoint", "")
	v.SetDefault("remote.access-key", "")
	v.SetDefault("remote.secret-key", "")
	v.SetDefault("remote.bucket", "rawacf")
	v.SetDefault("remote.region", "")
	v.SetDefault("remote.prefix", "")
	v.SetDefault("remote.use-ssl", true)
	v.SetDefault("remote.rate-limit", 5.0)
	v.SetDefault("remote.rate-burst", 1)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "rawacf-records")
}

// LoadConfig reads defaults, then the optional YAML file at path, then
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverPostgres:
		if c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("database host and name are required for postgres")
		}
	case database.DriverDuckDB:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest workers must be at least 1, got %d", c.Ingest.Workers)
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest batch size must be at least 1, got %d", c.Ingest.BatchSize)
	}
	if c.Remote.Endpoint != "" {
		if c.Remote.Bucket == "" {
			return fmt.Errorf("remote bucket is required when an endpoint is set")
		}
		if c.Remote.RateLimit <= 0 {
			return fmt.Errorf("remote rate limit must be positive")
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	return nil
}

// DB converts the database section into connection settings.
func (d DatabaseConfig) DB() *database.Config {
	return &database.Config{
		Driver:          d.Driver,
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		SSLMode:         d.SSLMode,
		Path:            d.Path,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
	}
}
