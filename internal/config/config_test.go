package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "radar_uptime", cfg.Database.Database)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 100, cfg.Ingest.BatchSize)
	assert.Equal(t, "./bad_rawacfs.txt", cfg.Ingest.BadRawacfsFile)
	assert.Equal(t, "./bad_cpids.txt", cfg.Ingest.BadCPIDsFile)
	assert.Empty(t, cfg.Remote.Endpoint)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("RADAR_UPTIME_DATABASE_DRIVER", "duckdb")
	t.Setenv("RADAR_UPTIME_DATABASE_PATH", "/tmp/uptime.duckdb")
	t.Setenv("RADAR_UPTIME_INGEST_WORKERS", "3")
	t.Setenv("RADAR_UPTIME_INGEST_BAD_CPIDS_FILE", "/var/log/bad.txt")
	t.Setenv("RADAR_UPTIME_SERVER_READ_TIMEOUT", "2s")
	t.Setenv("RADAR_UPTIME_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "duckdb", cfg.Database.Driver)
	assert.Equal(t, "/tmp/uptime.duckdb", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Ingest.Workers)
	assert.Equal(t, "/var/log/bad.txt", cfg.Ingest.BadCPIDsFile)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
database:
  driver: duckdb
  path: ./uptime.duckdb
remote:
  endpoint: https://archive.example.org
  bucket: superdarn
  prefix: rawacf/
logging:
  file: uptime.log
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "duckdb", cfg.Database.Driver)
	assert.Equal(t, "superdarn", cfg.Remote.Bucket)
	assert.Equal(t, "rawacf/", cfg.Remote.Prefix)
	assert.Equal(t, "uptime.log", cfg.Logging.File)
	assert.Equal(t, 5.0, cfg.Remote.RateLimit)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }, true},
		{"duckdb in memory", func(c *Config) { c.Database.Driver = "duckdb"; c.Database.Host = "" }, false},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"no workers", func(c *Config) { c.Ingest.Workers = 0 }, true},
		{"remote without bucket", func(c *Config) { c.Remote.Endpoint = "s3.local"; c.Remote.Bucket = "" }, true},
		{"kafka without topic", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"}; c.Kafka.Topic = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig("")
			require.NoError(t, err)
			tt.mutate(cfg)

			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestDatabaseConfig_DB(t *testing.T) {
	t.Setenv("RADAR_UPTIME_DATABASE_DRIVER", "duckdb")
	t.Setenv("RADAR_UPTIME_DATABASE_PATH", "/var/lib/radar/uptime.duckdb")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	db := cfg.Database.DB()
	assert.Equal(t, "duckdb", db.Driver)
	assert.Equal(t, "/var/lib/radar/uptime.duckdb", db.DSN())
	assert.Equal(t, 10, db.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, db.ConnMaxLifetime)
}
