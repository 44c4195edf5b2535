// Package config loads the mousedb runtime configuration from MDB_*
// environment variables.
package config

import (
	"fmt"
	"mousedb/internal/blob"
	"mousedb/internal/core"
	"os"
	"strconv"
	"strings"
)

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string
	Format string
}

// Config is the complete runtime configuration.
type Config struct {
	Storage          core.StorageConfig
	Blob             blob.Config
	ArchivePrefix    string
	Log              LogConfig
	StrainAPrefix    string
	StrainBPrefix    string
	Retention        core.RetentionPolicy
	MetricsNamespace string
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		Storage:          core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: "mousedb.db"},
		Blob:             blob.Config{Driver: blob.DriverFilesystem, Root: "./mdb-artifacts"},
		ArchivePrefix:    "changelogs/",
		Log:              LogConfig{Level: "info", Format: "json"},
		StrainAPrefix:    core.DefaultStrainAPrefix,
		StrainBPrefix:    core.DefaultStrainBPrefix,
		Retention:        core.DefaultRetentionPolicy(),
		MetricsNamespace: "mousedb",
	}
}

// Classifier returns the location classifier for the configured strain prefixes.
func (c Config) Classifier() core.Classifier {
	return core.Classifier{StrainAPrefix: c.StrainAPrefix, StrainBPrefix: c.StrainBPrefix}
}

// IssuerConfig returns the identity tables with the leading digit of each
// configured strain prefix ("8-A-" contributes "8").
func (c Config) IssuerConfig() core.IssuerConfig {
	cfg := core.DefaultIssuerConfig()
	cfg.StrainCagePrefixes = nil
	for _, p := range []string{c.StrainAPrefix, c.StrainBPrefix} {
		if lead, _, _ := strings.Cut(p, "-"); lead != "" {
			cfg.StrainCagePrefixes = append(cfg.StrainCagePrefixes, lead)
		}
	}
	return cfg
}

// LoadFromEnv reads the process environment.
func LoadFromEnv() (Config, error) {
	return Load(os.Getenv)
}

// Load builds a Config from getenv, starting from Default.
//
//	MDB_STORAGE_DRIVER    memory|sqlite|postgres (default sqlite)
//	MDB_SQLITE_PATH       sqlite file (default ./mousedb.db)
//	MDB_POSTGRES_DSN      DSN when the driver is postgres
//	MDB_BLOB_DRIVER       fs|memory|s3 (default fs)
//	MDB_BLOB_FS_ROOT      fs root directory
//	MDB_BLOB_S3_*         BUCKET, REGION, ENDPOINT, PATH_STYLE, ACCESS_KEY, SECRET_KEY
//	MDB_ARCHIVE_PREFIX    key prefix of changelog artifacts
//	MDB_LOG_LEVEL         debug|info|warn|error
//	MDB_LOG_FORMAT        json|console
//	MDB_STRAIN_PREFIXES   two comma separated cage prefixes, strain A first
//	MDB_RETENTION_DAYS    archive age threshold in days
//	MDB_PARENT_MATCH      independent|joint
//	MDB_METRICS_NAMESPACE prometheus namespace
func Load(getenv func(string) string) (Config, error) {
	c := Default()
	if v := getenv("MDB_STORAGE_DRIVER"); v != "" {
		switch d := core.StorageDriver(strings.ToLower(v)); d {
		case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
			c.Storage.Driver = d
		default:
			return Config{}, fmt.Errorf("MDB_STORAGE_DRIVER: unknown driver %q", v)
		}
	}
	if v := getenv("MDB_SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	c.Storage.PostgresDSN = getenv("MDB_POSTGRES_DSN")

	if v := getenv("MDB_BLOB_DRIVER"); v != "" {
		switch d := blob.Driver(strings.ToLower(v)); d {
		case blob.DriverFilesystem, blob.DriverMemory, blob.DriverS3:
			c.Blob.Driver = d
		default:
			return Config{}, fmt.Errorf("MDB_BLOB_DRIVER: unknown driver %q", v)
		}
	}
	if v := getenv("MDB_BLOB_FS_ROOT"); v != "" {
		c.Blob.Root = v
	}
	c.Blob.S3 = blob.S3Config{
		Bucket:          getenv("MDB_BLOB_S3_BUCKET"),
		Region:          getenv("MDB_BLOB_S3_REGION"),
		Endpoint:        getenv("MDB_BLOB_S3_ENDPOINT"),
		AccessKeyID:     getenv("MDB_BLOB_S3_ACCESS_KEY"),
		SecretAccessKey: getenv("MDB_BLOB_S3_SECRET_KEY"),
	}
	if v := getenv("MDB_BLOB_S3_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("MDB_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	if c.Blob.Driver == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		return Config{}, fmt.Errorf("MDB_BLOB_S3_BUCKET is required for the s3 driver")
	}
	if v := getenv("MDB_ARCHIVE_PREFIX"); v != "" {
		c.ArchivePrefix = v
	}

	if v := getenv("MDB_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv("MDB_LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}

	if v := getenv("MDB_STRAIN_PREFIXES"); v != "" {
		parts := strings.Split(v, ",")
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return Config{}, fmt.Errorf("MDB_STRAIN_PREFIXES: want two prefixes, got %q", v)
		}
		c.StrainAPrefix = strings.TrimSpace(parts[0])
		c.StrainBPrefix = strings.TrimSpace(parts[1])
	}
	if v := getenv("MDB_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("MDB_RETENTION_DAYS: want a positive integer, got %q", v)
		}
		c.Retention.MaxAgeDays = n
	}
	if v := getenv("MDB_PARENT_MATCH"); v != "" {
		mode, err := core.ParseParentMatch(strings.ToLower(v))
		if err != nil {
			return Config{}, fmt.Errorf("MDB_PARENT_MATCH: %w", err)
		}
		c.Retention.ParentMatch = mode
	}
	if v := getenv("MDB_METRICS_NAMESPACE"); v != "" {
		c.MetricsNamespace = v
	}
	return c, nil
}
