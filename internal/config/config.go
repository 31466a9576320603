// Package config loads materialcore settings from an optional YAML file and
// MATERIALCORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"materialcore/internal/blob"
	"materialcore/internal/core"
)

// EnvPrefix prefixes every environment override, e.g. MATERIALCORE_STORAGE_DRIVER.
const EnvPrefix = "MATERIALCORE"

// Config is the resolved process configuration.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Registry RegistryConfig `mapstructure:"registry"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Export   ExportConfig   `mapstructure:"export"`
	Log      LogConfig      `mapstructure:"log"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type RegistryConfig struct {
	DefaultOwner string `mapstructure:"default_owner"`
}

type BlobConfig struct {
	Driver string   `mapstructure:"driver"`
	FSRoot string   `mapstructure:"fs_root"`
	S3     S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	PathStyle       bool   `mapstructure:"path_style"`
}

type ExportConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults mirrors the values applied when neither file nor environment set a key.
func Defaults() Config {
	return Config{
		Storage:  StorageConfig{Driver: string(core.StorageSQLite), SQLitePath: "materialcore.db"},
		Registry: RegistryConfig{DefaultOwner: core.DefaultOwner},
		Blob:     BlobConfig{Driver: string(blob.DriverFilesystem), FSRoot: "./blobdata", S3: S3Config{Region: "us-east-1"}},
		Export:   ExportConfig{QueueSize: 16},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// New returns a viper instance with defaults and environment binding in
// place. Every key is registered as a default so AutomaticEnv can see it
// during Unmarshal.
func New() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)
	v.SetDefault("registry.default_owner", d.Registry.DefaultOwner)
	v.SetDefault("blob.driver", d.Blob.Driver)
	v.SetDefault("blob.fs_root", d.Blob.FSRoot)
	v.SetDefault("blob.s3.bucket", d.Blob.S3.Bucket)
	v.SetDefault("blob.s3.region", d.Blob.S3.Region)
	v.SetDefault("blob.s3.endpoint", d.Blob.S3.Endpoint)
	v.SetDefault("blob.s3.access_key_id", d.Blob.S3.AccessKeyID)
	v.SetDefault("blob.s3.secret_access_key", d.Blob.S3.SecretAccessKey)
	v.SetDefault("blob.s3.session_token", d.Blob.S3.SessionToken)
	v.SetDefault("blob.s3.path_style", d.Blob.S3.PathStyle)
	v.SetDefault("export.queue_size", d.Export.QueueSize)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (when non-empty) on top of the defaults and environment.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the backends would otherwise fail on later.
func (c Config) Validate() error {
	var errs []error
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver))
	}
	if c.Export.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("export.queue_size must be positive, got %d", c.Export.QueueSize))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: want text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// StorageConfig converts the storage section for core.OpenPersistentStore.
func (c Config) StorageConfig() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobConfig converts the blob section for blob.Open.
func (c Config) BlobConfig() blob.Config {
	s3 := c.Blob.S3
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          s3.Bucket,
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			SessionToken:    s3.SessionToken,
			PathStyle:       s3.PathStyle,
		},
	}
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
