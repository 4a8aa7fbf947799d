package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/episodb"
	"github.com/hupe1980/episodb/blobstore"
	"github.com/hupe1980/episodb/blobstore/minio"
	"github.com/hupe1980/episodb/blobstore/s3"
)

// Environment variables read by the CLI.
const (
	envConfig   = "EPISODB_CONFIG"
	envLogLevel = "EPISODB_LOG_LEVEL"
)

// Config is the CLI configuration file.
type Config struct {
	// DatasetsPath is the registry root. Default: episodb.DatasetsPath().
	DatasetsPath string `yaml:"datasets_path"`
	// LogLevel is one of debug, info, warn, error. Default: warn.
	LogLevel string `yaml:"log_level"`
	// LogFormat is text or json. Default: text.
	LogFormat string `yaml:"log_format"`

	Remote RemoteConfig `yaml:"remote"`
}

// RemoteConfig selects the blob store used by push and pull.
type RemoteConfig struct {
	// Type is s3, minio or local.
	Type string `yaml:"type"`

	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`

	// MinIO credentials.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`

	// Path is the root directory of a local remote.
	Path string `yaml:"path"`

	Concurrency int   `yaml:"concurrency"`
	BytesPerSec int64 `yaml:"bytes_per_sec"`
}

func defaultConfig() *Config {
	return &Config{
		LogLevel:  "warn",
		LogFormat: "text",
		Remote:    RemoteConfig{Concurrency: 4},
	}
}

// defaultConfigPath returns $EPISODB_CONFIG, else ~/.episodb/config.yaml.
func defaultConfigPath() string {
	if p := os.Getenv(envConfig); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".episodb", "config.yaml")
}

// loadConfig reads path over the defaults. A missing file is not an error
// unless required is set. Environment variables are expanded in the file and
// override its values.
func loadConfig(path string, required bool) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if p := os.Getenv(episodb.EnvDatasetsPath); p != "" {
		cfg.DatasetsPath = p
	}
	if l := os.Getenv(envLogLevel); l != "" {
		cfg.LogLevel = l
	}
	return cfg, nil
}

func (c *Config) logger() (*episodb.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		return episodb.NewTextLogger(level), nil
	case "json":
		return episodb.NewJSONLogger(level), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.LogFormat)
	}
}

func (c *Config) registry(logger *episodb.Logger) (*episodb.Registry, error) {
	root := c.DatasetsPath
	if root == "" {
		var err error
		if root, err = episodb.DatasetsPath(); err != nil {
			return nil, err
		}
	}
	return episodb.NewRegistry(root, episodb.WithLogger(logger)), nil
}

// openStore connects to the configured remote.
func (r RemoteConfig) openStore(ctx context.Context) (blobstore.BlobStore, error) {
	switch strings.ToLower(r.Type) {
	case "s3":
		if r.Bucket == "" {
			return nil, errors.New("remote.bucket is required for s3")
		}
		opts := []s3.Option{s3.WithPrefix(r.Prefix)}
		if r.Region != "" {
			opts = append(opts, s3.WithRegion(r.Region))
		}
		if r.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(r.Endpoint))
		}
		return s3.New(ctx, r.Bucket, opts...)
	case "minio":
		return minio.NewFromConfig(ctx, minio.Config{
			Endpoint:  r.Endpoint,
			AccessKey: r.AccessKey,
			SecretKey: r.SecretKey,
			Region:    r.Region,
			Secure:    r.Secure,
			Bucket:    r.Bucket,
			Prefix:    r.Prefix,
		})
	case "local":
		if r.Path == "" {
			return nil, errors.New("remote.path is required for local")
		}
		return blobstore.NewLocalStore(nil, r.Path), nil
	case "":
		return nil, errors.New("no remote configured")
	default:
		return nil, fmt.Errorf("unknown remote type %q", r.Type)
	}
}
