package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "autotask.yaml"

type SourceKind string

const (
	SourceSample   SourceKind = "sample"
	SourceFile     SourceKind = "file"
	SourceRedis    SourceKind = "redis"
	SourcePostgres SourceKind = "postgres"
	SourceS3       SourceKind = "s3"
)

var ErrUnknownSource = errors.New("unsupported source kind")

func SourceKinds() []SourceKind {
	return []SourceKind{SourceSample, SourceFile, SourceRedis, SourcePostgres, SourceS3}
}

func ParseSourceKind(raw string) (SourceKind, error) {
	kind := SourceKind(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range SourceKinds() {
		if kind == known {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w %q (want one of sample, file, redis, postgres, s3)", ErrUnknownSource, raw)
}

type Config struct {
	Source SourceConfig `yaml:"source"`
	Server ServerConfig `yaml:"server"`
	NATS   NATSConfig   `yaml:"nats"`
	Log    LogConfig    `yaml:"log"`
	Events EventsConfig `yaml:"events"`
	Cache  CacheConfig  `yaml:"cache"`
}

type SourceConfig struct {
	Kind     SourceKind     `yaml:"kind"`
	Path     string         `yaml:"path"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	S3       S3Config       `yaml:"s3"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Key       string `yaml:"key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type EventsConfig struct {
	Path    string `yaml:"path"`
	Queries bool   `yaml:"queries"`
}

type CacheConfig struct {
	Size int `yaml:"size"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		NATS:   NATSConfig{Subject: "autotask.catalog.changed"},
		Log:    LogConfig{Level: "info"},
		Cache:  CacheConfig{Size: 1024},
		Source: SourceConfig{
			Redis: RedisConfig{Prefix: "autotask:catalog"},
			S3:    S3Config{Region: "us-east-1", Key: "catalog.yaml"},
		},
	}
}

type LoadOptions struct {
	Path string
	// Required makes a missing config file an error instead of falling back
	// to defaults.
	Required bool
	// DotEnv lists .env files to load first. Missing files are ignored.
	DotEnv []string
	Getenv func(string) string
}

// Load resolves configuration from defaults, the YAML file, and then the
// environment, each layer overriding the previous one.
func Load(opts LoadOptions) (Config, error) {
	for _, path := range opts.DotEnv {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("cannot load env file %s: %w", path, err)
		}
	}

	cfg := Default()
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = DefaultPath
	}
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(strings.NewReader(string(content)))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("cannot parse config file at %s: %w", path, err)
		}
	case os.IsNotExist(err) && !opts.Required:
	default:
		return Config{}, fmt.Errorf("cannot read config file at %s: %w", path, err)
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from AUTOTASK_* variables and LOG_LEVEL.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	setString := func(target *string, name string) {
		if value := strings.TrimSpace(getenv(name)); value != "" {
			*target = value
		}
	}

	if raw := getenv("AUTOTASK_SOURCE"); strings.TrimSpace(raw) != "" {
		kind, err := ParseSourceKind(raw)
		if err != nil {
			return fmt.Errorf("AUTOTASK_SOURCE: %w", err)
		}
		c.Source.Kind = kind
	}
	setString(&c.Source.Path, "AUTOTASK_CATALOG")
	setString(&c.Source.Redis.Addr, "AUTOTASK_REDIS_ADDR")
	setString(&c.Source.Redis.Password, "AUTOTASK_REDIS_PASSWORD")
	setString(&c.Source.Redis.Prefix, "AUTOTASK_REDIS_PREFIX")
	setString(&c.Source.Postgres.DSN, "AUTOTASK_POSTGRES_DSN")
	setString(&c.Source.S3.Endpoint, "AUTOTASK_S3_ENDPOINT")
	setString(&c.Source.S3.Region, "AUTOTASK_S3_REGION")
	setString(&c.Source.S3.AccessKey, "AUTOTASK_S3_ACCESS_KEY")
	setString(&c.Source.S3.SecretKey, "AUTOTASK_S3_SECRET_KEY")
	setString(&c.Source.S3.Bucket, "AUTOTASK_S3_BUCKET")
	setString(&c.Source.S3.Key, "AUTOTASK_S3_KEY")
	setString(&c.Server.Addr, "AUTOTASK_ADDR")
	setString(&c.Server.StaticDir, "AUTOTASK_STATIC_DIR")
	setString(&c.NATS.URL, "AUTOTASK_NATS_URL")
	setString(&c.Events.Path, "AUTOTASK_EVENTS_PATH")
	setString(&c.Log.Level, "LOG_LEVEL")

	if raw := strings.TrimSpace(getenv("AUTOTASK_REDIS_DB")); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("AUTOTASK_REDIS_DB: %w", err)
		}
		c.Source.Redis.DB = db
	}
	if raw := strings.TrimSpace(getenv("AUTOTASK_S3_USE_SSL")); raw != "" {
		useSSL, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("AUTOTASK_S3_USE_SSL: %w", err)
		}
		c.Source.S3.UseSSL = useSSL
	}
	return nil
}

func (c *Config) normalize() error {
	switch {
	case strings.TrimSpace(string(c.Source.Kind)) != "":
		kind, err := ParseSourceKind(string(c.Source.Kind))
		if err != nil {
			return fmt.Errorf("source.kind: %w", err)
		}
		c.Source.Kind = kind
	case strings.TrimSpace(c.Source.Path) != "":
		c.Source.Kind = SourceFile
	default:
		c.Source.Kind = SourceSample
	}
	if c.Cache.Size <= 0 {
		c.Cache.Size = Default().Cache.Size
	}
	return nil
}

// Validate checks that the selected source kind has the settings it needs.
func (c Config) Validate() error {
	return c.Source.Validate()
}

func (s SourceConfig) Validate() error {
	switch s.Kind {
	case SourceSample:
		return nil
	case SourceFile:
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("source.path is required for the file source")
		}
	case SourceRedis:
		if strings.TrimSpace(s.Redis.Addr) == "" {
			return fmt.Errorf("source.redis.addr is required for the redis source")
		}
	case SourcePostgres:
		if strings.TrimSpace(s.Postgres.DSN) == "" {
			return fmt.Errorf("source.postgres.dsn is required for the postgres source")
		}
	case SourceS3:
		var missing []string
		if strings.TrimSpace(s.S3.Endpoint) == "" {
			missing = append(missing, "endpoint")
		}
		if strings.TrimSpace(s.S3.Bucket) == "" {
			missing = append(missing, "bucket")
		}
		if strings.TrimSpace(s.S3.AccessKey) == "" || strings.TrimSpace(s.S3.SecretKey) == "" {
			missing = append(missing, "access_key/secret_key")
		}
		if len(missing) > 0 {
			return fmt.Errorf("source.s3 requires %s", strings.Join(missing, ", "))
		}
	default:
		_, err := ParseSourceKind(string(s.Kind))
		return err
	}
	return nil
}
