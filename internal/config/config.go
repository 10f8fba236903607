package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables that override config keys,
// e.g. THUMBNAILER_STORAGE_BACKEND.
const EnvPrefix = "THUMBNAILER"

const (
	BackendLocal = "local"
	BackendMinio = "minio"
)

// ErrInvalid wraps every validation failure reported by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the whole application configuration. It is built once at
// startup and only read afterwards.
type Config struct {
	Source   string  `mapstructure:"source"`   // directory to watch
	Template string  `mapstructure:"template"` // destination path template
	Exclude  string  `mapstructure:"exclude"`  // regexp matched against base names
	Verbose  bool    `mapstructure:"verbose"`
	Resize   Resize  `mapstructure:"resize"`
	Hooks    Hooks   `mapstructure:"hooks"`
	Watch    Watch   `mapstructure:"watch"`
	Storage  Storage `mapstructure:"storage"`
	Kafka    Kafka   `mapstructure:"kafka"`
	Retry    Retry   `mapstructure:"retry"`
}

// Resize holds the output size. Zero width or height means unset; Scale is
// only used when both are unset.
type Resize struct {
	Width  int     `mapstructure:"width"`
	Height int     `mapstructure:"height"`
	Scale  float64 `mapstructure:"scale"`
}

// Hooks holds paths of the pre/post processing hooks.
type Hooks struct {
	Pre  string `mapstructure:"pre"`
	Post string `mapstructure:"post"`
}

// Watch holds watch source settings.
type Watch struct {
	BatchWindow time.Duration `mapstructure:"batch_window"` // how long events are collected into one batch
}

// Storage holds configuration for the destination backend.
type Storage struct {
	Backend    string `mapstructure:"backend"` // local / minio
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// Kafka holds configuration for outcome publishing. Publishing is off when
// Brokers is empty.
type Kafka struct {
	Topic   string   `mapstructure:"topic"`
	Brokers []string `mapstructure:"brokers"`
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"width":        "resize.width",
	"height":       "resize.height",
	"scale":        "resize.scale",
	"exclude":      "exclude",
	"pre":          "hooks.pre",
	"post":         "hooks.post",
	"verbose":      "verbose",
	"batch-window": "watch.batch_window",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source", "")
	v.SetDefault("template", "")
	v.SetDefault("exclude", "")
	v.SetDefault("verbose", false)
	v.SetDefault("resize.width", 0)
	v.SetDefault("resize.height", 0)
	v.SetDefault("resize.scale", 0.25)
	v.SetDefault("hooks.pre", "")
	v.SetDefault("hooks.post", "")
	v.SetDefault("watch.batch_window", 50*time.Millisecond)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket_name", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("kafka.topic", "thumbnails")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", 500*time.Millisecond)
	v.SetDefault("retry.backoff", 2.0)
}

// BindFlags binds the command-line flags present in fs to their config keys.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	return nil
}

// Load builds the configuration from defaults, the optional config file,
// environment variables and whatever was bound or set on v, in increasing
// order of precedence.
func Load(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the values Load cannot repair.
func (c Config) Validate() error {
	switch {
	case c.Source == "":
		return fmt.Errorf("%w: source directory is required", ErrInvalid)
	case c.Template == "":
		return fmt.Errorf("%w: output template is required", ErrInvalid)
	case c.Resize.Width < 0:
		return fmt.Errorf("%w: width must not be negative", ErrInvalid)
	case c.Resize.Height < 0:
		return fmt.Errorf("%w: height must not be negative", ErrInvalid)
	case c.Resize.Scale <= 0:
		return fmt.Errorf("%w: scale must be positive", ErrInvalid)
	case c.Watch.BatchWindow <= 0:
		return fmt.Errorf("%w: batch window must be positive", ErrInvalid)
	}

	switch c.Storage.Backend {
	case BackendLocal:
	case BackendMinio:
		if c.Storage.Endpoint == "" || c.Storage.BucketName == "" {
			return fmt.Errorf("%w: minio storage needs endpoint and bucket_name", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalid, c.Storage.Backend)
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("%w: kafka topic is required when brokers are set", ErrInvalid)
	}

	return nil
}
