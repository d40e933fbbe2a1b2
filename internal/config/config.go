package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/edvin/jenkins-maintenance/internal/jenkins"
	"github.com/edvin/jenkins-maintenance/internal/ledger"
)

// ErrInvalid wraps every configuration problem. Nothing talks to Jenkins
// until the configuration validates.
var ErrInvalid = errors.New("invalid configuration")

var validate = validator.New()

type Config struct {
	URL         string        `yaml:"url" validate:"required,url"`
	Username    string        `yaml:"username" validate:"required"`
	Token       string        `yaml:"token" validate:"required"`
	LogLevel    string        `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	HTTPTimeout time.Duration `yaml:"http_timeout" validate:"gte=0"`
	// S3 is only used for s3:// ledger locations.
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint" validate:"omitempty,url"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key" validate:"required_with=AccessKey"`
	PathStyle bool   `yaml:"path_style"`
}

// Overrides are values given on the command line. Empty fields leave the
// loaded value alone.
type Overrides struct {
	URL      string
	Username string
	Token    string
	LogLevel string
}

// Load builds the configuration from defaults, the optional YAML file at
// path and the environment, in increasing priority.
func Load(path string) (*Config, error) {
	cfg := &Config{
		LogLevel:    "info",
		HTTPTimeout: 30 * time.Second,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read config file: %w", ErrInvalid, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && len(bytes.TrimSpace(data)) > 0 {
			return nil, fmt.Errorf("%w: parse config file %s: %w", ErrInvalid, path, err)
		}
	}

	cfg.URL = getEnv("JENKINS_URL", cfg.URL)
	cfg.Username = getEnv("JENKINS_USERNAME", cfg.Username)
	cfg.Token = getEnv("JENKINS_TOKEN", cfg.Token)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.S3.Endpoint = getEnv("LEDGER_S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.Region = getEnv("LEDGER_S3_REGION", cfg.S3.Region)
	cfg.S3.AccessKey = getEnv("LEDGER_S3_ACCESS_KEY", cfg.S3.AccessKey)
	cfg.S3.SecretKey = getEnv("LEDGER_S3_SECRET_KEY", cfg.S3.SecretKey)

	if v := os.Getenv("JENKINS_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: JENKINS_HTTP_TIMEOUT: %w", ErrInvalid, err)
		}
		cfg.HTTPTimeout = d
	}
	if v := os.Getenv("LEDGER_S3_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: LEDGER_S3_PATH_STYLE: %w", ErrInvalid, err)
		}
		cfg.S3.PathStyle = b
	}

	return cfg, nil
}

// Apply lays command-line values over the loaded configuration.
func (c *Config) Apply(o Overrides) {
	if o.URL != "" {
		c.URL = o.URL
	}
	if o.Username != "" {
		c.Username = o.Username
	}
	if o.Token != "" {
		c.Token = o.Token
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
}

// Validate checks that Jenkins can be reached with the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// JenkinsSettings returns the client settings.
func (c *Config) JenkinsSettings() jenkins.Settings {
	return jenkins.Settings{
		URL:      c.URL,
		Username: c.Username,
		Token:    c.Token,
		Timeout:  c.HTTPTimeout,
	}
}

func (c *Config) LedgerS3() ledger.S3Settings {
	return ledger.S3Settings{
		Endpoint:  c.S3.Endpoint,
		Region:    c.S3.Region,
		AccessKey: c.S3.AccessKey,
		SecretKey: c.S3.SecretKey,
		PathStyle: c.S3.PathStyle,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
