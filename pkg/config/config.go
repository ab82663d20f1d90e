package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pario-ai/costdesk/pkg/logging"
	"github.com/pario-ai/costdesk/pkg/models"
	"gopkg.in/yaml.v3"
)

// DefaultEndpoint is the cost-estimation chat endpoint.
const DefaultEndpoint = "https://jvopmaa40h.execute-api.us-east-1.amazonaws.com/prod/chatbot"

// Config holds all costdesk configuration.
type Config struct {
	DBPath   string                `yaml:"db_path"`
	Logging  logging.Config        `yaml:"logging"`
	Chat     ChatConfig            `yaml:"chat"`
	Quota    QuotaConfig           `yaml:"quota"`
	Store    StoreConfig           `yaml:"store"`
	Upload   UploadConfig          `yaml:"upload"`
	Serve    ServeConfig           `yaml:"serve"`
	Activity models.ActivityConfig `yaml:"activity"`
}

// ChatConfig points at the remote estimation endpoint.
type ChatConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// QuotaConfig sets the per-tier query limits.
type QuotaConfig struct {
	FreeLimit    int `yaml:"free_limit"`
	PremiumLimit int `yaml:"premium_limit"`
}

// Limits returns the tier → limit table.
func (q QuotaConfig) Limits() map[models.Tier]int {
	return map[models.Tier]int{
		models.TierFree:    q.FreeLimit,
		models.TierPremium: q.PremiumLimit,
	}
}

// StoreConfig defines the object store bucket and credentials.
// Empty credentials fall back to the AWS default chain.
type StoreConfig struct {
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	SessionToken    string        `yaml:"session_token"`
	URLExpiry       time.Duration `yaml:"url_expiry"`
}

// UploadConfig controls validation and the poll loop.
type UploadConfig struct {
	MaxBytes          int64         `yaml:"max_bytes"`
	AllowedExtensions []string      `yaml:"allowed_extensions"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ProcessingDelay   time.Duration `yaml:"processing_delay"`
	ReadyMessageDelay time.Duration `yaml:"ready_message_delay"`
}

// ServeConfig controls the local HTTP front.
type ServeConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath:  "costdesk.db",
		Logging: logging.DefaultConfig(),
		Chat: ChatConfig{
			Endpoint: DefaultEndpoint,
			Timeout:  60 * time.Second,
		},
		Quota: QuotaConfig{
			FreeLimit:    6,
			PremiumLimit: 20,
		},
		Store: StoreConfig{
			Bucket:    "price-inventory",
			Region:    "us-east-1",
			URLExpiry: 15 * time.Minute,
		},
		Upload: UploadConfig{
			MaxBytes:          5 << 20,
			AllowedExtensions: []string{"xls", "xlsx", "xlsm", "csv"},
			PollInterval:      5 * time.Second,
			ProcessingDelay:   time.Second,
			ReadyMessageDelay: 10 * time.Second,
		},
		Serve: ServeConfig{
			Listen: "127.0.0.1:8080",
		},
		Activity: models.ActivityConfig{
			Enabled:        false,
			DBPath:         "costdesk-activity.db",
			RetentionDays:  30,
			MaxSubjectSize: 512,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Chat.Endpoint == "" {
		errs = append(errs, errors.New("chat.endpoint is required"))
	}
	if c.Quota.FreeLimit <= 0 || c.Quota.PremiumLimit <= 0 {
		errs = append(errs, errors.New("quota limits must be positive"))
	}
	if c.Store.Bucket == "" {
		errs = append(errs, errors.New("store.bucket is required"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("upload.allowed_extensions must not be empty"))
	}
	if c.Upload.PollInterval <= 0 {
		errs = append(errs, errors.New("upload.poll_interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
