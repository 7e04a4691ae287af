package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"invitely/pkg/errors"
	"invitely/pkg/storage"
)

// EnvPrefix prefixes every environment override, e.g. INVITELY_DATA_PATH
const EnvPrefix = "INVITELY"

// Storage backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds application configuration
type Config struct {
	DataPath          string `json:"dataPath" mapstructure:"DATA_PATH"`
	StorageBackend    string `json:"storageBackend" mapstructure:"STORAGE_BACKEND"`
	StorageKey        string `json:"storageKey" mapstructure:"STORAGE_KEY"`
	StorageQuotaBytes int64  `json:"storageQuotaBytes" mapstructure:"STORAGE_QUOTA_BYTES"`

	RedisAddr     string `json:"redisAddr" mapstructure:"REDIS_ADDR"`
	RedisPassword string `json:"redisPassword,omitempty" mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `json:"redisDb" mapstructure:"REDIS_DB"`

	APIBaseURL    string `json:"apiBaseUrl" mapstructure:"API_BASE_URL"`
	ViewerBaseURL string `json:"viewerBaseUrl" mapstructure:"VIEWER_BASE_URL"`
	ListenAddr    string `json:"listenAddr" mapstructure:"LISTEN_ADDR"`
	ShareCommand  string `json:"shareCommand,omitempty" mapstructure:"SHARE_COMMAND"`

	S3Endpoint  string `json:"s3Endpoint,omitempty" mapstructure:"S3_ENDPOINT"`
	S3Region    string `json:"s3Region,omitempty" mapstructure:"S3_REGION"`
	S3Bucket    string `json:"s3Bucket,omitempty" mapstructure:"S3_BUCKET"`
	S3AccessKey string `json:"s3AccessKey,omitempty" mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `json:"s3SecretKey,omitempty" mapstructure:"S3_SECRET_KEY"`
	S3UseSSL    bool   `json:"s3UseSsl" mapstructure:"S3_USE_SSL"`
	S3PublicURL string `json:"s3PublicUrl,omitempty" mapstructure:"S3_PUBLIC_URL"`
}

// Default returns the configuration used when nothing is configured
func Default() *Config {
	return &Config{
		DataPath:          GetDefaultDataPath(),
		StorageBackend:    BackendFile,
		StorageKey:        storage.ProjectKey,
		StorageQuotaBytes: 5 << 20,
		RedisAddr:         "localhost:6379",
		ViewerBaseURL:     "http://localhost:8080/",
		ListenAddr:        "127.0.0.1:8080",
	}
}

// GetDefaultDataPath returns the default directory for local project data
func GetDefaultDataPath() string {
	currentUser, err := user.Current()
	if err != nil {
		return "./data"
	}

	defaultPath := filepath.Join(currentUser.HomeDir, "Documents", "Invitely")
	if err := os.MkdirAll(defaultPath, 0755); err != nil {
		return "./data"
	}
	return defaultPath
}

// GetConfigFilePath returns the path where the config file should be stored
func GetConfigFilePath() string {
	currentUser, err := user.Current()
	if err != nil {
		return "./config.json"
	}

	configPath := filepath.Join(currentUser.HomeDir, ".config", "invitely")
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return "./config.json"
	}
	return filepath.Join(configPath, "config")
}

// Load reads the config file (defaults when it does not exist) and applies
// environment overrides, including those from a local .env file.
func Load() (*Config, error) {
	return LoadFrom(GetConfigFilePath())
}

// LoadFrom is Load with an explicit config file path
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(configFile); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.ErrConfigLoadFailed.WithCause(err).WithContext("path", configFile)
		}
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, errors.ErrConfigLoadFailed.WithCause(err).WithContext("path", ".env")
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataPath, 0755); err != nil {
		return nil, errors.ErrConfigLoadFailed.WithCause(err).WithContext("dataPath", cfg.DataPath)
	}
	return cfg, nil
}

// applyEnv overlays INVITELY_* environment variables on the loaded values
func (c *Config) applyEnv() error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	for key, value := range c.settings() {
		v.SetDefault(key, value)
	}

	if err := v.Unmarshal(c); err != nil {
		return errors.ErrConfigLoadFailed.WithCause(fmt.Errorf("unable to decode config: %w", err))
	}
	return nil
}

func (c *Config) settings() map[string]interface{} {
	return map[string]interface{}{
		"DATA_PATH":           c.DataPath,
		"STORAGE_BACKEND":     c.StorageBackend,
		"STORAGE_KEY":         c.StorageKey,
		"STORAGE_QUOTA_BYTES": c.StorageQuotaBytes,
		"REDIS_ADDR":          c.RedisAddr,
		"REDIS_PASSWORD":      c.RedisPassword,
		"REDIS_DB":            c.RedisDB,
		"API_BASE_URL":        c.APIBaseURL,
		"VIEWER_BASE_URL":     c.ViewerBaseURL,
		"LISTEN_ADDR":         c.ListenAddr,
		"SHARE_COMMAND":       c.ShareCommand,
		"S3_ENDPOINT":         c.S3Endpoint,
		"S3_REGION":           c.S3Region,
		"S3_BUCKET":           c.S3Bucket,
		"S3_ACCESS_KEY":       c.S3AccessKey,
		"S3_SECRET_KEY":       c.S3SecretKey,
		"S3_USE_SSL":          c.S3UseSSL,
		"S3_PUBLIC_URL":       c.S3PublicURL,
	}
}

// Validate checks values that cannot be repaired with defaults
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendFile, BackendSQLite, BackendRedis, BackendMemory:
	default:
		return errors.ErrConfigLoadFailed.
			WithContext("storageBackend", c.StorageBackend).
			WithUserMessage("Unknown storage backend " + c.StorageBackend)
	}
	if strings.TrimSpace(c.StorageKey) == "" {
		c.StorageKey = storage.ProjectKey
	}
	if c.StorageQuotaBytes < 0 {
		c.StorageQuotaBytes = 0
	}
	return nil
}

// ObjectStoreEnabled reports whether image offloading is configured
func (c *Config) ObjectStoreEnabled() bool {
	return c.S3Endpoint != "" && c.S3Bucket != ""
}

// Save saves the configuration to file
func (c *Config) Save() error {
	return c.SaveTo(GetConfigFilePath())
}

// SaveTo writes the configuration to configFile
func (c *Config) SaveTo(configFile string) error {
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configFile, data, 0600)
}

// String renders the configuration with secrets masked
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  DataPath: %s\n", c.DataPath)
	fmt.Fprintf(&sb, "  StorageBackend: %s\n", c.StorageBackend)
	fmt.Fprintf(&sb, "  StorageKey: %s\n", c.StorageKey)
	fmt.Fprintf(&sb, "  StorageQuotaBytes: %d\n", c.StorageQuotaBytes)
	fmt.Fprintf(&sb, "  RedisAddr: %s\n", c.RedisAddr)
	fmt.Fprintf(&sb, "  RedisPassword: %s\n", mask(c.RedisPassword))
	fmt.Fprintf(&sb, "  RedisDB: %d\n", c.RedisDB)
	fmt.Fprintf(&sb, "  APIBaseURL: %s\n", c.APIBaseURL)
	fmt.Fprintf(&sb, "  ViewerBaseURL: %s\n", c.ViewerBaseURL)
	fmt.Fprintf(&sb, "  ListenAddr: %s\n", c.ListenAddr)
	fmt.Fprintf(&sb, "  S3Endpoint: %s\n", c.S3Endpoint)
	fmt.Fprintf(&sb, "  S3Bucket: %s\n", c.S3Bucket)
	fmt.Fprintf(&sb, "  S3AccessKey: %s\n", mask(c.S3AccessKey))
	fmt.Fprintf(&sb, "  S3SecretKey: %s\n", mask(c.S3SecretKey))
	fmt.Fprintf(&sb, "  S3UseSSL: %v\n", c.S3UseSSL)
	return sb.String()
}

func mask(secret string) string {
	if secret == "" {
		return "(empty)"
	}
	return "********"
}
