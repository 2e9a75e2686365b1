// Package config loads the daemon's configuration from YAML, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/roasbeef/pulljoy/internal/build"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// PULLJOY_STATE_STORE_TYPE.
const EnvPrefix = "PULLJOY"

const (
	// EnvConfigPath names a YAML config file.
	EnvConfigPath = "PULLJOY_CONFIG_PATH"

	// EnvConfigInline holds the YAML config itself.
	EnvConfigInline = "PULLJOY_CONFIG"

	// DefaultEnvFile is read, if present, before the environment is
	// consulted. Variables already set win.
	DefaultEnvFile = ".env"

	// DefaultGitHostURL is used when neither git_host_url nor
	// github_api_url is set.
	DefaultGitHostURL = "https://github.com"
)

// State store types.
const (
	StoreMemory   = "memory"
	StoreSqlite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Git authentication strategies.
const (
	GitAuthNone  = "none"
	GitAuthToken = "token"
)

// StateStoreConfig holds the settings of every store backend. Only the
// selected backend's fields are used.
type StateStoreConfig struct {
	SqlitePath     string `mapstructure:"sqlite_path"`
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password"`
	RedisDB        int    `mapstructure:"redis_db"`
	RedisKeyPrefix string `mapstructure:"redis_key_prefix"`
}

// DispatcherConfig sizes the per-pull-request event dispatcher.
type DispatcherConfig struct {
	Partitions  int `mapstructure:"partitions"`
	MailboxSize int `mapstructure:"mailbox_size"`
}

// DeliveryDedupeConfig enables skipping redelivered webhooks. It needs a
// Redis server, which may be the state store's.
type DeliveryDedupeConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// Config is the daemon configuration.
type Config struct {
	LogFormat      string `mapstructure:"log_format"`
	LogLevel       string `mapstructure:"log_level"`
	LogDir         string `mapstructure:"log_dir"`
	MaxLogFiles    int    `mapstructure:"max_log_files"`
	MaxLogFileSize int    `mapstructure:"max_log_file_size"`

	GitAuthStrategy string `mapstructure:"git_auth_strategy"`
	GitAuthToken    string `mapstructure:"git_auth_token"`
	GitPath         string `mapstructure:"git_path"`

	// GitHostURL is where repositories are cloned from and pushed to.
	// Empty means the host of GitHubAPIURL, or https://github.com.
	GitHostURL string `mapstructure:"git_host_url"`

	GitHubAccessToken   string `mapstructure:"github_access_token"`
	GitHubWebhookSecret string `mapstructure:"github_webhook_secret"`
	GitHubAPIURL        string `mapstructure:"github_api_url"`

	// BotUsername is the bot's login. Empty means ask the API.
	BotUsername string `mapstructure:"bot_username"`

	ListenAddr     string        `mapstructure:"listen_addr"`
	GRPCListenAddr string        `mapstructure:"grpc_listen_addr"`
	ShutdownWait   time.Duration `mapstructure:"shutdown_wait"`

	StateStoreType   string           `mapstructure:"state_store_type"`
	StateStoreConfig StateStoreConfig `mapstructure:"state_store_config"`

	Dispatcher     DispatcherConfig     `mapstructure:"dispatcher"`
	DeliveryDedupe DeliveryDedupeConfig `mapstructure:"delivery_dedupe"`
}

// keys lists every nested key so that environment overrides apply even
// when the key is absent from the YAML.
var keys = []string{
	"log_format", "log_level", "log_dir", "max_log_files",
	"max_log_file_size", "git_auth_strategy", "git_auth_token", "git_path",
	"git_host_url",
	"github_access_token", "github_webhook_secret", "github_api_url",
	"bot_username", "listen_addr", "grpc_listen_addr", "shutdown_wait",
	"state_store_type",
	"state_store_config.sqlite_path",
	"state_store_config.postgres_dsn",
	"state_store_config.redis_addr",
	"state_store_config.redis_password",
	"state_store_config.redis_db",
	"state_store_config.redis_key_prefix",
	"dispatcher.partitions", "dispatcher.mailbox_size",
	"delivery_dedupe.enabled", "delivery_dedupe.ttl",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_format", build.LogFormatHuman)
	v.SetDefault("log_level", "info")
	v.SetDefault("max_log_files", 3)
	v.SetDefault("max_log_file_size", 10)
	v.SetDefault("git_auth_strategy", GitAuthNone)
	v.SetDefault("git_path", "git")
	v.SetDefault("listen_addr", ":3000")
	v.SetDefault("grpc_listen_addr", "")
	v.SetDefault("shutdown_wait", 30*time.Second)
	v.SetDefault("state_store_type", StoreMemory)
	v.SetDefault("state_store_config.sqlite_path", "pulljoy.db")
	v.SetDefault("state_store_config.redis_addr", "localhost:6379")
	v.SetDefault("dispatcher.partitions", 8)
	v.SetDefault("dispatcher.mailbox_size", 64)
	v.SetDefault("delivery_dedupe.ttl", 24*time.Hour)
}

// LoadOptions says where configuration comes from.
type LoadOptions struct {
	// ConfigPath is a YAML file. It overrides PULLJOY_CONFIG_PATH.
	ConfigPath string

	// EnvFile is a dotenv file. Empty means DefaultEnvFile. A missing
	// file is not an error.
	EnvFile string
}

// Load reads the configuration and validates it. Sources in increasing
// priority: defaults, YAML (file or inline), environment.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	path := opts.ConfigPath
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	switch inline := os.Getenv(EnvConfigInline); {
	case path != "":
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

	case inline != "":
		if err := v.ReadConfig(strings.NewReader(inline)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvConfigInline,
				err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadEnvFile exports the file's variables that are not already set.
func loadEnvFile(path string) error {
	envMap, err := godotenv.Read(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil

	case err != nil:
		return fmt.Errorf("read %s: %w", path, err)
	}

	for k, val := range envMap {
		if _, exists := os.LookupEnv(k); !exists {
			if err := os.Setenv(k, val); err != nil {
				return err
			}
		}
	}

	return nil
}

// Validate checks enums and the fields each choice requires.
func (c *Config) Validate() error {
	var errs []error

	switch c.LogFormat {
	case build.LogFormatHuman, build.LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log_format must be %q or %q",
			build.LogFormatHuman, build.LogFormatJSON))
	}

	if _, err := build.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	switch c.GitAuthStrategy {
	case GitAuthNone:
	case GitAuthToken:
		if c.GitAuthToken == "" {
			errs = append(errs, errors.New("git_auth_token is "+
				"required when git_auth_strategy is token"))
		}
	default:
		errs = append(errs, fmt.Errorf("git_auth_strategy must be "+
			"%q or %q", GitAuthNone, GitAuthToken))
	}

	for _, key := range []struct{ name, value string }{
		{"git_host_url", c.GitHostURL},
		{"github_api_url", c.GitHubAPIURL},
	} {
		if key.value == "" {
			continue
		}
		u, err := url.Parse(key.value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute "+
				"URL, got %q", key.name, key.value))
		}
	}

	if c.GitHubAccessToken == "" {
		errs = append(errs, errors.New("github_access_token is "+
			"required"))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}

	store := c.StateStoreConfig
	switch c.StateStoreType {
	case StoreMemory:
	case StoreSqlite:
		if store.SqlitePath == "" {
			errs = append(errs, errors.New("state_store_config."+
				"sqlite_path is required"))
		}
	case StorePostgres:
		if store.PostgresDSN == "" {
			errs = append(errs, errors.New("state_store_config."+
				"postgres_dsn is required"))
		}
	case StoreRedis:
		if store.RedisAddr == "" {
			errs = append(errs, errors.New("state_store_config."+
				"redis_addr is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown state_store_type %q",
			c.StateStoreType))
	}

	if c.DeliveryDedupe.Enabled && store.RedisAddr == "" {
		errs = append(errs, errors.New("delivery_dedupe needs "+
			"state_store_config.redis_addr"))
	}

	if c.Dispatcher.Partitions < 1 || c.Dispatcher.MailboxSize < 1 {
		errs = append(errs, errors.New("dispatcher partitions and "+
			"mailbox_size must be positive"))
	}

	return errors.Join(errs...)
}

// MirrorHostURL returns the base URL git clones from and pushes to. An
// Enterprise API URL such as https://ghe.example.com/api/v3/ yields
// https://ghe.example.com.
func (c *Config) MirrorHostURL() string {
	if c.GitHostURL != "" {
		return strings.TrimSuffix(c.GitHostURL, "/")
	}

	if c.GitHubAPIURL != "" {
		u, err := url.Parse(c.GitHubAPIURL)
		if err == nil && u.Host != "" {
			host := strings.TrimPrefix(u.Host, "api.")
			return u.Scheme + "://" + host
		}
	}

	return DefaultGitHostURL
}

// LogConfig returns the logging part of the configuration.
func (c *Config) LogConfig() build.LogConfig {
	return build.LogConfig{
		Format:        c.LogFormat,
		Level:         c.LogLevel,
		Dir:           c.LogDir,
		MaxFiles:      c.MaxLogFiles,
		MaxFileSizeMB: c.MaxLogFileSize,
	}
}
