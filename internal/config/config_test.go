package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// isolate clears every variable Load reads and points the env file at an
// empty temp dir.
func isolate(t *testing.T) LoadOptions {
	t.Helper()

	for _, k := range append(keys, "config_path", "config") {
		t.Setenv(envName(k), "")
		os.Unsetenv(envName(k))
	}

	return LoadOptions{EnvFile: filepath.Join(t.TempDir(), ".env")}
}

func envName(key string) string {
	name := []byte(EnvPrefix + "_" + key)
	for i, c := range name {
		switch {
		case c == '.':
			name[i] = '_'
		case c >= 'a' && c <= 'z':
			name[i] = c - 'a' + 'A'
		}
	}

	return string(name)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadDefaults(t *testing.T) {
	opts := isolate(t)
	t.Setenv("PULLJOY_GITHUB_ACCESS_TOKEN", "ghp_x")

	cfg, err := Load(opts)
	require.NoError(t, err)

	require.Equal(t, "human", cfg.LogFormat)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, StoreMemory, cfg.StateStoreType)
	require.Equal(t, GitAuthNone, cfg.GitAuthStrategy)
	require.Equal(t, ":3000", cfg.ListenAddr)
	require.Equal(t, 8, cfg.Dispatcher.Partitions)
	require.Equal(t, 30*time.Second, cfg.ShutdownWait)
	require.Equal(t, "ghp_x", cfg.GitHubAccessToken)
}

func TestLoadFileWithEnvOverrides(t *testing.T) {
	opts := isolate(t)
	opts.ConfigPath = writeFile(t, "pulljoy.yaml", `
log_format: json
github_access_token: from-file
state_store_type: sqlite
state_store_config:
  sqlite_path: /var/lib/pulljoy/state.db
  redis_db: 2
dispatcher:
  partitions: 4
`)
	t.Setenv("PULLJOY_STATE_STORE_CONFIG_SQLITE_PATH", "/tmp/override.db")
	t.Setenv("PULLJOY_LOG_LEVEL", "debug")

	cfg, err := Load(opts)
	require.NoError(t, err)

	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "from-file", cfg.GitHubAccessToken)
	require.Equal(t, StoreSqlite, cfg.StateStoreType)
	require.Equal(t, "/tmp/override.db", cfg.StateStoreConfig.SqlitePath)
	require.Equal(t, 2, cfg.StateStoreConfig.RedisDB)
	require.Equal(t, 4, cfg.Dispatcher.Partitions)
	require.Equal(t, 64, cfg.Dispatcher.MailboxSize)
}

func TestLoadInline(t *testing.T) {
	opts := isolate(t)
	t.Setenv(EnvConfigInline, "github_access_token: inline\n"+
		"bot_username: pulljoy-bot\n")

	cfg, err := Load(opts)
	require.NoError(t, err)
	require.Equal(t, "inline", cfg.GitHubAccessToken)
	require.Equal(t, "pulljoy-bot", cfg.BotUsername)
}

func TestLoadEnvFile(t *testing.T) {
	opts := isolate(t)
	opts.EnvFile = writeFile(t, ".env",
		"PULLJOY_GITHUB_ACCESS_TOKEN=from-dotenv\n"+
			"PULLJOY_BOT_USERNAME=from-dotenv\n")
	t.Setenv("PULLJOY_BOT_USERNAME", "from-env")

	cfg, err := Load(opts)
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.GitHubAccessToken)
	require.Equal(t, "from-env", cfg.BotUsername)
}

func TestLoadMissingFile(t *testing.T) {
	opts := isolate(t)
	opts.ConfigPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Load(opts)
	require.Error(t, err)
}

func validConfig() Config {
	return Config{
		LogFormat:         "human",
		LogLevel:          "info",
		GitAuthStrategy:   GitAuthNone,
		GitHubAccessToken: "ghp_x",
		ListenAddr:        ":3000",
		StateStoreType:    StoreMemory,
		Dispatcher: DispatcherConfig{
			Partitions: 1, MailboxSize: 1,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:   "bad log format",
			mutate: func(c *Config) { c.LogFormat = "xml" },
			errMsg: "log_format",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.LogLevel = "loud" },
			errMsg: "log_level",
		},
		{
			name: "token auth without token",
			mutate: func(c *Config) {
				c.GitAuthStrategy = GitAuthToken
			},
			errMsg: "git_auth_token",
		},
		{
			name: "token auth with token",
			mutate: func(c *Config) {
				c.GitAuthStrategy = GitAuthToken
				c.GitAuthToken = "ghp_y"
			},
		},
		{
			name:   "unknown auth strategy",
			mutate: func(c *Config) { c.GitAuthStrategy = "ssh" },
			errMsg: "git_auth_strategy",
		},
		{
			name:   "relative git host url",
			mutate: func(c *Config) { c.GitHostURL = "ghe.local" },
			errMsg: "git_host_url",
		},
		{
			name: "enterprise urls",
			mutate: func(c *Config) {
				c.GitHostURL = "https://ghe.example.com"
				c.GitHubAPIURL = "https://ghe.example.com/api/v3/"
			},
		},
		{
			name:   "missing access token",
			mutate: func(c *Config) { c.GitHubAccessToken = "" },
			errMsg: "github_access_token",
		},
		{
			name:   "unknown store",
			mutate: func(c *Config) { c.StateStoreType = "mongo" },
			errMsg: "state_store_type",
		},
		{
			name: "postgres without dsn",
			mutate: func(c *Config) {
				c.StateStoreType = StorePostgres
			},
			errMsg: "postgres_dsn",
		},
		{
			name: "redis store",
			mutate: func(c *Config) {
				c.StateStoreType = StoreRedis
				c.StateStoreConfig.RedisAddr = "localhost:6379"
			},
		},
		{
			name: "dedupe without redis",
			mutate: func(c *Config) {
				c.DeliveryDedupe.Enabled = true
			},
			errMsg: "delivery_dedupe",
		},
		{
			name: "zero partitions",
			mutate: func(c *Config) {
				c.Dispatcher.Partitions = 0
			},
			errMsg: "dispatcher",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.errMsg)
		})
	}
}

// TestMirrorHostURL checks that clone and push URLs follow the API host
// unless a git host is configured.
func TestMirrorHostURL(t *testing.T) {
	tests := []struct {
		name    string
		gitHost string
		apiURL  string
		want    string
	}{
		{
			name: "defaults",
			want: DefaultGitHostURL,
		},
		{
			name:   "public api",
			apiURL: "https://api.github.com/",
			want:   "https://github.com",
		},
		{
			name:   "enterprise api",
			apiURL: "https://ghe.example.com/api/v3/",
			want:   "https://ghe.example.com",
		},
		{
			name:    "explicit git host wins",
			gitHost: "https://git.example.com/",
			apiURL:  "https://ghe.example.com/api/v3/",
			want:    "https://git.example.com",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.GitHostURL = tc.gitHost
			cfg.GitHubAPIURL = tc.apiURL

			require.Equal(t, tc.want, cfg.MirrorHostURL())
		})
	}
}

func TestLoadGitHostFromEnv(t *testing.T) {
	opts := isolate(t)
	t.Setenv("PULLJOY_GITHUB_ACCESS_TOKEN", "ghp_x")
	t.Setenv("PULLJOY_GITHUB_API_URL", "https://ghe.example.com/api/v3/")

	cfg, err := Load(opts)
	require.NoError(t, err)
	require.Empty(t, cfg.GitHostURL)
	require.Equal(t, "https://ghe.example.com", cfg.MirrorHostURL())

	t.Setenv("PULLJOY_GIT_HOST_URL", "https://git.example.com")
	cfg, err = Load(opts)
	require.NoError(t, err)
	require.Equal(t, "https://git.example.com", cfg.MirrorHostURL())
}

func TestLogConfig(t *testing.T) {
	cfg := validConfig()
	cfg.LogDir = "/var/log/pulljoy"
	cfg.MaxLogFiles = 5
	cfg.MaxLogFileSize = 20

	lc := cfg.LogConfig()
	require.Equal(t, "/var/log/pulljoy", lc.Dir)
	require.Equal(t, 5, lc.MaxFiles)
	require.Equal(t, 20, lc.MaxFileSizeMB)
}
