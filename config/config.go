// Package config holds the settings of the zknotes binaries. Values come from
// command line flags, ZKNOTES_ prefixed environment variables and an
// optional config file, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ZKNOTES"

const (
	ConfigFileKey   = "config"
	LogLevelKey     = "log-level"
	LogOutputKey    = "log-output"
	DataDirKey      = "data-dir"
	ArtifactsDirKey = "artifacts-dir"
	ArtifactsURLKey = "artifacts-url"
	SetupSeedKey    = "setup-seed"
	HostKey         = "host"
	PortKey         = "port"
	LedgerURLKey    = "ledger-url"
	PollIntervalKey = "poll-interval"
)

const (
	// DefaultLedgerPort is the JSON-RPC port of the reference ledger node.
	DefaultLedgerPort = 8545
	// DefaultIndexerPort is the HTTP port of the indexer API.
	DefaultIndexerPort = 8080
)

// Config is the union of the settings of every command. Each command only
// reads the fields it needs.
type Config struct {
	ConfigFile   string        `mapstructure:"config"`
	LogLevel     string        `mapstructure:"log-level"`
	LogOutput    string        `mapstructure:"log-output"`
	DataDir      string        `mapstructure:"data-dir"`
	ArtifactsDir string        `mapstructure:"artifacts-dir"`
	ArtifactsURL string        `mapstructure:"artifacts-url"`
	SetupSeed    string        `mapstructure:"setup-seed"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	LedgerURLs   []string      `mapstructure:"ledger-url"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
}

// AddGlobalFlags registers the flags shared by every command.
func AddGlobalFlags(flags *pflag.FlagSet) {
	flags.String(ConfigFileKey, "", "config file (yaml, toml or json)")
	flags.String(LogLevelKey, "info", "log level (debug, info, warn, error)")
	flags.String(LogOutputKey, "stdout", "log output (stdout, stderr or a file path)")
	flags.String(DataDirKey, defaultDataDir(), "directory of the persistent databases")
	flags.String(ArtifactsDirKey, "", "circuit artifacts cache (defaults to ZKNOTES_ARTIFACTS_DIR or ~/.cache/zknotes-artifacts)")
	flags.String(ArtifactsURLKey, "", "base URL of a published artifacts dir to download keys from before running the setup")
	flags.String(SetupSeedKey, DefaultSetupSeed, "label of the insecure deterministic setup")
}

// AddServerFlags registers the listen address flags with the given default
// port.
func AddServerFlags(flags *pflag.FlagSet, port int) {
	flags.String(HostKey, "0.0.0.0", "listen host")
	flags.Int(PortKey, port, "listen port")
}

// AddIndexerFlags registers the flags of the indexer command.
func AddIndexerFlags(flags *pflag.FlagSet) {
	flags.StringSlice(LedgerURLKey, []string{fmt.Sprintf("http://127.0.0.1:%d", DefaultLedgerPort)}, "ledger node JSON-RPC endpoints")
	flags.Duration(PollIntervalKey, 5*time.Second, "interval between two ledger polls")
}

// Load resolves the configuration from flags, environment and config file.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	if file := v.GetString(ConfigFileKey); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return cfg, nil
}

// DatabaseDir returns the directory of the named database, creating it.
func (c *Config) DatabaseDir(name string) (string, error) {
	dir := filepath.Join(c.DataDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "zknotes")
	}
	return filepath.Join(home, ".zknotes")
}
