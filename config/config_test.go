package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/spf13/pflag"
)

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddGlobalFlags(flags)
	AddServerFlags(flags, DefaultIndexerPort)
	AddIndexerFlags(flags)
	return flags
}

func TestLoadDefaults(t *testing.T) {
	c := qt.New(t)
	cfg, err := Load(testFlags())
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.LogLevel, qt.Equals, "info")
	c.Assert(cfg.Port, qt.Equals, DefaultIndexerPort)
	c.Assert(cfg.SetupSeed, qt.Equals, DefaultSetupSeed)
	c.Assert(cfg.PollInterval, qt.Equals, 5*time.Second)
	c.Assert(cfg.LedgerURLs, qt.DeepEquals, []string{"http://127.0.0.1:8545"})
}

func TestLoadPrecedence(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "zknotes.yaml")
	c.Assert(os.WriteFile(file, []byte("log-level: warn\nport: 9000\npoll-interval: 1m\n"), 0o600), qt.IsNil)
	t.Setenv("ZKNOTES_PORT", "9100")
	t.Setenv("ZKNOTES_DATA_DIR", dir)
	t.Setenv("ZKNOTES_ARTIFACTS_URL", "https://keys.example.org/zknotes")

	flags := testFlags()
	c.Assert(flags.Parse([]string{"--config", file, "--log-level", "debug"}), qt.IsNil)
	cfg, err := Load(flags)
	c.Assert(err, qt.IsNil)
	// flag over file
	c.Assert(cfg.LogLevel, qt.Equals, "debug")
	// env over file
	c.Assert(cfg.Port, qt.Equals, 9100)
	c.Assert(cfg.DataDir, qt.Equals, dir)
	c.Assert(cfg.PollInterval, qt.Equals, time.Minute)
	c.Assert(cfg.ArtifactsURL, qt.Equals, "https://keys.example.org/zknotes")

	db, err := cfg.DatabaseDir("indexer")
	c.Assert(err, qt.IsNil)
	c.Assert(db, qt.Equals, filepath.Join(dir, "indexer"))
	_, err = os.Stat(db)
	c.Assert(err, qt.IsNil)
}

func TestLoadInvalid(t *testing.T) {
	c := qt.New(t)
	flags := testFlags()
	c.Assert(flags.Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}), qt.IsNil)
	_, err := Load(flags)
	c.Assert(err, qt.ErrorMatches, "read config file .*")

	t.Setenv("ZKNOTES_PORT", "70000")
	_, err = Load(testFlags())
	c.Assert(err, qt.ErrorMatches, "invalid port 70000")
}

func TestCircuitSeed(t *testing.T) {
	c := qt.New(t)
	c.Assert(string(CircuitSeed(DefaultSetupSeed, "transfer")), qt.Equals, DefaultSetupSeed+"/transfer")
}
