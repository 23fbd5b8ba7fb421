// Package config loads the capcanon.toml file shared by the CLI and the
// daemon. Command-line flags override whatever the file sets.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/compliance"
	"xdao.co/capcanon/wire"
)

type Config struct {
	LogLevel  string
	Hash      cidutil.HashAlg
	Mode      compliance.ComplianceMode
	CASConfig string
	Reader    wire.ReaderOptions
	Daemon    DaemonConfig
}

type DaemonConfig struct {
	Listen           string
	MetricsListen    string
	Backend          string
	RequireCanonical bool
}

type fileConfig struct {
	LogLevel  string `toml:"log_level"`
	Hash      string `toml:"hash"`
	Mode      string `toml:"mode"`
	CASConfig string `toml:"cas_config"`
	Reader    struct {
		NestingLimit        int    `toml:"nesting_limit"`
		TraversalLimitWords uint64 `toml:"traversal_limit_words"`
	} `toml:"reader"`
	Daemon struct {
		Listen           string `toml:"listen"`
		MetricsListen    string `toml:"metrics_listen"`
		Backend          string `toml:"backend"`
		RequireCanonical bool   `toml:"require_canonical"`
	} `toml:"daemon"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Hash:   cidutil.SHA2_256,
		Mode:   compliance.Strict,
		Reader: wire.DefaultReaderOptions(),
		Daemon: DaemonConfig{
			Listen:           "127.0.0.1:7777",
			Backend:          "localfs",
			RequireCanonical: true,
		},
	}
}

// Load reads path over Default. Keys absent from the file keep their
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("hash") {
		h, err := cidutil.ParseHashAlg(strings.TrimSpace(raw.Hash))
		if err != nil {
			return Config{}, fmt.Errorf("parse hash: %w", err)
		}
		cfg.Hash = h
	}
	if meta.IsDefined("mode") {
		m, err := compliance.ParseMode(strings.TrimSpace(raw.Mode))
		if err != nil {
			return Config{}, fmt.Errorf("parse mode: %w", err)
		}
		cfg.Mode = m
	}
	if meta.IsDefined("cas_config") {
		cfg.CASConfig = strings.TrimSpace(raw.CASConfig)
	}
	if meta.IsDefined("reader", "nesting_limit") {
		cfg.Reader.NestingLimit = raw.Reader.NestingLimit
	}
	if meta.IsDefined("reader", "traversal_limit_words") {
		cfg.Reader.TraversalLimitWords = raw.Reader.TraversalLimitWords
	}
	if meta.IsDefined("daemon", "listen") {
		cfg.Daemon.Listen = strings.TrimSpace(raw.Daemon.Listen)
	}
	if meta.IsDefined("daemon", "metrics_listen") {
		cfg.Daemon.MetricsListen = strings.TrimSpace(raw.Daemon.MetricsListen)
	}
	if meta.IsDefined("daemon", "backend") {
		cfg.Daemon.Backend = strings.TrimSpace(raw.Daemon.Backend)
	}
	if meta.IsDefined("daemon", "require_canonical") {
		cfg.Daemon.RequireCanonical = raw.Daemon.RequireCanonical
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Reader.NestingLimit <= 0 {
		return fmt.Errorf("config: reader.nesting_limit must be positive")
	}
	if _, err := cidutil.ParseHashAlg(string(c.Hash)); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Daemon.Listen == "" {
		return fmt.Errorf("config: daemon.listen is required")
	}
	return nil
}

// ReaderOptions converts the reader limits for wire.NewMessage and friends.
func (c Config) ReaderOptions() []wire.Option {
	return []wire.Option{wire.WithOptions(c.Reader)}
}
