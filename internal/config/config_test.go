package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/compliance"
	"xdao.co/capcanon/wire"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capcanon.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_OverridesOnlyDefinedKeys(t *testing.T) {
	cfg, err := Load(write(t, `
hash = "blake3"
mode = "permissive"

[reader]
nesting_limit = 16

[daemon]
require_canonical = false
metrics_listen = ":9464"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hash != cidutil.BLAKE3 || cfg.Mode != compliance.Permissive {
		t.Fatalf("unexpected hash/mode: %s %s", cfg.Hash, cfg.Mode)
	}
	if cfg.Reader.NestingLimit != 16 {
		t.Fatalf("nesting limit not applied: %d", cfg.Reader.NestingLimit)
	}
	if cfg.Reader.TraversalLimitWords != wire.DefaultReaderOptions().TraversalLimitWords {
		t.Fatalf("traversal limit lost its default: %d", cfg.Reader.TraversalLimitWords)
	}
	if cfg.Daemon.RequireCanonical {
		t.Fatalf("require_canonical=false was ignored")
	}
	if cfg.Daemon.Listen != Default().Daemon.Listen || cfg.Daemon.MetricsListen != ":9464" {
		t.Fatalf("unexpected daemon config: %+v", cfg.Daemon)
	}
	if len(cfg.ReaderOptions()) != 1 {
		t.Fatalf("expected one reader option")
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":  `colour = "blue"`,
		"bad hash":     `hash = "md5"`,
		"bad mode":     `mode = "lenient"`,
		"zero nesting": "[reader]\nnesting_limit = 0",
		"empty listen": "[daemon]\nlisten = \"\"",
		"invalid toml": `hash = `,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(write(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected load error, got %v", err)
	}
}
