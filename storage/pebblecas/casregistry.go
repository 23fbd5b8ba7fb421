package pebblecas

import (
	"flag"
	"fmt"
	"strconv"

	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/storage"
	"xdao.co/capcanon/storage/casregistry"
)

var (
	flagDir    string
	flagHash   string
	flagNoSync bool
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "pebble",
		Description: "Pebble key-value store (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagDir, "pebble-dir", "", "Pebble database directory (for --backend=pebble)")
			fs.StringVar(&flagHash, "pebble-hash", "", "Hash naming new blocks (for --backend=pebble)")
			fs.BoolVar(&flagNoSync, "pebble-nosync", false, "Skip fsync on each put (for --backend=pebble)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return open(flagDir, flagHash, flagNoSync)
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			noSync := false
			if v := cfg["pebble-nosync"]; v != "" {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return nil, nil, fmt.Errorf("pebble-nosync: %w", err)
				}
				noSync = b
			}
			return open(cfg["pebble-dir"], cfg["pebble-hash"], noSync)
		},
	})
}

func open(dir, hash string, noSync bool) (storage.CAS, func() error, error) {
	if dir == "" {
		return nil, nil, fmt.Errorf("missing --pebble-dir")
	}
	h, err := cidutil.ParseHashAlg(hash)
	if err != nil {
		return nil, nil, err
	}
	cas, err := Open(dir, Options{Hash: h, NoSync: noSync})
	if err != nil {
		return nil, nil, err
	}
	return cas, cas.Close, nil
}
