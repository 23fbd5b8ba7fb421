package localfs

import (
	"flag"
	"fmt"

	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/storage"
	"xdao.co/capcanon/storage/casregistry"
)

var (
	flagLocalDir  string
	flagLocalHash string
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagLocalDir, "localfs-dir", "", "LocalFS CAS directory (for --backend=localfs)")
			fs.StringVar(&flagLocalHash, "localfs-hash", "", "Hash naming new blocks: sha2-256 (default), sha2-512, sha3-256, blake3")
		},
		Open: func() (storage.CAS, func() error, error) {
			return open(flagLocalDir, flagLocalHash)
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			return open(cfg["localfs-dir"], cfg["localfs-hash"])
		},
	})
}

func open(dir, hash string) (storage.CAS, func() error, error) {
	if dir == "" {
		return nil, nil, fmt.Errorf("missing --localfs-dir")
	}
	h, err := cidutil.ParseHashAlg(hash)
	if err != nil {
		return nil, nil, err
	}
	cas, err := New(dir, WithHash(h))
	if err != nil {
		return nil, nil, err
	}
	return cas, nil, nil
}
