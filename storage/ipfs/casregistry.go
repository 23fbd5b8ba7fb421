package ipfs

import (
	"flag"
	"os"

	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/storage"
	"xdao.co/capcanon/storage/casregistry"
)

var (
	flagBin  string
	flagPath string
	flagHash string
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repo via the ipfs CLI (offline)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagPath, "ipfs-path", "", "IPFS_PATH of the repo to use (for --backend=ipfs)")
			fs.StringVar(&flagHash, "ipfs-hash", "", "Hash naming new blocks (for --backend=ipfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return open(flagBin, flagPath, flagHash)
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			return open(cfg["ipfs-bin"], cfg["ipfs-path"], cfg["ipfs-hash"])
		},
	})
}

func open(bin, repo, hash string) (storage.CAS, func() error, error) {
	h, err := cidutil.ParseHashAlg(hash)
	if err != nil {
		return nil, nil, err
	}
	opts := Options{Bin: bin, Hash: h}
	if repo != "" {
		opts.Env = append(os.Environ(), "IPFS_PATH="+repo)
	}
	return New(opts), nil, nil
}
