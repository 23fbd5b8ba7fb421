package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/capcanon/compliance"
	"xdao.co/capcanon/internal/config"
	"xdao.co/capcanon/storage"
	"xdao.co/capcanon/storage/bundle"
	"xdao.co/capcanon/storage/casconfig"
	"xdao.co/capcanon/storage/casregistry"

	_ "xdao.co/capcanon/storage/grpccas"
	_ "xdao.co/capcanon/storage/ipfs"
	_ "xdao.co/capcanon/storage/localfs"
	_ "xdao.co/capcanon/storage/pebblecas"
)

func cmdCAS(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printCASUsage(errOut)
		return 2
	}
	switch args[0] {
	case "put":
		return cmdCASPut(args[1:], out, errOut)
	case "get":
		return cmdCASGet(args[1:], out, errOut)
	case "backends":
		printBackends(out)
		return 0
	case "help", "-h", "--help":
		printCASUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown cas subcommand: %s\n\n", args[0])
		printCASUsage(errOut)
		return 2
	}
}

func printCASUsage(w io.Writer) {
	fmt.Fprintln(w, "capcanon cas: store and fetch blocks")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  capcanon cas put --backend localfs --localfs-dir <dir> [--canonical strict|permissive] <file|->")
	fmt.Fprintln(w, "  capcanon cas get --backend localfs --localfs-dir <dir> --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  capcanon cas put --cas-config <cas.json> <file|->")
	fmt.Fprintln(w, "  capcanon cas backends")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - ipfs backend shells out to the local Kubo 'ipfs' CLI")
	fmt.Fprintln(w, "  - grpc backend talks to capcanon-casd (or any CAS gRPC server)")
	fmt.Fprintln(w, "  - --canonical strict rejects non-canonical messages; permissive stores their canonical form")
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

// casFlags select and configure the store a subcommand works against.
type casFlags struct {
	backend   string
	casConfig string
	canonical string
}

func (c *casFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "", "CAS backend name (default localfs, or the first entry of --cas-config)")
	fs.StringVar(&c.casConfig, "cas-config", "", "JSON file describing several backends (default from config)")
	fs.StringVar(&c.canonical, "canonical", "", "Admit only canonical messages: strict|permissive")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
}

func (c *casFlags) open(cfg config.Config) (storage.CAS, func() error, error) {
	var mode compliance.ComplianceMode
	if c.canonical != "" {
		m, err := compliance.ParseMode(strings.ToLower(c.canonical))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --canonical: %w", err)
		}
		mode = m
	}

	path := c.casConfig
	if path == "" {
		path = cfg.CASConfig
	}
	var cas storage.CAS
	var closeFn func() error
	var err error
	if path != "" {
		var cc casconfig.Config
		if cc, err = casconfig.LoadFile(path); err != nil {
			return nil, nil, err
		}
		cas, closeFn, err = cc.Open(casregistry.UsageCLI, c.backend)
	} else {
		backend := c.backend
		if backend == "" {
			backend = "localfs"
		}
		cas, closeFn, err = casregistry.Open(backend, casregistry.UsageCLI)
	}
	if err != nil {
		return nil, nil, err
	}
	if c.canonical != "" {
		cas = storage.CanonicalCAS{CAS: cas, Mode: mode, ReaderOptions: cfg.ReaderOptions()}
	}
	return cas, closeFn, nil
}

func cmdCASPut(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("cas put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var cf casFlags
	cf.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: capcanon cas put [flags] <file|->")
		return 2
	}
	cfg, ok := common.setup(errOut)
	if !ok {
		return 1
	}

	cas, closeFn, err := cf.open(cfg)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	b, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read input: %v\n", err)
		return 1
	}
	id, err := cas.Put(b)
	if err != nil {
		return common.fail(out, errOut, "put", err)
	}
	if common.json {
		_ = writeJSON(out, map[string]string{"cid": id.String()})
		return 0
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdCASGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("cas get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var cf casFlags
	cf.add(fs)

	var cidStr string
	var outPath string
	fs.StringVar(&cidStr, "cid", "", "CID to fetch")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if cidStr == "" {
		fmt.Fprintln(errOut, "missing --cid")
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: capcanon cas get [flags] --cid <cid> [--out <file>]")
		return 2
	}
	cfg, ok := common.setup(errOut)
	if !ok {
		return 1
	}

	id, err := cid.Decode(cidStr)
	if err != nil {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return 2
	}

	cas, closeFn, err := cf.open(cfg)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	b, err := cas.Get(id)
	if err != nil {
		return common.fail(out, errOut, "get", err)
	}
	if outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func cmdBundle(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printBundleUsage(errOut)
		return 2
	}
	switch args[0] {
	case "export":
		return cmdBundleExport(args[1:], out, errOut)
	case "import":
		return cmdBundleImport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printBundleUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown bundle subcommand: %s\n\n", args[0])
		printBundleUsage(errOut)
		return 2
	}
}

func printBundleUsage(w io.Writer) {
	fmt.Fprintln(w, "capcanon bundle: move blocks between stores as a deterministic TAR")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  capcanon bundle export [cas flags] --cid <cid> [--cid ...] [--index] [--out <file>]")
	fmt.Fprintln(w, "  capcanon bundle import [cas flags] [--require-canonical] <file|->")
}

func cmdBundleExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var cf casFlags
	cf.add(fs)

	var ids stringList
	var index bool
	var outPath string
	fs.Var(&ids, "cid", "CID to export (repeatable)")
	fs.BoolVar(&index, "index", true, "Include index.json")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(ids) == 0 || fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: capcanon bundle export [flags] --cid <cid> [--cid ...]")
		return 2
	}
	cfg, ok := common.setup(errOut)
	if !ok {
		return 1
	}

	parsed := make([]cid.Cid, 0, len(ids))
	for _, s := range ids {
		id, err := cid.Decode(s)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --cid %q\n", s)
			return 2
		}
		parsed = append(parsed, id)
	}

	cas, closeFn, err := cf.open(cfg)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	w := out
	var f *os.File
	if outPath != "" {
		if f, err = os.Create(outPath); err != nil {
			fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
			return 1
		}
		w = f
	}
	err = bundle.Export(w, cas, parsed, bundle.ExportOptions{IncludeIndex: index})
	if f != nil {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return common.fail(out, errOut, "export", err)
	}
	return 0
}

func cmdBundleImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var cf casFlags
	cf.add(fs)

	var requireCanonical bool
	var ignoreUnknown bool
	fs.BoolVar(&requireCanonical, "require-canonical", false, "Reject blocks that are not canonical messages")
	fs.BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip archive entries outside blocks/ and index.json")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: capcanon bundle import [flags] <file|->")
		return 2
	}
	cfg, ok := common.setup(errOut)
	if !ok {
		return 1
	}

	cas, closeFn, err := cf.open(cfg)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	var r io.Reader = os.Stdin
	if p := fs.Arg(0); p != "-" {
		f, err := os.Open(p)
		if err != nil {
			fmt.Fprintf(errOut, "read %s: %v\n", p, err)
			return 1
		}
		defer f.Close()
		r = f
	}

	imported, err := bundle.ImportWithOptions(r, cas, bundle.ImportOptions{
		IgnoreUnknown:    ignoreUnknown,
		RequireCanonical: requireCanonical,
		ReaderOptions:    cfg.ReaderOptions(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotCanonical) && !common.json {
			fmt.Fprintf(errOut, "import stopped after %d blocks\n", len(imported))
		}
		return common.fail(out, errOut, "import", err)
	}
	if common.json {
		list := make([]string, 0, len(imported))
		for _, id := range imported {
			list = append(list, id.String())
		}
		_ = writeJSON(out, map[string][]string{"imported": list})
		return 0
	}
	for _, id := range imported {
		_, _ = fmt.Fprintln(out, id.String())
	}
	return 0
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return errors.New("empty value")
	}
	*s = append(*s, v)
	return nil
}
