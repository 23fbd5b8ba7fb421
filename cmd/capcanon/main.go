package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"xdao.co/capcanon/internal/config"
	"xdao.co/capcanon/internal/logging"
	"xdao.co/capcanon/model"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "check":
		return cmdCheck(args[1:], out, errOut)
	case "canonicalize":
		return cmdCanonicalize(args[1:], out, errOut)
	case "cid":
		return cmdCID(args[1:], out, errOut)
	case "sign":
		return cmdSign(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "cas":
		return cmdCAS(args[1:], out, errOut)
	case "bundle":
		return cmdBundle(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "capcanon: canonical pointer-message tool")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  capcanon check [--json] [--nesting-limit N] [--traversal-limit N] <file|->")
	fmt.Fprintln(w, "  capcanon canonicalize [--mode strict|permissive] [--hash <alg>] [--out <file>] [--json] <file|->")
	fmt.Fprintln(w, "  capcanon cid [--mode strict|permissive] [--hash <alg>] <file|->")
	fmt.Fprintln(w, "  capcanon sign (--signer <name> [--signer-role <role>] | --key-file <path> | --seed-hex <64hex>) [--alg ed25519|dilithium3] [--hash-alg sha256] <file|->")
	fmt.Fprintln(w, "  capcanon verify --sig <sig.json> [--issuer-key <key>] [--json] <file|->")
	fmt.Fprintln(w, "  capcanon key <init|derive|list|export> ...")
	fmt.Fprintln(w, "  capcanon cas <put|get|backends> [--backend <name>] ...")
	fmt.Fprintln(w, "  capcanon bundle <export|import> ...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Every command accepts --config <capcanon.toml>.")
	fmt.Fprintln(w, "Hash algorithms: sha2-256 (default), sha2-512, sha3-256, blake3.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit codes: 0 success, 1 failure or not canonical, 2 usage error.")
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath string
	json       bool
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to capcanon.toml")
	fs.BoolVar(&c.json, "json", false, "Write JSON output")
}

// setup loads the config file and installs the CLI logger.
func (c *commonFlags) setup(errOut io.Writer) (config.Config, bool) {
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		cfg, err = config.Load(c.configPath)
		if err != nil {
			fmt.Fprintf(errOut, "config: %v\n", err)
			return cfg, false
		}
	}
	logger, err := logging.New(logging.ProfileCLI, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(errOut, "logging: %v\n", err)
		return cfg, false
	}
	logging.Install(logger)
	return cfg, true
}

// fail reports err as text, or as a model.CodedError when --json is set.
func (c *commonFlags) fail(out, errOut io.Writer, what string, err error) int {
	if c.json {
		_ = writeJSON(out, model.AsCodedError(err))
		return 1
	}
	fmt.Fprintf(errOut, "%s: %v\n", what, err)
	return 1
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput reads a file, or stdin when p is "-".
func readInput(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func limitsOf(cfg config.Config) model.ReaderLimits {
	return model.ReaderLimits{
		NestingLimit:        cfg.Reader.NestingLimit,
		TraversalLimitWords: cfg.Reader.TraversalLimitWords,
	}
}

func parseModeFlag(v string) (model.ComplianceMode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return model.ComplianceStrict, nil
	case "permissive":
		return model.CompliancePermissive, nil
	default:
		return "", errors.New("expected strict or permissive")
	}
}
