package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"xdao.co/capcanon/internal/config"
	"xdao.co/capcanon/model"
)

func cmdCheck(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var nesting int
	var traversal uint64
	fs.IntVar(&nesting, "nesting-limit", 0, "Maximum pointer depth (default from config)")
	fs.Uint64Var(&traversal, "traversal-limit", 0, "Maximum words read while decoding (default from config)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: capcanon check [flags] <file|->")
		return 2
	}
	cfg, ok := common.setup(errOut)
	if !ok {
		return 1
	}

	b, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read input: %v\n", err)
		return 1
	}
	limits := limitsOf(cfg)
	if nesting > 0 {
		limits.NestingLimit = nesting
	}
	if traversal > 0 {
		limits.TraversalLimitWords = traversal
	}

	res, err := model.Check(model.CheckRequest{Message: model.BlobRef{Bytes: b}, Limits: limits}, model.Options{})
	if err != nil {
		return common.fail(out, errOut, "check", err)
	}
	if common.json {
		_ = writeJSON(out, res)
	} else if res.Canonical {
		fmt.Fprintf(out, "canonical (%d bytes)\n", res.Bytes)
	} else {
		fmt.Fprintf(out, "not canonical: %s: %s\n", res.RuleID, res.Reason)
	}
	if !res.Canonical {
		return 1
	}
	return 0
}

// canonicalFlags are shared by canonicalize and cid.
type canonicalFlags struct {
	mode string
	hash string
}

func (c *canonicalFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.mode, "mode", "", "Compliance mode: strict|permissive (default from config)")
	fs.StringVar(&c.hash, "hash", "", "Multihash naming the result (default from config)")
}

func (c *canonicalFlags) request(cfg config.Config, b []byte) (model.CanonicalizeRequest, error) {
	req := model.CanonicalizeRequest{
		Message:    model.BlobRef{Bytes: b},
		Compliance: model.ComplianceMode(cfg.Mode.String()),
		Hash:       string(cfg.Hash),
		Limits:     limitsOf(cfg),
	}
	if c.mode != "" {
		m, err := parseModeFlag(c.mode)
		if err != nil {
			return req, fmt.Errorf("invalid --mode: %w", err)
		}
		req.Compliance = m
	}
	if c.hash != "" {
		req.Hash = c.hash
	}
	return req, nil
}

func cmdCanonicalize(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("canonicalize", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var cf canonicalFlags
	cf.add(fs)

	var outPath string
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: capcanon canonicalize [flags] <file|->")
		return 2
	}
	cfg, ok := common.setup(errOut)
	if !ok {
		return 1
	}

	b, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read input: %v\n", err)
		return 1
	}
	req, err := cf.request(cfg, b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	res, err := model.Canonicalize(req, model.Options{})
	if err != nil {
		return common.fail(out, errOut, "canonicalize", err)
	}

	if outPath != "" {
		if err := os.WriteFile(outPath, res.Bytes, 0o644); err != nil {
			fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
			return 1
		}
	}
	switch {
	case common.json:
		_ = writeJSON(out, res)
	case outPath == "":
		_, _ = out.Write(res.Bytes)
	}
	if !common.json {
		fmt.Fprintf(errOut, "CID: %s\n", res.CID)
	}
	return 0
}

func cmdCID(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("cid", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var cf canonicalFlags
	cf.add(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: capcanon cid [flags] <file|->")
		return 2
	}
	cfg, ok := common.setup(errOut)
	if !ok {
		return 1
	}

	b, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read input: %v\n", err)
		return 1
	}
	req, err := cf.request(cfg, b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	res, err := model.Canonicalize(req, model.Options{})
	if err != nil {
		return common.fail(out, errOut, "cid", err)
	}
	if common.json {
		res.Bytes = nil
		_ = writeJSON(out, res)
		return 0
	}
	_, _ = fmt.Fprintln(out, res.CID)
	return 0
}
