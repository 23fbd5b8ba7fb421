package main

import (
	"crypto/ed25519"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ipfs/go-cid"

	"xdao.co/capcanon/canon"
	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/keys"
	"xdao.co/capcanon/model"
	"xdao.co/capcanon/wire"
)

func cmdSign(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var seedHex string
	var signerName string
	var signerRole string
	var keyFile string
	var alg string
	var hashAlg string
	var cidHash string
	var outPath string

	fs.StringVar(&seedHex, "seed-hex", "", "ed25519 seed as 64 hex chars")
	fs.StringVar(&signerName, "signer", "", "Use a stored key by name (from 'capcanon key init')")
	fs.StringVar(&signerRole, "signer-role", "", "When using --signer, optionally use a derived role key")
	fs.StringVar(&keyFile, "key-file", "", "Path to a seed file (hex) created by 'capcanon key init/derive'")
	fs.StringVar(&alg, "alg", "ed25519", "Signature algorithm: ed25519|dilithium3")
	fs.StringVar(&hashAlg, "hash-alg", "sha256", "Digest signed: sha256|sha512|sha3-256")
	fs.StringVar(&cidHash, "hash", "", "Multihash for the CID recorded in the signature (default from config)")
	fs.StringVar(&outPath, "out", "", "Write the signature document here (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: capcanon sign [flags] <file|->")
		return 2
	}
	if seedHex == "" && signerName == "" && keyFile == "" {
		fmt.Fprintln(errOut, "missing signer: use --seed-hex, --signer, or --key-file")
		return 2
	}
	if seedHex != "" && (signerName != "" || keyFile != "") {
		fmt.Fprintln(errOut, "conflicting signer flags: --seed-hex cannot be combined with --signer or --key-file")
		return 2
	}
	if signerName != "" && keyFile != "" {
		fmt.Fprintln(errOut, "conflicting signer flags: --signer cannot be combined with --key-file")
		return 2
	}
	if alg != "ed25519" && alg != "dilithium3" {
		fmt.Fprintln(errOut, "invalid --alg: expected ed25519 or dilithium3")
		return 2
	}
	cfg, ok := common.setup(errOut)
	if !ok {
		return 1
	}
	h := cfg.Hash
	if cidHash != "" {
		var err error
		if h, err = cidutil.ParseHashAlg(cidHash); err != nil {
			fmt.Fprintf(errOut, "invalid --hash: %v\n", err)
			return 2
		}
	}

	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	seed, err := ks.LoadSeed(seedHex, signerName, signerRole, keyFile)
	if err != nil {
		fmt.Fprintf(errOut, "invalid signer: %v\n", err)
		return 1
	}

	b, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read input: %v\n", err)
		return 1
	}
	msg, err := wire.Unmarshal(b, cfg.ReaderOptions()...)
	if err != nil {
		return common.fail(out, errOut, "decode", err)
	}

	var sig canon.Signature
	switch alg {
	case "dilithium3":
		_, sk, derr := keys.Dilithium3FromSeed(seed)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid signer: %v\n", derr)
			return 1
		}
		sig, err = canon.SignDilithium3(msg, hashAlg, sk)
	default:
		sig, err = canon.SignEd25519(msg, hashAlg, ed25519.NewKeyFromSeed(seed))
	}
	if err != nil {
		return common.fail(out, errOut, "sign", err)
	}
	id, err := canon.MessageCID(msg, h)
	if err != nil {
		return common.fail(out, errOut, "cid", err)
	}

	doc := model.NewSignatureDoc(sig, id)
	if outPath == "" {
		_ = writeJSON(out, doc)
		return 0
	}
	f, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	if err := writeJSON(f, doc); err != nil {
		_ = f.Close()
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	fmt.Fprintf(errOut, "Signed %s as %s\n", doc.CID, doc.IssuerKey)
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var sigPath string
	var issuerKey string
	fs.StringVar(&sigPath, "sig", "", "Signature document written by 'capcanon sign'")
	fs.StringVar(&issuerKey, "issuer-key", "", "Require this issuer key (optional)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if sigPath == "" {
		fmt.Fprintln(errOut, "missing --sig")
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: capcanon verify --sig <sig.json> [flags] <file|->")
		return 2
	}
	cfg, ok := common.setup(errOut)
	if !ok {
		return 1
	}

	raw, err := os.ReadFile(sigPath)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", sigPath, err)
		return 1
	}
	var doc model.SignatureDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		fmt.Fprintf(errOut, "parse %s: %v\n", sigPath, err)
		return 1
	}
	if issuerKey != "" && issuerKey != doc.IssuerKey {
		return common.fail(out, errOut, "verify", model.NewError(model.ErrBadSignature, "signature is not by the required issuer"))
	}

	b, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read input: %v\n", err)
		return 1
	}
	msg, err := wire.Unmarshal(b, cfg.ReaderOptions()...)
	if err != nil {
		return common.fail(out, errOut, "decode", err)
	}
	if err := canon.VerifySignature(msg, doc.CanonSignature()); err != nil {
		return common.fail(out, errOut, "verify", err)
	}

	res := model.VerifyResult{Valid: true, IssuerKey: doc.IssuerKey, CID: doc.CID}
	if doc.CID != "" {
		if err := checkSignedCID(msg, doc.CID); err != nil {
			return common.fail(out, errOut, "verify", err)
		}
	}
	if common.json {
		_ = writeJSON(out, res)
		return 0
	}
	fmt.Fprintf(out, "OK: signed by %s\n", res.IssuerKey)
	return 0
}

// checkSignedCID recomputes the CID a signature document records, using the
// hash that CID names.
func checkSignedCID(msg *wire.Message, recorded string) error {
	want, err := cid.Decode(recorded)
	if err != nil {
		return model.NewError(model.ErrInvalidCID, "signature document has an invalid cid")
	}
	h, err := cidutil.HashAlgOf(want)
	if err != nil {
		return model.NewError(model.ErrInvalidCID, err.Error())
	}
	got, err := canon.MessageCID(msg, h)
	if err != nil {
		return err
	}
	if !got.Equals(want) {
		return model.NewError(model.ErrCIDMismatch, fmt.Sprintf("message is %s, signature names %s", got, want))
	}
	return nil
}
