package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/capcanon/keys"
	"xdao.co/capcanon/model"
	"xdao.co/capcanon/wire"
	"xdao.co/capcanon/wire/wiretest"
)

var testValue = wiretest.Struct{
	Data: []uint64{42},
	Pointers: []wiretest.Node{
		wiretest.PrimitiveList{Size: wire.SizeByte, Count: 6, Body: []byte("canon!")},
		wiretest.Struct{Data: []uint64{7, 0, 9}},
	},
}

const testSeedHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeLayout(t *testing.T, dir, name string, opts wiretest.LayoutOptions) string {
	t.Helper()
	b, err := wire.Marshal(wiretest.MustLayout(testValue, opts))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, b, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestRun_Usage(t *testing.T) {
	if code, _, _ := runCLI(t); code != 2 {
		t.Fatalf("no args: expected exit 2, got %d", code)
	}
	if code, out, _ := runCLI(t, "help"); code != 0 || !strings.Contains(out, "capcanon check") {
		t.Fatalf("help: code=%d out=%q", code, out)
	}
	if code, _, errOut := runCLI(t, "nope"); code != 2 || !strings.Contains(errOut, "unknown command") {
		t.Fatalf("unknown: code=%d err=%q", code, errOut)
	}
	if code, _, _ := runCLI(t, "check"); code != 2 {
		t.Fatalf("check without file: expected exit 2, got %d", code)
	}
}

func TestCheck_ExitCodeFollowsCanonicality(t *testing.T) {
	dir := t.TempDir()
	good := writeLayout(t, dir, "good.bin", wiretest.LayoutOptions{})
	gap := writeLayout(t, dir, "gap.bin", wiretest.LayoutOptions{Gap: 1})

	code, out, errOut := runCLI(t, "check", good)
	if code != 0 || !strings.HasPrefix(out, "canonical") {
		t.Fatalf("canonical input: code=%d out=%q err=%q", code, out, errOut)
	}

	code, out, _ = runCLI(t, "check", gap)
	if code != 1 || !strings.Contains(out, "CANON-LAYOUT-001") {
		t.Fatalf("gap input: code=%d out=%q", code, out)
	}

	code, out, _ = runCLI(t, "check", "--json", gap)
	if code != 1 {
		t.Fatalf("gap input --json: expected exit 1, got %d", code)
	}
	var res model.CheckResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode CheckResult: %v (%q)", err, out)
	}
	if res.Canonical || res.RuleID != "CANON-LAYOUT-001" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCheck_NestingLimitIsAnError(t *testing.T) {
	dir := t.TempDir()
	good := writeLayout(t, dir, "good.bin", wiretest.LayoutOptions{})

	code, out, _ := runCLI(t, "check", "--json", "--nesting-limit", "1", good)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	var ce model.CodedError
	if err := json.Unmarshal([]byte(out), &ce); err != nil {
		t.Fatalf("decode CodedError: %v (%q)", err, out)
	}
	if ce.Code != model.ErrResourceLimit {
		t.Fatalf("expected %s, got %+v", model.ErrResourceLimit, ce)
	}
}

func TestCanonicalize_Modes(t *testing.T) {
	dir := t.TempDir()
	good := writeLayout(t, dir, "good.bin", wiretest.LayoutOptions{})
	messy := writeLayout(t, dir, "messy.bin", wiretest.LayoutOptions{Reverse: true, ExtraData: 1, DoubleFar: true})

	code, out, _ := runCLI(t, "canonicalize", "--json", messy)
	if code != 1 {
		t.Fatalf("strict: expected exit 1, got %d", code)
	}
	var ce model.CodedError
	if err := json.Unmarshal([]byte(out), &ce); err != nil {
		t.Fatalf("decode CodedError: %v (%q)", err, out)
	}
	if ce.Code != model.ErrNotCanonical || ce.RuleID == "" {
		t.Fatalf("unexpected error %+v", ce)
	}

	outPath := filepath.Join(dir, "canonical.bin")
	code, _, errOut := runCLI(t, "canonicalize", "--mode", "permissive", "--out", outPath, messy)
	if code != 0 {
		t.Fatalf("permissive: code=%d err=%q", code, errOut)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want, err := os.ReadFile(good)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("permissive output differs from the canonical layout")
	}
	if !strings.Contains(errOut, "CID: ") {
		t.Fatalf("expected CID on stderr, got %q", errOut)
	}
}

func TestCID_SameAcrossLayouts(t *testing.T) {
	dir := t.TempDir()
	good := writeLayout(t, dir, "good.bin", wiretest.LayoutOptions{})
	far := writeLayout(t, dir, "far.bin", wiretest.LayoutOptions{Far: true})

	for _, hash := range []string{"sha2-256", "blake3"} {
		code, a, errOut := runCLI(t, "cid", "--hash", hash, good)
		if code != 0 {
			t.Fatalf("%s: cid of canonical input: code=%d err=%q", hash, code, errOut)
		}
		code, b, errOut := runCLI(t, "cid", "--hash", hash, "--mode", "permissive", far)
		if code != 0 {
			t.Fatalf("%s: cid of far layout: code=%d err=%q", hash, code, errOut)
		}
		if a != b {
			t.Fatalf("%s: CIDs differ: %q vs %q", hash, a, b)
		}
	}
	if code, _, _ := runCLI(t, "cid", far); code != 1 {
		t.Fatalf("strict cid of non-canonical input must fail")
	}
	if code, _, _ := runCLI(t, "cid", "--hash", "md5", good); code != 1 {
		t.Fatalf("unknown hash must fail")
	}
}

func TestConfigFile_SetsDefaultMode(t *testing.T) {
	dir := t.TempDir()
	messy := writeLayout(t, dir, "messy.bin", wiretest.LayoutOptions{Reverse: true})
	cfgPath := filepath.Join(dir, "capcanon.toml")
	if err := os.WriteFile(cfgPath, []byte("mode = \"permissive\"\nhash = \"sha3-256\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	code, out, errOut := runCLI(t, "cid", "--config", cfgPath, "--json", messy)
	if code != 0 {
		t.Fatalf("code=%d err=%q", code, errOut)
	}
	var res model.CanonicalizeResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Hash != "sha3-256" || !res.Changed || res.Bytes != nil {
		t.Fatalf("unexpected result %+v", res)
	}

	if err := os.WriteFile(cfgPath, []byte("colour = \"blue\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if code, _, _ := runCLI(t, "cid", "--config", cfgPath, messy); code != 1 {
		t.Fatalf("unknown config keys must be rejected")
	}
}

func TestKeySignVerify(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(keys.KeysDirEnv, "")
	dir := t.TempDir()
	good := writeLayout(t, dir, "good.bin", wiretest.LayoutOptions{})
	relaid := writeLayout(t, dir, "relaid.bin", wiretest.LayoutOptions{Gap: 2, DirtyPadding: true})

	code, out, errOut := runCLI(t, "key", "init", "--name", "alice", "--seed-hex", testSeedHex)
	if code != 0 || !strings.HasPrefix(out, "Created root key: ed25519:") {
		t.Fatalf("key init: code=%d out=%q err=%q", code, out, errOut)
	}
	if code, _, errOut := runCLI(t, "key", "derive", "--from", "alice", "--role", "publisher"); code != 0 {
		t.Fatalf("key derive: code=%d err=%q", code, errOut)
	}
	code, out, _ = runCLI(t, "key", "list")
	if code != 0 || out != "alice\n  - publisher\n" {
		t.Fatalf("key list: code=%d out=%q", code, out)
	}
	code, issuer, _ := runCLI(t, "key", "export", "--name", "alice", "--role", "publisher")
	if code != 0 {
		t.Fatalf("key export failed")
	}
	issuer = strings.TrimSpace(issuer)

	sigPath := filepath.Join(dir, "sig.json")
	code, _, errOut = runCLI(t, "sign", "--signer", "alice", "--signer-role", "publisher", "--out", sigPath, good)
	if code != 0 {
		t.Fatalf("sign: code=%d err=%q", code, errOut)
	}
	raw, err := os.ReadFile(sigPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var doc model.SignatureDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode SignatureDoc: %v", err)
	}
	if doc.IssuerKey != issuer || doc.HashAlg != "sha256" || doc.CID == "" {
		t.Fatalf("unexpected signature document %+v", doc)
	}

	// The signature covers the value, so another layout of it verifies.
	code, out, errOut = runCLI(t, "verify", "--sig", sigPath, "--issuer-key", issuer, relaid)
	if code != 0 || !strings.HasPrefix(out, "OK") {
		t.Fatalf("verify: code=%d out=%q err=%q", code, out, errOut)
	}

	_, other, _ := runCLI(t, "key", "export", "--name", "alice")
	if code, _, _ := runCLI(t, "verify", "--sig", sigPath, "--issuer-key", strings.TrimSpace(other), good); code != 1 {
		t.Fatalf("verify with the wrong issuer must fail")
	}

	tampered := testValue
	tampered.Data = []uint64{43}
	b, err := wire.Marshal(wiretest.MustLayout(tampered, wiretest.LayoutOptions{}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	tamperedPath := filepath.Join(dir, "tampered.bin")
	if err := os.WriteFile(tamperedPath, b, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	code, out, _ = runCLI(t, "verify", "--json", "--sig", sigPath, tamperedPath)
	if code != 1 {
		t.Fatalf("verify of a different value must fail")
	}
	var ce model.CodedError
	if err := json.Unmarshal([]byte(out), &ce); err != nil {
		t.Fatalf("decode CodedError: %v (%q)", err, out)
	}
	if ce.Code != model.ErrBadSignature {
		t.Fatalf("expected %s, got %+v", model.ErrBadSignature, ce)
	}
}

func TestSign_Dilithium3(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(keys.KeysDirEnv, "")
	dir := t.TempDir()
	good := writeLayout(t, dir, "good.bin", wiretest.LayoutOptions{})

	sigPath := filepath.Join(dir, "sig.json")
	code, _, errOut := runCLI(t, "sign", "--seed-hex", testSeedHex, "--alg", "dilithium3", "--hash-alg", "sha3-256", "--hash", "sha2-512", "--out", sigPath, good)
	if code != 0 {
		t.Fatalf("sign: code=%d err=%q", code, errOut)
	}
	code, out, errOut := runCLI(t, "verify", "--json", "--sig", sigPath, good)
	if code != 0 {
		t.Fatalf("verify: code=%d err=%q", code, errOut)
	}
	var res model.VerifyResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode VerifyResult: %v", err)
	}
	if !res.Valid || !strings.HasPrefix(res.IssuerKey, "dilithium3:") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSign_SignerFlagsConflict(t *testing.T) {
	if code, _, _ := runCLI(t, "sign", "--seed-hex", testSeedHex, "--signer", "alice", "x.bin"); code != 2 {
		t.Fatalf("expected usage error for conflicting signers")
	}
	if code, _, _ := runCLI(t, "sign", "x.bin"); code != 2 {
		t.Fatalf("expected usage error for missing signer")
	}
}

func TestCASAndBundle(t *testing.T) {
	dir := t.TempDir()
	good := writeLayout(t, dir, "good.bin", wiretest.LayoutOptions{})
	messy := writeLayout(t, dir, "messy.bin", wiretest.LayoutOptions{Far: true, ExtraPointers: 1})
	store := filepath.Join(dir, "store")

	if code, _, _ := runCLI(t, "cas", "put", "--localfs-dir", store, "--canonical", "strict", messy); code != 1 {
		t.Fatalf("strict store must reject non-canonical input")
	}
	code, out, errOut := runCLI(t, "cas", "put", "--localfs-dir", store, "--canonical", "permissive", messy)
	if code != 0 {
		t.Fatalf("cas put: code=%d err=%q", code, errOut)
	}
	id := strings.TrimSpace(out)

	_, want, _ := runCLI(t, "cid", good)
	if id != strings.TrimSpace(want) {
		t.Fatalf("stored CID %s, canonical CID %s", id, want)
	}

	code, out, _ = runCLI(t, "cas", "get", "--localfs-dir", store, "--cid", id)
	if code != 0 {
		t.Fatalf("cas get failed")
	}
	canonical, err := os.ReadFile(good)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if out != string(canonical) {
		t.Fatalf("stored bytes are not the canonical encoding")
	}

	tarPath := filepath.Join(dir, "blocks.tar")
	if code, _, errOut := runCLI(t, "bundle", "export", "--localfs-dir", store, "--cid", id, "--out", tarPath); code != 0 {
		t.Fatalf("bundle export: code=%d err=%q", code, errOut)
	}
	code, out, errOut = runCLI(t, "bundle", "import", "--backend", "pebble", "--pebble-dir", filepath.Join(dir, "pebble"), "--require-canonical", tarPath)
	if code != 0 {
		t.Fatalf("bundle import: code=%d err=%q", code, errOut)
	}
	if strings.TrimSpace(out) != id {
		t.Fatalf("imported %q, want %s", out, id)
	}

	code, out, _ = runCLI(t, "cas", "backends")
	if code != 0 || !strings.Contains(out, "localfs") || !strings.Contains(out, "pebble") {
		t.Fatalf("backends: code=%d out=%q", code, out)
	}
}
