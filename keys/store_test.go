package keys

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testSeed() []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(0xa0 + i)
	}
	return seed
}

func TestKeyStore_InitDeriveExportList(t *testing.T) {
	ks, err := CreateKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("CreateKeyStore: %v", err)
	}
	seed := testSeed()

	issuer, rootPath, err := ks.InitializeRootKey("alice", seed, false)
	if err != nil {
		t.Fatalf("InitializeRootKey: %v", err)
	}
	if issuer != GenerateIssuerKeyFromSeed(seed) {
		t.Fatalf("unexpected issuer key %q", issuer)
	}
	if filepath.Base(rootPath) != "root.key" {
		t.Fatalf("unexpected root path %q", rootPath)
	}
	if _, _, err := ks.InitializeRootKey("alice", seed, false); !errors.Is(err, os.ErrExist) {
		t.Fatalf("expected existing root key to be kept, got %v", err)
	}

	roleIssuer, _, err := ks.DeriveKeyFromRole("alice", "publisher", false)
	if err != nil {
		t.Fatalf("DeriveKeyFromRole: %v", err)
	}
	roleSeed, err := DeriveRoleSeed(seed, "publisher")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if roleIssuer != GenerateIssuerKeyFromSeed(roleSeed) {
		t.Fatalf("role key does not match derivation")
	}
	if _, _, err := ks.DeriveKeyFromRole("alice", "auditor", false); err != nil {
		t.Fatalf("DeriveKeyFromRole: %v", err)
	}

	exported, err := ks.ExportKey("alice", "publisher")
	if err != nil {
		t.Fatalf("ExportKey: %v", err)
	}
	if exported != roleIssuer {
		t.Fatalf("export mismatch")
	}

	loaded, err := ks.LoadSeed("", "alice", "publisher", "")
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if !bytes.Equal(loaded, roleSeed) {
		t.Fatalf("LoadSeed returned the wrong seed")
	}

	entries, err := ks.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	want := []KeyEntry{{Identifier: "alice", Roles: []string{"auditor", "publisher"}}}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("ListKeys = %+v", entries)
	}
}

func TestKeyStore_LoadSeedSources(t *testing.T) {
	ks := &KeyStore{Directory: t.TempDir()}
	seed := testSeed()

	got, err := ks.LoadSeed("0x"+"a0a1a2a3a4a5a6a7a8a9aaabacadaeafb0b1b2b3b4b5b6b7b8b9babbbcbdbebf", "", "", "")
	if err != nil {
		t.Fatalf("LoadSeed hex: %v", err)
	}
	if !bytes.Equal(got, seed) {
		t.Fatalf("hex seed mismatch")
	}

	p := filepath.Join(t.TempDir(), "k.key")
	if err := writeSeed(p, seed, false); err != nil {
		t.Fatalf("writeSeed: %v", err)
	}
	if got, err = ks.LoadSeed("", "", "", p); err != nil || !bytes.Equal(got, seed) {
		t.Fatalf("LoadSeed file: %v", err)
	}

	if _, err := ks.LoadSeed("", "", "", ""); !errors.Is(err, ErrNoSigner) {
		t.Fatalf("expected ErrNoSigner, got %v", err)
	}
	if _, err := ks.LoadSeed("", "../etc", "", ""); err == nil {
		t.Fatalf("expected bad identifier to be rejected")
	}
}

func TestKeyStore_EmptyAndEnvDirectory(t *testing.T) {
	ks := &KeyStore{Directory: filepath.Join(t.TempDir(), "missing")}
	entries, err := ks.ListKeys()
	if err != nil || entries != nil {
		t.Fatalf("missing directory: %v %v", entries, err)
	}

	dir := t.TempDir()
	t.Setenv(KeysDirEnv, dir)
	got, err := GetDefaultDirectory()
	if err != nil {
		t.Fatalf("GetDefaultDirectory: %v", err)
	}
	if got != dir {
		t.Fatalf("expected %s, got %s", dir, got)
	}
}
