package localfs

import (
	"os"
	"testing"

	"xdao.co/capcanon/canon"
	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/compliance"
	"xdao.co/capcanon/storage"
	"xdao.co/capcanon/storage/casregistry"
	"xdao.co/capcanon/storage/testkit"
	"xdao.co/capcanon/wire"
	"xdao.co/capcanon/wire/wiretest"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		t.Helper()
		dir := t.TempDir()
		cas, err := New(dir)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return cas
	})
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	dir := t.TempDir()
	cas, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := []byte("original")
	id, err := cas.Put(orig)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored object out-of-band.
	path := cas.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// Get must detect hash mismatch.
	_, err = cas.Get(id)
	if err != storage.ErrCIDMismatch {
		t.Fatalf("Get mismatch: got %v want %v", err, storage.ErrCIDMismatch)
	}

	// Put must not "repair" or overwrite the corrupted object.
	_, err = cas.Put(orig)
	if err != storage.ErrImmutable {
		t.Fatalf("Put after corruption: got %v want %v", err, storage.ErrImmutable)
	}

	// Sanity: the CID is still the CID of the original bytes.
	wantID, err := cidutil.CIDv1RawSHA256CID(orig)
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
	}
	if id != wantID {
		t.Fatalf("unexpected CID: got %s want %s", id, wantID)
	}
}

func TestLocalFS_BlakeConformance(t *testing.T) {
	testkit.RunCASConformanceWithHash(t, func(t *testing.T) storage.CAS {
		t.Helper()
		cas, err := New(t.TempDir(), WithHash(cidutil.BLAKE3))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return cas
	}, cidutil.BLAKE3)
}

func TestLocalFS_CanonicalWrapperStoresOneBlockPerValue(t *testing.T) {
	dir := t.TempDir()
	raw, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cas := storage.CanonicalCAS{CAS: raw, Mode: compliance.Permissive}

	value := wiretest.Struct{Data: []uint64{9}, Pointers: []wiretest.Node{wiretest.Struct{Data: []uint64{1, 2}}}}
	var first string
	for _, opts := range []wiretest.LayoutOptions{{}, {Far: true}, {ExtraData: 2, Gap: 1}} {
		b, err := wire.Marshal(wiretest.MustLayout(value, opts))
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		id, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(%+v): %v", opts, err)
		}
		if first == "" {
			first = id.String()
		} else if id.String() != first {
			t.Fatalf("layout %+v stored as %s, want %s", opts, id, first)
		}
		stored, err := raw.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if err := canon.CheckBytes(stored); err != nil {
			t.Fatalf("stored block not canonical: %v", err)
		}
	}
}

func TestLocalFS_OpenWithConfig(t *testing.T) {
	dir := t.TempDir()
	cas, closeFn, err := casregistry.OpenWithConfig("localfs", casregistry.UsageDaemon, map[string]string{
		"localfs-dir":  dir,
		"localfs-hash": "sha3-256",
	})
	if err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("localfs needs no close function")
	}
	id, err := cas.Put([]byte("configured"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if h, _ := cidutil.HashAlgOf(id); h != cidutil.SHA3_256 {
		t.Fatalf("expected sha3-256 CID, got %s", h)
	}

	if _, _, err := casregistry.OpenWithConfig("localfs", casregistry.UsageCLI, map[string]string{}); err == nil {
		t.Fatalf("expected missing dir error")
	}
}
