package pebblecas

import (
	"testing"

	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/storage"
	"xdao.co/capcanon/storage/casregistry"
	"xdao.co/capcanon/storage/testkit"
)

func openTemp(t *testing.T, opts Options) *CAS {
	t.Helper()
	cas, err := Open(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = cas.Close() })
	return cas
}

func TestPebble_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return openTemp(t, Options{NoSync: true})
	})
}

func TestPebble_BlakeConformance(t *testing.T) {
	testkit.RunCASConformanceWithHash(t, func(t *testing.T) storage.CAS {
		return openTemp(t, Options{Hash: cidutil.BLAKE3, NoSync: true})
	}, cidutil.BLAKE3)
}

func TestPebble_DetectsCorruption(t *testing.T) {
	cas := openTemp(t, Options{})
	id, err := cas.Put([]byte("original"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := cas.db.Set(id.Bytes(), []byte("corrupted"), nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := cas.Get(id); err != storage.ErrCIDMismatch {
		t.Fatalf("Get: got %v want %v", err, storage.ErrCIDMismatch)
	}
	if _, err := cas.Put([]byte("original")); err != storage.ErrImmutable {
		t.Fatalf("Put after corruption: got %v want %v", err, storage.ErrImmutable)
	}
}

func TestPebble_ReopenKeepsBlocks(t *testing.T) {
	dir := t.TempDir()
	cas, closeFn, err := casregistry.OpenWithConfig("pebble", casregistry.UsageDaemon, map[string]string{"pebble-dir": dir})
	if err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	id, err := cas.Put([]byte("durable"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	got, err := again.Get(id)
	if err != nil || string(got) != "durable" {
		t.Fatalf("Get after reopen: %q, %v", got, err)
	}
}
