package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"xdao.co/capcanon/storage"
	"xdao.co/capcanon/storage/grpccas"
	"xdao.co/capcanon/storage/localfs"
	"xdao.co/capcanon/wire"
	"xdao.co/capcanon/wire/wiretest"
)

var testValue = wiretest.Struct{
	Data:     []uint64{0x1234},
	Pointers: []wiretest.Node{wiretest.PrimitiveList{Size: wire.SizeByte, Count: 3, Body: []byte("abc")}},
}

func framed(t *testing.T, opts wiretest.LayoutOptions) []byte {
	t.Helper()
	b, err := wire.Marshal(wiretest.MustLayout(testValue, opts))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return b
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return lis
}

func httpGet(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(b)
}

func TestDaemon_ServesCanonicalCAS(t *testing.T) {
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	d := &daemon{
		logger:           zap.NewNop(),
		cas:              cas,
		backend:          "localfs",
		requireCanonical: true,
		started:          time.Now(),
	}
	lis := listen(t)
	admin := listen(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.serve(ctx, lis, admin) }()

	client, err := grpccas.Dial(lis.Addr().String(), grpccas.DialOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	client.Timeout = 2 * time.Second

	good := framed(t, wiretest.LayoutOptions{})
	id, err := client.Put(good)
	if err != nil {
		t.Fatalf("Put canonical: %v", err)
	}
	got, err := client.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, good) {
		t.Fatalf("round trip changed bytes")
	}

	_, err = client.Put(framed(t, wiretest.LayoutOptions{Gap: 1}))
	if !errors.Is(err, storage.ErrNotCanonical) {
		t.Fatalf("expected ErrNotCanonical, got %v", err)
	}

	base := "http://" + admin.Addr().String()
	code, body := httpGet(t, base+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("/metrics: status %d", code)
	}
	for _, want := range []string{
		`capcanon_canon_checks_total{outcome="rejected",rule="CANON-LAYOUT-001"} 1`,
		`capcanon_canon_checks_total{outcome="canonical",rule=""} 1`,
		`capcanon_grpc_requests_total{code="InvalidArgument",method="Put"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("/metrics missing %q", want)
		}
	}

	code, body = httpGet(t, base+"/health")
	if code != http.StatusOK {
		t.Fatalf("/health: status %d", code)
	}
	var health map[string]any
	if err := json.Unmarshal([]byte(body), &health); err != nil {
		t.Fatalf("decode /health: %v", err)
	}
	if health["status"] != "ok" || health["backend"] != "localfs" || health["require_canonical"] != true {
		t.Fatalf("unexpected /health %v", health)
	}

	v, err := client.Check(framed(t, wiretest.LayoutOptions{Reverse: true, Gap: 1}))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if v.Canonical || v.Rule != "CANON-LAYOUT-001" {
		t.Fatalf("unexpected verdict %+v", v)
	}
	_, body = httpGet(t, base+"/metrics")
	if !strings.Contains(body, `capcanon_grpc_requests_total{code="OK",method="Check"} 1`) {
		t.Fatalf("Check RPC not counted")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
}

func TestRun_ListBackends(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"--list-backends"}, &out, &errOut); code != 0 {
		t.Fatalf("code=%d err=%q", code, errOut.String())
	}
	for _, name := range []string{"localfs", "pebble", "ipfs"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("backend %s not listed: %q", name, out.String())
		}
	}
	if strings.Contains(out.String(), "grpc") {
		t.Fatalf("the gRPC client backend must not be served by the daemon")
	}
}

func TestRun_RejectsBadConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "capcanon.toml")
	if err := os.WriteFile(p, []byte("[daemon]\nlisten = 7\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"--config", p}, &out, &errOut); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "config:") {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out, errOut bytes.Buffer
	code := run(ctx, []string{
		"--listen", "127.0.0.1:0",
		"--backend", "pebble",
		"--pebble-dir", filepath.Join(dir, "db"),
	}, &out, &errOut)
	if code != 0 {
		t.Fatalf("code=%d err=%q", code, errOut.String())
	}
}
