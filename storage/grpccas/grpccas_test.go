package grpccas

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/storage"
	"xdao.co/capcanon/storage/localfs"
	"xdao.co/capcanon/storage/testkit"
	"xdao.co/capcanon/wire"
	"xdao.co/capcanon/wire/wiretest"
)

func startServer(t *testing.T, srv *Server) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer()
	RegisterCASServer(gs, srv)

	go func() {
		_ = gs.Serve(lis)
	}()
	t.Cleanup(gs.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })

	return &Client{cc: cc, client: NewCASClient(cc), Timeout: 2 * time.Second}
}

func newLocal(t *testing.T, opts ...localfs.Option) *localfs.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	return cas
}

func TestGRPCCAS_LocalFS_RoundTrip(t *testing.T) {
	client := startServer(t, &Server{CAS: newLocal(t)})

	payload := []byte("hello grpccas")
	id, err := client.Put(payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !id.Defined() {
		t.Fatalf("expected defined CID")
	}
	if !client.Has(id) {
		t.Fatalf("Has: expected true")
	}
	got, err := client.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestGRPCCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return startServer(t, &Server{CAS: newLocal(t)})
	})
}

func TestGRPCCAS_ServerHashIsHonored(t *testing.T) {
	client := startServer(t, &Server{CAS: newLocal(t, localfs.WithHash(cidutil.SHA2_512))})
	id, err := client.Put([]byte("named by the server"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if h, _ := cidutil.HashAlgOf(id); h != cidutil.SHA2_512 {
		t.Fatalf("expected sha2-512 CID, got %s", h)
	}
}

func TestGRPCCAS_RequireCanonical(t *testing.T) {
	var rules []string
	client := startServer(t, &Server{
		CAS:              newLocal(t),
		RequireCanonical: true,
		OnCheck:          func(rule string) { rules = append(rules, rule) },
	})

	value := wiretest.Struct{Data: []uint64{1}, Pointers: []wiretest.Node{wiretest.Struct{Data: []uint64{2}}}}
	bad, err := wire.Marshal(wiretest.MustLayout(value, wiretest.LayoutOptions{Gap: 1}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	_, err = client.Put(bad)
	if !errors.Is(err, storage.ErrNotCanonical) {
		t.Fatalf("expected ErrNotCanonical, got %v", err)
	}
	if errors.Is(err, storage.ErrInvalidCID) {
		t.Fatalf("rejection must be distinct from ErrInvalidCID")
	}

	good, err := wire.Marshal(wiretest.MustLayout(value, wiretest.LayoutOptions{}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := client.Put(good); err != nil {
		t.Fatalf("Put(canonical): %v", err)
	}
	if len(rules) != 2 || rules[0] != "CANON-LAYOUT-001" || rules[1] != "" {
		t.Fatalf("unexpected check observations: %q", rules)
	}
}

func TestMapErr_RoundTripsSentinels(t *testing.T) {
	for _, want := range []error{storage.ErrNotFound, storage.ErrInvalidCID, storage.ErrCIDMismatch, storage.ErrImmutable, storage.ErrNotCanonical} {
		if got := mapRPC(mapErr(want)); !errors.Is(got, want) {
			t.Fatalf("%v came back as %v", want, got)
		}
	}
}

func TestGRPCCAS_CheckReturnsVerdict(t *testing.T) {
	var rules []string
	backing := newLocal(t)
	client := startServer(t, &Server{
		CAS:     backing,
		OnCheck: func(rule string) { rules = append(rules, rule) },
	})

	value := wiretest.Struct{Data: []uint64{5}, Pointers: []wiretest.Node{wiretest.Struct{Data: []uint64{6}}}}
	gapped, err := wire.Marshal(wiretest.MustLayout(value, wiretest.LayoutOptions{Gap: 2}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	v, err := client.Check(gapped)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if v.Canonical || v.Kind != "NotCanonical" || v.Rule != "CANON-LAYOUT-001" || v.Reason == "" {
		t.Fatalf("unexpected verdict %+v", v)
	}

	good, err := wire.Marshal(wiretest.MustLayout(value, wiretest.LayoutOptions{}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if v, err = client.Check(good); err != nil || v != (Verdict{Canonical: true}) {
		t.Fatalf("Check(canonical) = %+v, %v", v, err)
	}

	v, err = client.Check([]byte("junk"))
	if err != nil {
		t.Fatalf("Check(junk): %v", err)
	}
	if v.Canonical || v.Kind != "Decode" {
		t.Fatalf("unexpected verdict for junk %+v", v)
	}

	id, err := cidutil.CIDv1RawSHA256CID(good)
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	if backing.Has(id) {
		t.Fatalf("Check must not store the payload")
	}
	if len(rules) != 3 || rules[1] != "" {
		t.Fatalf("unexpected check observations: %q", rules)
	}
}
