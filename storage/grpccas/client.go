package grpccas

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/storage"
)

// Client implements storage.CAS over a CAS gRPC service.
//
// Replies are not trusted: every CID the server returns is checked against
// the bytes it names, using the hash recorded in the CID.
type Client struct {
	cc     *grpc.ClientConn
	client CASClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewCASClient(cc), Timeout: 0}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Put(data []byte) (cid.Cid, error) {
	if c == nil || c.client == nil {
		return cid.Undef, storage.ErrNotFound
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Put(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	id, err := cid.Decode(reply.GetValue())
	if err != nil || !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	if err := check(id, data); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

func (c *Client) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return nil, mapRPC(err)
	}
	b := reply.GetValue()
	if err := check(id, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Client) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return false
	}
	return reply.GetValue()
}

// Verdict is the server's answer to Check. Kind, Rule and Reason are empty
// when Canonical is true.
type Verdict struct {
	Canonical bool
	Kind      string
	Rule      string
	Reason    string
}

// Check asks the server whether data is a canonical message. Nothing is
// stored.
func (c *Client) Check(data []byte) (Verdict, error) {
	if c == nil || c.client == nil {
		return Verdict{}, storage.ErrNotFound
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Check(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return Verdict{}, mapRPC(err)
	}
	f := reply.GetFields()
	return Verdict{
		Canonical: f["canonical"].GetBoolValue(),
		Kind:      f["kind"].GetStringValue(),
		Rule:      f["rule"].GetStringValue(),
		Reason:    f["reason"].GetStringValue(),
	}, nil
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.Timeout)
}

func check(id cid.Cid, data []byte) error {
	ok, err := cidutil.Matches(id, data)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrCIDMismatch
	}
	return nil
}
