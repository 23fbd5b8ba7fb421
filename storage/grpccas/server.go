package grpccas

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/capcanon/canon"
	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/storage"
	"xdao.co/capcanon/wire"
)

// Server exposes a storage.CAS over the CAS gRPC service.
type Server struct {
	UnimplementedCASServer
	CAS storage.CAS

	// RequireCanonical rejects Put payloads that are not canonical messages
	// with codes.InvalidArgument.
	RequireCanonical bool
	// ReaderOptions bound the decoding done for RequireCanonical.
	ReaderOptions []wire.Option
	// OnCheck, if set, observes every canonical check with the violated
	// rule ID, or "" when the payload passed.
	OnCheck func(rule string)
}

func (s *Server) check(b []byte) error {
	err := canon.CheckBytes(b, s.ReaderOptions...)
	if s.OnCheck != nil {
		s.OnCheck(canon.RuleID(err))
	}
	return err
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	b := in.GetValue()
	if s.RequireCanonical {
		if err := s.check(b); err != nil {
			storage.Logger().Info("grpccas: rejected put",
				zap.String("rule", canon.RuleID(err)),
				zap.Int("bytes", len(b)),
				zap.Error(err),
			)
			return nil, notCanonical(err)
		}
	}
	id, err := s.CAS.Put(b)
	if err != nil {
		return nil, mapErr(err)
	}
	// The backend must name exactly the bytes it was given.
	if err := verify(id, b); err != nil {
		return nil, err
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	b, err := s.CAS.Get(id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := verify(id, b); err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return wrapperspb.Bool(s.CAS.Has(id)), nil
}

// Check reports whether the payload is a canonical message without storing
// it. A non-canonical payload is a verdict, not an RPC error.
func (s *Server) Check(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if s == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing server")
	}
	err := s.check(in.GetValue())
	verdict := map[string]any{"canonical": err == nil}
	if err != nil {
		var ce *canon.Error
		if !errors.As(err, &ce) {
			return nil, status.Error(codes.Internal, err.Error())
		}
		verdict["kind"] = string(ce.Kind)
		verdict["rule"] = ce.RuleID
		verdict["reason"] = ce.Message
	}
	out, err := structpb.NewStruct(verdict)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func verify(id cid.Cid, b []byte) error {
	ok, err := cidutil.Matches(id, b)
	if err != nil {
		return status.Error(codes.Internal, "cid computation failed")
	}
	if !ok {
		return status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return nil
}

// notCanonical carries the violated rule after the sentinel text so clients
// can tell it apart from a malformed CID.
func notCanonical(cause error) error {
	msg := storage.ErrNotCanonical.Error()
	if rule := canon.RuleID(cause); rule != "" {
		msg += ": " + rule
	}
	return status.Error(codes.InvalidArgument, msg)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, storage.ErrNotFound.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	case errors.Is(err, storage.ErrNotCanonical):
		return notCanonical(err)
	case errors.Is(err, storage.ErrCIDMismatch):
		return status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	case errors.Is(err, storage.ErrImmutable):
		return status.Error(codes.AlreadyExists, storage.ErrImmutable.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
