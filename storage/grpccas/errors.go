package grpccas

import (
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/capcanon/storage"
)

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		// The server uses InvalidArgument both for malformed CIDs and for
		// rejected payloads; the message prefix tells them apart.
		if rest, ok := strings.CutPrefix(st.Message(), storage.ErrNotCanonical.Error()); ok {
			if rule := strings.TrimPrefix(rest, ": "); rule != "" {
				return fmt.Errorf("%w (%s)", storage.ErrNotCanonical, rule)
			}
			return storage.ErrNotCanonical
		}
		return storage.ErrInvalidCID
	case codes.DataLoss:
		return storage.ErrCIDMismatch
	case codes.AlreadyExists:
		return storage.ErrImmutable
	default:
		switch st.Message() {
		case storage.ErrNotFound.Error():
			return storage.ErrNotFound
		case storage.ErrInvalidCID.Error():
			return storage.ErrInvalidCID
		case storage.ErrCIDMismatch.Error():
			return storage.ErrCIDMismatch
		default:
			return err
		}
	}
}
