package model

import (
	"bytes"
	"errors"

	"github.com/ipfs/go-cid"

	"xdao.co/capcanon/canon"
	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/compliance"
	"xdao.co/capcanon/keys"
	"xdao.co/capcanon/storage"
	"xdao.co/capcanon/wire"
)

// Options supplies the stores used to hydrate BlobRefs given by CID.
// CASAdapters are tried in order when CAS is nil.
type Options struct {
	CAS         storage.CAS
	CASAdapters []storage.CAS
}

func (o Options) store() storage.CAS {
	if o.CAS != nil {
		return o.CAS
	}
	if len(o.CASAdapters) > 0 {
		return storage.MultiCAS{Adapters: o.CASAdapters}
	}
	return nil
}

// Check reports whether the referenced message is canonical. A message that
// breaks a layout rule is a successful CheckResult; only undecodable input,
// exceeded limits and hydration failures are errors.
func Check(req CheckRequest, opts Options) (*CheckResult, error) {
	b, err := hydrate(req.Message, opts)
	if err != nil {
		return nil, err
	}
	res := &CheckResult{Bytes: len(b)}
	err = canon.CheckBytes(b, req.Limits.options()...)
	switch {
	case err == nil:
		res.Canonical = true
	case canon.IsKind(err, canon.KindNotCanonical):
		var ce *canon.Error
		errors.As(err, &ce)
		res.RuleID = ce.RuleID
		res.Reason = ce.Message
	default:
		return nil, mapErr(err)
	}
	return res, nil
}

// Canonicalize applies the requested compliance mode to the referenced
// message and names the result.
func Canonicalize(req CanonicalizeRequest, opts Options) (*CanonicalizeResult, error) {
	mode, err := toCompliance(req.Compliance)
	if err != nil {
		return nil, err
	}
	h, err := cidutil.ParseHashAlg(req.Hash)
	if err != nil {
		return nil, NewError(ErrInvalidRequest, err.Error())
	}
	b, err := hydrate(req.Message, opts)
	if err != nil {
		return nil, err
	}
	out, err := canon.Apply(mode, b, req.Limits.options()...)
	if err != nil {
		return nil, mapErr(err)
	}
	id, err := cidutil.CIDv1Raw(out, h)
	if err != nil {
		return nil, mapErr(err)
	}
	return &CanonicalizeResult{
		Bytes:       out,
		CID:         id.String(),
		Hash:        string(h),
		Changed:     !bytes.Equal(out, b),
		InputBytes:  len(b),
		OutputBytes: len(out),
	}, nil
}

// NewSignatureDoc describes sig over the canonical bytes named by id.
func NewSignatureDoc(sig canon.Signature, id cid.Cid) SignatureDoc {
	return SignatureDoc{
		IssuerKey: sig.IssuerKey,
		HashAlg:   sig.HashAlg,
		Signature: sig.Value,
		CID:       id.String(),
	}
}

// CanonSignature converts the document back for canon.VerifySignature.
func (d SignatureDoc) CanonSignature() canon.Signature {
	return canon.Signature{IssuerKey: d.IssuerKey, HashAlg: d.HashAlg, Value: d.Signature}
}

func hydrate(ref BlobRef, opts Options) ([]byte, error) {
	if len(ref.Bytes) > 0 && ref.CID != "" {
		return nil, NewError(ErrInvalidRequest, "blob ref has both bytes and cid")
	}
	if len(ref.Bytes) > 0 {
		return ref.Bytes, nil
	}
	if ref.CID == "" {
		return nil, NewError(ErrInvalidRequest, "blob ref missing bytes/cid")
	}
	id, err := cid.Decode(ref.CID)
	if err != nil {
		return nil, NewError(ErrInvalidCID, "invalid cid")
	}
	cas := opts.store()
	if cas == nil {
		return nil, NewError(ErrMissingCAS, "blob ref by cid needs a CAS")
	}
	b, err := cas.Get(id)
	if err != nil {
		return nil, mapErr(err)
	}
	return b, nil
}

func (l ReaderLimits) options() []wire.Option {
	var opts []wire.Option
	if l.NestingLimit > 0 {
		opts = append(opts, wire.WithNestingLimit(l.NestingLimit))
	}
	if l.TraversalLimitWords > 0 {
		opts = append(opts, wire.WithTraversalLimit(l.TraversalLimitWords))
	}
	return opts
}

func toCompliance(m ComplianceMode) (compliance.ComplianceMode, error) {
	switch m {
	case CompliancePermissive:
		return compliance.Permissive, nil
	case ComplianceStrict:
		return compliance.Strict, nil
	case "":
		return 0, NewError(ErrInvalidRequest, "missing compliance mode")
	default:
		return 0, NewError(ErrInvalidRequest, "invalid compliance mode")
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce
	}
	var cerr *canon.Error
	if errors.As(err, &cerr) {
		out := &CodedError{RuleID: cerr.RuleID, Message: err.Error()}
		switch cerr.Kind {
		case canon.KindNotCanonical:
			out.Code = ErrNotCanonical
		case canon.KindCapability:
			out.Code = ErrCapability
		case canon.KindDecode:
			out.Code = ErrDecode
		case canon.KindResource:
			out.Code = ErrResourceLimit
		case canon.KindCrypto:
			out.Code = ErrBadSignature
		default:
			out.Code = ErrInternal
		}
		return out
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NewError(ErrNotFound, err.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return NewError(ErrCIDMismatch, err.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return NewError(ErrInvalidCID, err.Error())
	case errors.Is(err, keys.ErrBadSignature):
		return NewError(ErrBadSignature, err.Error())
	case wire.IsLimit(err):
		return NewError(ErrResourceLimit, err.Error())
	case errors.Is(err, wire.ErrFraming), errors.Is(err, wire.ErrTruncated),
		errors.Is(err, wire.ErrMisaligned), errors.Is(err, wire.ErrNoSegments):
		return NewError(ErrDecode, err.Error())
	}
	return NewError(ErrInternal, err.Error())
}

// AsCodedError converts any error from this module into a CodedError.
func AsCodedError(err error) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	errors.As(mapErr(err), &ce)
	return ce
}
