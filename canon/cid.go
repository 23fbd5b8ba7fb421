package canon

import (
	"github.com/ipfs/go-cid"

	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/wire"
)

// CID derives the content ID of framed bytes that are already canonical.
// Non-canonical input is rejected rather than silently normalized, so an ID
// always names exactly the bytes it was computed from.
func CID(framed []byte, h cidutil.HashAlg, opts ...wire.Option) (cid.Cid, error) {
	if err := CheckBytes(framed, opts...); err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.CIDv1Raw(framed, h)
	if err != nil {
		return cid.Undef, wrapError(KindCID, ruleCID, "cid derivation failed", err)
	}
	return id, nil
}

// MessageCID canonicalizes msg and derives the content ID of the result.
// Every layout of the same value yields the same ID.
func MessageCID(msg *wire.Message, h cidutil.HashAlg) (cid.Cid, error) {
	b, err := CanonicalBytes(msg)
	if err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.CIDv1Raw(b, h)
	if err != nil {
		return cid.Undef, wrapError(KindCID, ruleCID, "cid derivation failed", err)
	}
	return id, nil
}
