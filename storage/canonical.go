package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"xdao.co/capcanon/canon"
	"xdao.co/capcanon/compliance"
	"xdao.co/capcanon/wire"
)

// CanonicalCAS admits only canonical messages into the wrapped CAS.
//
// In Strict mode Put rejects framed messages that are not already canonical.
// In Permissive mode Put stores the canonical re-encoding instead, so the
// returned CID names the canonical bytes rather than the bytes supplied.
// Either way two layouts of the same value land on one CID.
type CanonicalCAS struct {
	CAS  CAS
	Mode compliance.ComplianceMode
	// ReaderOptions bound the work done decoding untrusted payloads.
	ReaderOptions []wire.Option
}

var _ CAS = CanonicalCAS{}

func (c CanonicalCAS) Put(bytes []byte) (cid.Cid, error) {
	if c.CAS == nil {
		return cid.Undef, fmt.Errorf("storage: CanonicalCAS has no backing CAS")
	}
	out, err := canon.Apply(c.Mode, bytes, c.ReaderOptions...)
	if err != nil {
		Logger().Info("rejected non-canonical block",
			zap.Stringer("mode", c.Mode),
			zap.String("rule", canon.RuleID(err)),
			zap.Int("bytes", len(bytes)),
			zap.Error(err),
		)
		return cid.Undef, fmt.Errorf("%w: %w", ErrNotCanonical, err)
	}
	if len(out) != len(bytes) {
		Logger().Debug("stored canonical re-encoding",
			zap.Int("in_bytes", len(bytes)),
			zap.Int("out_bytes", len(out)),
		)
	}
	return c.CAS.Put(out)
}

func (c CanonicalCAS) Get(id cid.Cid) ([]byte, error) {
	if c.CAS == nil {
		return nil, ErrNotFound
	}
	return c.CAS.Get(id)
}

func (c CanonicalCAS) Has(id cid.Cid) bool {
	return c.CAS != nil && c.CAS.Has(id)
}
