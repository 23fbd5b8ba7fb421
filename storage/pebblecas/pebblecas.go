// Package pebblecas stores blocks in a local Pebble key-value store, keyed
// by the binary CID.
package pebblecas

import (
	"bytes"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/storage"
)

// CAS is a Pebble-backed content-addressable store.
type CAS struct {
	db   *pebble.DB
	hash cidutil.HashAlg
	sync bool

	// Serializes the check-then-set in Put.
	mu sync.Mutex
}

type Options struct {
	// Hash names new blocks. If empty, cidutil.SHA2_256 is used.
	Hash cidutil.HashAlg
	// NoSync skips the fsync on each Put.
	NoSync bool
}

// Open opens or creates the store at path.
func Open(path string, opts Options) (*CAS, error) {
	if path == "" {
		return nil, errors.New("pebblecas: path is required")
	}
	h, err := cidutil.ParseHashAlg(string(opts.Hash))
	if err != nil {
		return nil, err
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &CAS{db: db, hash: h, sync: !opts.NoSync}, nil
}

func (c *CAS) Close() error {
	return c.db.Close()
}

func (c *CAS) Put(data []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1Raw(data, c.hash)
	if err != nil {
		return cid.Undef, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.get(id)
	switch {
	case err == nil:
		if !bytes.Equal(existing, data) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	case !errors.Is(err, storage.ErrNotFound):
		return cid.Undef, err
	}

	wo := pebble.NoSync
	if c.sync {
		wo = pebble.Sync
	}
	if err := c.db.Set(id.Bytes(), data, wo); err != nil {
		return cid.Undef, err
	}
	storage.Logger().Debug("pebblecas: stored block", zap.Stringer("cid", id), zap.Int("bytes", len(data)))
	return id, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := c.get(id)
	if err != nil {
		return nil, err
	}
	ok, err := cidutil.Matches(id, b)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) get(id cid.Cid) ([]byte, error) {
	v, closer, err := c.db.Get(id.Bytes())
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	// v is only valid until closer.Close.
	return append([]byte{}, v...), nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, closer, err := c.db.Get(id.Bytes())
	if err != nil {
		return false
	}
	_ = closer.Close()
	return true
}
