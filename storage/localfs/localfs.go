package localfs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/storage"
)

// CAS is a local filesystem-backed content-addressable store.
//
// Blocks are written once, read-only, under root/<cid[:2]>/<cid>. Reads are
// verified against the hash recorded in the requested CID, so a directory
// may hold blocks written with different hash choices.
type CAS struct {
	root string
	hash cidutil.HashAlg
}

// Option configures a CAS.
type Option func(*CAS)

// WithHash selects the hash used to name blocks on Put. The default is
// cidutil.SHA2_256.
func WithHash(h cidutil.HashAlg) Option {
	return func(c *CAS) { c.hash = h }
}

// New constructs a filesystem CAS rooted at root. The directory will be created if needed.
func New(root string, opts ...Option) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	c := &CAS{root: root, hash: cidutil.SHA2_256}
	for _, o := range opts {
		o(c)
	}
	if _, err := cidutil.ParseHashAlg(string(c.hash)); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CAS) Put(data []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1Raw(data, c.hash)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	path := c.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := c.Get(id)
			// An unreadable or corrupted existing block is never repaired.
			if rerr != nil || !bytes.Equal(existing, data) {
				storage.Logger().Warn("localfs: existing block differs", zap.Stringer("cid", id), zap.String("path", path))
				return cid.Undef, storage.ErrImmutable
			}
			return id, nil
		}
		return cid.Undef, err
	}

	if err := writeAndSync(f, data); err != nil {
		_ = os.Remove(path)
		return cid.Undef, err
	}
	storage.Logger().Debug("localfs: stored block", zap.Stringer("cid", id), zap.Int("bytes", len(data)))
	return id, nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(c.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
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

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func (c *CAS) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(c.root, s)
	}
	return filepath.Join(c.root, s[:2], s)
}
