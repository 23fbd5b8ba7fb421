// Package bundle moves blocks between stores as a deterministic TAR archive.
//
// Layout:
//
//	blocks/<cid>   one regular file per block, named by its CID string
//	index.json     optional, non-authoritative summary of the blocks
//
// Entries are sorted by CID and headers are normalized, so exporting the
// same set of blocks always yields the same archive bytes.
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"xdao.co/capcanon/canon"
	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/storage"
	"xdao.co/capcanon/wire"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to CIDs.
	Labels map[string]cid.Cid
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export writes a deterministic TAR bundle containing the blocks for the given CIDs.
//
// Every exported block is checked against its CID before it is written.
func Export(w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) (err error) {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}

	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	cidStrings := make([]string, 0, len(uniq))
	for s := range uniq {
		cidStrings = append(cidStrings, s)
	}
	sort.Strings(cidStrings)

	tw := tar.NewWriter(w)
	defer func() {
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
	}()

	blocks := make([]indexBlock, 0, len(cidStrings))
	for _, s := range cidStrings {
		id := uniq[s]
		b, err := cas.Get(id)
		if err != nil {
			return err
		}
		ok, err := cidutil.Matches(id, b)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrCIDMismatch
		}
		h, _ := cidutil.HashAlgOf(id)

		if err := writeFile(tw, "blocks/"+s, b); err != nil {
			return err
		}
		blocks = append(blocks, indexBlock{
			CID:       s,
			Size:      len(b),
			Multihash: string(h),
			Canonical: canon.CheckBytes(b) == nil,
		})
	}

	if !opts.IncludeIndex {
		return nil
	}
	idx := indexJSON{
		Version:  FormatVersion,
		CIDCodec: "raw",
		Blocks:   blocks,
	}
	if len(opts.Labels) > 0 {
		names := make([]string, 0, len(opts.Labels))
		for k := range opts.Labels {
			names = append(names, k)
		}
		sort.Strings(names)

		idx.Labels = make([]indexLabel, 0, len(names))
		for _, k := range names {
			if k == "" {
				return fmt.Errorf("bundle: empty label key")
			}
			v := opts.Labels[k]
			if !v.Defined() {
				return storage.ErrInvalidCID
			}
			idx.Labels = append(idx.Labels, indexLabel{Name: k, CID: v.String()})
		}
	}

	b, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return writeFile(tw, "index.json", append(b, '\n'))
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool

	// RequireCanonical rejects any block that is not a canonical message.
	// The error wraps storage.ErrNotCanonical.
	RequireCanonical bool
	// ReaderOptions bound the decoding done for RequireCanonical.
	ReaderOptions []wire.Option
}

// Import reads a bundle from r and imports all blocks into cas, failing on
// unknown entries.
func Import(r io.Reader, cas storage.CAS) ([]cid.Cid, error) {
	return ImportWithOptions(r, cas, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and imports all blocks into cas.
// It returns the CIDs imported, in archive order.
//
// Each block's bytes must match the CID in its entry name, and cas must
// store it under that same CID.
func ImportWithOptions(r io.Reader, cas storage.CAS, opts ImportOptions) ([]cid.Cid, error) {
	if cas == nil {
		return nil, fmt.Errorf("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var imported []cid.Cid

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return imported, nil
		}
		if err != nil {
			return imported, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return imported, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "index.json" {
			continue
		}
		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, derr := cid.Decode(strings.TrimPrefix(name, "blocks/"))
		if derr != nil || !id.Defined() {
			return imported, storage.ErrInvalidCID
		}
		key := id.String()
		if _, ok := seen[key]; ok {
			return imported, fmt.Errorf("bundle: duplicate block entry: %s", key)
		}
		seen[key] = struct{}{}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return imported, err
		}
		ok, err := cidutil.Matches(id, payload)
		if err != nil {
			return imported, err
		}
		if !ok {
			return imported, storage.ErrCIDMismatch
		}
		if opts.RequireCanonical {
			if err := canon.CheckBytes(payload, opts.ReaderOptions...); err != nil {
				storage.Logger().Info("bundle: rejected block",
					zap.String("cid", key), zap.String("rule", canon.RuleID(err)))
				return imported, fmt.Errorf("bundle: block %s: %w: %w", key, storage.ErrNotCanonical, err)
			}
		}

		putID, err := cas.Put(payload)
		if err != nil {
			return imported, err
		}
		if !putID.Equals(id) {
			return imported, fmt.Errorf("bundle: store named block %s as %s: %w", key, putID, storage.ErrCIDMismatch)
		}
		imported = append(imported, id)
	}
}

type indexJSON struct {
	Version  int          `json:"version"`
	CIDCodec string       `json:"cidCodec"`
	Blocks   []indexBlock `json:"blocks"`
	Labels   []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID       string `json:"cid"`
	Size      int    `json:"size"`
	Multihash string `json:"multihash"`
	// Canonical records whether the block is a canonical message.
	Canonical bool `json:"canonical"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
