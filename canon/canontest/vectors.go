// Package canontest reads the conformance vectors kept under
// testdata/conformance/canon.
package canontest

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"xdao.co/capcanon/wire"
)

// Manifest is the vectors.json document.
type Manifest struct {
	Version int      `json:"version"`
	Hash    string   `json:"hash"`
	Vectors []Vector `json:"vectors"`
}

// Vector is one input message and what the library must say about it.
//
// CheckKind and Rule are empty when the input is canonical. Canonical and
// CID are set when canonicalization succeeds; EncodeKind is set when it
// fails.
type Vector struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Segments    [][]string `json:"segments"`
	CheckKind   string     `json:"check_kind,omitempty"`
	Rule        string     `json:"rule,omitempty"`
	Canonical   []string   `json:"canonical,omitempty"`
	CID         string     `json:"cid,omitempty"`
	EncodeKind  string     `json:"encode_kind,omitempty"`
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%s: %w", path, err)
	}
	if m.Version != 1 {
		return m, fmt.Errorf("%s: unsupported version %d", path, m.Version)
	}
	return m, nil
}

// Message decodes the vector's segments.
func (v Vector) Message(opts ...wire.Option) (*wire.Message, error) {
	segs := make([][]uint64, len(v.Segments))
	for i, s := range v.Segments {
		words, err := ParseWords(s)
		if err != nil {
			return nil, fmt.Errorf("%s: segment %d: %w", v.Name, i, err)
		}
		segs[i] = words
	}
	return wire.NewMessageFromWords(segs, opts...)
}

// ParseWords reads words written by FormatWords.
func ParseWords(hex []string) ([]uint64, error) {
	out := make([]uint64, len(hex))
	for i, h := range hex {
		w, err := strconv.ParseUint(h, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("word %d: %w", i, err)
		}
		out[i] = w
	}
	return out, nil
}

// FormatWords renders each word as 16 hex digits.
func FormatWords(words []uint64) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = fmt.Sprintf("%016x", w)
	}
	return out
}
