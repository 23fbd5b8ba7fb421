//go:build fuzz
// +build fuzz

package canon

import (
	"bytes"
	"testing"

	"xdao.co/capcanon/wire"
)

// FuzzNormalize feeds arbitrary framed bytes through the encoder. Whatever
// decodes must come out canonical and stable.
func FuzzNormalize(f *testing.F) {
	f.Add([]byte{0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	f.Add([]byte{0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	f.Add([]byte{
		0, 0, 0, 0, 6, 0, 0, 0,
		0x01, 0, 0, 0, 0x27, 0, 0, 0,
		0x08, 0, 0, 0, 0x02, 0, 0, 0,
		0, 1, 2, 3, 4, 5, 6, 7,
		0, 0, 0, 0, 0, 0, 0, 0,
		7, 6, 5, 4, 3, 2, 1, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
	})

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) > 1<<16 {
			t.Skip("input too large")
		}
		out, err := Normalize(data, wire.WithTraversalLimit(1<<16))
		if err != nil {
			return
		}
		if err := CheckBytes(out); err != nil {
			t.Fatalf("normalized output rejected: %v", err)
		}
		again, err := Normalize(out)
		if err != nil {
			t.Fatalf("normalizing canonical output: %v", err)
		}
		if !bytes.Equal(out, again) {
			t.Fatalf("normalize is not idempotent")
		}
	})
}
