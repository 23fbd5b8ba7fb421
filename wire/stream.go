package wire

import (
	"encoding/binary"
	"fmt"
)

// MaxStreamSegments bounds the segment table of a framed message.
const MaxStreamSegments = 512

// Marshal frames msg in the standard stream layout: a uint32 holding the
// segment count minus one, a uint32 word count per segment, padding to a
// word boundary, then the segments in order.
func Marshal(msg *Message) ([]byte, error) {
	n := msg.NumSegments()
	if n == 0 {
		return nil, ErrNoSegments
	}
	if n > MaxStreamSegments {
		return nil, fmt.Errorf("%w: %d segments", ErrFraming, n)
	}
	hdr := headerBytes(n)
	total := hdr
	for _, s := range msg.segs {
		total += len(s.data)
	}
	out := make([]byte, total)
	binary.LittleEndian.PutUint32(out, uint32(n-1))
	pos := hdr
	for i, s := range msg.segs {
		binary.LittleEndian.PutUint32(out[4+4*i:], uint32(s.Len()))
		pos += copy(out[pos:], s.data)
	}
	return out, nil
}

// Unmarshal parses a framed message. Segments alias data. Trailing bytes
// after the last segment are rejected.
func Unmarshal(data []byte, opts ...Option) (*Message, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: missing segment count", ErrTruncated)
	}
	first := binary.LittleEndian.Uint32(data)
	if first >= MaxStreamSegments {
		return nil, fmt.Errorf("%w: %d segments", ErrFraming, uint64(first)+1)
	}
	n := int(first) + 1
	hdr := headerBytes(n)
	if len(data) < hdr {
		return nil, fmt.Errorf("%w: segment table", ErrTruncated)
	}
	segs := make([][]byte, n)
	pos := hdr
	for i := 0; i < n; i++ {
		words := uint64(binary.LittleEndian.Uint32(data[4+4*i:]))
		size := words * WordSize
		if uint64(len(data)-pos) < size {
			return nil, fmt.Errorf("%w: segment %d needs %d bytes", ErrTruncated, i, size)
		}
		segs[i] = data[pos : pos+int(size) : pos+int(size)]
		pos += int(size)
	}
	if pos != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrFraming, len(data)-pos)
	}
	return NewMessage(segs, opts...)
}

func headerBytes(segments int) int {
	h := 4 * (segments + 1)
	return (h + WordSize - 1) &^ (WordSize - 1)
}
