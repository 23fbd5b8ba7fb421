package wire

import (
	"encoding/binary"
	"fmt"
)

// Builder accumulates a single growing segment. Word 0 is reserved for
// the root pointer; Alloc hands out zeroed words after it in order.
//
// A Builder is owned by one writer at a time.
type Builder struct {
	buf []byte
}

func NewBuilder() *Builder {
	return &Builder{buf: make([]byte, WordSize, 64*WordSize)}
}

// Len returns the number of words allocated so far, including the root slot.
func (b *Builder) Len() int { return len(b.buf) / WordSize }

// Fresh reports whether nothing has been written beyond an empty root slot.
func (b *Builder) Fresh() bool {
	return b.Len() == 1 && b.Word(0) == 0
}

// Alloc appends words zeroed words and returns the index of the first.
func (b *Builder) Alloc(words int) int {
	start := b.Len()
	n := words * WordSize
	if cap(b.buf)-len(b.buf) < n {
		grown := make([]byte, len(b.buf), 2*cap(b.buf)+n)
		copy(grown, b.buf)
		b.buf = grown
	}
	b.buf = b.buf[:len(b.buf)+n]
	clear(b.buf[start*WordSize:])
	return start
}

func (b *Builder) Word(i int) uint64 {
	return binary.LittleEndian.Uint64(b.buf[i*WordSize:])
}

func (b *Builder) SetWord(i int, w uint64) {
	binary.LittleEndian.PutUint64(b.buf[i*WordSize:], w)
}

// CopyBytes copies src into the segment starting at word i.
func (b *Builder) CopyBytes(i int, src []byte) {
	copy(b.buf[i*WordSize:], src)
}

// SetPointer writes a struct or list pointer in slot at that targets the
// object starting at word target.
func (b *Builder) SetPointer(at, target int, p Pointer) error {
	off := target - (at + 1)
	if off < MinOffset || off > MaxOffset {
		return fmt.Errorf("%w: %d", ErrOffsetRange, off)
	}
	p.Offset = int32(off)
	b.SetWord(at, p.Encode())
	return nil
}

// Reset discards everything written, leaving a fresh builder.
func (b *Builder) Reset() {
	b.buf = b.buf[:WordSize]
	clear(b.buf)
}

// Segment returns a copy of the segment bytes.
func (b *Builder) Segment() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// Message returns a single-segment message holding a copy of the builder
// contents.
func (b *Builder) Message(opts ...Option) (*Message, error) {
	return NewMessage([][]byte{b.Segment()}, opts...)
}
