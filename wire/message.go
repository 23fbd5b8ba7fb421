package wire

import (
	"encoding/binary"
	"fmt"
)

// WordSize is the size of one word in bytes.
const WordSize = 8

// ReaderOptions bound the work done while following pointers.
//
// NestingLimit caps the depth of objects reachable from the root.
// TraversalLimitWords caps the total number of words dereferenced while
// reading one message, which guards against amplification through
// overlapping pointers.
type ReaderOptions struct {
	NestingLimit        int
	TraversalLimitWords uint64
}

const (
	DefaultNestingLimit        = 64
	DefaultTraversalLimitWords = 8 * 1024 * 1024
)

func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{
		NestingLimit:        DefaultNestingLimit,
		TraversalLimitWords: DefaultTraversalLimitWords,
	}
}

// Option adjusts ReaderOptions.
type Option func(*ReaderOptions)

func WithNestingLimit(n int) Option {
	return func(o *ReaderOptions) { o.NestingLimit = n }
}

// WithTraversalLimit sets the traversal budget in words. Zero disables the limit.
func WithTraversalLimit(words uint64) Option {
	return func(o *ReaderOptions) { o.TraversalLimitWords = words }
}

// WithOptions replaces the options wholesale.
func WithOptions(opts ReaderOptions) Option {
	return func(o *ReaderOptions) { *o = opts }
}

// Segment is a flat array of little-endian words.
type Segment struct {
	id   uint32
	data []byte
}

func (s *Segment) ID() uint32 { return s.id }

// Len returns the segment length in words.
func (s *Segment) Len() int { return len(s.data) / WordSize }

// Data returns the backing bytes. Callers must not modify them.
func (s *Segment) Data() []byte { return s.data }

// Word returns word i. The caller is responsible for bounds.
func (s *Segment) Word(i int) uint64 {
	return binary.LittleEndian.Uint64(s.data[i*WordSize:])
}

// Bytes returns the bytes of words [start, start+words).
func (s *Segment) Bytes(start, words int) []byte {
	return s.data[start*WordSize : (start+words)*WordSize]
}

func (s *Segment) contains(start int, words uint64) bool {
	return start >= 0 && uint64(start)+words <= uint64(s.Len())
}

// Message is an immutable sequence of segments.
type Message struct {
	segs []*Segment
	opts ReaderOptions
}

// NewMessage wraps segment byte slices without copying. Every segment must
// be a whole number of words. A message with no segments is representable
// so that it can be checked; reading its root fails with ErrNoSegments.
func NewMessage(segments [][]byte, opts ...Option) (*Message, error) {
	o := DefaultReaderOptions()
	for _, opt := range opts {
		opt(&o)
	}
	m := &Message{segs: make([]*Segment, 0, len(segments)), opts: o}
	for i, b := range segments {
		if len(b)%WordSize != 0 {
			return nil, fmt.Errorf("%w: segment %d has %d bytes", ErrMisaligned, i, len(b))
		}
		m.segs = append(m.segs, &Segment{id: uint32(i), data: b})
	}
	return m, nil
}

// NewMessageFromWords builds a message from word slices. It is mostly
// useful for fixtures.
func NewMessageFromWords(segments [][]uint64, opts ...Option) (*Message, error) {
	raw := make([][]byte, len(segments))
	for i, words := range segments {
		b := make([]byte, len(words)*WordSize)
		for j, w := range words {
			binary.LittleEndian.PutUint64(b[j*WordSize:], w)
		}
		raw[i] = b
	}
	return NewMessage(raw, opts...)
}

func (m *Message) NumSegments() int { return len(m.segs) }

// Segment returns segment id, or nil if it does not exist.
func (m *Message) Segment(id uint32) *Segment {
	if uint64(id) >= uint64(len(m.segs)) {
		return nil
	}
	return m.segs[id]
}

func (m *Message) Options() ReaderOptions { return m.opts }

// Root resolves the root pointer stored in word 0 of segment 0. Each call
// starts a fresh traversal budget.
func (m *Message) Root() (Ptr, error) {
	if len(m.segs) == 0 {
		return Ptr{}, ErrNoSegments
	}
	seg := m.segs[0]
	if seg.Len() == 0 {
		return Ptr{}, fmt.Errorf("%w: root pointer missing", ErrOutOfBounds)
	}
	r := &reader{msg: m, budget: m.opts.TraversalLimitWords, limited: m.opts.TraversalLimitWords != 0}
	return r.readPointer(seg, 0, m.opts.NestingLimit)
}
