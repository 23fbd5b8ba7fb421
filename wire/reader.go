package wire

import "fmt"

// reader carries the traversal budget of one read pass over a message.
type reader struct {
	msg     *Message
	budget  uint64
	limited bool
}

func (r *reader) charge(words uint64) error {
	if !r.limited {
		return nil
	}
	if words > r.budget {
		r.budget = 0
		return ErrTraversalLimit
	}
	r.budget -= words
	return nil
}

// Ptr is a resolved pointer: null, a struct, a list or a capability.
// Far pointers never surface here; they are followed during resolution.
type Ptr struct {
	kind     PointerKind
	s        Struct
	l        List
	capIndex uint32
}

func (p Ptr) Kind() PointerKind { return p.kind }
func (p Ptr) IsNull() bool      { return p.kind == KindNull }

// Struct returns the struct view. Valid only when Kind is KindStruct.
func (p Ptr) Struct() Struct { return p.s }

// List returns the list view. Valid only when Kind is KindList.
func (p Ptr) List() List { return p.l }

func (p Ptr) CapabilityIndex() uint32 { return p.capIndex }

func (r *reader) readPointer(seg *Segment, at int, depth int) (Ptr, error) {
	w := seg.Word(at)
	p := DecodePointer(w)
	switch p.Kind {
	case KindNull:
		return Ptr{}, nil
	case KindCapability:
		return Ptr{kind: KindCapability, capIndex: p.CapabilityIndex}, nil
	case KindOther:
		return Ptr{}, fmt.Errorf("%w: unknown pointer word %#016x at %d/%d", ErrMalformedPointer, w, seg.id, at)
	case KindFar:
		tseg, content, target, err := r.followFar(p)
		if err != nil {
			return Ptr{}, err
		}
		if content.Kind == KindNull {
			return Ptr{}, nil
		}
		return r.readTarget(tseg, content, target, depth)
	default:
		return r.readTarget(seg, p, at+1+int(p.Offset), depth)
	}
}

// followFar resolves a far pointer to the content pointer it lands on and
// the absolute word position of the object.
func (r *reader) followFar(p Pointer) (*Segment, Pointer, int, error) {
	pad := r.msg.Segment(p.SegmentID)
	if pad == nil {
		return nil, Pointer{}, 0, fmt.Errorf("%w: far pointer to missing segment %d", ErrOutOfBounds, p.SegmentID)
	}
	at := int(p.Offset)
	if !p.DoubleFar {
		if !pad.contains(at, 1) {
			return nil, Pointer{}, 0, fmt.Errorf("%w: landing pad %d/%d", ErrOutOfBounds, pad.id, at)
		}
		c := DecodePointer(pad.Word(at))
		switch c.Kind {
		case KindNull, KindStruct, KindList:
		default:
			return nil, Pointer{}, 0, fmt.Errorf("%w: landing pad holds a %s pointer", ErrMalformedPointer, c.Kind)
		}
		return pad, c, at + 1 + int(c.Offset), nil
	}

	if !pad.contains(at, 2) {
		return nil, Pointer{}, 0, fmt.Errorf("%w: double-far landing pad %d/%d", ErrOutOfBounds, pad.id, at)
	}
	far := DecodePointer(pad.Word(at))
	if far.Kind != KindFar || far.DoubleFar {
		return nil, Pointer{}, 0, fmt.Errorf("%w: double-far landing pad must start with a far pointer", ErrMalformedPointer)
	}
	tag := DecodePointer(pad.Word(at + 1))
	switch tag.Kind {
	case KindNull:
		// A zero tag describes an empty struct.
		tag = StructPointer(0, 0, 0)
	case KindStruct, KindList:
	default:
		return nil, Pointer{}, 0, fmt.Errorf("%w: double-far tag holds a %s pointer", ErrMalformedPointer, tag.Kind)
	}
	content := r.msg.Segment(far.SegmentID)
	if content == nil {
		return nil, Pointer{}, 0, fmt.Errorf("%w: far pointer to missing segment %d", ErrOutOfBounds, far.SegmentID)
	}
	return content, tag, int(far.Offset), nil
}

func (r *reader) readTarget(seg *Segment, p Pointer, target int, depth int) (Ptr, error) {
	if depth <= 0 {
		return Ptr{}, ErrNestingLimit
	}
	if p.Kind == KindList {
		l, err := r.readList(seg, p, target, depth)
		if err != nil {
			return Ptr{}, err
		}
		return Ptr{kind: KindList, l: l}, nil
	}

	words := uint64(p.DataWords) + uint64(p.PointerCount)
	if !seg.contains(target, words) {
		return Ptr{}, fmt.Errorf("%w: struct at %d/%d (%d words)", ErrOutOfBounds, seg.id, target, words)
	}
	if err := r.charge(words); err != nil {
		return Ptr{}, err
	}
	return Ptr{kind: KindStruct, s: Struct{
		r:         r,
		seg:       seg,
		off:       target,
		dataWords: p.DataWords,
		ptrCount:  p.PointerCount,
		depth:     depth - 1,
	}}, nil
}

func (r *reader) readList(seg *Segment, p Pointer, target int, depth int) (List, error) {
	if p.ElementSize == SizeComposite {
		words := uint64(p.ElementCount)
		if !seg.contains(target, words+1) {
			return List{}, fmt.Errorf("%w: composite list at %d/%d (%d words)", ErrOutOfBounds, seg.id, target, words)
		}
		count, dw, pc, err := DecodeTag(seg.Word(target))
		if err != nil {
			return List{}, err
		}
		per := uint64(dw) + uint64(pc)
		if uint64(count)*per > words {
			return List{}, fmt.Errorf("%w: composite list of %d elements overruns %d words", ErrOutOfBounds, count, words)
		}
		if err := r.charge(words + 1); err != nil {
			return List{}, err
		}
		if per == 0 {
			if err := r.charge(uint64(count)); err != nil {
				return List{}, err
			}
		}
		return List{
			r:         r,
			seg:       seg,
			off:       target + 1,
			size:      SizeComposite,
			length:    count,
			dataWords: dw,
			ptrCount:  pc,
			depth:     depth - 1,
		}, nil
	}

	words := p.ElementSize.WordsFor(p.ElementCount)
	if !seg.contains(target, words) {
		return List{}, fmt.Errorf("%w: %s list at %d/%d (%d words)", ErrOutOfBounds, p.ElementSize, seg.id, target, words)
	}
	if err := r.charge(words); err != nil {
		return List{}, err
	}
	if p.ElementSize == SizeVoid {
		if err := r.charge(uint64(p.ElementCount)); err != nil {
			return List{}, err
		}
	}
	return List{
		r:      r,
		seg:    seg,
		off:    target,
		size:   p.ElementSize,
		length: p.ElementCount,
		depth:  depth - 1,
	}, nil
}

// Struct is a read view of a struct's data and pointer sections.
type Struct struct {
	r         *reader
	seg       *Segment
	off       int
	dataWords uint16
	ptrCount  uint16
	depth     int
}

func (s Struct) DataWords() uint16    { return s.dataWords }
func (s Struct) PointerCount() uint16 { return s.ptrCount }

// DataWord returns data word i, which must be below DataWords.
func (s Struct) DataWord(i int) uint64 { return s.seg.Word(s.off + i) }

// Data returns the bytes of the data section.
func (s Struct) Data() []byte { return s.seg.Bytes(s.off, int(s.dataWords)) }

// RawPointer returns the undecoded word of pointer slot i.
func (s Struct) RawPointer(i int) uint64 {
	return s.seg.Word(s.off + int(s.dataWords) + i)
}

// Pointer resolves pointer slot i.
func (s Struct) Pointer(i int) (Ptr, error) {
	if i < 0 || i >= int(s.ptrCount) {
		return Ptr{}, fmt.Errorf("%w: pointer slot %d of %d", ErrOutOfBounds, i, s.ptrCount)
	}
	return s.r.readPointer(s.seg, s.off+int(s.dataWords)+i, s.depth)
}

// List is a read view of a list body.
type List struct {
	r         *reader
	seg       *Segment
	off       int
	size      ElementSize
	length    uint32
	dataWords uint16
	ptrCount  uint16
	depth     int
}

func (l List) Len() int                 { return int(l.length) }
func (l List) ElementSize() ElementSize { return l.size }

// Shape returns the per-element struct shape of a composite list.
func (l List) Shape() (dataWords, pointerCount uint16) { return l.dataWords, l.ptrCount }

// Words returns the body size in words, excluding a composite tag.
func (l List) Words() int {
	if l.size == SizeComposite {
		return int(l.length) * (int(l.dataWords) + int(l.ptrCount))
	}
	return int(l.size.WordsFor(l.length))
}

// Bytes returns the body of a primitive list, including trailing padding.
func (l List) Bytes() []byte { return l.seg.Bytes(l.off, l.Words()) }

// Element returns element i of a composite list.
func (l List) Element(i int) Struct {
	per := int(l.dataWords) + int(l.ptrCount)
	return Struct{
		r:         l.r,
		seg:       l.seg,
		off:       l.off + i*per,
		dataWords: l.dataWords,
		ptrCount:  l.ptrCount,
		depth:     l.depth,
	}
}

// PointerAt resolves element i of a pointer list.
func (l List) PointerAt(i int) (Ptr, error) {
	if i < 0 || i >= int(l.length) {
		return Ptr{}, fmt.Errorf("%w: list element %d of %d", ErrOutOfBounds, i, l.length)
	}
	return l.r.readPointer(l.seg, l.off+i, l.depth)
}
