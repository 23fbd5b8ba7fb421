package wiretest

import (
	"encoding/binary"
	"fmt"

	"xdao.co/capcanon/wire"
)

// LayoutOptions select how far a layout strays from canonical form. The
// zero value produces a single-segment preorder layout with no padding,
// which is canonical only when the tree itself is already minimal.
type LayoutOptions struct {
	// Reverse writes the children of each pointer section in reverse
	// slot order.
	Reverse bool
	// Gap inserts this many zero words in front of every object.
	Gap int
	// ExtraData and ExtraPointers widen every struct and composite
	// element with zero data words and null pointer slots.
	ExtraData     int
	ExtraPointers int
	// DirtyPadding fills the unused bits after the last element of
	// primitive lists with ones.
	DirtyPadding bool
	// Far places every object in its own segment and reaches it through
	// a far pointer. DoubleFar uses two-word landing pads in separate
	// segments instead of single-word pads next to the object.
	Far       bool
	DoubleFar bool
}

type layouter struct {
	opts LayoutOptions
	segs [][]byte
}

// Layout encodes n as a message arranged per opts.
func Layout(n Node, opts LayoutOptions) (*wire.Message, error) {
	if opts.DoubleFar {
		opts.Far = true
	}
	l := &layouter{opts: opts, segs: [][]byte{make([]byte, wire.WordSize)}}
	if err := l.place(n, 0, 0); err != nil {
		return nil, err
	}
	return wire.NewMessage(l.segs)
}

// MustLayout is Layout for fixtures that are known to be valid.
func MustLayout(n Node, opts LayoutOptions) *wire.Message {
	msg, err := Layout(n, opts)
	if err != nil {
		panic(err)
	}
	return msg
}

func (l *layouter) setWord(seg, at int, w uint64) {
	binary.LittleEndian.PutUint64(l.segs[seg][at*wire.WordSize:], w)
}

func (l *layouter) newSegment(words int) int {
	l.segs = append(l.segs, make([]byte, words*wire.WordSize))
	return len(l.segs) - 1
}

// alloc reserves room for an object of the given size and returns where
// the object itself starts.
func (l *layouter) alloc(words int) (seg, at int) {
	if l.opts.Far {
		if l.opts.DoubleFar {
			return l.newSegment(words), 0
		}
		// Word 0 is the single-far landing pad.
		return l.newSegment(words + 1), 1
	}
	start := len(l.segs[0]) / wire.WordSize
	l.segs[0] = append(l.segs[0], make([]byte, (l.opts.Gap+words)*wire.WordSize)...)
	return 0, start + l.opts.Gap
}

// link points slot (sseg, sat) at the object at (tseg, tat).
func (l *layouter) link(sseg, sat int, p wire.Pointer, tseg, tat int) {
	if sseg == tseg {
		l.setWord(sseg, sat, direct(p, tat-(sat+1)))
		return
	}
	if !l.opts.DoubleFar {
		pad := tat - 1
		l.setWord(tseg, pad, direct(p, 0))
		l.setWord(sseg, sat, wire.FarPointer(uint32(tseg), uint32(pad), false).Encode())
		return
	}
	padSeg := l.newSegment(2)
	l.setWord(padSeg, 0, wire.FarPointer(uint32(tseg), uint32(tat), false).Encode())
	p.Offset = 0
	l.setWord(padSeg, 1, p.Encode())
	l.setWord(sseg, sat, wire.FarPointer(uint32(padSeg), 0, true).Encode())
}

// direct encodes p with the given offset, keeping empty structs distinct
// from null.
func direct(p wire.Pointer, off int) uint64 {
	if p.Kind == wire.KindStruct && p.DataWords == 0 && p.PointerCount == 0 && off == 0 {
		off = -1
	}
	p.Offset = int32(off)
	return p.Encode()
}

func (l *layouter) order(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		if l.opts.Reverse {
			idx[i] = n - 1 - i
		} else {
			idx[i] = i
		}
	}
	return idx
}

func (l *layouter) place(n Node, sseg, sat int) error {
	switch v := n.(type) {
	case nil:
		return nil
	case Capability:
		l.setWord(sseg, sat, wire.CapabilityPointer(v.Index).Encode())
		return nil
	case Struct:
		dw := len(v.Data) + l.opts.ExtraData
		pc := len(v.Pointers) + l.opts.ExtraPointers
		tseg, tat := l.alloc(dw + pc)
		l.writeData(tseg, tat, v.Data)
		l.link(sseg, sat, wire.StructPointer(0, uint16(dw), uint16(pc)), tseg, tat)
		for _, i := range l.order(len(v.Pointers)) {
			if err := l.place(v.Pointers[i], tseg, tat+dw+i); err != nil {
				return err
			}
		}
		return nil
	case PrimitiveList:
		if !v.Size.IsPrimitive() {
			return fmt.Errorf("wiretest: %s is not a primitive element size", v.Size)
		}
		words := int(v.Size.WordsFor(v.Count))
		tseg, tat := l.alloc(words)
		body := l.segs[tseg][tat*wire.WordSize : (tat+words)*wire.WordSize]
		copy(body, bodyBits(v))
		if l.opts.DirtyPadding {
			dirtyPadding(body, uint64(v.Count)*v.Size.DataBits())
		}
		l.link(sseg, sat, wire.ListPointer(0, v.Size, v.Count), tseg, tat)
		return nil
	case PointerList:
		tseg, tat := l.alloc(len(v.Elems))
		l.link(sseg, sat, wire.ListPointer(0, wire.SizePointer, uint32(len(v.Elems))), tseg, tat)
		for _, i := range l.order(len(v.Elems)) {
			if err := l.place(v.Elems[i], tseg, tat+i); err != nil {
				return err
			}
		}
		return nil
	case CompositeList:
		var dw, pc int
		for _, e := range v.Elems {
			dw = max(dw, len(e.Data))
			pc = max(pc, len(e.Pointers))
		}
		dw += l.opts.ExtraData
		pc += l.opts.ExtraPointers
		per := dw + pc
		words := len(v.Elems) * per
		tseg, tat := l.alloc(1 + words)
		l.setWord(tseg, tat, wire.EncodeTag(uint32(len(v.Elems)), uint16(dw), uint16(pc)))
		for i, e := range v.Elems {
			l.writeData(tseg, tat+1+i*per, e.Data)
		}
		l.link(sseg, sat, wire.CompositeListPointer(0, uint32(words)), tseg, tat)
		for i, e := range v.Elems {
			base := tat + 1 + i*per + dw
			for _, j := range l.order(len(e.Pointers)) {
				if err := l.place(e.Pointers[j], tseg, base+j); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("wiretest: unknown node %T", n)
	}
}

func (l *layouter) writeData(seg, at int, data []uint64) {
	for i, w := range data {
		l.setWord(seg, at+i, w)
	}
}

func dirtyPadding(body []byte, usedBits uint64) {
	for bit := usedBits; bit < uint64(len(body))*8; bit++ {
		body[bit/8] |= 1 << (bit % 8)
	}
}
