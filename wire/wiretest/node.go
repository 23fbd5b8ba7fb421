// Package wiretest builds messages for tests: logical value trees, physical
// layouts of those trees that are valid but deliberately not canonical, and
// random tree generation.
package wiretest

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"xdao.co/capcanon/wire"
)

// Node is a logical value. A nil Node is a null pointer.
type Node interface {
	isNode()
}

// Struct is a struct value. Trailing zero data words and trailing null
// pointers carry no information and compare equal to their absence.
type Struct struct {
	Data     []uint64
	Pointers []Node
}

// PrimitiveList is a list of packed data elements. Body holds the element
// bits, at least ceil(Count*bits/8) bytes; bits past the last element are
// ignored by Equal.
type PrimitiveList struct {
	Size  wire.ElementSize
	Count uint32
	Body  []byte
}

// PointerList is a list of pointers.
type PointerList struct {
	Elems []Node
}

// CompositeList is a list of structs sharing one physical shape.
type CompositeList struct {
	Elems []Struct
}

// Capability is a capability table reference.
type Capability struct {
	Index uint32
}

func (Struct) isNode()        {}
func (PrimitiveList) isNode() {}
func (PointerList) isNode()   {}
func (CompositeList) isNode() {}
func (Capability) isNode()    {}

// Read converts a resolved pointer into a logical tree.
func Read(p wire.Ptr) (Node, error) {
	switch p.Kind() {
	case wire.KindNull:
		return nil, nil
	case wire.KindCapability:
		return Capability{Index: p.CapabilityIndex()}, nil
	case wire.KindStruct:
		return readStruct(p.Struct())
	case wire.KindList:
		return readList(p.List())
	default:
		return nil, fmt.Errorf("wiretest: unexpected pointer kind %s", p.Kind())
	}
}

// ReadMessage reads the root of msg.
func ReadMessage(msg *wire.Message) (Node, error) {
	root, err := msg.Root()
	if err != nil {
		return nil, err
	}
	return Read(root)
}

func readStruct(s wire.Struct) (Struct, error) {
	out := Struct{
		Data:     make([]uint64, s.DataWords()),
		Pointers: make([]Node, s.PointerCount()),
	}
	for i := range out.Data {
		out.Data[i] = s.DataWord(i)
	}
	for i := range out.Pointers {
		p, err := s.Pointer(i)
		if err != nil {
			return Struct{}, err
		}
		n, err := Read(p)
		if err != nil {
			return Struct{}, err
		}
		out.Pointers[i] = n
	}
	return out, nil
}

func readList(l wire.List) (Node, error) {
	switch {
	case l.ElementSize() == wire.SizeComposite:
		out := CompositeList{Elems: make([]Struct, l.Len())}
		for i := range out.Elems {
			s, err := readStruct(l.Element(i))
			if err != nil {
				return nil, err
			}
			out.Elems[i] = s
		}
		return out, nil
	case l.ElementSize() == wire.SizePointer:
		out := PointerList{Elems: make([]Node, l.Len())}
		for i := range out.Elems {
			p, err := l.PointerAt(i)
			if err != nil {
				return nil, err
			}
			n, err := Read(p)
			if err != nil {
				return nil, err
			}
			out.Elems[i] = n
		}
		return out, nil
	default:
		body := append([]byte(nil), l.Bytes()...)
		return PrimitiveList{Size: l.ElementSize(), Count: uint32(l.Len()), Body: body}, nil
	}
}

// Equal reports whether two trees denote the same logical value.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case Struct:
		y, ok := b.(Struct)
		return ok && structEqual(x, y)
	case PrimitiveList:
		y, ok := b.(PrimitiveList)
		if !ok || x.Size != y.Size || x.Count != y.Count {
			return false
		}
		return bytes.Equal(bodyBits(x), bodyBits(y))
	case PointerList:
		y, ok := b.(PointerList)
		if !ok || len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !Equal(x.Elems[i], y.Elems[i]) {
				return false
			}
		}
		return true
	case CompositeList:
		y, ok := b.(CompositeList)
		if !ok || len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !structEqual(x.Elems[i], y.Elems[i]) {
				return false
			}
		}
		return true
	case Capability:
		y, ok := b.(Capability)
		return ok && x == y
	default:
		return false
	}
}

func structEqual(a, b Struct) bool {
	n := max(len(a.Data), len(b.Data))
	for i := 0; i < n; i++ {
		if wordAt(a.Data, i) != wordAt(b.Data, i) {
			return false
		}
	}
	n = max(len(a.Pointers), len(b.Pointers))
	for i := 0; i < n; i++ {
		if !Equal(nodeAt(a.Pointers, i), nodeAt(b.Pointers, i)) {
			return false
		}
	}
	return true
}

func wordAt(ws []uint64, i int) uint64 {
	if i < len(ws) {
		return ws[i]
	}
	return 0
}

func nodeAt(ns []Node, i int) Node {
	if i < len(ns) {
		return ns[i]
	}
	return nil
}

// bodyBits returns exactly the element bits of a primitive list, with
// unused bits of the last byte cleared.
func bodyBits(l PrimitiveList) []byte {
	bits := uint64(l.Count) * l.Size.DataBits()
	n := int((bits + 7) / 8)
	out := make([]byte, n)
	copy(out, l.Body)
	if rem := bits % 8; rem != 0 {
		out[n-1] &= byte(1)<<rem - 1
	}
	return out
}

// Words converts words to little-endian bytes.
func Words(ws ...uint64) []byte {
	out := make([]byte, len(ws)*wire.WordSize)
	for i, w := range ws {
		binary.LittleEndian.PutUint64(out[i*wire.WordSize:], w)
	}
	return out
}
