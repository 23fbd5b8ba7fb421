package canon

import (
	"fmt"

	"xdao.co/capcanon/wire"
)

// Canonicalize writes the canonical encoding of v into out, which must be
// fresh (see wire.Builder.Fresh).
//
// v may come from any message: several segments, far pointers, gaps,
// untruncated sections and any object order are all accepted. The result
// is a single segment in which every object is minimal and objects appear
// in pointer preorder.
//
// A capability anywhere in v yields a KindCapability error. A tripped
// nesting or traversal limit yields KindResource. On any error out is
// reset, so partial output is never observable.
func Canonicalize(v wire.Ptr, out *wire.Builder) error {
	if !out.Fresh() {
		return wrapError(KindInternal, ruleBuilderNotFresh, "canonicalize needs a fresh builder", wire.ErrBuilderNotFresh)
	}
	e := encoder{b: out}
	if err := e.pointer(v, 0); err != nil {
		out.Reset()
		return err
	}
	return nil
}

// encoder emits objects in preorder into one growing segment. Each object
// is written whole (tag, data, reserved pointer slots) before any of its
// children; children are then emitted left to right and their slots are
// backpatched with forward offsets.
type encoder struct {
	b *wire.Builder
}

func (e *encoder) pointer(v wire.Ptr, slot int) error {
	switch v.Kind() {
	case wire.KindNull:
		return nil
	case wire.KindCapability:
		return wrapError(KindCapability, ruleCapability,
			fmt.Sprintf("capability %d cannot be canonicalized", v.CapabilityIndex()), ErrCapability)
	case wire.KindStruct:
		return e.structAt(v.Struct(), slot)
	case wire.KindList:
		return e.list(v.List(), slot)
	default:
		return newError(KindInternal, ruleMalformedPointer, fmt.Sprintf("unexpected %s pointer", v.Kind()))
	}
}

// children resolves every pointer slot of s.
func children(s wire.Struct) ([]wire.Ptr, error) {
	ptrs := make([]wire.Ptr, s.PointerCount())
	for i := range ptrs {
		p, err := s.Pointer(i)
		if err != nil {
			return nil, readError(fmt.Sprintf("reading pointer %d", i), err)
		}
		ptrs[i] = p
	}
	return ptrs, nil
}

func (e *encoder) structAt(s wire.Struct, slot int) error {
	ptrs, err := children(s)
	if err != nil {
		return err
	}
	sh := shape{
		dataWords:    minimalDataWords(s.Data()),
		pointerCount: minimalPointerCount(ptrs),
	}
	if sh.empty() {
		e.b.SetWord(slot, wire.StructPointer(-1, 0, 0).Encode())
		return nil
	}

	start := e.b.Alloc(sh.words())
	e.b.CopyBytes(start, s.Data()[:int(sh.dataWords)*wire.WordSize])
	if err := e.b.SetPointer(slot, start, wire.StructPointer(0, sh.dataWords, sh.pointerCount)); err != nil {
		return readError("placing struct", err)
	}
	return e.slots(ptrs[:sh.pointerCount], start+int(sh.dataWords))
}

// slots emits the subtree of each pointer in order into the reserved
// slots starting at word first.
func (e *encoder) slots(ptrs []wire.Ptr, first int) error {
	for i, p := range ptrs {
		if err := e.pointer(p, first+i); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) list(l wire.List, slot int) error {
	switch l.ElementSize() {
	case wire.SizeComposite:
		return e.composite(l, slot)
	case wire.SizePointer:
		n := l.Len()
		ptrs := make([]wire.Ptr, n)
		for i := range ptrs {
			p, err := l.PointerAt(i)
			if err != nil {
				return readError(fmt.Sprintf("reading list element %d", i), err)
			}
			ptrs[i] = p
		}
		start := e.b.Alloc(n)
		if err := e.b.SetPointer(slot, start, wire.ListPointer(0, wire.SizePointer, uint32(n))); err != nil {
			return readError("placing pointer list", err)
		}
		return e.slots(ptrs, start)
	default:
		words := l.Words()
		start := e.b.Alloc(words)
		if words > 0 {
			body := append([]byte(nil), l.Bytes()...)
			clearPadding(body, uint64(l.Len())*l.ElementSize().DataBits())
			e.b.CopyBytes(start, body)
		}
		if err := e.b.SetPointer(slot, start, wire.ListPointer(0, l.ElementSize(), uint32(l.Len()))); err != nil {
			return readError("placing list", err)
		}
		return nil
	}
}

// composite emits a struct list. The shared element shape is the fold of
// every element's own minimal shape, so it is only known after all
// elements have been inspected.
func (e *encoder) composite(l wire.List, slot int) error {
	n := l.Len()
	if dw, pc := l.Shape(); dw == 0 && pc == 0 {
		// Zero-width elements have nothing to fold; the count can be far
		// larger than the message itself.
		return e.zeroWidth(n, slot)
	}
	elems := make([]wire.Struct, n)
	ptrs := make([][]wire.Ptr, n)
	var sh shape
	for i := 0; i < n; i++ {
		el := l.Element(i)
		ps, err := children(el)
		if err != nil {
			return err
		}
		elems[i], ptrs[i] = el, ps
		sh = sh.fold(shape{
			dataWords:    minimalDataWords(el.Data()),
			pointerCount: minimalPointerCount(ps),
		})
	}

	per := sh.words()
	words := n * per
	tag := e.b.Alloc(1 + words)
	e.b.SetWord(tag, wire.EncodeTag(uint32(n), sh.dataWords, sh.pointerCount))
	if err := e.b.SetPointer(slot, tag, wire.CompositeListPointer(0, uint32(words))); err != nil {
		return readError("placing composite list", err)
	}
	for i, el := range elems {
		e.b.CopyBytes(tag+1+i*per, el.Data()[:int(sh.dataWords)*wire.WordSize])
	}
	for i := range elems {
		first := tag + 1 + i*per + int(sh.dataWords)
		if err := e.slots(ptrs[i][:sh.pointerCount], first); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) zeroWidth(n, slot int) error {
	tag := e.b.Alloc(1)
	e.b.SetWord(tag, wire.EncodeTag(uint32(n), 0, 0))
	if err := e.b.SetPointer(slot, tag, wire.CompositeListPointer(0, 0)); err != nil {
		return readError("placing composite list", err)
	}
	return nil
}
