package canon

import (
	"fmt"

	"xdao.co/capcanon/wire"
)

// IsCanonical reports whether msg is the canonical encoding of its value.
//
// It never modifies msg. Malformed input and tripped limits yield false;
// use Check to learn why.
func IsCanonical(msg *wire.Message) bool {
	return Check(msg) == nil
}

// Check returns nil when msg is canonical.
//
// A KindNotCanonical error names the violated rule. KindDecode and
// KindResource errors are hard faults from reading the message (bounds,
// nesting and traversal limits); they wrap the wire package sentinel.
//
// The walk threads a cursor, the next word that must be claimed, through
// the objects in preorder. Every object must start exactly at the cursor,
// so each word is visited at most once. Objects are charged against the
// traversal limit exactly as the wire reader charges them, including the
// element count of void and zero-width struct lists, so a message that
// passes Check can always be read back for canonicalization.
func Check(msg *wire.Message) error {
	if n := msg.NumSegments(); n != 1 {
		return newError(KindNotCanonical, ruleSingleSegment, fmt.Sprintf("message has %d segments, want 1", n))
	}
	seg := msg.Segment(0)
	if seg.Len() == 0 {
		return newError(KindNotCanonical, ruleRootMissing, "segment has no root pointer")
	}

	opts := msg.Options()
	v := validator{
		seg:     seg,
		budget:  opts.TraversalLimitWords,
		limited: opts.TraversalLimitWords > 0,
	}
	end, err := v.pointer(0, 1, msg.Options().NestingLimit)
	if err != nil {
		return err
	}
	if end != seg.Len() {
		return newError(KindNotCanonical, ruleTrailing,
			fmt.Sprintf("%d words after the last object", seg.Len()-end))
	}
	return nil
}

// CheckBytes checks a stream-framed message.
func CheckBytes(data []byte, opts ...wire.Option) error {
	msg, err := wire.Unmarshal(data, opts...)
	if err != nil {
		return wrapError(KindDecode, ruleDecode, "invalid framing", err)
	}
	return Check(msg)
}

type validator struct {
	seg     *wire.Segment
	budget  uint64
	limited bool
}

func (v *validator) charge(words uint64, at int) error {
	if !v.limited {
		return nil
	}
	if words > v.budget {
		v.budget = 0
		return wrapError(KindResource, ruleTraversalLimit,
			fmt.Sprintf("traversal limit reached at word %d", at), wire.ErrTraversalLimit)
	}
	v.budget -= words
	return nil
}

// pointer checks the pointer in word slot and everything it reaches. It
// returns the cursor after the referenced subtree.
func (v *validator) pointer(slot, cursor, depth int) (int, error) {
	p := wire.DecodePointer(v.seg.Word(slot))
	switch p.Kind {
	case wire.KindNull:
		return cursor, nil
	case wire.KindFar:
		return 0, newError(KindNotCanonical, ruleFarPointer, fmt.Sprintf("far pointer at word %d", slot))
	case wire.KindCapability:
		return 0, wrapError(KindNotCanonical, ruleCapability, fmt.Sprintf("capability pointer at word %d", slot), ErrCapability)
	case wire.KindOther:
		return 0, newError(KindNotCanonical, ruleMalformedPointer, fmt.Sprintf("unknown pointer at word %d", slot))
	}
	if depth <= 0 {
		return 0, wrapError(KindResource, ruleNestingLimit, fmt.Sprintf("nesting limit reached at word %d", slot), wire.ErrNestingLimit)
	}

	target := slot + 1 + int(p.Offset)
	if p.Kind == wire.KindStruct {
		return v.structAt(slot, target, shape{p.DataWords, p.PointerCount}, cursor, depth)
	}
	return v.list(p, target, cursor, depth)
}

// claim requires an object to begin exactly at the cursor.
func (v *validator) claim(target, cursor int) error {
	switch {
	case target == cursor:
		return nil
	case cursor == 1:
		return newError(KindNotCanonical, ruleRootPosition,
			fmt.Sprintf("root object starts at word %d, want 1", target))
	case target < cursor:
		return newError(KindNotCanonical, ruleOrder,
			fmt.Sprintf("object at word %d precedes cursor %d", target, cursor))
	default:
		return newError(KindNotCanonical, ruleGap,
			fmt.Sprintf("%d unclaimed words before object at word %d", target-cursor, target))
	}
}

func (v *validator) bounds(start int, words uint64) error {
	if start < 0 || uint64(start)+words > uint64(v.seg.Len()) {
		return wrapError(KindDecode, ruleBounds,
			fmt.Sprintf("object at word %d (%d words) overruns segment of %d", start, words, v.seg.Len()),
			wire.ErrOutOfBounds)
	}
	return nil
}

func (v *validator) structAt(slot, target int, s shape, cursor, depth int) (int, error) {
	if s.empty() {
		// Zero-sized structs point at their own pointer word.
		if target != slot {
			return 0, newError(KindNotCanonical, ruleEmptyStructOffset,
				fmt.Sprintf("empty struct at word %d has offset %d, want -1", slot, target-slot-1))
		}
		return cursor, nil
	}
	if err := v.claim(target, cursor); err != nil {
		return 0, err
	}
	if err := v.bounds(target, uint64(s.words())); err != nil {
		return 0, err
	}
	if err := v.charge(uint64(s.words()), target); err != nil {
		return 0, err
	}
	if s.dataWords > 0 && v.seg.Word(target+int(s.dataWords)-1) == 0 {
		return 0, newError(KindNotCanonical, ruleDataTruncation,
			fmt.Sprintf("struct at word %d ends in a zero data word", target))
	}
	if s.pointerCount > 0 && v.seg.Word(target+s.words()-1) == 0 {
		return 0, newError(KindNotCanonical, rulePointerTruncation,
			fmt.Sprintf("struct at word %d ends in a null pointer", target))
	}

	cursor = target + s.words()
	ptrs := target + int(s.dataWords)
	var err error
	for i := 0; i < int(s.pointerCount); i++ {
		if cursor, err = v.pointer(ptrs+i, cursor, depth-1); err != nil {
			return 0, err
		}
	}
	return cursor, nil
}

func (v *validator) list(p wire.Pointer, target, cursor, depth int) (int, error) {
	if err := v.claim(target, cursor); err != nil {
		return 0, err
	}
	switch {
	case p.ElementSize == wire.SizeComposite:
		return v.composite(p, target, depth)
	case p.ElementSize == wire.SizePointer:
		n := int(p.ElementCount)
		if err := v.bounds(target, uint64(n)); err != nil {
			return 0, err
		}
		if err := v.charge(uint64(n), target); err != nil {
			return 0, err
		}
		cursor = target + n
		var err error
		for i := 0; i < n; i++ {
			if cursor, err = v.pointer(target+i, cursor, depth-1); err != nil {
				return 0, err
			}
		}
		return cursor, nil
	default:
		words := p.ElementSize.WordsFor(p.ElementCount)
		if err := v.bounds(target, words); err != nil {
			return 0, err
		}
		if err := v.charge(words, target); err != nil {
			return 0, err
		}
		if p.ElementSize == wire.SizeVoid {
			if err := v.charge(uint64(p.ElementCount), target); err != nil {
				return 0, err
			}
		}
		if words > 0 {
			last := v.seg.Word(target + int(words) - 1)
			if !paddingClear(last, uint64(p.ElementCount)*p.ElementSize.DataBits()) {
				return 0, newError(KindNotCanonical, rulePadding,
					fmt.Sprintf("%s list at word %d has non-zero padding", p.ElementSize, target))
			}
		}
		return target + int(words), nil
	}
}

// composite checks a tag-prefixed struct list. Element bodies follow the
// tag back to back; the subtrees of element 0's pointers come next, then
// element 1's, and so on.
func (v *validator) composite(p wire.Pointer, target, depth int) (int, error) {
	words := uint64(p.ElementCount)
	if err := v.bounds(target, words+1); err != nil {
		return 0, err
	}
	count, dw, pc, err := wire.DecodeTag(v.seg.Word(target))
	if err != nil {
		return 0, wrapError(KindDecode, ruleDecode, fmt.Sprintf("composite list tag at word %d", target), err)
	}
	s := shape{dw, pc}
	if uint64(count)*uint64(s.words()) != words {
		return 0, newError(KindNotCanonical, ruleCompositeSize,
			fmt.Sprintf("composite list at word %d: %d elements of %d words in %d words", target, count, s.words(), words))
	}

	if err := v.charge(words+1, target); err != nil {
		return 0, err
	}
	start := target + 1
	cursor := start + int(words)
	if s.empty() {
		// Zero-width elements occupy no words but still cost a read each.
		if err := v.charge(uint64(count), target); err != nil {
			return 0, err
		}
		return cursor, nil
	}

	// The declared shape is minimal only if some element needs the last
	// data word and some element needs the last pointer slot.
	dataNeeded := s.dataWords == 0
	ptrNeeded := s.pointerCount == 0
	per := s.words()
	for i := 0; i < int(count); i++ {
		e := start + i*per
		if s.dataWords > 0 && v.seg.Word(e+int(s.dataWords)-1) != 0 {
			dataNeeded = true
		}
		if s.pointerCount > 0 && v.seg.Word(e+per-1) != 0 {
			ptrNeeded = true
		}
		ptrs := e + int(s.dataWords)
		for j := 0; j < int(s.pointerCount); j++ {
			if cursor, err = v.pointer(ptrs+j, cursor, depth-1); err != nil {
				return 0, err
			}
		}
	}
	if !dataNeeded {
		return 0, newError(KindNotCanonical, ruleCompositeTruncation,
			fmt.Sprintf("composite list at word %d: no element uses data word %d", target, s.dataWords-1))
	}
	if !ptrNeeded {
		return 0, newError(KindNotCanonical, ruleCompositeTruncation,
			fmt.Sprintf("composite list at word %d: no element uses pointer slot %d", target, s.pointerCount-1))
	}
	return cursor, nil
}
