package wire

import "fmt"

// PointerKind is the decoded variant of a pointer word.
type PointerKind uint8

const (
	KindNull PointerKind = iota
	KindStruct
	KindList
	KindFar
	KindCapability
	// KindOther is a kind-3 word that is not a capability. No valid
	// message contains one.
	KindOther
)

func (k PointerKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindStruct:
		return "struct"
	case KindList:
		return "list"
	case KindFar:
		return "far"
	case KindCapability:
		return "capability"
	default:
		return "other"
	}
}

const (
	// MaxOffset and MinOffset bound the signed 30-bit word offset of struct
	// and list pointers.
	MaxOffset = 1<<29 - 1
	MinOffset = -(1 << 29)

	// MaxListElements bounds the 29-bit element (or word) count of a list pointer.
	MaxListElements = 1<<29 - 1
)

// Pointer is one decoded 64-bit pointer word.
//
// Offset is measured in words from the end of the pointer word for struct
// and list pointers. For far pointers it is the landing pad position
// within segment SegmentID.
//
// For composite lists ElementCount holds the word count of the elements,
// excluding the tag word.
type Pointer struct {
	Kind PointerKind

	Offset int32

	DataWords    uint16
	PointerCount uint16

	ElementSize  ElementSize
	ElementCount uint32

	DoubleFar bool
	SegmentID uint32

	CapabilityIndex uint32
}

// DecodePointer decodes a raw little-endian pointer word.
func DecodePointer(w uint64) Pointer {
	if w == 0 {
		return Pointer{Kind: KindNull}
	}
	lo := uint32(w)
	hi := uint32(w >> 32)
	switch lo & 3 {
	case 0:
		return Pointer{
			Kind:         KindStruct,
			Offset:       int32(lo) >> 2,
			DataWords:    uint16(hi),
			PointerCount: uint16(hi >> 16),
		}
	case 1:
		return Pointer{
			Kind:         KindList,
			Offset:       int32(lo) >> 2,
			ElementSize:  ElementSize(hi & 7),
			ElementCount: hi >> 3,
		}
	case 2:
		return Pointer{
			Kind:      KindFar,
			Offset:    int32(lo >> 3),
			DoubleFar: lo&4 != 0,
			SegmentID: hi,
		}
	default:
		if lo == 3 {
			return Pointer{Kind: KindCapability, CapabilityIndex: hi}
		}
		return Pointer{Kind: KindOther}
	}
}

// Encode packs p into a pointer word. Fields that do not fit are truncated
// to their bit width; callers check ranges before encoding.
func (p Pointer) Encode() uint64 {
	switch p.Kind {
	case KindStruct:
		return uint64(uint32(p.Offset)<<2) |
			uint64(p.DataWords)<<32 |
			uint64(p.PointerCount)<<48
	case KindList:
		return uint64(uint32(p.Offset)<<2|1) |
			uint64(p.ElementSize&7)<<32 |
			uint64(p.ElementCount)<<35
	case KindFar:
		lo := uint32(p.Offset)<<3 | 2
		if p.DoubleFar {
			lo |= 4
		}
		return uint64(lo) | uint64(p.SegmentID)<<32
	case KindCapability:
		return 3 | uint64(p.CapabilityIndex)<<32
	default:
		return 0
	}
}

func (p Pointer) String() string {
	switch p.Kind {
	case KindStruct:
		return fmt.Sprintf("struct(off=%d, data=%d, ptrs=%d)", p.Offset, p.DataWords, p.PointerCount)
	case KindList:
		return fmt.Sprintf("list(off=%d, size=%s, n=%d)", p.Offset, p.ElementSize, p.ElementCount)
	case KindFar:
		return fmt.Sprintf("far(seg=%d, pad=%d, double=%t)", p.SegmentID, p.Offset, p.DoubleFar)
	case KindCapability:
		return fmt.Sprintf("capability(%d)", p.CapabilityIndex)
	default:
		return p.Kind.String()
	}
}

// StructPointer returns a struct pointer. An empty struct (no data, no
// pointers) must use offset -1 so it is not mistaken for null.
func StructPointer(offset int32, dataWords, pointerCount uint16) Pointer {
	return Pointer{Kind: KindStruct, Offset: offset, DataWords: dataWords, PointerCount: pointerCount}
}

// ListPointer returns a list pointer for a non-composite element size.
func ListPointer(offset int32, size ElementSize, count uint32) Pointer {
	return Pointer{Kind: KindList, Offset: offset, ElementSize: size, ElementCount: count}
}

// CompositeListPointer returns a list pointer whose target is a tag word
// followed by words of element bodies.
func CompositeListPointer(offset int32, words uint32) Pointer {
	return Pointer{Kind: KindList, Offset: offset, ElementSize: SizeComposite, ElementCount: words}
}

// FarPointer returns a far pointer to a landing pad.
func FarPointer(segmentID uint32, padOffset uint32, double bool) Pointer {
	return Pointer{Kind: KindFar, SegmentID: segmentID, Offset: int32(padOffset), DoubleFar: double}
}

// CapabilityPointer returns a capability pointer.
func CapabilityPointer(index uint32) Pointer {
	return Pointer{Kind: KindCapability, CapabilityIndex: index}
}

// EncodeTag packs the tag word that precedes composite list elements.
// The tag is formatted as a struct pointer whose offset field carries the
// element count.
func EncodeTag(count uint32, dataWords, pointerCount uint16) uint64 {
	return uint64(count<<2) | uint64(dataWords)<<32 | uint64(pointerCount)<<48
}

// DecodeTag unpacks a composite list tag word.
func DecodeTag(w uint64) (count uint32, dataWords, pointerCount uint16, err error) {
	lo := uint32(w)
	if lo&3 != 0 {
		return 0, 0, 0, fmt.Errorf("%w: composite list tag is not struct-shaped", ErrMalformedPointer)
	}
	hi := uint32(w >> 32)
	return lo >> 2, uint16(hi), uint16(hi >> 16), nil
}
