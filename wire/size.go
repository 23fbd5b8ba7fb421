package wire

// ElementSize is the 3-bit element size code carried by list pointers.
type ElementSize uint8

const (
	SizeVoid ElementSize = iota
	SizeBit
	SizeByte
	SizeTwoBytes
	SizeFourBytes
	SizeEightBytes
	SizePointer
	SizeComposite
)

var sizeNames = [...]string{"void", "bit", "byte", "2-byte", "4-byte", "8-byte", "pointer", "composite"}

func (s ElementSize) String() string {
	if int(s) < len(sizeNames) {
		return sizeNames[s]
	}
	return "invalid"
}

// DataBits returns the data width of one element. Pointer and composite
// elements report 0.
func (s ElementSize) DataBits() uint64 {
	switch s {
	case SizeBit:
		return 1
	case SizeByte:
		return 8
	case SizeTwoBytes:
		return 16
	case SizeFourBytes:
		return 32
	case SizeEightBytes:
		return 64
	default:
		return 0
	}
}

// IsPrimitive reports whether elements are packed data with no pointers.
func (s ElementSize) IsPrimitive() bool { return s <= SizeEightBytes }

// WordsFor returns the body size in words of a non-composite list with
// count elements. Partial trailing words are rounded up.
func (s ElementSize) WordsFor(count uint32) uint64 {
	if s == SizePointer {
		return uint64(count)
	}
	return (uint64(count)*s.DataBits() + 63) / 64
}
