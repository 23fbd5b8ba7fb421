package canon

import (
	"encoding/binary"

	"xdao.co/capcanon/wire"
)

// shape is the physical size of a struct: data words then pointer slots.
type shape struct {
	dataWords    uint16
	pointerCount uint16
}

func (s shape) words() int { return int(s.dataWords) + int(s.pointerCount) }

func (s shape) empty() bool { return s.dataWords == 0 && s.pointerCount == 0 }

// fold widens s to cover o. Composite list elements share the fold of
// their individual minimal shapes.
func (s shape) fold(o shape) shape {
	return shape{
		dataWords:    max(s.dataWords, o.dataWords),
		pointerCount: max(s.pointerCount, o.pointerCount),
	}
}

// minimalDataWords drops trailing all-zero words from a data section.
func minimalDataWords(data []byte) uint16 {
	n := len(data) / wire.WordSize
	for n > 0 && binary.LittleEndian.Uint64(data[(n-1)*wire.WordSize:]) == 0 {
		n--
	}
	return uint16(n)
}

// minimalPointerCount drops trailing null pointers.
func minimalPointerCount(ptrs []wire.Ptr) uint16 {
	n := len(ptrs)
	for n > 0 && ptrs[n-1].IsNull() {
		n--
	}
	return uint16(n)
}

// paddingClear reports whether the bits of the final word of a primitive
// list past its last element are all zero.
func paddingClear(last uint64, usedBits uint64) bool {
	rem := usedBits % 64
	if rem == 0 {
		return true
	}
	return last>>rem == 0
}

// clearPadding zeroes the bits of body past usedBits.
func clearPadding(body []byte, usedBits uint64) {
	full := usedBits / 8
	if rem := usedBits % 8; rem != 0 {
		body[full] &= byte(1)<<rem - 1
		full++
	}
	clear(body[full:])
}
