package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodePointer_StructFromFixture(t *testing.T) {
	// 00 00 00 00 01 00 00 00: struct, offset 0, one data word.
	p := DecodePointer(0x0000000100000000)
	require.Equal(t, KindStruct, p.Kind)
	require.Equal(t, int32(0), p.Offset)
	require.Equal(t, uint16(1), p.DataWords)
	require.Equal(t, uint16(0), p.PointerCount)

	p = DecodePointer(0x0002000000000000)
	require.Equal(t, KindStruct, p.Kind)
	require.Equal(t, uint16(2), p.PointerCount)
}

func TestDecodePointer_NegativeOffset(t *testing.T) {
	w := StructPointer(-1, 0, 0).Encode()
	require.Equal(t, uint64(0xfffffffc), w)

	p := DecodePointer(w)
	require.Equal(t, KindStruct, p.Kind)
	require.Equal(t, int32(-1), p.Offset)
}

func TestDecodePointer_CompositeListFixture(t *testing.T) {
	// 01 00 00 00 27 00 00 00
	p := DecodePointer(0x0000002700000001)
	require.Equal(t, KindList, p.Kind)
	require.Equal(t, SizeComposite, p.ElementSize)
	require.Equal(t, uint32(4), p.ElementCount)
	require.Equal(t, int32(0), p.Offset)

	count, dw, pc, err := DecodeTag(0x0000000200000008)
	require.NoError(t, err)
	require.Equal(t, uint32(2), count)
	require.Equal(t, uint16(2), dw)
	require.Equal(t, uint16(0), pc)
}

func TestDecodePointer_FarAndCapability(t *testing.T) {
	p := DecodePointer(FarPointer(3, 17, true).Encode())
	require.Equal(t, KindFar, p.Kind)
	require.True(t, p.DoubleFar)
	require.Equal(t, uint32(3), p.SegmentID)
	require.Equal(t, int32(17), p.Offset)

	p = DecodePointer(CapabilityPointer(9).Encode())
	require.Equal(t, KindCapability, p.Kind)
	require.Equal(t, uint32(9), p.CapabilityIndex)

	// Kind 3 with a non-zero offset field is not a capability.
	require.Equal(t, KindOther, DecodePointer(0x7).Kind)

	// Low byte 0x02 is a far pointer and 0x03 a capability, whatever the
	// upper half says.
	require.Equal(t, KindFar, DecodePointer(0x0000000100000002).Kind)
	require.Equal(t, KindCapability, DecodePointer(0x0000000100000003).Kind)
}

func TestPointer_EncodeRoundTripsEveryKind(t *testing.T) {
	cases := []Pointer{
		StructPointer(5, 3, 2),
		StructPointer(MinOffset, 1, 0),
		StructPointer(MaxOffset, 0, 1),
		ListPointer(-4, SizeBit, 100),
		ListPointer(0, SizePointer, MaxListElements),
		CompositeListPointer(2, 12),
		FarPointer(1, 0, false),
		CapabilityPointer(0),
	}
	for _, want := range cases {
		got := DecodePointer(want.Encode())
		require.Equal(t, want, got, want.String())
	}
}

func TestDecodeTag_RejectsNonStructTag(t *testing.T) {
	_, _, _, err := DecodeTag(ListPointer(0, SizeByte, 1).Encode())
	require.ErrorIs(t, err, ErrMalformedPointer)
}

func TestElementSize_WordsFor(t *testing.T) {
	require.Equal(t, uint64(0), SizeVoid.WordsFor(1000))
	require.Equal(t, uint64(1), SizeBit.WordsFor(64))
	require.Equal(t, uint64(2), SizeBit.WordsFor(65))
	require.Equal(t, uint64(1), SizeByte.WordsFor(3))
	require.Equal(t, uint64(3), SizeEightBytes.WordsFor(3))
	require.Equal(t, uint64(7), SizePointer.WordsFor(7))
}
