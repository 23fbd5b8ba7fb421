package wiretest

import (
	"math/rand"

	"xdao.co/capcanon/wire"
)

// Random returns a capability-free tree of at most the given depth. Zero
// words and null pointers are common, including trailing ones, so that
// truncation paths are exercised.
func Random(r *rand.Rand, depth int) Node {
	if depth <= 0 {
		switch r.Intn(4) {
		case 0:
			return nil
		case 1:
			return randomPrimitiveList(r)
		default:
			return randomStruct(r, 0)
		}
	}
	switch r.Intn(8) {
	case 0:
		return nil
	case 1, 2:
		return randomPrimitiveList(r)
	case 3:
		n := r.Intn(4)
		out := PointerList{Elems: make([]Node, n)}
		for i := range out.Elems {
			out.Elems[i] = Random(r, depth-1)
		}
		return out
	case 4:
		n := r.Intn(4)
		out := CompositeList{Elems: make([]Struct, n)}
		for i := range out.Elems {
			out.Elems[i] = randomStruct(r, depth-1)
		}
		return out
	default:
		return randomStruct(r, depth-1)
	}
}

// RandomStruct is Random restricted to a struct root.
func RandomStruct(r *rand.Rand, depth int) Struct {
	return randomStruct(r, depth)
}

func randomStruct(r *rand.Rand, depth int) Struct {
	s := Struct{Data: make([]uint64, r.Intn(4))}
	for i := range s.Data {
		s.Data[i] = randomWord(r)
	}
	if depth > 0 {
		s.Pointers = make([]Node, r.Intn(4))
		for i := range s.Pointers {
			s.Pointers[i] = Random(r, depth-1)
		}
	}
	return s
}

func randomWord(r *rand.Rand) uint64 {
	switch r.Intn(3) {
	case 0:
		return 0
	case 1:
		return uint64(r.Intn(256))
	default:
		return r.Uint64()
	}
}

func randomPrimitiveList(r *rand.Rand) PrimitiveList {
	size := wire.ElementSize(r.Intn(int(wire.SizeEightBytes) + 1))
	l := PrimitiveList{Size: size, Count: uint32(r.Intn(20))}
	l.Body = make([]byte, size.WordsFor(l.Count)*wire.WordSize)
	r.Read(l.Body)
	// Keep only element bits so Layout controls the padding.
	copy(l.Body, bodyBits(l))
	for i := len(bodyBits(l)); i < len(l.Body); i++ {
		l.Body[i] = 0
	}
	return l
}
