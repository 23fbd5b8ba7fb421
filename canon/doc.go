// Package canon defines the canonical encoding of pointer messages and the
// two operations over it: Check/IsCanonical validate that a message is
// already canonical, and Canonicalize produces the canonical encoding of any
// value.
//
// A canonical message has exactly one segment and no far pointers. Its
// root object starts at word 1, objects are packed without gaps in pointer
// preorder, and every struct is truncated: no trailing zero data words and
// no trailing null pointers. Composite lists share the smallest element
// shape that still holds every element. Primitive list padding is zero.
// Capability pointers have no canonical form.
//
// For every capability-free value v, IsCanonical(Canonicalize(v)) holds and
// canonicalizing the result again yields identical bytes. This is what
// makes canonical bytes suitable for content IDs and signatures.
package canon
