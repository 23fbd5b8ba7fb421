package wire

import "errors"

var (
	ErrNoSegments       = errors.New("wire: message has no segments")
	ErrMisaligned       = errors.New("wire: segment is not word aligned")
	ErrOutOfBounds      = errors.New("wire: pointer target out of bounds")
	ErrMalformedPointer = errors.New("wire: malformed pointer")
	ErrNestingLimit     = errors.New("wire: nesting limit exceeded")
	ErrTraversalLimit   = errors.New("wire: traversal limit exceeded")
	ErrFraming          = errors.New("wire: invalid stream framing")
	ErrTruncated        = errors.New("wire: truncated message")
	ErrBuilderNotFresh  = errors.New("wire: builder is not fresh")
	ErrOffsetRange      = errors.New("wire: pointer offset out of range")
)

// IsLimit reports whether err is a resource guard failure rather than a
// structural one.
func IsLimit(err error) bool {
	return errors.Is(err, ErrNestingLimit) || errors.Is(err, ErrTraversalLimit)
}
