package canon

import (
	"errors"

	"xdao.co/capcanon/wire"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	// KindNotCanonical means the input decodes but is not in canonical form.
	KindNotCanonical Kind = "NotCanonical"
	// KindCapability means a capability pointer was found; such values
	// have no canonical form.
	KindCapability Kind = "Capability"
	// KindDecode means the message layer rejected the input as malformed.
	KindDecode Kind = "Decode"
	// KindResource means a nesting, traversal or size guard tripped.
	KindResource Kind = "Resource"
	KindCID      Kind = "CID"
	KindCrypto   Kind = "Crypto"
	KindInternal Kind = "Internal"
)

// Error is the library's structured error type.
//
// RuleID is a stable identifier (e.g., CANON-SEG-001, CANON-LAYOUT-003)
// that names the violated invariant. Message is intended for humans.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.RuleID == "" {
		return e.Message
	}
	return e.RuleID + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ErrCapability is the cause of every KindCapability error.
var ErrCapability = errors.New("canon: capability pointers have no canonical form")

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}

// IsFatal reports whether err is a resource guard failure that retrying
// with the same limits cannot fix.
func IsFatal(err error) bool {
	return IsKind(err, KindResource)
}

// readError classifies a failure reported by the message layer.
func readError(msg string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, wire.ErrNestingLimit):
		return wrapError(KindResource, ruleNestingLimit, msg, err)
	case errors.Is(err, wire.ErrTraversalLimit):
		return wrapError(KindResource, ruleTraversalLimit, msg, err)
	case errors.Is(err, wire.ErrOffsetRange):
		return wrapError(KindResource, ruleOffsetRange, msg, err)
	default:
		return wrapError(KindDecode, ruleDecode, msg, err)
	}
}
