package canon

import (
	"fmt"

	"xdao.co/capcanon/compliance"
	"xdao.co/capcanon/wire"
)

// CanonicalizeMessage returns the canonical form of msg's root value as a
// new single-segment message carrying msg's reader options.
func CanonicalizeMessage(msg *wire.Message) (*wire.Message, error) {
	root, err := msg.Root()
	if err != nil {
		return nil, readError("reading root", err)
	}
	b := wire.NewBuilder()
	if err := Canonicalize(root, b); err != nil {
		return nil, err
	}
	out, err := b.Message(wire.WithOptions(msg.Options()))
	if err != nil {
		return nil, wrapError(KindInternal, ruleSelfCheck, "builder output", err)
	}
	// Output must satisfy the validator under the same limits.
	if err := Check(out); err != nil {
		return nil, wrapError(KindInternal, ruleSelfCheck, "canonicalized output rejected", err)
	}
	return out, nil
}

// CanonicalBytes returns the stream-framed canonical form of msg. These
// bytes are what content IDs and signatures cover.
func CanonicalBytes(msg *wire.Message) ([]byte, error) {
	out, err := CanonicalizeMessage(msg)
	if err != nil {
		return nil, err
	}
	b, err := wire.Marshal(out)
	if err != nil {
		return nil, wrapError(KindInternal, ruleSelfCheck, "framing canonical output", err)
	}
	return b, nil
}

// Strict accepts framed input only if it is already canonical and returns
// it unchanged. It is the single choke point for callers that must not
// rewrite bytes they were given.
func Strict(data []byte, opts ...wire.Option) ([]byte, error) {
	if err := CheckBytes(data, opts...); err != nil {
		return nil, err
	}
	return data, nil
}

// Normalize decodes framed input laid out in any valid way and re-encodes
// it canonically. Canonical input comes back byte-identical.
func Normalize(data []byte, opts ...wire.Option) ([]byte, error) {
	msg, err := wire.Unmarshal(data, opts...)
	if err != nil {
		return nil, wrapError(KindDecode, ruleDecode, "invalid framing", err)
	}
	return CanonicalBytes(msg)
}

// Apply runs Strict or Normalize depending on mode.
func Apply(mode compliance.ComplianceMode, data []byte, opts ...wire.Option) ([]byte, error) {
	switch mode {
	case compliance.Strict:
		return Strict(data, opts...)
	case compliance.Permissive:
		return Normalize(data, opts...)
	default:
		return nil, newError(KindInternal, "", fmt.Sprintf("unknown compliance mode %d", mode))
	}
}
