package canon

import (
	"crypto/ed25519"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"xdao.co/capcanon/keys"
	"xdao.co/capcanon/wire"
)

// Signature is a detached signature over the framed canonical bytes of a
// message.
type Signature struct {
	IssuerKey string `json:"issuer_key"`
	HashAlg   string `json:"hash_alg"`
	Value     string `json:"signature"`
}

// SignEd25519 signs the canonical form of msg.
func SignEd25519(msg *wire.Message, hashAlg string, priv ed25519.PrivateKey) (Signature, error) {
	b, err := CanonicalBytes(msg)
	if err != nil {
		return Signature{}, err
	}
	issuer, err := keys.IssuerKeyFromPublicKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return Signature{}, wrapError(KindCrypto, ruleSignature, "issuer key", err)
	}
	sig, err := keys.SignEd25519(b, hashAlg, priv)
	if err != nil {
		return Signature{}, wrapError(KindCrypto, ruleSignature, "sign", err)
	}
	return Signature{IssuerKey: issuer, HashAlg: hashAlg, Value: sig}, nil
}

// SignDilithium3 signs the canonical form of msg with a post-quantum key.
func SignDilithium3(msg *wire.Message, hashAlg string, priv *mode3.PrivateKey) (Signature, error) {
	if priv == nil {
		return Signature{}, newError(KindCrypto, ruleSignature, "missing private key")
	}
	b, err := CanonicalBytes(msg)
	if err != nil {
		return Signature{}, err
	}
	issuer, err := keys.IssuerKeyFromDilithium3(priv.Public().(*mode3.PublicKey))
	if err != nil {
		return Signature{}, wrapError(KindCrypto, ruleSignature, "issuer key", err)
	}
	sig, err := keys.SignDilithium3(b, hashAlg, priv)
	if err != nil {
		return Signature{}, wrapError(KindCrypto, ruleSignature, "sign", err)
	}
	return Signature{IssuerKey: issuer, HashAlg: hashAlg, Value: sig}, nil
}

// VerifySignature re-canonicalizes msg and checks sig against the result,
// so a signature stays valid across re-layouts of the same value.
func VerifySignature(msg *wire.Message, sig Signature) error {
	b, err := CanonicalBytes(msg)
	if err != nil {
		return err
	}
	if err := keys.Verify(sig.IssuerKey, sig.HashAlg, b, sig.Value); err != nil {
		return wrapError(KindCrypto, ruleVerify, fmt.Sprintf("signature by %s", sig.IssuerKey), err)
	}
	return nil
}
