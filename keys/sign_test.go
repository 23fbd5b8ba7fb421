package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"testing"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

type deterministicReader struct{ b byte }

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

func TestSignEd25519SHA256_Verifies(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	msg := []byte("hello")
	sigB64 := SignEd25519SHA256(msg, priv)
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}

	digest := sha256.Sum256(msg)
	if !ed25519.Verify(pub, digest[:], sig) {
		t.Fatalf("signature did not verify")
	}
}

func TestSignDilithium3_Verifies_SHA3_256(t *testing.T) {
	pk, sk, err := GenerateDilithium3Keypair(io.Reader(&deterministicReader{}))
	if err != nil {
		t.Fatalf("GenerateDilithium3Keypair: %v", err)
	}

	msg := []byte("hello")
	sigB64, err := SignDilithium3(msg, "sha3-256", sk)
	if err != nil {
		t.Fatalf("SignDilithium3: %v", err)
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if len(sig) != mode3.SignatureSize {
		t.Fatalf("unexpected signature size: got %d want %d", len(sig), mode3.SignatureSize)
	}

	digest, err := Digest("sha3-256", msg)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if !mode3.Verify(pk, digest, sig) {
		t.Fatalf("signature did not verify")
	}
}

func TestVerify_Ed25519AcrossHashes(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(255 - i)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	issuer := GenerateIssuerKeyFromSeed(seed)
	msg := []byte("canonical bytes")

	for _, h := range HashAlgs {
		sig, err := SignEd25519(msg, h, priv)
		if err != nil {
			t.Fatalf("SignEd25519(%s): %v", h, err)
		}
		if err := Verify(issuer, h, msg, sig); err != nil {
			t.Fatalf("Verify(%s): %v", h, err)
		}
		if err := Verify(issuer, h, []byte("other bytes"), sig); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("Verify(%s) on other message: expected ErrBadSignature, got %v", h, err)
		}
	}
}

func TestVerify_Dilithium3IssuerKey(t *testing.T) {
	pk, sk, err := GenerateDilithium3Keypair(io.Reader(&deterministicReader{b: 7}))
	if err != nil {
		t.Fatalf("GenerateDilithium3Keypair: %v", err)
	}
	issuer, err := IssuerKeyFromDilithium3(pk)
	if err != nil {
		t.Fatalf("IssuerKeyFromDilithium3: %v", err)
	}
	msg := []byte("hello")
	sig, err := SignDilithium3(msg, "sha512", sk)
	if err != nil {
		t.Fatalf("SignDilithium3: %v", err)
	}
	if err := Verify(issuer, "sha512", msg, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := Verify(issuer, "sha256", msg, sig); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected hash mismatch to fail verification, got %v", err)
	}
}

func TestVerify_RejectsUnknownAlgorithms(t *testing.T) {
	if _, err := Digest("md5", nil); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("expected ErrUnsupportedHash, got %v", err)
	}
	if _, _, err := ParseIssuerKey("rsa:AAAA"); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
	if _, _, err := ParseIssuerKey("no-colon"); err == nil {
		t.Fatalf("expected error for missing algorithm prefix")
	}
}

func TestDilithium3FromSeed_IsDeterministic(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(0xa0 + i)
	}
	pk1, sk1, err := Dilithium3FromSeed(seed)
	if err != nil {
		t.Fatalf("Dilithium3FromSeed: %v", err)
	}
	pk2, _, err := Dilithium3FromSeed(seed)
	if err != nil {
		t.Fatalf("Dilithium3FromSeed: %v", err)
	}
	if !pk1.Equal(pk2) {
		t.Fatalf("same seed produced different keys")
	}

	issuer, err := IssuerKeyFromDilithium3(pk1)
	if err != nil {
		t.Fatalf("IssuerKeyFromDilithium3: %v", err)
	}
	sig, err := SignDilithium3([]byte("payload"), "sha3-256", sk1)
	if err != nil {
		t.Fatalf("SignDilithium3: %v", err)
	}
	if err := Verify(issuer, "sha3-256", []byte("payload"), sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if _, _, err := Dilithium3FromSeed(seed[:8]); err == nil {
		t.Fatalf("expected short seed to be rejected")
	}
}
