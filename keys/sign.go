package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

var (
	ErrUnsupportedHash      = errors.New("keys: unsupported hash algorithm")
	ErrUnsupportedAlgorithm = errors.New("keys: unsupported signature algorithm")
	ErrBadSignature         = errors.New("keys: signature invalid")
)

// HashAlgs lists the digest algorithms accepted by Sign and Verify.
var HashAlgs = []string{"sha256", "sha512", "sha3-256"}

// Digest returns hash(message). hashAlg must be one of HashAlgs.
func Digest(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedHash, hashAlg)
	}
}

// SignEd25519SHA256 returns a base64 signature over sha256(message).
func SignEd25519SHA256(message []byte, privateKey ed25519.PrivateKey) string {
	sig, _ := SignEd25519(message, "sha256", privateKey)
	return sig
}

// SignEd25519 returns a base64 ed25519 signature over hash(message).
func SignEd25519(message []byte, hashAlg string, privateKey ed25519.PrivateKey) (string, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("ed25519 private key must be %d bytes", ed25519.PrivateKeySize)
	}
	digest, err := Digest(hashAlg, message)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(privateKey, digest)), nil
}

// SignDilithium3 returns a base64 dilithium3 signature over hash(message).
// hashAlg must be one of: sha256, sha512, sha3-256.
func SignDilithium3(message []byte, hashAlg string, privateKey *mode3.PrivateKey) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("missing private key")
	}
	digest, err := Digest(hashAlg, message)
	if err != nil {
		return "", err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(privateKey, digest, sig)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// GenerateDilithium3Keypair returns a new Dilithium3 keypair.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}

// Dilithium3FromSeed derives a Dilithium3 keypair from a stored seed. The
// seed is expanded with SHAKE-256 under a fixed domain label, so the same
// seed always yields the same keypair and never the ed25519 key bytes.
func Dilithium3FromSeed(seed []byte) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, nil, fmt.Errorf("seed must be %d bytes", ed25519.SeedSize)
	}
	xof := sha3.NewShake256()
	_, _ = xof.Write([]byte("capcanon/dilithium3/v1"))
	_, _ = xof.Write(seed)
	return mode3.GenerateKey(xof)
}

// ParseIssuerKey splits an issuer key string ("ed25519:<base64>" or
// "dilithium3:<base64>") and checks the public key encoding.
func ParseIssuerKey(issuerKey string) (alg string, pub []byte, err error) {
	alg, enc, ok := strings.Cut(issuerKey, ":")
	if !ok {
		return "", nil, fmt.Errorf("invalid issuer key encoding %q", issuerKey)
	}
	pub, err = decodeBase64(enc)
	if err != nil {
		return "", nil, fmt.Errorf("invalid issuer key base64: %w", err)
	}
	switch alg {
	case "ed25519":
		if len(pub) != ed25519.PublicKeySize {
			return "", nil, fmt.Errorf("invalid ed25519 public key length %d", len(pub))
		}
	case "dilithium3":
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return "", nil, fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	return alg, pub, nil
}

// Verify checks a base64 signature over hash(message) against an issuer key.
func Verify(issuerKey, hashAlg string, message []byte, signature string) error {
	alg, pub, err := ParseIssuerKey(issuerKey)
	if err != nil {
		return err
	}
	sig, err := decodeBase64(signature)
	if err != nil {
		return fmt.Errorf("invalid signature base64: %w", err)
	}
	digest, err := Digest(hashAlg, message)
	if err != nil {
		return err
	}

	switch alg {
	case "ed25519":
		if len(sig) != ed25519.SignatureSize || !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
			return ErrBadSignature
		}
		return nil
	case "dilithium3":
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
		if len(sig) != mode3.SignatureSize || !mode3.Verify(&pk, digest, sig) {
			return ErrBadSignature
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}

func decodeBase64(s string) ([]byte, error) {
	// Prefer standard padded encoding, but accept raw encoding too.
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
