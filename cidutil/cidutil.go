package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// HashAlg names a multihash function usable for content IDs.
type HashAlg string

const (
	SHA2_256 HashAlg = "sha2-256"
	SHA2_512 HashAlg = "sha2-512"
	SHA3_256 HashAlg = "sha3-256"
	BLAKE3   HashAlg = "blake3"
)

// HashAlgs lists the supported algorithms, default first.
var HashAlgs = []HashAlg{SHA2_256, SHA2_512, SHA3_256, BLAKE3}

// ParseHashAlg accepts one of HashAlgs. The empty string selects SHA2_256.
func ParseHashAlg(s string) (HashAlg, error) {
	if s == "" {
		return SHA2_256, nil
	}
	for _, h := range HashAlgs {
		if string(h) == s {
			return h, nil
		}
	}
	return "", fmt.Errorf("cidutil: unsupported hash %q", s)
}

func (h HashAlg) code() (uint64, error) {
	switch h {
	case SHA2_256, "":
		return multihash.SHA2_256, nil
	case SHA2_512:
		return multihash.SHA2_512, nil
	case SHA3_256:
		return multihash.SHA3_256, nil
	case BLAKE3:
		return multihash.BLAKE3, nil
	default:
		return 0, fmt.Errorf("cidutil: unsupported hash %q", string(h))
	}
}

// CIDv1Raw returns a CIDv1 with the "raw" multicodec over data hashed with h.
func CIDv1Raw(data []byte, h HashAlg) (cid.Cid, error) {
	code, err := h.code()
	if err != nil {
		return cid.Undef, err
	}
	sum, err := multihash.Sum(data, code, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// HashAlgOf reports which supported hash produced id.
func HashAlgOf(id cid.Cid) (HashAlg, error) {
	decoded, err := multihash.Decode(id.Hash())
	if err != nil {
		return "", err
	}
	switch decoded.Code {
	case multihash.SHA2_256:
		return SHA2_256, nil
	case multihash.SHA2_512:
		return SHA2_512, nil
	case multihash.SHA3_256:
		return SHA3_256, nil
	case multihash.BLAKE3:
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("cidutil: unsupported multihash code %#x", decoded.Code)
	}
}

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1 length,
		// this should be unreachable.
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	return CIDv1Raw(data, SHA2_256)
}

// Matches reports whether data is the block id names, rehashing data with
// the function recorded in id.
func Matches(id cid.Cid, data []byte) (bool, error) {
	h, err := HashAlgOf(id)
	if err != nil {
		return false, err
	}
	got, err := CIDv1Raw(data, h)
	if err != nil {
		return false, err
	}
	return got.Equals(id), nil
}
