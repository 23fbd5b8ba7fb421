package model

// BlobRef refers to framed message bytes directly or by CID.
// Exactly one of CID or Bytes MUST be set.
//
// JSON note: Bytes are encoded as base64 by encoding/json.
type BlobRef struct {
	CID   string `json:"cid,omitempty"`
	Bytes []byte `json:"bytes,omitempty"`
}

type ComplianceMode string

const (
	CompliancePermissive ComplianceMode = "permissive"
	ComplianceStrict     ComplianceMode = "strict"
)

// ReaderLimits mirrors wire.ReaderOptions. Zero fields keep the defaults.
type ReaderLimits struct {
	NestingLimit        int    `json:"nestingLimit,omitempty"`
	TraversalLimitWords uint64 `json:"traversalLimitWords,omitempty"`
}

type CheckRequest struct {
	Message BlobRef      `json:"message"`
	Limits  ReaderLimits `json:"limits,omitempty"`
}

// CheckResult reports whether a message is canonical. When it is not, RuleID
// names the first rule the message breaks.
type CheckResult struct {
	Canonical bool   `json:"canonical"`
	RuleID    string `json:"ruleId,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Bytes     int    `json:"bytes"`
}

type CanonicalizeRequest struct {
	Message    BlobRef        `json:"message"`
	Compliance ComplianceMode `json:"compliance"`
	Hash       string         `json:"hash,omitempty"`
	Limits     ReaderLimits   `json:"limits,omitempty"`
}

// CanonicalizeResult carries the canonical encoding and its CID. Changed is
// false when the input was already canonical.
type CanonicalizeResult struct {
	Bytes       []byte `json:"bytes"`
	CID         string `json:"cid"`
	Hash        string `json:"hash"`
	Changed     bool   `json:"changed"`
	InputBytes  int    `json:"inputBytes"`
	OutputBytes int    `json:"outputBytes"`
}

type SignatureDoc struct {
	IssuerKey string `json:"issuerKey"`
	HashAlg   string `json:"hashAlg"`
	Signature string `json:"signature"`
	// CID names the canonical bytes that were signed.
	CID string `json:"cid"`
}

type VerifyResult struct {
	Valid     bool   `json:"valid"`
	IssuerKey string `json:"issuerKey"`
	CID       string `json:"cid"`
}
