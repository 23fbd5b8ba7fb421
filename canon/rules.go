package canon

// Rule identifiers. They are stable across releases and appear in CLI and
// RPC output.
const (
	ruleSingleSegment = "CANON-SEG-001"
	ruleRootMissing   = "CANON-SEG-002"

	ruleFarPointer        = "CANON-PTR-001"
	ruleCapability        = "CANON-PTR-002"
	ruleMalformedPointer  = "CANON-PTR-003"
	ruleEmptyStructOffset = "CANON-PTR-004"

	ruleRootPosition = "CANON-LAYOUT-001"
	ruleOrder        = "CANON-LAYOUT-002"
	ruleGap          = "CANON-LAYOUT-003"
	ruleTrailing     = "CANON-LAYOUT-004"

	ruleDataTruncation      = "CANON-TRUNC-001"
	rulePointerTruncation   = "CANON-TRUNC-002"
	ruleCompositeTruncation = "CANON-TRUNC-003"
	ruleCompositeSize       = "CANON-TRUNC-004"
	rulePadding             = "CANON-TRUNC-005"

	ruleDecode         = "CANON-DECODE-001"
	ruleBounds         = "CANON-DECODE-002"
	ruleNestingLimit   = "CANON-LIMIT-001"
	ruleTraversalLimit = "CANON-LIMIT-002"
	ruleOffsetRange    = "CANON-LIMIT-003"

	ruleCID       = "CANON-CID-001"
	ruleSignature = "CANON-CRYPTO-001"
	ruleVerify    = "CANON-CRYPTO-002"

	ruleBuilderNotFresh = "CANON-INTERNAL-001"
	ruleSelfCheck       = "CANON-INTERNAL-002"
)
