package compliance

import "fmt"

// ComplianceMode selects how input that is not already canonical is treated.
//
// Strict mode prefers explicit failure over silent acceptance: bytes that
// are not canonical are rejected.
// Permissive mode re-encodes valid input into canonical form.
type ComplianceMode int

const (
	Permissive ComplianceMode = iota
	Strict
)

func (m ComplianceMode) String() string {
	switch m {
	case Permissive:
		return "permissive"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("ComplianceMode(%d)", int(m))
	}
}

// ParseMode parses "strict" or "permissive".
func ParseMode(s string) (ComplianceMode, error) {
	switch s {
	case "strict":
		return Strict, nil
	case "permissive":
		return Permissive, nil
	default:
		return 0, fmt.Errorf("invalid compliance mode %q (want strict or permissive)", s)
	}
}
