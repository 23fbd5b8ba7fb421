package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"
)

func countingSeed() []byte {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	return seed
}

// Derived seeds are persisted in key stores, so the KDF output is pinned.
func TestDeriveRoleSeed_KnownAnswers(t *testing.T) {
	root := countingSeed()
	for _, tc := range []struct {
		role string
		want string
	}{
		{"publisher", "3cde84c6373f7c8cac9889a830277521bf54d2bedce4e91010e811d3c2bcee8a"},
		{"approver", "7a5bcab8888c9cc54a3c94cc7da09db77539dc169ccc0fe19ab92f5afd34e021"},
	} {
		got, err := DeriveRoleSeed(root, tc.role)
		if err != nil {
			t.Fatalf("DeriveRoleSeed(%s): %v", tc.role, err)
		}
		if hex.EncodeToString(got) != tc.want {
			t.Fatalf("DeriveRoleSeed(%s) = %x, want %s", tc.role, got, tc.want)
		}
	}
}

func TestDeriveRoleSeed_RejectsBadInput(t *testing.T) {
	if _, err := DeriveRoleSeed(make([]byte, 16), "publisher"); err == nil {
		t.Fatalf("expected short root seed to be rejected")
	}
	if _, err := DeriveRoleSeed(countingSeed(), "pub/lisher"); err == nil {
		t.Fatalf("expected invalid role to be rejected")
	}
}

// RFC 8032 section 7.1, test 1.
func TestGenerateIssuerKeyFromSeed_KnownAnswer(t *testing.T) {
	seed, err := hex.DecodeString("9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60")
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}
	const want = "ed25519:11qYAYKxCrfVS/7TyWQHOg7hcvPapiMlrwIaaPcHURo="
	if got := GenerateIssuerKeyFromSeed(seed); got != want {
		t.Fatalf("GenerateIssuerKeyFromSeed = %q, want %q", got, want)
	}
}
