package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeysDirEnv overrides the default key store directory.
const KeysDirEnv = "CAPCANON_KEYS_DIR"

const (
	rootKeyFile = "root.key"
	rolesDir    = "roles"
	keySuffix   = ".key"
)

var ErrNoSigner = errors.New("keys: no signer provided")

// KeyStore keeps Ed25519 seeds on the local filesystem, one directory per
// identifier, with role keys derived deterministically from the root seed.
//
// Layout: <Directory>/<identifier>/root.key and
// <Directory>/<identifier>/roles/<role>.key, each holding a hex seed.
type KeyStore struct {
	Directory string
}

// KeyEntry is one identifier in the store and the roles derived from it.
type KeyEntry struct {
	Identifier string
	Roles      []string
}

// GetDefaultDirectory returns $CAPCANON_KEYS_DIR, or ~/.capcanon/keys.
func GetDefaultDirectory() (string, error) {
	if dir := os.Getenv(KeysDirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".capcanon", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory != "" {
		return &KeyStore{Directory: directory}, nil
	}
	dir, err := GetDefaultDirectory()
	if err != nil {
		return nil, err
	}
	return &KeyStore{Directory: dir}, nil
}

// path resolves the seed file for identifier, or for one of its roles when
// role is non-empty. Both names are validated first.
func (ks *KeyStore) path(identifier, role string) (string, error) {
	if err := CheckKeyName(identifier); err != nil {
		return "", err
	}
	if role == "" {
		return filepath.Join(ks.Directory, identifier, rootKeyFile), nil
	}
	if err := CheckRole(role); err != nil {
		return "", err
	}
	return filepath.Join(ks.Directory, identifier, rolesDir, role+keySuffix), nil
}

func CheckKeyName(identifier string) error { return checkName("identifier", identifier) }

func CheckRole(role string) error { return checkName("role", role) }

func checkName(what, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return fmt.Errorf("invalid character %q in %s", c, what)
		}
	}
	return nil
}

// ParseSeedHex decodes a 32-byte Ed25519 seed, tolerating surrounding
// whitespace and a 0x prefix.
func ParseSeedHex(seedHex string) ([]byte, error) {
	s := strings.TrimPrefix(strings.TrimSpace(seedHex), "0x")
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return seed, nil
}

func writeSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	mode := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, mode, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readSeed(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(b))
}

// InitializeRootKey stores seed as the root key of identifier. Existing keys
// are kept unless overwrite is set.
func (ks *KeyStore) InitializeRootKey(identifier string, seed []byte, overwrite bool) (issuerKey string, filePath string, err error) {
	filePath, err = ks.path(identifier, "")
	if err != nil {
		return "", "", err
	}
	if err := writeSeed(filePath, seed, overwrite); err != nil {
		return "", "", err
	}
	return GenerateIssuerKeyFromSeed(seed), filePath, nil
}

// DeriveKeyFromRole derives and stores the role key of an existing root.
func (ks *KeyStore) DeriveKeyFromRole(from, role string, overwrite bool) (issuerKey string, filePath string, err error) {
	filePath, err = ks.path(from, role)
	if err != nil {
		return "", "", err
	}
	rootPath, _ := ks.path(from, "")
	root, err := readSeed(rootPath)
	if err != nil {
		return "", "", err
	}
	seed, err := DeriveRoleSeed(root, role)
	if err != nil {
		return "", "", err
	}
	if err := writeSeed(filePath, seed, overwrite); err != nil {
		return "", "", err
	}
	return GenerateIssuerKeyFromSeed(seed), filePath, nil
}

// ExportKey returns the Ed25519 issuer key of identifier, or of its role.
func (ks *KeyStore) ExportKey(identifier string, role string) (string, error) {
	path, err := ks.path(identifier, role)
	if err != nil {
		return "", err
	}
	seed, err := readSeed(path)
	if err != nil {
		return "", err
	}
	return GenerateIssuerKeyFromSeed(seed), nil
}

// LoadSeed picks the signing seed from, in order: an inline hex seed, a key
// file, or a named identifier (and optional role) in the store.
func (ks *KeyStore) LoadSeed(seedHex, signerName, signerRole, keyFile string) ([]byte, error) {
	switch {
	case seedHex != "":
		return ParseSeedHex(seedHex)
	case keyFile != "":
		return readSeed(keyFile)
	case signerName != "":
		path, err := ks.path(signerName, signerRole)
		if err != nil {
			return nil, err
		}
		return readSeed(path)
	}
	return nil, ErrNoSigner
}

// ListKeys returns every identifier in sorted order with its sorted roles.
// A missing store directory is an empty store.
func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	dirs, err := os.ReadDir(ks.Directory)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []KeyEntry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		out = append(out, KeyEntry{Identifier: d.Name(), Roles: ks.roles(d.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

func (ks *KeyStore) roles(identifier string) []string {
	files, err := os.ReadDir(filepath.Join(ks.Directory, identifier, rolesDir))
	if err != nil {
		return nil
	}
	var roles []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), keySuffix) {
			continue
		}
		roles = append(roles, strings.TrimSuffix(f.Name(), keySuffix))
	}
	sort.Strings(roles)
	return roles
}
