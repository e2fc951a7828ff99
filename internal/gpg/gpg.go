// Package gpg verifies detached OpenPGP signatures of release archives
// against a directory of trusted public keys.
package gpg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

const (
	maxFileSize = 1024 * 1024 * 1024 // 1GB
	keyFileMode = 0600               // Required file permissions for key files on Unix systems
)

// Signature file extensions, in lookup order.
var SignatureExtensions = []string{".asc", ".sig"}

var (
	ErrNilKeyRing   = errors.New("keyring cannot be nil")
	ErrEmptyKeyRing = errors.New("no keys in keyring")
	ErrNoSignature  = errors.New("no detached signature found")
)

// KeyRing represents a collection of PGP keys for signature verification
type KeyRing interface {
	VerifyDetached(message []byte, signature []byte) error
	AddKey(key Key) error
}

// Key represents a PGP public key
type Key interface {
	CanVerify() bool
	GetFingerprint() string
}

// RealKeyRing implements KeyRing using gopenpgp v2.
type RealKeyRing struct {
	keyRing *crypto.KeyRing
}

// RealKey implements Key with parsed PGP key data.
type RealKey struct {
	pgpKey      *crypto.Key
	fingerprint string
}

// NewRealKeyRing creates an empty keyring. It is initialized when the first
// key is added.
func NewRealKeyRing() *RealKeyRing {
	return &RealKeyRing{}
}

// VerifyDetached checks an armored or binary detached signature over message.
func (rk *RealKeyRing) VerifyDetached(message []byte, signature []byte) error {
	if rk.keyRing == nil {
		return ErrEmptyKeyRing
	}

	plainMessage := crypto.NewPlainMessage(message)

	pgpSignature, err := crypto.NewPGPSignatureFromArmored(string(signature))
	if err != nil {
		// .sig files are usually binary
		pgpSignature = crypto.NewPGPSignature(signature)
	}

	if err := rk.keyRing.VerifyDetached(plainMessage, pgpSignature, crypto.GetUnixTime()); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// AddKey implements KeyRing interface
func (rk *RealKeyRing) AddKey(key Key) error {
	if key == nil {
		return fmt.Errorf("key cannot be nil")
	}

	realKey, ok := key.(*RealKey)
	if !ok {
		return fmt.Errorf("unsupported key type")
	}

	if rk.keyRing == nil {
		var err error
		rk.keyRing, err = crypto.NewKeyRing(realKey.pgpKey)
		if err != nil {
			return fmt.Errorf("failed to create keyring: %w", err)
		}
		return nil
	}

	if err := rk.keyRing.AddKey(realKey.pgpKey); err != nil {
		return fmt.Errorf("failed to add key to keyring: %w", err)
	}
	return nil
}

// CountKeys returns the number of keys held.
func (rk *RealKeyRing) CountKeys() int {
	if rk.keyRing == nil {
		return 0
	}
	return rk.keyRing.CountEntities()
}

// NewRealKey parses an ASCII-armored public key.
func NewRealKey(armoredData string) (*RealKey, error) {
	if armoredData == "" {
		return nil, fmt.Errorf("armored data cannot be empty")
	}

	pgpKey, err := crypto.NewKeyFromArmored(armoredData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PGP key: %w", err)
	}

	return &RealKey{
		pgpKey:      pgpKey,
		fingerprint: pgpKey.GetFingerprint(),
	}, nil
}

// CanVerify reports whether the key is currently usable for verification.
// Expired and revoked keys are not.
func (rk *RealKey) CanVerify() bool {
	return rk.pgpKey.CanVerify()
}

// GetFingerprint implements Key interface
func (rk *RealKey) GetFingerprint() string {
	return rk.fingerprint
}

// LoadKeyRingFromPath loads all ASCII-armored PGP public keys (*.asc) from
// keysPath.
func LoadKeyRingFromPath(keysPath string) (*RealKeyRing, error) {
	files, err := os.ReadDir(keysPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read keys directory: %w", err)
	}

	keyRing := NewRealKeyRing()
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".asc" {
			continue
		}

		filePath := filepath.Join(keysPath, file.Name())
		if err := validateKeyFile(filePath); err != nil {
			return nil, fmt.Errorf("invalid key file '%s': %w", file.Name(), err)
		}

		keyData, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}

		key, err := NewRealKey(string(keyData))
		if err != nil {
			return nil, fmt.Errorf("failed to parse armored key '%s': %w", file.Name(), err)
		}

		if err := validateKey(key); err != nil {
			return nil, fmt.Errorf("invalid key in file '%s': %w", file.Name(), err)
		}

		if err := keyRing.AddKey(key); err != nil {
			return nil, err
		}
	}

	if keyRing.CountKeys() == 0 {
		return nil, fmt.Errorf("no .asc keys found in directory %s", keysPath)
	}
	return keyRing, nil
}

// FindSignature returns the detached signature next to archivePath, trying
// each of SignatureExtensions.
func FindSignature(archivePath string) (string, error) {
	for _, ext := range SignatureExtensions {
		candidate := archivePath + ext
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w for %s", ErrNoSignature, filepath.Base(archivePath))
}

// VerifyFile verifies archivePath against its detached signature.
func VerifyFile(keyRing KeyRing, archivePath string) error {
	sigPath, err := FindSignature(archivePath)
	if err != nil {
		return err
	}
	return VerifyDetachedSignature(keyRing, archivePath, sigPath)
}

// VerifyDetachedSignature verifies a detached signature file against the
// given data file.
func VerifyDetachedSignature(keyRing KeyRing, dataFilePath string, sigFilePath string) error {
	if keyRing == nil {
		return ErrNilKeyRing
	}

	dataFileContent, err := readLimited(dataFilePath)
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}

	sigFileContent, err := readLimited(sigFilePath)
	if err != nil {
		return fmt.Errorf("failed to read signature file: %w", err)
	}

	if err := keyRing.VerifyDetached(dataFileContent, sigFileContent); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(dataFilePath), err)
	}
	return nil
}

func readLimited(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("file exceeds maximum allowed size of %d bytes", maxFileSize)
	}
	return os.ReadFile(path)
}

// validateKeyFile checks if a key file has appropriate permissions and size
func validateKeyFile(filePath string) error {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to access key file: %w", err)
	}

	if fileInfo.Size() > maxFileSize {
		return fmt.Errorf("key file exceeds maximum allowed size of %d bytes", maxFileSize)
	}

	// 0644 is accepted as well
	perm := fileInfo.Mode().Perm()
	if perm != keyFileMode && perm != 0644 {
		return fmt.Errorf("key file has incorrect permissions. Expected %o or 0644, got %o", keyFileMode, perm)
	}

	return nil
}

func validateKey(key Key) error {
	if key == nil {
		return fmt.Errorf("key is nil")
	}
	if !key.CanVerify() {
		return fmt.Errorf("key %s cannot verify signatures (expired or revoked)", key.GetFingerprint())
	}
	return nil
}
