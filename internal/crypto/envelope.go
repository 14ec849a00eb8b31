// Package crypto provides the envelope encryption used for custodial key
// material and master-key derivation from an operator passphrase.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// MasterKeyLen is the AES-256 master key length in bytes.
	MasterKeyLen = 32
	// envelopeVersion tags the sealed-blob layout so future key-derivation
	// changes stay backward-compatible.
	envelopeVersion = byte(1)
)

// DeriveMasterKey resolves the process master key from configuration.
// A hex-encoded key takes precedence; otherwise the key is derived from the
// passphrase and salt with PBKDF2-HMAC-SHA256. Returns nil (not an error)
// when neither source is configured, so callers can fail closed lazily.
func DeriveMasterKey(hexKey, passphrase, salt string) ([]byte, error) {
	if hexKey != "" {
		k, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("crypto: master key is not valid hex: %w", err)
		}
		if len(k) != MasterKeyLen {
			return nil, fmt.Errorf("crypto: expected %d-byte master key, got %d bytes", MasterKeyLen, len(k))
		}
		return k, nil
	}
	if passphrase != "" {
		if salt == "" {
			return nil, errors.New("crypto: master key salt is required with a passphrase")
		}
		return pbkdf2.Key([]byte(passphrase), []byte(salt), pbkdf2Iterations, MasterKeyLen, sha256.New), nil
	}
	return nil, nil
}

// Seal encrypts plaintext under the master key with AES-256-GCM and a random
// per-record nonce. The blob layout is version || nonce || ciphertext.
func Seal(masterKey, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}
	blob := make([]byte, 0, 1+len(nonce)+len(plaintext)+gcm.Overhead())
	blob = append(blob, envelopeVersion)
	blob = append(blob, nonce...)
	return gcm.Seal(blob, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal.
func Open(masterKey, blob []byte) ([]byte, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}
	if len(blob) < 1+gcm.NonceSize() {
		return nil, errors.New("crypto: sealed blob too short")
	}
	if blob[0] != envelopeVersion {
		return nil, fmt.Errorf("crypto: unsupported envelope version %d", blob[0])
	}
	nonce := blob[1 : 1+gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, blob[1+gcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(masterKey []byte) (cipher.AEAD, error) {
	if len(masterKey) != MasterKeyLen {
		return nil, fmt.Errorf("crypto: expected %d-byte master key, got %d bytes", MasterKeyLen, len(masterKey))
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}
