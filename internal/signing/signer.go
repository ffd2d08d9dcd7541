// Package signing notarizes final chain hashes with a document-signing key.
package signing

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// Signer produces a detached signature over a prehashed hex digest. The
// engine reports signer failures to the caller and never retries them.
type Signer interface {
	Sign(hashHex string) (string, error)
}

// ECDSASigner signs 32-byte digests with a P-256 private key. Signatures
// are ASN.1 DER, base64 encoded.
type ECDSASigner struct {
	key *ecdsa.PrivateKey
}

// NewECDSASigner wraps an in-memory key.
func NewECDSASigner(key *ecdsa.PrivateKey) *ECDSASigner {
	return &ECDSASigner{key: key}
}

// LoadECDSASigner reads a PEM-encoded EC private key (SEC1 or PKCS#8) from
// keyPath.
func LoadECDSASigner(keyPath string) (*ECDSASigner, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("signing key file contains no PEM block")
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return &ECDSASigner{key: key}, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not an EC private key")
	}
	return &ECDSASigner{key: key}, nil
}

// Sign signs the hex digest and returns the base64 signature.
func (s *ECDSASigner) Sign(hashHex string) (string, error) {
	digest, err := hex.DecodeString(hashHex)
	if err != nil {
		return "", fmt.Errorf("hash_hex is not valid hex: %w", err)
	}
	if len(digest) != 32 {
		return "", fmt.Errorf("hash_hex must decode to 32 bytes, got %d", len(digest))
	}
	sig, err := ecdsa.SignASN1(rand.Reader, s.key, digest)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Public returns the signer's public key for signature verification.
func (s *ECDSASigner) Public() *ecdsa.PublicKey {
	return &s.key.PublicKey
}
