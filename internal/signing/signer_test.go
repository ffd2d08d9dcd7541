package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHash(t *testing.T) string {
	t.Helper()
	sum := sha256.Sum256([]byte("hola clean transparency"))
	return hex.EncodeToString(sum[:])
}

func TestSignAndVerify(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer := NewECDSASigner(key)

	hashHex := testHash(t)
	firma, err := signer.Sign(hashHex)
	require.NoError(t, err)

	sig, err := base64.StdEncoding.DecodeString(firma)
	require.NoError(t, err)

	digest, _ := hex.DecodeString(hashHex)
	assert.True(t, ecdsa.VerifyASN1(signer.Public(), digest, sig))
}

func TestSignRejectsBadInput(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer := NewECDSASigner(key)

	_, err = signer.Sign("not-hex")
	assert.Error(t, err)

	_, err = signer.Sign("abcd")
	assert.Error(t, err)
}

func TestLoadECDSASigner(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signing.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))

	signer, err := LoadECDSASigner(path)
	require.NoError(t, err)

	_, err = signer.Sign(testHash(t))
	assert.NoError(t, err)
}

func TestLoadECDSASignerMissingFile(t *testing.T) {
	_, err := LoadECDSASigner(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)
}
