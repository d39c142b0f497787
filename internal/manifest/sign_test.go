package manifest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func testSigner(t *testing.T) (keyPEM, certPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "n2kgate test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return keyPEM, certPEM
}

func TestSignAndVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.log")
	if err := os.WriteFile(path, []byte("1 0x100 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := Build([]string{path})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	keyPEM, certPEM := testSigner(t)
	payload, sig, err := Sign(m, keyPEM, certPEM, "manifest.jws")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := VerifySignature(payload, sig, certPEM); err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] ^= 0x01
	if err := VerifySignature(tampered, sig, certPEM); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered payload err = %v, want ErrBadSignature", err)
	}
	_, otherCert := testSigner(t)
	if err := VerifySignature(payload, sig, otherCert); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("wrong signer err = %v, want ErrBadSignature", err)
	}
	if _, _, err := Sign(m, []byte("not pem"), certPEM, ""); err == nil {
		t.Fatalf("expected error for an invalid key")
	}
}
