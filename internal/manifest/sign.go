package manifest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"

	"github.com/cockroachdb/errors"
)

// ErrBadSignature is returned when a detached signature does not match the
// manifest bytes or the signer certificate.
var ErrBadSignature = errors.New("manifest: signature verification failed")

// Signature records who signed a manifest and where the JWS was written.
type Signature struct {
	Type          string `json:"type"`
	CertSubject   string `json:"certSubject"`
	Issuer        string `json:"issuer"`
	SignatureFile string `json:"signatureFile"`
}

// JWS is a flattened RS256 JSON Web Signature with a detached payload: the
// manifest file itself.
type JWS struct {
	Protected string `json:"protected"`
	Signature string `json:"signature"`
}

var protectedHeader = base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","b64":true}`))

func signingDigest(protected string, payload []byte) [32]byte {
	return sha256.Sum256([]byte(protected + "." + base64.RawURLEncoding.EncodeToString(payload)))
}

// Sign stamps m with the signer of certPEM and returns the encoded manifest
// together with its detached signature made with keyPEM.
func Sign(m Manifest, keyPEM, certPEM []byte, sigFile string) ([]byte, JWS, error) {
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, JWS{}, err
	}
	cert, err := parseCertificate(certPEM)
	if err != nil {
		return nil, JWS{}, err
	}
	m.Signature = &Signature{
		Type:          "jws-detached",
		CertSubject:   cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		SignatureFile: sigFile,
	}
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, JWS{}, errors.Wrap(err, "encode manifest")
	}
	digest := signingDigest(protectedHeader, payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, JWS{}, errors.Wrap(err, "sign manifest")
	}
	return payload, JWS{Protected: protectedHeader, Signature: base64.RawURLEncoding.EncodeToString(sig)}, nil
}

// VerifySignature checks sig against the exact manifest bytes that were
// signed.
func VerifySignature(payload []byte, sig JWS, certPEM []byte) error {
	cert, err := parseCertificate(certPEM)
	if err != nil {
		return err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return errors.Wrap(ErrBadSignature, "certificate key is not RSA")
	}
	raw, err := base64.RawURLEncoding.DecodeString(sig.Signature)
	if err != nil {
		return errors.Wrap(ErrBadSignature, "signature is not base64url")
	}
	digest := signingDigest(sig.Protected, payload)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], raw); err != nil {
		return errors.Wrap(ErrBadSignature, err.Error())
	}
	return nil
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("private key: no PEM block")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "private key")
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key: only RSA keys are supported")
	}
	return key, nil
}

func parseCertificate(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("certificate: no PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	return cert, errors.Wrap(err, "certificate")
}
