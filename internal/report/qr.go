package report

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"
	qrcode "github.com/skip2/go-qrcode"
)

// digestURI is what the QR code carries, so a phone scan can be compared
// against `sha256sum` of the exported CSV.
func digestURI(digest string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(digest))
	raw, err := hex.DecodeString(d)
	if err != nil || len(raw) != sha256.Size {
		return "", errors.Newf("report: %q is not a sha256 digest", digest)
	}
	return "sha256:" + d, nil
}

// DigestToQR renders the CSV digest as a QR code PNG. size defaults to 128.
func DigestToQR(digest string, size int) ([]byte, error) {
	uri, err := digestURI(digest)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 128
	}
	png, err := qrcode.Encode(uri, qrcode.Medium, size)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr")
	}
	return png, nil
}
