package common

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// DigestWriter hashes everything written through it while forwarding the
// bytes to an optional destination.
type DigestWriter struct {
	dst io.Writer
	h   hash.Hash
	n   int64
}

func NewDigestWriter(dst io.Writer) *DigestWriter {
	return &DigestWriter{dst: dst, h: sha256.New()}
}

func (w *DigestWriter) Write(p []byte) (int, error) {
	if w.dst != nil {
		n, err := w.dst.Write(p)
		w.h.Write(p[:n])
		w.n += int64(n)
		return n, err
	}
	w.h.Write(p)
	w.n += int64(len(p))
	return len(p), nil
}

// Sum returns the hex SHA-256 of the bytes written so far.
func (w *DigestWriter) Sum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

// Size returns the number of bytes written so far.
func (w *DigestWriter) Size() int64 {
	return w.n
}

// Sha256OfFile returns the hex digest and size of the file at path.
func Sha256OfFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	w := NewDigestWriter(nil)
	if _, err := io.Copy(w, f); err != nil {
		return "", 0, errors.Wrapf(err, "hash %s", path)
	}
	return w.Sum(), w.Size(), nil
}
