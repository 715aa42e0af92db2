// Package codec implements the storage encoding shared by all blob
// payloads: zlib compression and SHA-1 key digests. Compressed payloads
// are opaque, no framing is added.
package codec

import (
	"bytes"
	"crypto/sha1"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// KeySize is the length of a key digest in bytes.
const KeySize = sha1.Size

// Compress returns b as a zlib stream using the default parameters.
func Compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := zlib.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, errors.Wrap(err, "error compressing payload")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "error closing zlib writer")
	}

	return buf.Bytes(), nil
}

// Decompress inflates a zlib stream produced by Compress.
func Decompress(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "error opening zlib stream")
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "error decompressing payload")
	}

	return out, nil
}

// KeySum returns the 20 byte SHA-1 digest of the UTF-8 bytes of key.
func KeySum(key string) []byte {
	sum := sha1.Sum([]byte(key))
	return sum[:]
}
