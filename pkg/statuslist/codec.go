package statuslist

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/multiformats/go-multibase"

	"trustcore/pkg/errkind"
)

// Encode GZIP-compresses the bitstring at level 9 with a zeroed header
// (no ModTime, Name, Comment, or Extra — compress/gzip's defaults
// already satisfy this apart from ModTime, which callers must not set)
// and multibase-encodes the result as base64url (prefix "u"). Identical
// bitstrings always produce byte-identical output.
func (b *Bitstring) Encode() (string, error) {
	var buf bytes.Buffer

	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", errkind.Wrap(errkind.ErrInternal, err, "statuslist: init gzip writer")
	}
	// ModTime left at its zero value and Name/Comment/Extra left empty
	// so the compressed output is deterministic across calls.

	if _, err := w.Write(b.bits); err != nil {
		return "", errkind.Wrap(errkind.ErrInternal, err, "statuslist: gzip write")
	}
	if err := w.Close(); err != nil {
		return "", errkind.Wrap(errkind.ErrInternal, err, "statuslist: gzip close")
	}

	encoded, err := multibase.Encode(multibase.Base64url, buf.Bytes())
	if err != nil {
		return "", errkind.Wrap(errkind.ErrInternal, err, "statuslist: multibase encode")
	}
	return encoded, nil
}

// DecodeAuto inverses Encode without requiring the caller to already
// know the bitstring's length, inferring it from the decompressed byte
// count. Used when reading an encodedList out of a StatusList2021
// Credential not originated locally, where the verifier has no prior
// expectation to validate against.
func DecodeAuto(s string) (*Bitstring, error) {
	_, compressed, err := multibase.Decode(s)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInvalidInput, err, "statuslist: malformed status list encoding")
	}

	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInvalidInput, err, "statuslist: malformed gzip stream")
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInvalidInput, err, "statuslist: gzip decompression failed")
	}

	return &Bitstring{bits: raw, length: len(raw) * 8}, nil
}

// Decode inverses Encode, validating that the decompressed length
// matches length exactly.
func Decode(s string, length int) (*Bitstring, error) {
	if length <= 0 || length%8 != 0 {
		return nil, errkind.New(errkind.ErrInvalidInput, "statuslist: length must be a positive multiple of 8, got %d", length)
	}

	b, err := DecodeAuto(s)
	if err != nil {
		return nil, err
	}
	if len(b.bits) != length/8 {
		return nil, errkind.New(errkind.ErrInvalidInput, "statuslist: decompressed length %d does not match expected %d bytes", len(b.bits), length/8)
	}

	return b, nil
}
