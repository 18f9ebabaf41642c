// Package multicodec decodes and encodes the multibase(multicodec ||
// key-bytes) format used by did:key identifiers and Multikey
// verificationMethod entries (https://www.w3.org/TR/vc-data-integrity/#multikey).
package multicodec

import (
	"encoding/binary"
	"fmt"

	"github.com/multiformats/go-multibase"
)

// Code identifies the key type carried by a multicodec prefix.
type Code uint64

// Multicodec table entries relevant to the DID/VC key types this repo
// resolves and verifies. Values are the registered codes from
// https://github.com/multiformats/multicodec/blob/master/table.csv.
const (
	Ed25519PubKey   Code = 0xed
	Secp256k1PubKey Code = 0xe7
	X25519PubKey    Code = 0xec
	P256PubKey      Code = 0x1200
	P384PubKey      Code = 0x1201
)

// KeySize is the expected raw public-key length for each supported
// codec. Ed25519, secp256k1 (compressed), and X25519 keys are fixed
// size; P-256/P-384 Multikey entries carry an uncompressed point
// (0x04 || X || Y) and are validated by the did package instead.
var KeySize = map[Code]int{
	Ed25519PubKey:   32,
	Secp256k1PubKey: 33,
	X25519PubKey:    32,
}

// Decode strips the multibase prefix from s and reads the multicodec
// varint that follows, returning the codec and the remaining raw key
// bytes. Used by did:key resolution and Multikey verificationMethod
// parsing.
func Decode(s string) (Code, []byte, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return 0, nil, fmt.Errorf("multicodec: multibase decode: %w", err)
	}

	code, n := binary.Uvarint(data)
	if n <= 0 {
		return 0, nil, fmt.Errorf("multicodec: invalid varint prefix")
	}

	key := data[n:]
	if len(key) == 0 {
		return 0, nil, fmt.Errorf("multicodec: no key bytes after codec prefix")
	}

	if size, ok := KeySize[Code(code)]; ok && len(key) != size {
		return 0, nil, fmt.Errorf("multicodec: codec 0x%x expects %d key bytes, got %d", code, size, len(key))
	}

	return Code(code), key, nil
}

// Encode prepends the multicodec varint for code to key and multibase
// base58btc-encodes the result, producing a "z..." string.
func Encode(code Code, key []byte) (string, error) {
	if size, ok := KeySize[code]; ok && len(key) != size {
		return "", fmt.Errorf("multicodec: codec 0x%x expects %d key bytes, got %d", code, size, len(key))
	}

	prefix := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(prefix, uint64(code))

	buf := make([]byte, 0, n+len(key))
	buf = append(buf, prefix[:n]...)
	buf = append(buf, key...)

	encoded, err := multibase.Encode(multibase.Base58BTC, buf)
	if err != nil {
		return "", fmt.Errorf("multicodec: multibase encode: %w", err)
	}
	return encoded, nil
}

// String names a codec for error messages and logging.
func (c Code) String() string {
	switch c {
	case Ed25519PubKey:
		return "ed25519-pub"
	case Secp256k1PubKey:
		return "secp256k1-pub"
	case X25519PubKey:
		return "x25519-pub"
	case P256PubKey:
		return "p256-pub"
	case P384PubKey:
		return "p384-pub"
	default:
		return fmt.Sprintf("unknown(0x%x)", uint64(c))
	}
}
