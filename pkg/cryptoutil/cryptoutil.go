// Package cryptoutil wraps the two signature algorithms trustcore
// verifies proofs with: Ed25519 (did:key, did:web default) and
// secp256k1 (did:ethr). Dispatch is by an explicit Algorithm value
// rather than key-type sniffing, so callers always state what they
// expect to verify against.
package cryptoutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Algorithm names a supported signature scheme.
type Algorithm string

const (
	AlgEd25519   Algorithm = "Ed25519"
	AlgSecp256k1 Algorithm = "ES256K"
)

// secp256k1SigSize is the fixed r||s signature length: two 32-byte
// scalars, no DER envelope and no recovery byte.
const secp256k1SigSize = 64

// Sign produces a signature over message using the given algorithm.
// For AlgEd25519, key must be a 64-byte ed25519.PrivateKey (seed ||
// public key). For AlgSecp256k1, key must be a 32-byte scalar; the
// returned signature is the raw 64-byte r||s encoding, always low-S
// (decred's SignCompact normalizes it).
func Sign(alg Algorithm, key, message []byte) ([]byte, error) {
	switch alg {
	case AlgEd25519:
		if len(key) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("cryptoutil: ed25519 private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
		}
		return ed25519.Sign(ed25519.PrivateKey(key), message), nil

	case AlgSecp256k1:
		if len(key) != 32 {
			return nil, fmt.Errorf("cryptoutil: secp256k1 private key must be 32 bytes, got %d", len(key))
		}
		priv := secp256k1.PrivKeyFromBytes(key)
		defer priv.Zero()

		digest := sha256.Sum256(message)
		// SignCompact returns [recovery_id || r(32) || s(32)]; trustcore
		// doesn't need public-key recovery, so only r||s is kept.
		compact := ecdsa.SignCompact(priv, digest[:], true)
		return compact[1:], nil

	default:
		return nil, fmt.Errorf("cryptoutil: unsupported algorithm %q", alg)
	}
}

// Verify reports whether sig is a valid signature over message under
// pubKey for the given algorithm. secp256k1 signatures must be the raw
// 64-byte r||s encoding with S already in low-half-order canonical
// form; non-canonical (high-S) signatures are rejected to prevent
// signature malleability.
func Verify(alg Algorithm, pubKey, message, sig []byte) (bool, error) {
	switch alg {
	case AlgEd25519:
		if len(pubKey) != ed25519.PublicKeySize {
			return false, fmt.Errorf("cryptoutil: ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pubKey))
		}
		return ed25519.Verify(ed25519.PublicKey(pubKey), message, sig), nil

	case AlgSecp256k1:
		if len(sig) != secp256k1SigSize {
			return false, fmt.Errorf("cryptoutil: secp256k1 signature must be %d bytes (r||s), got %d", secp256k1SigSize, len(sig))
		}

		pk, err := secp256k1.ParsePubKey(pubKey)
		if err != nil {
			return false, fmt.Errorf("cryptoutil: invalid secp256k1 public key: %w", err)
		}

		var r, s secp256k1.ModNScalar
		if overflow := r.SetByteSlice(sig[:32]); overflow {
			return false, fmt.Errorf("cryptoutil: secp256k1 signature r overflows curve order")
		}
		if overflow := s.SetByteSlice(sig[32:]); overflow {
			return false, fmt.Errorf("cryptoutil: secp256k1 signature s overflows curve order")
		}
		if s.IsOverHalfOrder() {
			return false, fmt.Errorf("cryptoutil: secp256k1 signature is not low-S canonical")
		}

		digest := sha256.Sum256(message)
		parsed := ecdsa.NewSignature(&r, &s)
		return parsed.Verify(digest[:], pk), nil

	default:
		return false, fmt.Errorf("cryptoutil: unsupported algorithm %q", alg)
	}
}

// TimingSafeCompare reports whether a and b are byte-identical,
// without leaking timing information about the position of the first
// mismatch. Slices of different lengths compare unequal.
func TimingSafeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
