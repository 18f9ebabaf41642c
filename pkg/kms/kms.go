// Package kms defines the key-management contract trustcore signs and
// verifies against, and the three backends (local, AWS, GCP) that
// satisfy it. Callers never see secret key bytes: a Backend returns
// opaque key IDs and signatures only.
package kms

import (
	"context"

	"trustcore/pkg/cryptoutil"
)

// Algorithm is re-exported from cryptoutil so callers of this package
// never need to import it directly.
type Algorithm = cryptoutil.Algorithm

const (
	AlgEd25519   = cryptoutil.AlgEd25519
	AlgSecp256k1 = cryptoutil.AlgSecp256k1
)

// Status is the lifecycle state of a managed key.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// KeyReference identifies a key handle without exposing key material.
type KeyReference struct {
	KeyID     string
	Algorithm Algorithm
	Status    Status
	CreatedAt int64
}

// Backend is the contract every KMS implementation satisfies (spec
// §4.2). Disabled keys must still serve PublicKey so historical
// signatures remain verifiable after rotation.
type Backend interface {
	Generate(ctx context.Context, alg Algorithm, purpose string) (KeyReference, error)
	Sign(ctx context.Context, keyID string, message []byte) ([]byte, error)
	PublicKey(ctx context.Context, keyID string) ([]byte, error)
	Rotate(ctx context.Context, keyID string) (KeyReference, error)
	Disable(ctx context.Context, keyID string) error
}
