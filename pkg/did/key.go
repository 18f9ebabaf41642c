package did

import (
	"context"
	"fmt"
	"strings"

	"trustcore/pkg/multicodec"
)

// KeyDriver resolves did:key identifiers entirely offline by decoding
// the multicodec-prefixed public key embedded in the DID itself
// (spec §4.4.2). It holds no state and makes no network calls.
type KeyDriver struct{}

// NewKeyDriver returns a stateless did:key driver.
func NewKeyDriver() *KeyDriver {
	return &KeyDriver{}
}

func verificationKeyType(code multicodec.Code) (string, bool) {
	switch code {
	case multicodec.Ed25519PubKey:
		return "Ed25519VerificationKey2020", true
	case multicodec.Secp256k1PubKey:
		return "EcdsaSecp256k1VerificationKey2019", true
	case multicodec.X25519PubKey:
		return "X25519KeyAgreementKey2020", true
	case multicodec.P256PubKey:
		return "JsonWebKey2020", true
	case multicodec.P384PubKey:
		return "JsonWebKey2020", true
	default:
		return "", false
	}
}

// Resolve implements Driver. Malformed prefixes, bad multibase, and
// unknown multicodec values all map to invalidDid per spec §4.4.2.
func (d *KeyDriver) Resolve(_ context.Context, did string, _ ResolutionOptions) (*ResolutionResult, error) {
	const prefix = "did:key:"
	if !strings.HasPrefix(did, prefix) {
		return errorResult(ErrorInvalidDID, "not a did:key identifier"), nil
	}
	suffix := strings.TrimPrefix(did, prefix)

	code, _, err := multicodec.Decode(suffix)
	if err != nil {
		return errorResult(ErrorInvalidDID, fmt.Sprintf("did:key: %v", err)), nil
	}

	vmType, ok := verificationKeyType(code)
	if !ok {
		return errorResult(ErrorInvalidDID, fmt.Sprintf("did:key: unsupported multicodec %s", code)), nil
	}

	vmID := did + "#" + suffix
	vm := VerificationMethod{
		ID:                 vmID,
		Type:               vmType,
		Controller:         did,
		PublicKeyMultibase: suffix,
	}

	doc := &Document{
		Context:            []string{"https://www.w3.org/ns/did/v1"},
		ID:                 did,
		VerificationMethod: []VerificationMethod{vm},
		Authentication:     []string{vmID},
		AssertionMethod:    []string{vmID},
	}

	return documentResult(doc, DocumentMetadata{}), nil
}
