package credential

import (
	"encoding/base64"
	"encoding/hex"

	"trustcore/pkg/cryptoutil"
	"trustcore/pkg/did"
	"trustcore/pkg/errkind"
	"trustcore/pkg/multicodec"
)

// extractPublicKey reads the raw public key bytes and signature
// algorithm out of whichever PublicKey* encoding vm carries (spec §4.6
// step 5). Exactly one of PublicKeyMultibase, PublicKeyJwk, or
// PublicKeyHex is expected to be set, matching what every did.Driver in
// this repo produces.
func extractPublicKey(vm did.VerificationMethod) ([]byte, cryptoutil.Algorithm, error) {
	switch {
	case vm.PublicKeyMultibase != "":
		return publicKeyFromMultibase(vm.PublicKeyMultibase)
	case vm.PublicKeyJwk != nil:
		return publicKeyFromJWK(vm.PublicKeyJwk)
	case vm.PublicKeyHex != "":
		return publicKeyFromHex(vm.Type, vm.PublicKeyHex)
	default:
		return nil, "", errkind.New(errkind.ErrKeyNotFound, "credential: verification method %q carries no public key encoding", vm.ID)
	}
}

func publicKeyFromMultibase(s string) ([]byte, cryptoutil.Algorithm, error) {
	code, key, err := multicodec.Decode(s)
	if err != nil {
		return nil, "", errkind.Wrap(errkind.ErrKeyNotFound, err, "credential: decode publicKeyMultibase")
	}
	switch code {
	case multicodec.Ed25519PubKey:
		return key, cryptoutil.AlgEd25519, nil
	case multicodec.Secp256k1PubKey:
		return key, cryptoutil.AlgSecp256k1, nil
	default:
		return nil, "", errkind.New(errkind.ErrNotSupported, "credential: multicodec %s is not a supported signing key", code)
	}
}

func publicKeyFromHex(vmType, s string) ([]byte, cryptoutil.Algorithm, error) {
	raw, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return nil, "", errkind.Wrap(errkind.ErrKeyNotFound, err, "credential: decode publicKeyHex")
	}

	// EcdsaSecp256k1RecoveryMethod2020 carries an Ethereum address (20
	// bytes), not a public key: recovering the key from the address
	// would require the Ethereum-style recovery id trustcore's
	// SHA-256/r||s secp256k1 convention doesn't carry. A did:ethr
	// identity used to sign credentials must add an explicit delegate
	// verification method carrying the raw public key instead.
	if vmType == "EcdsaSecp256k1RecoveryMethod2020" && len(raw) == 20 {
		return nil, "", errkind.New(errkind.ErrNotSupported, "credential: %s carries an address, not a recoverable public key", vmType)
	}

	switch len(raw) {
	case 32:
		return raw, cryptoutil.AlgEd25519, nil
	case 33, 65:
		return raw, cryptoutil.AlgSecp256k1, nil
	default:
		return nil, "", errkind.New(errkind.ErrKeyNotFound, "credential: publicKeyHex has unrecognized length %d", len(raw))
	}
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// publicKeyFromJWK supports the two JWK shapes trustcore's own drivers
// and issuers emit: OKP/Ed25519 and EC/secp256k1. P-256/P-384
// JsonWebKey2020 entries (did:key's only use of this encoding) aren't
// signing algorithms pkg/cryptoutil implements, so they're rejected
// rather than silently mis-verified.
func publicKeyFromJWK(jwk map[string]any) ([]byte, cryptoutil.Algorithm, error) {
	kty, _ := jwk["kty"].(string)
	crv, _ := jwk["crv"].(string)

	switch {
	case kty == "OKP" && crv == "Ed25519":
		x, err := decodeJWKCoordinate(jwk, "x")
		if err != nil {
			return nil, "", err
		}
		return x, cryptoutil.AlgEd25519, nil

	case kty == "EC" && crv == "secp256k1":
		x, err := decodeJWKCoordinate(jwk, "x")
		if err != nil {
			return nil, "", err
		}
		y, err := decodeJWKCoordinate(jwk, "y")
		if err != nil {
			return nil, "", err
		}
		uncompressed := append([]byte{0x04}, append(x, y...)...)
		return uncompressed, cryptoutil.AlgSecp256k1, nil

	default:
		return nil, "", errkind.New(errkind.ErrNotSupported, "credential: JWK kty=%s crv=%s is not a supported signing key", kty, crv)
	}
}

func decodeJWKCoordinate(jwk map[string]any, field string) ([]byte, error) {
	s, ok := jwk[field].(string)
	if !ok || s == "" {
		return nil, errkind.New(errkind.ErrKeyNotFound, "credential: publicKeyJwk missing %q", field)
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrKeyNotFound, err, "credential: decode publicKeyJwk.%s", field)
	}
	return b, nil
}
