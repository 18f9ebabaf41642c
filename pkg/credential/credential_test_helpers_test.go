package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"trustcore/pkg/did"
	"trustcore/pkg/kms"
	"trustcore/pkg/multicodec"
	"trustcore/pkg/resolver"
)

// vmFromPublicKey builds a did.VerificationMethod carrying pub encoded
// as publicKeyMultibase, matching the shape did.KeyDriver produces.
func vmFromPublicKey(t *testing.T, pub []byte, alg kms.Algorithm, vmID string) did.VerificationMethod {
	t.Helper()
	var code multicodec.Code
	switch alg {
	case kms.AlgEd25519:
		code = multicodec.Ed25519PubKey
	case kms.AlgSecp256k1:
		code = multicodec.Secp256k1PubKey
	default:
		t.Fatalf("unsupported algorithm %q", alg)
	}
	encoded, err := multicodec.Encode(code, pub)
	require.NoError(t, err)
	return did.VerificationMethod{
		ID:                 vmID,
		Type:               "Ed25519VerificationKey2020",
		PublicKeyMultibase: encoded,
	}
}

// fixedDriver resolves every DID to the same canned result, regardless
// of the DID string, for tests that only need one issuer document.
type fixedDriver struct {
	result *did.ResolutionResult
}

func (d *fixedDriver) Resolve(_ context.Context, _ string, _ did.ResolutionOptions) (*did.ResolutionResult, error) {
	return d.result, nil
}

// newTestResolver registers driver under method "key" and returns an
// unseeded Resolver — tests pass DIDs of the form "did:key:...".
func newTestResolver(driver did.Driver) *resolver.Resolver {
	r := resolver.New()
	r.Register("key", driver)
	return r
}
