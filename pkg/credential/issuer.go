package credential

import (
	"context"
	"encoding/json"
	"time"

	"github.com/multiformats/go-multibase"

	"trustcore/pkg/canon"
	"trustcore/pkg/errkind"
	"trustcore/pkg/kms"
)

// Template describes the credential-specific fields Issue fills in
// around the ambient ones (issuer, issuanceDate, proof) it constructs
// itself, per spec §4.6 step 1.
type Template struct {
	ID                string
	Context           []string
	Type              []string
	CredentialSubject any
	ExpirationDate    time.Time
	NotBefore         time.Time
	CredentialStatus  *CredentialStatus
}

// KeyRef names the signing key Issue uses: a KMS-managed key plus the
// DID fragment identifying it within the issuer's DID Document.
type KeyRef struct {
	Backend     kms.Backend
	KeyID       string
	KeyFragment string
	Algorithm   kms.Algorithm
}

// IssueOptions tunes a single Issue call.
type IssueOptions struct {
	// Now overrides the issuance timestamp; nil means time.Now().UTC().
	Now func() time.Time
}

// Issuer builds and signs Verifiable Credentials per spec §4.6.
type Issuer struct{}

// NewIssuer returns an Issuer. It holds no state; all dependencies
// (signing key, clock override) are passed per call.
func NewIssuer() *Issuer {
	return &Issuer{}
}

func proofTypeFor(alg kms.Algorithm) (string, error) {
	switch alg {
	case kms.AlgEd25519:
		return "Ed25519Signature2020", nil
	case kms.AlgSecp256k1:
		return "EcdsaSecp256k1Signature2019", nil
	default:
		return "", errkind.New(errkind.ErrInvalidInput, "credential: unsupported signing algorithm %q", alg)
	}
}

// Issue builds vc from template, attaches a proof skeleton, signs the
// canonicalized result, and returns the completed credential. The
// only non-deterministic input is issuanceDate (spec §4.6: "Deterministic
// given inputs except for issuanceDate").
func (iss *Issuer) Issue(ctx context.Context, template Template, issuerDID string, key KeyRef, opts IssueOptions) (*VerifiableCredential, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	issuanceDate := now().UTC().Format(time.RFC3339)

	vcContext := template.Context
	if len(vcContext) == 0 || vcContext[0] != BaseContext {
		vcContext = append([]string{BaseContext}, vcContext...)
	}
	types := template.Type
	hasVC := false
	for _, t := range types {
		if t == "VerifiableCredential" {
			hasVC = true
		}
	}
	if !hasVC {
		types = append([]string{"VerifiableCredential"}, types...)
	}

	subjectJSON, err := json.Marshal(template.CredentialSubject)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInvalidInput, err, "credential: marshal credentialSubject")
	}

	vc := VerifiableCredential{
		Context:           vcContext,
		ID:                template.ID,
		Type:              types,
		Issuer:            IssuerRef{ID: issuerDID},
		IssuanceDate:      issuanceDate,
		CredentialSubject: subjectJSON,
		CredentialStatus:  template.CredentialStatus,
	}
	if !template.ExpirationDate.IsZero() {
		vc.ExpirationDate = template.ExpirationDate.UTC().Format(time.RFC3339)
	}
	if !template.NotBefore.IsZero() {
		vc.NotBefore = template.NotBefore.UTC().Format(time.RFC3339)
	}

	proofType, err := proofTypeFor(key.Algorithm)
	if err != nil {
		return nil, err
	}
	skeleton := &Proof{
		Type:               proofType,
		Created:            issuanceDate,
		VerificationMethod: issuerDID + "#" + key.KeyFragment,
		ProofPurpose:       "assertionMethod",
	}

	signingInput, err := canon.Marshal(vc.withProof(skeleton))
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrCanonicalization, err, "credential: canonicalize signing input")
	}

	sigBytes, err := iss.sign(ctx, key, signingInput)
	if err != nil {
		return nil, err
	}

	proofValue, err := multibase.Encode(multibase.Base58BTC, sigBytes)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "credential: encode proofValue")
	}
	skeleton.ProofValue = proofValue
	vc.Proof = skeleton

	return &vc, nil
}

// sign dispatches to the KMS backend. kms.Backend.Sign already applies
// the per-algorithm hashing convention internally (SHA-256 digest for
// secp256k1, raw message for Ed25519 which hashes internally), so this
// is a thin pass-through rather than a second hashing layer — spec
// §4.6 step 4 describes that convention, it doesn't require the
// caller to re-implement it on top of an already-hashing backend.
func (iss *Issuer) sign(ctx context.Context, key KeyRef, signingInput []byte) ([]byte, error) {
	sig, err := key.Backend.Sign(ctx, key.KeyID, signingInput)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "credential: sign")
	}
	return sig, nil
}
