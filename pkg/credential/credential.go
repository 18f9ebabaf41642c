// Package credential implements trustcore's Verifiable Credential
// issuer and verifier (spec §4.6): signing input construction via
// pkg/canon, signature production/verification via pkg/cryptoutil and
// pkg/kms, and issuer resolution via pkg/resolver.
package credential

import (
	"encoding/json"
	"fmt"
)

// W3C base context every credential this package issues or accepts
// must start with (spec §4.6 step 1 structural check).
const BaseContext = "https://www.w3.org/2018/credentials/v1"

// Proof is the Data Integrity proof skeleton described in spec §4.6:
// built once without ProofValue, canonicalized alongside the rest of
// the credential, then completed by attaching the signature.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	ProofValue         string `json:"proofValue,omitempty"`
}

// CredentialStatus references a StatusList2021 entry, per
// https://www.w3.org/TR/vc-status-list/.
type CredentialStatus struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	StatusPurpose        string `json:"statusPurpose"`
	StatusListIndex      string `json:"statusListIndex"`
	StatusListCredential string `json:"statusListCredential"`
}

// IssuerRef is the VC issuer field: either a bare DID string or an
// object carrying at least an id, per spec §4.6 step 1. Named
// IssuerRef (not Issuer) so it doesn't collide with the top-level
// Issuer service type that builds and signs credentials.
type IssuerRef struct {
	ID string
}

// MarshalJSON emits IssuerRef as a bare string, the common case for
// every credential this package issues.
func (i IssuerRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.ID)
}

// UnmarshalJSON accepts either a bare DID string or an object with an
// "id" field, matching the two encodings spec §4.6's structural check
// must tolerate.
func (i *IssuerRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		i.ID = s
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("credential: issuer must be a string or object with id: %w", err)
	}
	i.ID = obj.ID
	return nil
}

// VerifiableCredential models the W3C VC Data Model shape spec §4.6
// operates over. Unrecognized top-level fields (custom VC extensions,
// @context-defined terms this package doesn't model) round-trip
// through Extra rather than being silently dropped, matching the
// teacher's "stay tolerant of unknown claim shapes" posture in
// pkg/vc20/credential without adopting VC 2.0's validFrom/validUntil
// renaming.
type VerifiableCredential struct {
	Context           []string          `json:"@context"`
	ID                string            `json:"id,omitempty"`
	Type              []string          `json:"type"`
	Issuer            IssuerRef         `json:"issuer"`
	IssuanceDate      string            `json:"issuanceDate"`
	ExpirationDate    string            `json:"expirationDate,omitempty"`
	NotBefore         string            `json:"notBefore,omitempty"`
	CredentialSubject json.RawMessage   `json:"credentialSubject"`
	CredentialStatus  *CredentialStatus `json:"credentialStatus,omitempty"`
	Proof             *Proof            `json:"proof,omitempty"`
	Extra             map[string]json.RawMessage `json:"-"`
}

var knownTopLevelFields = map[string]bool{
	"@context": true, "id": true, "type": true, "issuer": true,
	"issuanceDate": true, "expirationDate": true, "notBefore": true,
	"credentialSubject": true, "credentialStatus": true, "proof": true,
}

// MarshalJSON re-merges Extra fields alongside the known ones so a
// round-tripped credential is byte-for-byte equivalent (modulo key
// order, which canon.Marshal normalizes anyway) to what was parsed.
func (vc VerifiableCredential) MarshalJSON() ([]byte, error) {
	type alias VerifiableCredential
	raw, err := json.Marshal(alias(vc))
	if err != nil {
		return nil, err
	}
	if len(vc.Extra) == 0 {
		return raw, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	for k, v := range vc.Extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON captures any field not in knownTopLevelFields into
// Extra instead of discarding it.
func (vc *VerifiableCredential) UnmarshalJSON(data []byte) error {
	type alias VerifiableCredential
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*vc = VerifiableCredential(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !knownTopLevelFields[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		vc.Extra = extra
	}
	return nil
}

// HasType reports whether t appears in vc.Type.
func (vc *VerifiableCredential) HasType(t string) bool {
	for _, got := range vc.Type {
		if got == t {
			return true
		}
	}
	return false
}

// withProof returns a shallow copy of vc with Proof replaced, used both
// to build the unsigned signing input during issuance (proof=skeleton)
// and to rebuild it during verification (proof=the same proof with
// ProofValue stripped).
func (vc VerifiableCredential) withProof(p *Proof) VerifiableCredential {
	vc.Proof = p
	return vc
}
