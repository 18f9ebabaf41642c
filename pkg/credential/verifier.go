package credential

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/multiformats/go-multibase"

	"trustcore/pkg/canon"
	"trustcore/pkg/cryptoutil"
	"trustcore/pkg/did"
	"trustcore/pkg/errkind"
	"trustcore/pkg/resolver"
	"trustcore/pkg/statuslist"
)

// Reason codes for VerificationResult, matching spec §4.6's Verify
// algorithm step by step.
const (
	ReasonInvalidStructure          = "invalid_structure"
	ReasonExpired                   = "expired"
	ReasonNotYetValid               = "not_yet_valid"
	ReasonIssuerUnresolvable        = "issuer_unresolvable"
	ReasonIssuerDeactivated         = "issuer_deactivated"
	ReasonKeyNotFoundOrWrongPurpose = "key_not_found_or_wrong_purpose"
	ReasonUnsupportedProofType      = "unsupported_proof_type"
	ReasonBadSignature              = "bad_signature"
	ReasonRevoked                   = "revoked"
	ReasonStatusListUnresolvable    = "status_list_unresolvable"
)

// VerificationResult is Verify's uniform return value. Valid is false
// for every Reason except the empty string, which Verify never sets
// directly — see the Valid field comment.
type VerificationResult struct {
	// Valid is true only when every Verify step passes (spec §4.6 step
	// 8); Reason and Cause are then both zero.
	Valid bool
	// Reason is one of the Reason* constants, set whenever Valid is
	// false.
	Reason string
	// Details carries human-readable context for Reason (the specific
	// structural defect, the mismatched timestamp, etc).
	Details string
	// Cause carries the underlying error for reasons that originate
	// from a collaborator failure (issuer_unresolvable, status_list_unresolvable).
	Cause error
}

func invalid(reason, details string) *VerificationResult {
	return &VerificationResult{Reason: reason, Details: details}
}

func invalidWithCause(reason, details string, cause error) *VerificationResult {
	return &VerificationResult{Reason: reason, Details: details, Cause: cause}
}

// Clock abstracts "now" so Verify's temporal check (spec §4.6 step 2)
// is deterministic in tests. A nil Clock defaults to time.Now.
type Clock func() time.Time

// StatusListFetcher retrieves the StatusList2021Credential referenced
// by a CredentialStatus.StatusListCredential URL, used by Verify's
// revocation check (spec §4.6 step 7). Kept as a narrow collaborator
// interface rather than a direct pkg/revocation import, since
// pkg/revocation itself depends on this package to issue status list
// credentials — a direct dependency would cycle.
type StatusListFetcher interface {
	FetchStatusListCredential(ctx context.Context, url string) (*VerifiableCredential, error)
}

// Verifier checks Verifiable Credentials per spec §4.6's eight-step
// Verify algorithm.
type Verifier struct{}

// NewVerifier returns a Verifier. It holds no state; every dependency
// (resolver, clock, revocation collaborator) is passed per call.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify runs the full eight-step check. revocation may be nil, in
// which case a credential with a credentialStatus is accepted without
// a revocation check (the caller has chosen not to wire one).
func (v *Verifier) Verify(ctx context.Context, vc *VerifiableCredential, res *resolver.Resolver, clock Clock, revocation StatusListFetcher) (*VerificationResult, error) {
	return v.verify(ctx, vc, res, clock, revocation, map[string]bool{})
}

func (v *Verifier) verify(ctx context.Context, vc *VerifiableCredential, res *resolver.Resolver, clock Clock, revocation StatusListFetcher, visited map[string]bool) (*VerificationResult, error) {
	if err := validateStructure(vc); err != nil {
		return invalid(ReasonInvalidStructure, err.Error()), nil
	}

	now := time.Now
	if clock != nil {
		now = clock
	}
	nowT := now()

	if vc.ExpirationDate != "" {
		exp, err := time.Parse(time.RFC3339, vc.ExpirationDate)
		if err != nil {
			return invalid(ReasonInvalidStructure, "expirationDate is not RFC 3339"), nil
		}
		if nowT.After(exp) {
			return invalid(ReasonExpired, ""), nil
		}
	}
	if vc.NotBefore != "" {
		nb, err := time.Parse(time.RFC3339, vc.NotBefore)
		if err != nil {
			return invalid(ReasonInvalidStructure, "notBefore is not RFC 3339"), nil
		}
		if nowT.Before(nb) {
			return invalid(ReasonNotYetValid, ""), nil
		}
	}

	result, err := res.Resolve(ctx, vc.Issuer.ID, resolver.ResolveOptions{})
	if err != nil {
		return invalidWithCause(ReasonIssuerUnresolvable, "", err), nil
	}
	if result.Document == nil {
		return invalid(ReasonIssuerUnresolvable, result.ResolutionMetadata.Message), nil
	}
	if result.DocumentMetadata.Deactivated {
		return invalid(ReasonIssuerDeactivated, ""), nil
	}

	if vc.Proof == nil {
		return invalid(ReasonInvalidStructure, "missing proof"), nil
	}
	if vc.Proof.Type == "JsonWebSignature2020" {
		return invalid(ReasonUnsupportedProofType, vc.Proof.Type), nil
	}

	vm, ok := selectVerificationMethod(result.Document, vc.Proof.VerificationMethod)
	if !ok {
		return invalid(ReasonKeyNotFoundOrWrongPurpose, vc.Proof.VerificationMethod), nil
	}

	pubKey, alg, err := extractPublicKey(vm)
	if err != nil {
		return invalidWithCause(ReasonKeyNotFoundOrWrongPurpose, vm.ID, err), nil
	}

	_, sigBytes, err := multibase.Decode(vc.Proof.ProofValue)
	if err != nil {
		return invalidWithCause(ReasonBadSignature, "malformed proofValue", err), nil
	}

	stripped := *vc.Proof
	stripped.ProofValue = ""
	signingInput, err := canon.Marshal(vc.withProof(&stripped))
	if err != nil {
		return invalidWithCause(ReasonBadSignature, "canonicalize signing input", err), nil
	}

	verified, err := cryptoutil.Verify(alg, pubKey, signingInput, sigBytes)
	if err != nil || !verified {
		return invalid(ReasonBadSignature, ""), nil
	}

	if vc.CredentialStatus != nil && revocation != nil {
		revoked, err := v.checkRevocation(ctx, vc.CredentialStatus, res, clock, revocation, visited)
		if err != nil {
			return invalidWithCause(ReasonStatusListUnresolvable, vc.CredentialStatus.StatusListCredential, err), nil
		}
		if revoked {
			return invalid(ReasonRevoked, ""), nil
		}
	}

	return &VerificationResult{Valid: true}, nil
}

// selectVerificationMethod finds the first verificationMethod (in
// document order) whose id matches methodID and which also appears in
// assertionMethod — spec §4.6 step 4's tie-break and purpose check.
func selectVerificationMethod(doc *did.Document, methodID string) (did.VerificationMethod, bool) {
	inAssertion := false
	for _, id := range doc.AssertionMethod {
		if id == methodID {
			inAssertion = true
			break
		}
	}
	if !inAssertion {
		return did.VerificationMethod{}, false
	}
	for _, vm := range doc.VerificationMethod {
		if vm.ID == methodID {
			return vm, true
		}
	}
	return did.VerificationMethod{}, false
}

// validateStructure implements spec §4.6 step 1: @context starts with
// the W3C base context, type contains "VerifiableCredential", issuer
// carries a non-empty id, issuanceDate parses as RFC 3339, and proof
// (when present) is well-formed.
func validateStructure(vc *VerifiableCredential) error {
	if len(vc.Context) == 0 || vc.Context[0] != BaseContext {
		return invalidStructureError("@context must start with " + BaseContext)
	}
	if !vc.HasType("VerifiableCredential") {
		return invalidStructureError(`type must contain "VerifiableCredential"`)
	}
	if vc.Issuer.ID == "" {
		return invalidStructureError("issuer must be a DID string or object with a non-empty id")
	}
	if _, err := time.Parse(time.RFC3339, vc.IssuanceDate); err != nil {
		return invalidStructureError("issuanceDate is not RFC 3339")
	}
	if vc.Proof != nil {
		if vc.Proof.Type == "" || vc.Proof.VerificationMethod == "" || vc.Proof.ProofPurpose == "" || vc.Proof.ProofValue == "" {
			return invalidStructureError("proof is missing a required field")
		}
	}
	return nil
}

func invalidStructureError(format string) error {
	return errkind.New(errkind.ErrInvalidInput, "credential: %s", format)
}

// checkRevocation fetches and recursively verifies the status list
// credential referenced by status, then reads the bit at its index.
// visited holds the ids of the status list credentials already on the
// current verification stack (the statusListCredential URL stands in
// for a credential without an id). Meeting one of them again — a
// status list credential that references itself as its own
// credentialStatus, or a longer cycle — fails with an ErrInternal
// error (spec §4.6 step 7's cycle-detection requirement).
func (v *Verifier) checkRevocation(ctx context.Context, status *CredentialStatus, res *resolver.Resolver, clock Clock, revocation StatusListFetcher, visited map[string]bool) (bool, error) {
	statusVC, err := revocation.FetchStatusListCredential(ctx, status.StatusListCredential)
	if err != nil {
		return false, err
	}

	key := statusVC.ID
	if key == "" {
		key = status.StatusListCredential
	}
	if visited[key] {
		return false, errkind.New(errkind.ErrInternal, "credential: status list credential %q is part of a status reference cycle", key)
	}
	visited[key] = true

	result, err := v.verify(ctx, statusVC, res, clock, revocation, visited)
	if err != nil {
		return false, err
	}
	if !result.Valid {
		return false, errkind.New(errkind.ErrInternal, "credential: status list credential failed verification: %s", result.Reason)
	}

	var subject struct {
		EncodedList string `json:"encodedList"`
	}
	if err := json.Unmarshal(statusVC.CredentialSubject, &subject); err != nil {
		return false, errkind.Wrap(errkind.ErrInvalidInput, err, "credential: status list credentialSubject missing encodedList")
	}

	bits, err := statuslist.DecodeAuto(subject.EncodedList)
	if err != nil {
		return false, err
	}

	idx, err := strconv.Atoi(status.StatusListIndex)
	if err != nil {
		return false, errkind.Wrap(errkind.ErrInvalidInput, err, "credential: statusListIndex is not numeric")
	}

	return bits.Get(idx)
}
