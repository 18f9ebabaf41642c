package credential

import (
	"context"

	"trustcore/pkg/statuslist"
)

// StatusListCredentialTemplate names the fields a
// StatusList2021Credential needs beyond the encoded bitstring itself:
// its own id, the issuer that signs it, and the purpose every entry in
// the list shares.
type StatusListCredentialTemplate struct {
	ID            string
	IssuerDID     string
	StatusPurpose string
	Key           KeyRef
}

// BuildStatusListCredential wraps bits into a StatusList2021Credential
// envelope — the VC a revocation consumer fetches and verifies before
// trusting any single entry's bit — per spec §4.3. It lives in this
// package rather than pkg/statuslist because the envelope is itself a
// VerifiableCredential, issued the same way every other credential
// this package produces is; pkg/statuslist only owns the bitstring and
// its codec.
func (iss *Issuer) BuildStatusListCredential(ctx context.Context, bits *statuslist.Bitstring, tmpl StatusListCredentialTemplate) (*VerifiableCredential, error) {
	encoded, err := bits.Encode()
	if err != nil {
		return nil, err
	}

	return iss.Issue(ctx, Template{
		ID:   tmpl.ID,
		Type: []string{"StatusList2021Credential"},
		CredentialSubject: map[string]any{
			"id":            tmpl.ID + "#list",
			"type":          "StatusList2021",
			"statusPurpose": tmpl.StatusPurpose,
			"encodedList":   encoded,
		},
	}, tmpl.IssuerDID, tmpl.Key, IssueOptions{})
}
