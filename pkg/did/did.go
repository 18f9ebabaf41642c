// Package did implements resolution for the DID methods trustcore
// trusts agent identities under: did:web, did:key, did:ethr, and
// did:ion. Each method is a separate Driver; pkg/resolver dispatches
// by prefix and adds caching and request coalescing on top.
package did

import (
	"context"
	"time"
)

// VerificationMethod mirrors the W3C DID Core shape. Exactly one of
// the PublicKey* fields is populated per method, matching whichever
// encoding the driver that produced it uses.
type VerificationMethod struct {
	ID                 string         `json:"id"`
	Type               string         `json:"type"`
	Controller         string         `json:"controller"`
	PublicKeyMultibase string         `json:"publicKeyMultibase,omitempty"`
	PublicKeyJwk       map[string]any `json:"publicKeyJwk,omitempty"`
	PublicKeyHex       string         `json:"publicKeyHex,omitempty"`
}

// Document is a W3C DID Document. Authentication/AssertionMethod
// entries are verification-method IDs (strings), matching the
// reference-by-id form every driver in this package produces.
type Document struct {
	Context            []string              `json:"@context"`
	ID                 string                `json:"id"`
	Controller         string                `json:"controller,omitempty"`
	VerificationMethod []VerificationMethod  `json:"verificationMethod,omitempty"`
	Authentication     []string              `json:"authentication,omitempty"`
	AssertionMethod    []string              `json:"assertionMethod,omitempty"`
	Service            []map[string]any      `json:"service,omitempty"`
}

// ResolutionOptions tunes a single Resolve call.
type ResolutionOptions struct {
	// Timeout overrides the driver's default bounded timeout. Zero
	// means "use the driver's default".
	Timeout time.Duration
}

// ResolutionMetadata carries the error taxonomy from spec §4.4.
type ResolutionMetadata struct {
	ContentType string `json:"contentType,omitempty"`
	Error       string `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
}

// DocumentMetadata carries lifecycle timestamps used by pkg/resolver's
// cache-TTL policy (Updated drives positive-entry TTL).
type DocumentMetadata struct {
	Created     time.Time `json:"created,omitempty"`
	Updated     time.Time `json:"updated,omitempty"`
	Deactivated bool      `json:"deactivated,omitempty"`
}

// ResolutionResult is the uniform return value of every Driver,
// matching spec §4.4's resolve(did, options) -> ResolutionResult.
type ResolutionResult struct {
	Document            *Document            `json:"didDocument"`
	ResolutionMetadata  ResolutionMetadata   `json:"didResolutionMetadata"`
	DocumentMetadata    DocumentMetadata     `json:"didDocumentMetadata"`
}

// Error taxonomy values for ResolutionMetadata.Error (spec §4.4).
const (
	ErrorInvalidDID               = "invalidDid"
	ErrorNotFound                 = "notFound"
	ErrorMethodNotSupported       = "methodNotSupported"
	ErrorNetworkError             = "networkError"
	ErrorRepresentationNotSupported = "representationNotSupported"
	ErrorInternalError            = "internalError"
)

// Driver resolves DIDs for exactly one method.
type Driver interface {
	Resolve(ctx context.Context, did string, opts ResolutionOptions) (*ResolutionResult, error)
}

func errorResult(code, message string) *ResolutionResult {
	return &ResolutionResult{
		Document:           nil,
		ResolutionMetadata: ResolutionMetadata{Error: code, Message: message},
	}
}

func documentResult(doc *Document, meta DocumentMetadata) *ResolutionResult {
	return &ResolutionResult{
		Document:           doc,
		ResolutionMetadata: ResolutionMetadata{ContentType: "application/did+json"},
		DocumentMetadata:   meta,
	}
}
