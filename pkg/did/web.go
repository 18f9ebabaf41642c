package did

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// WebDriver resolves did:web identifiers over HTTPS, per spec §4.4.1.
// It never constructs its own *http.Client (spec.md Non-goals: "no
// specific transport") — callers inject one, mirroring go-trust's
// DIDWebRegistry.SetHTTPClient pattern.
type WebDriver struct {
	client         *http.Client
	defaultTimeout time.Duration
}

// NewWebDriver builds a WebDriver using client for all HTTP requests.
// If client is nil, http.DefaultClient is used. defaultTimeout of
// zero falls back to the spec's 5-second default.
func NewWebDriver(client *http.Client, defaultTimeout time.Duration) *WebDriver {
	if client == nil {
		client = http.DefaultClient
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Second
	}
	return &WebDriver{client: client, defaultTimeout: defaultTimeout}
}

// didWebToURL implements the did:web→URL mapping from spec §4.4.1:
// colons in the method-specific ID become path separators, and a bare
// domain (no path) resolves to /.well-known/did.json.
func didWebToURL(did string) (string, error) {
	const prefix = "did:web:"
	if !strings.HasPrefix(did, prefix) {
		return "", fmt.Errorf("not a did:web identifier")
	}
	rest := strings.TrimPrefix(did, prefix)
	if rest == "" {
		return "", fmt.Errorf("empty did:web identifier")
	}

	// Percent-encoded colons in port specs must survive the
	// colon-to-slash path split, so they're protected first.
	rest = strings.ReplaceAll(rest, "%3A", "\x00")
	rest = strings.ReplaceAll(rest, "%3a", "\x00")

	parts := strings.Split(rest, ":")
	host := strings.ReplaceAll(parts[0], "\x00", ":")
	if host == "" {
		return "", fmt.Errorf("empty host in did:web identifier")
	}

	var path string
	if len(parts) == 1 {
		path = "/.well-known/did.json"
	} else {
		segs := make([]string, 0, len(parts)-1)
		for _, p := range parts[1:] {
			segs = append(segs, strings.ReplaceAll(p, "\x00", ":"))
		}
		path = "/" + strings.Join(segs, "/") + "/did.json"
	}

	return "https://" + host + path, nil
}

// Resolve implements Driver.
func (d *WebDriver) Resolve(ctx context.Context, did string, opts ResolutionOptions) (*ResolutionResult, error) {
	url, err := didWebToURL(did)
	if err != nil {
		return errorResult(ErrorInvalidDID, err.Error()), nil
	}

	timeout := d.defaultTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return errorResult(ErrorInternalError, err.Error()), nil
	}
	req.Header.Set("Accept", "application/did+json, application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return errorResult(ErrorNotFound, fmt.Sprintf("did:web: dns lookup failed: %v", dnsErr)), nil
		}
		return errorResult(ErrorNetworkError, err.Error()), nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errorResult(ErrorNotFound, "did:web: document not found"), nil
	case resp.StatusCode >= 500:
		return errorResult(ErrorNetworkError, fmt.Sprintf("did:web: server error %d", resp.StatusCode)), nil
	case resp.StatusCode != http.StatusOK:
		return errorResult(ErrorNotFound, fmt.Sprintf("did:web: unexpected status %d", resp.StatusCode)), nil
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "application/did+json") && !strings.Contains(ct, "application/json") {
		return errorResult(ErrorRepresentationNotSupported, fmt.Sprintf("did:web: unsupported content type %q", ct)), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorResult(ErrorNetworkError, err.Error()), nil
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return errorResult(ErrorInvalidDID, fmt.Sprintf("did:web: malformed document: %v", err)), nil
	}

	if doc.ID != did {
		return errorResult(ErrorInvalidDID, "did:web: document id does not match requested did"), nil
	}

	return documentResult(&doc, DocumentMetadata{}), nil
}
