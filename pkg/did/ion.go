package did

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// IonDriver resolves did:ion identifiers by querying a configurable
// set of Sidetree nodes in parallel and taking the first successful
// response, per spec §4.4.4. Fan-out uses a stdlib sync.WaitGroup and
// buffered channel rather than an errgroup dependency, matching the
// rest of this codebase's lack of one.
type IonDriver struct {
	nodeBaseURLs   []string
	client         *http.Client
	defaultTimeout time.Duration
}

// NewIonDriver builds an IonDriver querying each of nodeBaseURLs
// (e.g. "https://ion.example.org") for identifiers/<did>.
func NewIonDriver(nodeBaseURLs []string, client *http.Client, defaultTimeout time.Duration) *IonDriver {
	if client == nil {
		client = http.DefaultClient
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Second
	}
	return &IonDriver{nodeBaseURLs: nodeBaseURLs, client: client, defaultTimeout: defaultTimeout}
}

type ionNodeResult struct {
	doc      *Document
	notFound bool
	err      error
}

func (d *IonDriver) queryNode(ctx context.Context, baseURL, did string) ionNodeResult {
	url := strings.TrimRight(baseURL, "/") + "/identifiers/" + did

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ionNodeResult{err: err}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return ionNodeResult{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ionNodeResult{notFound: true}
	}
	if resp.StatusCode != http.StatusOK {
		return ionNodeResult{err: fmt.Errorf("sidetree node %s returned status %d", baseURL, resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ionNodeResult{err: err}
	}

	// Sidetree's resolution response envelope nests the DID document
	// under "didDocument"; fall back to treating the body itself as the
	// document for nodes that respond with a bare document.
	var envelope struct {
		DIDDocument *Document `json:"didDocument"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.DIDDocument != nil {
		return ionNodeResult{doc: envelope.DIDDocument}
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return ionNodeResult{err: fmt.Errorf("sidetree node %s: malformed document: %w", baseURL, err)}
	}
	return ionNodeResult{doc: &doc}
}

// Resolve implements Driver, applying the all-404→notFound /
// all-network-error→networkError / mixed→success rule from spec
// §4.4.4: any single node's success is sufficient.
func (d *IonDriver) Resolve(ctx context.Context, did string, opts ResolutionOptions) (*ResolutionResult, error) {
	if len(d.nodeBaseURLs) == 0 {
		return errorResult(ErrorInternalError, "did:ion: no sidetree nodes configured"), nil
	}

	timeout := d.defaultTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan ionNodeResult, len(d.nodeBaseURLs))
	var wg sync.WaitGroup
	for _, base := range d.nodeBaseURLs {
		wg.Add(1)
		go func(base string) {
			defer wg.Done()
			results <- d.queryNode(queryCtx, base, did)
		}(base)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var winner *Document
	notFoundCount, errCount, total := 0, 0, len(d.nodeBaseURLs)
	for r := range results {
		switch {
		case r.doc != nil && winner == nil:
			winner = r.doc
		case r.notFound:
			notFoundCount++
		case r.err != nil:
			errCount++
		}
	}

	if winner != nil {
		if winner.ID != did {
			return errorResult(ErrorInvalidDID, "did:ion: document id does not match requested did"), nil
		}
		return documentResult(winner, DocumentMetadata{}), nil
	}

	if notFoundCount == total {
		return errorResult(ErrorNotFound, "did:ion: no sidetree node has this identifier"), nil
	}
	if errCount == total {
		return errorResult(ErrorNetworkError, "did:ion: all sidetree nodes unreachable"), nil
	}
	// Mixed failures with no winner: some nodes errored, some 404'd,
	// none succeeded. Treat as notFound since every node that did
	// respond said so.
	return errorResult(ErrorNotFound, "did:ion: no sidetree node resolved this identifier"), nil
}
