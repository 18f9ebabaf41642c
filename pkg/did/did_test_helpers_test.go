package did

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const defaultTestTimeout = 2 * time.Second

// redirectTransport rewrites every outgoing request to target srv's
// host, so WebDriver's hardcoded https://<host>/... URL construction
// can be exercised against an httptest.Server without real DNS/TLS.
type redirectTransport struct {
	target *url.URL
}

func (rt *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.URL.Scheme = rt.target.Scheme
	cloned.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(cloned)
}

func resolveAgainstTestServer(t *testing.T, driver *WebDriver, srv *httptest.Server) *ResolutionResult {
	t.Helper()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	driver.client = &http.Client{Transport: &redirectTransport{target: target}}

	result, err := driver.Resolve(context.Background(), "did:web:example.com", ResolutionOptions{})
	require.NoError(t, err)
	return result
}
