package testutil

import (
	"net/http"
	"net/url"
)

// RewriteTransport sends every request to a fixed test server, keeping the
// path, query and original Host header.
type RewriteTransport struct {
	Target *url.URL
	Base   http.RoundTripper
}

// NewRewriteTransport creates a transport targeting serverURL.
func NewRewriteTransport(serverURL string) *RewriteTransport {
	target, err := url.Parse(serverURL)
	if err != nil {
		panic(err)
	}
	return &RewriteTransport{Target: target}
}

// RoundTrip implements http.RoundTripper.
func (t *RewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.Target.Scheme
	out.URL.Host = t.Target.Host
	if out.Host == "" {
		out.Host = req.URL.Host
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(out)
}
