package main

import (
	"net"
	"net/http"
	"time"
)

const userAgent = "setup-seal"

func defaultTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// newClient returns a client that identifies itself and, when token is not
// empty, authenticates every request with it.
func newClient(token string) *http.Client {
	return &http.Client{
		Transport: &authedTransport{
			RoundTripper: defaultTransport(),
			token:        token,
		},
	}
}

type authedTransport struct {
	http.RoundTripper
	token string
}

func (t *authedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if values := req.Header.Values("Authorization"); len(values) == 0 && t.token != "" && !crossHostRedirect(req) {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.RoundTripper.RoundTrip(req)
}

// crossHostRedirect reports whether req belongs to a redirect chain that has
// left the host of the initial request. Release downloads redirect to
// storage that rejects foreign credentials.
func crossHostRedirect(req *http.Request) bool {
	host := req.URL.Host
	for r := req; r.Response != nil && r.Response.Request != nil; {
		r = r.Response.Request
		if r.URL.Host != host {
			return true
		}
	}
	return false
}
