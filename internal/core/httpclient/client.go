// Package httpclient configures the HTTP client used to call the Features API.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewOutbound has no overall Timeout. Requests end when the caller's context
// is cancelled, which is how a newer viewport supersedes a running fetch.
func NewOutbound() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}
