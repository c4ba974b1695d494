package provider

import (
	"net"
	"net/http"
	"time"
)

func baseTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// StreamingHTTPClient returns a pooled client without an overall
// request deadline: SSE responses stay open for the whole generation,
// so only the dial and header phases are bounded. Cancellation comes
// from the request context.
func StreamingHTTPClient() *http.Client {
	return &http.Client{Transport: baseTransport()}
}
