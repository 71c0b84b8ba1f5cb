package dispatcher

import "net/http"

// hopHeaders lists headers that are connection-scoped rather than
// payload-carrying and so are never forwarded as-is in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// copyHeaders copies every header from src to dst except the hop-by-hop
// headers above. It has no Host check of its own: net/http keeps an inbound
// request's Host in Request.Host, not in Header. Content-Type and
// Content-Length are copied unchanged; Transfer-Encoding is dropped with the
// hop-by-hop set, and net/http does the message framing itself.
func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if isHopHeader(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if http.CanonicalHeaderKey(name) == h {
			return true
		}
	}
	return false
}
