package utils

import "net/http"

// HopByHopHeaders apply to one connection and are never forwarded.
var HopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// WebSocketHandshakeHeaders are regenerated by the dialer and must not be
// copied from the inbound upgrade request.
var WebSocketHandshakeHeaders = map[string]bool{
	"Upgrade":                  true,
	"Connection":               true,
	"Sec-Websocket-Key":        true,
	"Sec-Websocket-Version":    true,
	"Sec-Websocket-Extensions": true,
	"Sec-Websocket-Protocol":   true,
}

// CloneHeaderWithout copies h, skipping every key found in any of skip.
func CloneHeaderWithout(h http.Header, skip ...map[string]bool) http.Header {
	out := make(http.Header, len(h))
next:
	for k, v := range h {
		key := http.CanonicalHeaderKey(k)
		for _, set := range skip {
			if set[key] {
				continue next
			}
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}
