package gateway

import (
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"localpub/internal/constants"
	"localpub/internal/utils"
)

func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       constants.IdleTimeout,
		ResponseHeaderTimeout: constants.ResponseHeaderTimeout,
	}
}

// newReverseProxy forwards to the local target, rewriting Host and stripping
// the gateway's own cookie so the target never sees it.
func (g *Gateway) newReverseProxy(target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			stripSessionCookie(pr.Out.Header)
		},
		Transport:     g.transport,
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			g.log.WithError(err).Warn(utils.FormatLog("", r.Method, http.StatusBadGateway, r.URL.Path))
			g.renderUnavailable(w)
		},
	}
}

func (g *Gateway) renderUnavailable(w http.ResponseWriter) {
	g.templates.Render(w, http.StatusBadGateway, pageUnavailable, map[string]interface{}{
		"Title":   "Service unavailable",
		"Message": constants.MsgUpstreamDown,
		"Port":    g.targetPort,
	})
}

// proxyHandler sends websocket upgrades through the bridge and everything
// else through the reverse proxy.
func (g *Gateway) proxyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebSocketUpgrade(r) {
			g.websocketProxy(w, r)
			return
		}
		g.proxy.ServeHTTP(w, r)
	})
}

func stripSessionCookie(h http.Header) {
	cookies := h.Values("Cookie")
	if len(cookies) == 0 {
		return
	}

	var kept []string
	for _, line := range cookies {
		for _, part := range strings.Split(line, ";") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, _, _ := strings.Cut(part, "=")
			if name == constants.SessionCookieName {
				continue
			}
			kept = append(kept, part)
		}
	}

	if len(kept) == 0 {
		h.Del("Cookie")
		return
	}
	h.Set("Cookie", strings.Join(kept, "; "))
}
