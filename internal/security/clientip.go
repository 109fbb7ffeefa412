package security

import (
	"net"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/tomasen/realip"
)

const EnvTrustedProxies = "LOCALPUB_TRUSTED_PROXIES"

var (
	trustedProxies []*net.IPNet
	proxyOnce      sync.Once
)

// The relay forwarder connects from loopback, so loopback is trusted by
// default alongside private ranges.
func initTrustedProxies() {
	proxyOnce.Do(func() {
		defaultCIDRs := []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7"}
		if env := os.Getenv(EnvTrustedProxies); env != "" {
			defaultCIDRs = strings.Split(env, ",")
		}
		for _, cidr := range defaultCIDRs {
			_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
			if err == nil {
				trustedProxies = append(trustedProxies, network)
			}
		}
	})
}

func isTrustedProxy(ip string) bool {
	initTrustedProxies()
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range trustedProxies {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// ClientIP extracts the visitor address, only trusting forwarding headers
// when the direct peer is a trusted proxy.
func ClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	if !isTrustedProxy(directIP) {
		return directIP
	}

	if ip := realip.FromRequest(r); net.ParseIP(ip) != nil {
		return ip
	}
	return directIP
}
