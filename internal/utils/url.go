package utils

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"localpub/internal/constants"
)

// LocalURL is the address of a port on the local target host.
func LocalURL(port int) string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(constants.DefaultTargetHost, strconv.Itoa(port)))
}

// LocalAddr is the dialable host:port of a local port.
func LocalAddr(port int) string {
	return net.JoinHostPort(constants.DefaultTargetHost, strconv.Itoa(port))
}

// ToWebSocketURL rewrites an http(s) URL to its ws(s) equivalent.
func ToWebSocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	case strings.HasPrefix(httpURL, "ws://"), strings.HasPrefix(httpURL, "wss://"):
		return httpURL
	default:
		return "ws://" + httpURL
	}
}
