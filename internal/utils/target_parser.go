package utils

import (
	"fmt"
	"net"
	"strconv"

	"localpub/internal/constants"
)

// ParsePort accepts "3000" or "localhost:3000" and returns the port.
// Only local targets are supported.
func ParsePort(arg string) (int, error) {
	portStr := arg
	if _, err := strconv.Atoi(arg); err != nil {
		host, p, err := net.SplitHostPort(arg)
		if err != nil {
			return 0, fmt.Errorf("invalid argument: %s", arg)
		}
		if host != "" && host != constants.DefaultTargetHost && host != "127.0.0.1" {
			return 0, fmt.Errorf("only local targets are supported: %s", arg)
		}
		portStr = p
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port number: %s", portStr)
	}
	if !ValidPort(port) {
		return 0, fmt.Errorf("port number out of range: %d", port)
	}
	return port, nil
}

func ValidPort(port int) bool {
	return port >= constants.MinPort && port <= constants.MaxPort
}
