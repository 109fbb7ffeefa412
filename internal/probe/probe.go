// Package probe checks whether the local target is up and guesses what kind
// of app it serves.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"localpub/internal/constants"
	"localpub/internal/types"
)

type Prober struct {
	Host          string
	HealthTimeout time.Duration
	DetectTimeout time.Duration
	client        *http.Client
}

func New() *Prober {
	return &Prober{
		Host:          constants.DefaultTargetHost,
		HealthTimeout: constants.HealthCheckTimeout,
		DetectTimeout: constants.DetectTimeout,
		client: &http.Client{
			// Redirects are a response too.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Transport: &http.Transport{
				Proxy:             nil,
				DisableKeepAlives: true,
			},
		},
	}
}

var defaultProber = New()

// CheckHealth reports whether anything answers HTTP on localhost:port.
func CheckHealth(ctx context.Context, port int) bool {
	return defaultProber.CheckHealth(ctx, port)
}

// DetectAppType classifies the app on localhost:port. Never fails.
func DetectAppType(ctx context.Context, port int) types.AppProfile {
	return defaultProber.DetectAppType(ctx, port)
}

func (p *Prober) url(port int) string {
	return fmt.Sprintf("http://%s/", net.JoinHostPort(p.Host, strconv.Itoa(port)))
}

func (p *Prober) get(ctx context.Context, port int, timeout time.Duration) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(port), nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return resp, cancel, nil
}

// CheckHealth treats any status code as healthy.
func (p *Prober) CheckHealth(ctx context.Context, port int) bool {
	resp, cancel, err := p.get(ctx, port, p.HealthTimeout)
	if err != nil {
		return false
	}
	defer cancel()
	io.Copy(io.Discard, io.LimitReader(resp.Body, constants.MaxProbeBodySize))
	resp.Body.Close()
	return true
}

func (p *Prober) DetectAppType(ctx context.Context, port int) types.AppProfile {
	resp, cancel, err := p.get(ctx, port, p.DetectTimeout)
	if err != nil {
		return types.AppUnknown
	}
	defer cancel()
	defer resp.Body.Close()

	// One byte past the cap keeps the size rule decidable.
	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxProbeBodySize+1))
	if err != nil {
		return types.AppUnknown
	}
	return Classify(resp.Header, body)
}

// Classify applies the detection rules in priority order.
func Classify(header http.Header, body []byte) types.AppProfile {
	if bytes.Contains(body, []byte("__NEXT_DATA__")) ||
		bytes.Contains(body, []byte("_next/")) ||
		strings.Contains(header.Get("X-Powered-By"), "Next.js") {
		return types.AppNextJS
	}

	if bytes.Contains(body, []byte("react")) || bytes.Contains(body, []byte("React")) {
		return types.AppReact
	}

	if len(body) > constants.SPABodyThreshold ||
		(strings.Contains(header.Get("Content-Type"), "text/html") && bytes.Contains(body, []byte("script"))) {
		return types.AppSPA
	}

	return types.AppSimple
}
