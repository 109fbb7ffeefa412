package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/yamux"
	"github.com/taskcluster/httpbackoff/v3"

	"localpub/internal/constants"
	"localpub/internal/e2ee"
	"localpub/internal/types"
	"localpub/internal/utils"
)

const maxRelayLogMessage = 64 << 10

// ssrokClient registers with an ssrok relay and serves the streams it
// multiplexes over a single websocket.
type ssrokClient struct {
	base
	opts       Options
	httpClient *http.Client
	dialer     *websocket.Dialer

	mu      sync.Mutex
	opened  bool
	session *yamux.Session
}

func newSSROK(opts Options) *ssrokClient {
	c := &ssrokClient{
		opts:       opts,
		httpClient: &http.Client{Timeout: constants.WSHandshakeTimeout},
		dialer: &websocket.Dialer{
			ReadBufferSize:    constants.WSBufferSize,
			WriteBufferSize:   constants.WSBufferSize,
			EnableCompression: false,
			HandshakeTimeout:  constants.WSHandshakeTimeout,
		},
	}
	c.base.init(opts.Log.WithField("relay", "ssrok"))
	return c
}

func yamuxConfig() *yamux.Config {
	config := yamux.DefaultConfig()
	config.MaxStreamWindowSize = constants.YamuxMaxStreamWindowSize
	config.AcceptBacklog = constants.YamuxAcceptBacklog
	config.EnableKeepAlive = constants.YamuxEnableKeepAlive
	config.KeepAliveInterval = constants.YamuxKeepAliveInterval
	config.LogOutput = io.Discard
	return config
}

func (c *ssrokClient) Open(ctx context.Context, port int) (string, error) {
	const op = "relay open"

	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return "", relayError(op, "relay already opened", nil)
	}
	c.opened = true
	c.mu.Unlock()

	reg, err := c.register(ctx, port)
	if err != nil {
		return "", err
	}

	tunnelID := reg.UUID
	if tunnelID == "" {
		tunnelID = utils.ExtractUUID(reg.URL)
	}
	wsURL, err := webSocketURL(reg.URL, tunnelID, reg.Token)
	if err != nil {
		return "", relayError(op, "relay returned an invalid url", err)
	}

	c.log.Debugf("Dialing relay websocket %s", redactToken(wsURL))
	ws, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		msg := "failed to connect to relay"
		if resp != nil {
			msg = fmt.Sprintf("relay returned %d", resp.StatusCode)
		}
		return "", relayError(op, msg, err)
	}
	ws.SetReadLimit(int64(constants.MaxWSMessageSize))

	var tunnelConn net.Conn = newWSConn(ws)
	if c.opts.E2EE {
		ws.SetReadDeadline(time.Now().Add(constants.WSHandshakeTimeout))
		secure, err := e2ee.Client(tunnelConn)
		if err != nil {
			ws.Close()
			return "", relayError(op, "end-to-end encryption handshake failed", err)
		}
		ws.SetReadDeadline(time.Time{})
		tunnelConn = secure
		c.log.Debug("🔒 E2EE handshake successful")
	}

	session, err := yamux.Client(tunnelConn, yamuxConfig())
	if err != nil {
		ws.Close()
		return "", relayError(op, "failed to start relay session", err)
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	if c.isClosing() {
		session.Close()
		return "", relayError(op, "relay closed", net.ErrClosed)
	}

	go c.acceptLoop(session, port)

	publicURL := reg.URL
	if reg.Token != "" {
		publicURL = fmt.Sprintf("%s?token=%s", reg.URL, url.QueryEscape(reg.Token))
	}
	c.log.Debugf("🌍 Tunnel established: %s", reg.URL)
	return publicURL, nil
}

// register asks the relay for a public endpoint, retrying network errors
// and 5xx answers with exponential backoff.
func (c *ssrokClient) register(ctx context.Context, port int) (*types.RegisterResponse, error) {
	const op = "relay register"

	body, err := json.Marshal(types.RegisterRequest{
		Port:      port,
		Subdomain: c.opts.Subdomain,
		E2EE:      c.opts.E2EE,
		ExpiresIn: c.opts.TTL,
	})
	if err != nil {
		return nil, relayError(op, "failed to encode request", err)
	}

	settings := backoff.NewExponentialBackOff()
	settings.InitialInterval = 200 * time.Millisecond
	settings.MaxElapsedTime = c.opts.RegisterMaxElapsed
	retry := &httpbackoff.Client{BackOffSettings: settings}

	endpoint := strings.TrimSuffix(c.opts.Host, "/") + constants.EndpointRegister
	resp, attempts, err := retry.Retry(func() (*http.Response, error, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			return resp, err, nil
		}
		return resp, nil, nil
	})
	if err != nil {
		return nil, relayError(op, fmt.Sprintf("registration with %s failed after %d attempt(s)", c.opts.Host, attempts), err)
	}
	defer resp.Body.Close()

	var reg types.RegisterResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&reg); err != nil {
		return nil, relayError(op, "failed to decode relay response", err)
	}
	if reg.URL == "" {
		return nil, relayError(op, "relay response has no url", nil)
	}
	return &reg, nil
}

func (c *ssrokClient) acceptLoop(session *yamux.Session, port int) {
	for {
		stream, err := session.AcceptStream()
		if err != nil {
			if c.isClosing() {
				return
			}
			c.events.emit(Event{Kind: EventClosed, Err: relayError("relay accept", "relay session ended", err)})
			return
		}
		go c.handleStream(stream, port)
	}
}

func (c *ssrokClient) handleStream(stream *yamux.Stream, port int) {
	stream.SetReadDeadline(time.Now().Add(constants.WSHandshakeTimeout))
	var typeBuf [1]byte
	if _, err := io.ReadFull(stream, typeBuf[:]); err != nil {
		stream.Close()
		return
	}
	stream.SetReadDeadline(time.Time{})

	switch typeBuf[0] {
	case constants.StreamTypeProxy:
		c.forward(stream, port)
	case constants.StreamTypeLog:
		defer stream.Close()
		msg, err := io.ReadAll(io.LimitReader(stream, maxRelayLogMessage))
		if err == nil && len(msg) > 0 {
			c.log.Info(strings.TrimSpace(string(msg)))
		}
	default:
		c.log.Debugf("Ignoring relay stream of type %#x", typeBuf[0])
		stream.Close()
	}
}

func (c *ssrokClient) Close() error {
	return c.shutdown(func() error {
		c.mu.Lock()
		session := c.session
		c.mu.Unlock()
		if session == nil {
			return nil
		}
		return session.Close()
	})
}

// webSocketURL maps https://relay/<id> to wss://relay/ws/<id>?token=...
func webSocketURL(publicURL, tunnelID, token string) (string, error) {
	u, err := url.Parse(utils.ToWebSocketURL(publicURL))
	if err != nil {
		return "", err
	}
	if tunnelID == "" {
		return "", fmt.Errorf("no tunnel id in %q", publicURL)
	}

	if strings.HasPrefix(u.Path, "/"+tunnelID) {
		u.Path = strings.Replace(u.Path, "/"+tunnelID, constants.EndpointWebSocket+tunnelID, 1)
	} else {
		u.Path = constants.EndpointWebSocket + tunnelID
	}
	u.RawPath = ""

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func redactToken(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
