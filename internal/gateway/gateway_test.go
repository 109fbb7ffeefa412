package gateway

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localpub/internal/config"
	"localpub/internal/constants"
	"localpub/internal/logger"
	"localpub/internal/session"
	"localpub/internal/types"
)

type seenRequest struct {
	Host   string
	Cookie string
	Path   string
}

type targetRecorder struct {
	mu   sync.Mutex
	last seenRequest
}

func (tr *targetRecorder) get() seenRequest {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.last
}

func newTarget(t *testing.T) (*httptest.Server, *targetRecorder) {
	rec := &targetRecorder{}
	upgrader := websocket.Upgrader{Subprotocols: []string{"echo"}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			for {
				mt, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if err := conn.WriteMessage(mt, append([]byte("echo:"), msg...)); err != nil {
					return
				}
			}
		}

		rec.mu.Lock()
		rec.last = seenRequest{Host: r.Host, Cookie: r.Header.Get("Cookie"), Path: r.URL.Path}
		rec.mu.Unlock()
		io.WriteString(w, "target:"+r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func portOf(t *testing.T, rawURL string) int {
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

func newTestGateway(t *testing.T, targetPort int) (*Gateway, session.Store, *httptest.Server) {
	cfg := &config.TunnelConfig{
		Port:          targetPort,
		Credentials:   &config.Credentials{Username: "admin", Password: "s3cr3t"},
		SessionSecret: []byte("0123456789abcdef0123456789abcdef"),
	}
	store := session.NewMemoryStore(logger.Discard())
	t.Cleanup(func() { store.Close() })

	g, err := New(cfg, store, Options{Log: logger.Discard()})
	require.NoError(t, err)

	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return g, store, srv
}

func noRedirectClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == constants.SessionCookieName {
			return c
		}
	}
	return nil
}

func login(t *testing.T, client *http.Client, base string) *http.Cookie {
	resp, err := client.PostForm(base+"/login", url.Values{"username": {"admin"}, "password": {"s3cr3t"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	return cookie
}

func get(t *testing.T, client *http.Client, rawURL string, cookies ...*http.Cookie) (*http.Response, string) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	target, _ := newTarget(t)
	_, _, srv := newTestGateway(t, portOf(t, target.URL))

	resp, _ := get(t, noRedirectClient(), srv.URL+"/dashboard")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestLoginPageRenders(t *testing.T) {
	target, _ := newTarget(t)
	_, _, srv := newTestGateway(t, portOf(t, target.URL))

	resp, body := get(t, noRedirectClient(), srv.URL+"/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Contains(t, body, `name="password"`)
}

func TestLoginFlowProxiesToTarget(t *testing.T) {
	target, seen := newTarget(t)
	targetPort := portOf(t, target.URL)
	_, store, srv := newTestGateway(t, targetPort)
	client := noRedirectClient()

	resp, err := client.PostForm(srv.URL+"/login", url.Values{"username": {"admin"}, "password": {"s3cr3t"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, constants.SessionCookieMaxAge, cookie.MaxAge)
	assert.False(t, cookie.Secure, "plain http request")
	assert.Equal(t, 1, store.ActiveSessions())

	resp, body := get(t, client, srv.URL+"/dashboard", cookie, &http.Cookie{Name: "app", Value: "keep"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "target:/dashboard", body)

	last := seen.get()
	assert.Equal(t, "localhost:"+strconv.Itoa(targetPort), last.Host)
	assert.Equal(t, "app=keep", last.Cookie)
}

func TestLoginSecureCookieBehindHTTPSRelay(t *testing.T) {
	target, _ := newTarget(t)
	_, _, srv := newTestGateway(t, portOf(t, target.URL))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/login", strings.NewReader("username=admin&password=s3cr3t"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-Proto", "https")

	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.Secure)
}

func TestLoginWithJSONBody(t *testing.T) {
	target, _ := newTarget(t)
	_, store, srv := newTestGateway(t, portOf(t, target.URL))

	resp, err := noRedirectClient().Post(srv.URL+"/login", "application/json",
		strings.NewReader(`{"username":"admin","password":"s3cr3t"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.NotNil(t, sessionCookie(resp))
	assert.Equal(t, 1, store.ActiveSessions())
}

func TestLoginFailureStaysInteractive(t *testing.T) {
	target, _ := newTarget(t)
	_, store, srv := newTestGateway(t, portOf(t, target.URL))
	client := noRedirectClient()

	for i := 0; i < 3; i++ {
		resp, err := client.PostForm(srv.URL+"/login", url.Values{"username": {"admin"}, "password": {"wrong"}})
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), constants.MsgInvalidLogin)
		assert.Nil(t, sessionCookie(resp))
	}

	assert.Equal(t, 0, store.ActiveSessions())
	assert.Equal(t, 1, store.UniqueVisitors(), "same address and user agent")
}

func TestLoginWrongUsernameRejected(t *testing.T) {
	target, _ := newTarget(t)
	_, store, srv := newTestGateway(t, portOf(t, target.URL))

	resp, err := noRedirectClient().PostForm(srv.URL+"/login", url.Values{"username": {"root"}, "password": {"s3cr3t"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, store.ActiveSessions())
}

func TestLoginMalformedBody(t *testing.T) {
	target, _ := newTarget(t)
	_, store, srv := newTestGateway(t, portOf(t, target.URL))

	resp, err := noRedirectClient().Post(srv.URL+"/login", "application/json", strings.NewReader(`{"username":`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), constants.MsgMalformedLogin)
	assert.NotContains(t, string(body), "unexpected EOF")
	assert.Equal(t, 0, store.ActiveSessions())
	assert.Equal(t, 1, store.UniqueVisitors())
}

func TestDistinctUserAgentsAreDistinctVisitors(t *testing.T) {
	target, _ := newTarget(t)
	_, store, srv := newTestGateway(t, portOf(t, target.URL))
	client := noRedirectClient()

	for _, ua := range []string{"firefox", "curl", "firefox"} {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/login", strings.NewReader("username=x&password=y"))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", ua)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, 2, store.UniqueVisitors())
}

func TestAuthenticatedLoginPageRedirectsHome(t *testing.T) {
	target, _ := newTarget(t)
	_, _, srv := newTestGateway(t, portOf(t, target.URL))
	client := noRedirectClient()
	cookie := login(t, client, srv.URL)

	resp, _ := get(t, client, srv.URL+"/login", cookie)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestTamperedCookieRejected(t *testing.T) {
	target, _ := newTarget(t)
	_, _, srv := newTestGateway(t, portOf(t, target.URL))
	client := noRedirectClient()
	cookie := login(t, client, srv.URL)

	forged := &http.Cookie{Name: cookie.Name, Value: cookie.Value + "0"}
	resp, _ := get(t, client, srv.URL+"/dashboard", forged)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestLogoutDestroysSession(t *testing.T) {
	target, _ := newTarget(t)
	_, store, srv := newTestGateway(t, portOf(t, target.URL))
	client := noRedirectClient()
	cookie := login(t, client, srv.URL)

	resp, _ := get(t, client, srv.URL+"/logout", cookie)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.True(t, cleared.MaxAge < 0)
	assert.Equal(t, 0, store.ActiveSessions())

	resp, _ = get(t, client, srv.URL+"/dashboard", cookie)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestUpstreamDownRendersUnavailable(t *testing.T) {
	target, _ := newTarget(t)
	targetPort := portOf(t, target.URL)
	_, store, srv := newTestGateway(t, targetPort)
	client := noRedirectClient()
	cookie := login(t, client, srv.URL)

	target.Close()

	resp, body := get(t, client, srv.URL+"/dashboard", cookie)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "Service unavailable")
	assert.Contains(t, body, "localhost:"+strconv.Itoa(targetPort))
	assert.Equal(t, 1, store.ActiveSessions(), "session survives an upstream failure")

	resp, _ = get(t, client, srv.URL+"/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "gateway still serving")
}

func TestWebSocketBridge(t *testing.T) {
	target, _ := newTarget(t)
	_, _, srv := newTestGateway(t, portOf(t, target.URL))
	cookie := login(t, noRedirectClient(), srv.URL)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live"
	dialer := websocket.Dialer{Subprotocols: []string{"echo"}, HandshakeTimeout: 5 * time.Second}
	header := http.Header{"Cookie": {cookie.Name + "=" + cookie.Value}}

	conn, resp, err := dialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, "echo", conn.Subprotocol())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "echo:hello", string(msg))
}

func TestWebSocketRequiresSession(t *testing.T) {
	target, _ := newTarget(t)
	_, _, srv := newTestGateway(t, portOf(t, target.URL))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestBindConflict(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := &config.TunnelConfig{
		Port:          3000,
		AuthPort:      busy.Addr().(*net.TCPAddr).Port,
		Credentials:   &config.Credentials{Username: "admin", Password: "pw"},
		SessionSecret: []byte("secret"),
	}
	g, err := New(cfg, session.NewMemoryStore(logger.Discard()), Options{Log: logger.Discard()})
	require.NoError(t, err)

	err = g.Bind()
	require.Error(t, err)
	assert.Equal(t, types.BindConflict, types.KindOf(err))
	assert.Contains(t, types.HintOf(err), "--auth-port")
	assert.NoError(t, g.Close(context.Background()))
}

func TestBindServeClose(t *testing.T) {
	target, _ := newTarget(t)
	cfg := &config.TunnelConfig{
		Port:          portOf(t, target.URL),
		Credentials:   &config.Credentials{Username: "admin", Password: "pw"},
		SessionSecret: []byte("secret"),
	}
	g, err := New(cfg, session.NewMemoryStore(logger.Discard()), Options{Log: logger.Discard()})
	require.NoError(t, err)

	require.NoError(t, g.Bind())
	require.NoError(t, g.Serve())
	require.NotZero(t, g.Port())

	resp, _ := get(t, noRedirectClient(), "http://"+g.Addr().String()+"/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NoError(t, g.Close(context.Background()))
	assert.NoError(t, g.Close(context.Background()), "idempotent")

	_, err = net.DialTimeout("tcp", g.Addr().String(), time.Second)
	assert.Error(t, err, "port released")
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(&config.TunnelConfig{Port: 3000}, session.NewMemoryStore(logger.Discard()), Options{})
	require.Error(t, err)
	assert.Equal(t, types.ConfigError, types.KindOf(err))
}

func TestStripSessionCookie(t *testing.T) {
	h := http.Header{}
	h.Add("Cookie", "a=1; "+constants.SessionCookieName+"=tok:sig; b=2")
	stripSessionCookie(h)
	assert.Equal(t, "a=1; b=2", h.Get("Cookie"))

	h = http.Header{}
	h.Set("Cookie", constants.SessionCookieName+"=tok:sig")
	stripSessionCookie(h)
	assert.Empty(t, h.Values("Cookie"))
}

func TestCredentialCheckRejectsNearMisses(t *testing.T) {
	target, _ := newTarget(t)
	g, _, _ := newTestGateway(t, portOf(t, target.URL))

	for _, tc := range []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{"exact match", "admin", "s3cr3t", true},
		{"password prefix", "admin", "s3cr", false},
		{"password extended", "admin", "s3cr3tX", false},
		{"empty password", "admin", "", false},
		{"wrong username same length", "admim", "s3cr3t", false},
		{"wrong username", "root", "s3cr3t", false},
		{"swapped", "s3cr3t", "admin", false},
		{"both empty", "", "", false},
	} {
		assert.Equal(t, tc.want, g.checkCredentials(tc.username, tc.password), tc.name)
	}
}
