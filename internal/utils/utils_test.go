package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePort(t *testing.T) {
	for _, tc := range []struct {
		arg  string
		want int
		ok   bool
	}{
		{"3000", 3000, true},
		{"localhost:8080", 8080, true},
		{":5173", 5173, true},
		{"0", 0, false},
		{"70000", 0, false},
		{"example.com:80", 0, false},
		{"abc", 0, false},
	} {
		got, err := ParsePort(tc.arg)
		if tc.ok {
			assert.NoError(t, err, tc.arg)
			assert.Equal(t, tc.want, got, tc.arg)
		} else {
			assert.Error(t, err, tc.arg)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "10 seconds", FormatDuration(10*time.Second))
	assert.Equal(t, "5 minutes", FormatDuration(5*time.Minute))
	assert.Equal(t, "1 hour", FormatDuration(time.Hour))
	assert.Equal(t, "24 hours", FormatDuration(24*time.Hour))
	assert.Equal(t, "1 hour 30 minutes", FormatDuration(90*time.Minute))
}

func TestGetScheme(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "http", GetScheme(r))

	r.Header.Set("X-Forwarded-Proto", "HTTPS, http")
	assert.Equal(t, "https", GetScheme(r))
	assert.True(t, IsHTTPS(r))
}

func TestToWebSocketURL(t *testing.T) {
	assert.Equal(t, "wss://relay.example/ws/abc", ToWebSocketURL("https://relay.example/ws/abc"))
	assert.Equal(t, "ws://localhost:8080/ws/abc", ToWebSocketURL("http://localhost:8080/ws/abc"))
}

func TestCloneHeaderWithout(t *testing.T) {
	h := http.Header{}
	h.Set("Upgrade", "websocket")
	h.Set("Sec-WebSocket-Key", "abc")
	h.Set("Cookie", "a=b")

	out := CloneHeaderWithout(h, WebSocketHandshakeHeaders)
	assert.Empty(t, out.Get("Upgrade"))
	assert.Empty(t, out.Get("Sec-Websocket-Key"))
	assert.Equal(t, "a=b", out.Get("Cookie"))
}

func TestCloneHeaderWithoutSeveralSets(t *testing.T) {
	h := http.Header{}
	h.Set("Upgrade", "websocket")
	h.Set("Sec-WebSocket-Protocol", "echo")
	h.Set("Keep-Alive", "timeout=5")
	h.Set("Proxy-Authorization", "Basic Zm9vOmJhcg==")
	h.Add("X-Trace", "1")
	h.Add("X-Trace", "2")

	out := CloneHeaderWithout(h, HopByHopHeaders, WebSocketHandshakeHeaders)
	assert.Empty(t, out.Get("Upgrade"))
	assert.Empty(t, out.Get("Sec-Websocket-Protocol"))
	assert.Empty(t, out.Get("Keep-Alive"))
	assert.Empty(t, out.Get("Proxy-Authorization"))
	assert.Equal(t, []string{"1", "2"}, out.Values("X-Trace"))

	out.Add("X-Trace", "3")
	assert.Len(t, h.Values("X-Trace"), 2, "clone must not share slices with the source")
}

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("LOCALPUB_TEST_INT", "42")
	t.Setenv("LOCALPUB_TEST_BOOL", "yes")
	assert.Equal(t, 42, GetEnvInt("LOCALPUB_TEST_INT", 1))
	assert.Equal(t, 7, GetEnvInt("LOCALPUB_TEST_MISSING", 7))
	assert.True(t, GetEnvBool("LOCALPUB_TEST_BOOL", false))
	assert.Equal(t, "x", GetEnv("LOCALPUB_TEST_MISSING", "x"))
}
