package security

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIPTrustsLoopbackForwarder(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "127.0.0.1:50000"
	r.Header.Set("X-Forwarded-For", "8.8.4.4, 10.0.0.1")
	assert.Equal(t, "8.8.4.4", ClientIP(r))
}

func TestClientIPIgnoresHeadersFromUntrustedPeer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.20:40000"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "198.51.100.20", ClientIP(r))
}

func TestClientIPFallsBackToPeer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "127.0.0.1:50000"
	r.Header.Set("X-Forwarded-For", "10.1.2.3")
	assert.Equal(t, "127.0.0.1", ClientIP(r), "only private hops and no X-Real-Ip")
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("203.0.113.7", "Mozilla/5.0")
	assert.Equal(t, a, Fingerprint("203.0.113.7", "Mozilla/5.0"), "stable per pair")
	assert.NotEqual(t, a, Fingerprint("203.0.113.8", "Mozilla/5.0"))
	assert.NotEqual(t, a, Fingerprint("203.0.113.7", "curl/8.0"))
	assert.NotEqual(t, Fingerprint("1.2.3.4", "5"), Fingerprint("1.2.3.45", ""), "separator keeps fields apart")
	assert.Len(t, a, 64)
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
}

func TestMaxBodySize(t *testing.T) {
	var readErr error
	h := MaxBodySize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = r.Body.Read(make([]byte, 64))
		for readErr == nil {
			_, readErr = r.Body.Read(make([]byte, 64))
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(strings.Repeat("x", 100))))
	require.Error(t, readErr)
	assert.Contains(t, readErr.Error(), "too large")
}

func TestAuditLogger(t *testing.T) {
	dir := t.TempDir()
	al, err := NewAuditLogger(dir)
	require.NoError(t, err)
	al.minFree = 0

	al.LogAuthFailure("203.0.113.7", "admin")
	al.LogAuthSuccess("203.0.113.7", "admin")
	path := al.Path()
	require.NoError(t, al.Close())
	al.LogLogout("203.0.113.7", "admin") // dropped after close

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []AuditEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AuditEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		events = append(events, e)
	}
	require.Len(t, events, 2)
	assert.Equal(t, "auth_failure", events[0].EventType)
	assert.Equal(t, "auth_success", events[1].EventType)
	assert.WithinDuration(t, time.Now(), events[1].Timestamp, time.Minute)
}

func TestAuditLoggerNilIsNoop(t *testing.T) {
	var al *AuditLogger
	al.LogAuthFailure("1.2.3.4", "x")
	assert.NoError(t, al.Close())
	assert.Equal(t, "", al.Path())
}
