package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"localpub/internal/constants"
)

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	IP        string    `json:"ip,omitempty"`
	User      string    `json:"user,omitempty"`
	Details   string    `json:"details"`
	Severity  string    `json:"severity"`
}

// AuditLogger appends gateway and tunnel events as JSON lines. A nil
// *AuditLogger is valid and drops everything.
type AuditLogger struct {
	mu          sync.Mutex
	file        *os.File
	enc         *json.Encoder
	logDir      string
	minFree     uint64
	logCount    int
	windowStart time.Time
	now         func() time.Time
}

// NewAuditLogger opens audit-<date>.log in dir.
func NewAuditLogger(dir string) (*AuditLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	filename := filepath.Join(dir, fmt.Sprintf("audit-%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return &AuditLogger{
		file:        file,
		enc:         json.NewEncoder(file),
		logDir:      dir,
		minFree:     uint64(constants.MinDiskSpaceRequired),
		windowStart: time.Now(),
		now:         time.Now,
	}, nil
}

func (al *AuditLogger) Log(event AuditEvent) {
	if al == nil {
		return
	}
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.file == nil {
		return
	}

	now := al.now()
	if now.Sub(al.windowStart) > time.Minute {
		al.windowStart = now
		al.logCount = 0
	}
	if al.logCount >= constants.MaxAuditLogsPerMinute {
		return
	}
	// Checked once per window so a full disk is not hammered.
	if al.logCount == 0 && !al.hasEnoughDiskSpace() {
		return
	}

	al.logCount++
	event.Timestamp = now
	al.enc.Encode(event)
}

func (al *AuditLogger) LogAuthFailure(ip, user string) {
	al.Log(AuditEvent{
		EventType: "auth_failure",
		IP:        ip,
		User:      user,
		Details:   "Invalid credentials",
		Severity:  "warning",
	})
}

func (al *AuditLogger) LogAuthSuccess(ip, user string) {
	al.Log(AuditEvent{
		EventType: "auth_success",
		IP:        ip,
		User:      user,
		Details:   "Authentication successful",
		Severity:  "info",
	})
}

func (al *AuditLogger) LogLogout(ip, user string) {
	al.Log(AuditEvent{
		EventType: "logout",
		IP:        ip,
		User:      user,
		Details:   "Session destroyed",
		Severity:  "info",
	})
}

func (al *AuditLogger) LogTunnelOpen(url string, port int) {
	al.Log(AuditEvent{
		EventType: "tunnel_open",
		Details:   fmt.Sprintf("Tunnel %s opened for port %d", url, port),
		Severity:  "info",
	})
}

func (al *AuditLogger) LogTunnelClose(reason string) {
	al.Log(AuditEvent{
		EventType: "tunnel_close",
		Details:   fmt.Sprintf("Tunnel closed: %s", reason),
		Severity:  "info",
	})
}

func (al *AuditLogger) Path() string {
	if al == nil {
		return ""
	}
	al.mu.Lock()
	defer al.mu.Unlock()
	if al.file != nil {
		return al.file.Name()
	}
	return ""
}

func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	al.mu.Lock()
	defer al.mu.Unlock()
	if al.file == nil {
		return nil
	}
	err := al.file.Close()
	al.file = nil
	return err
}
