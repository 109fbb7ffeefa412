package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Out: &buf})
	log.Debug("hidden")
	log.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	verbose := New(Options{Out: &buf, Verbose: true})
	verbose.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Out: &buf, JSON: true})
	log.WithField("port", 3000).Info("probing")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "probing", decoded["msg"])
	assert.Equal(t, float64(3000), decoded["port"])
}

func TestFileHook(t *testing.T) {
	dir := t.TempDir()
	hook, err := NewFileHook(dir, "run-1")
	require.NoError(t, err)

	log := Discard()
	log.AddHook(hook)
	log.WithFields(logrus.Fields{"url": "https://x.loca.lt", "err": errors.New("boom")}).Warn("relay error")
	require.NoError(t, hook.Close())
	require.NoError(t, hook.Close(), "second close is a no-op")

	f, err := os.Open(dir + "/run-1.log")
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	var entry LogEntry
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "warning", entry.Level)
	assert.Equal(t, "relay error", entry.Message)
	assert.Equal(t, "boom", entry.Fields["err"])
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCaptureStdLog(t *testing.T) {
	var stderr syncBuffer
	prev := stdlog.Writer()
	stdlog.SetOutput(&stderr)
	defer stdlog.SetOutput(prev)

	log := New(Options{Out: io.Discard, Verbose: true})
	hook := test.NewLocal(log)

	restore := CaptureStdLog(log)
	stdlog.Printf("Error: (Intermittent) HTTP response code 502\nHTTP/1.1 502 Bad Gateway\n<html>relay warming up</html>")

	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if strings.Contains(e.Message, "relay warming up") {
				return e.Level == logrus.DebugLevel
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, stderr.String(), "standard logger output must not bypass logrus")

	restore()
	stdlog.Print("after restore")
	assert.Contains(t, stderr.String(), "after restore")
}

func TestCaptureStdLogHiddenWithoutVerbose(t *testing.T) {
	var stderr, out syncBuffer
	prev := stdlog.Writer()
	stdlog.SetOutput(&stderr)
	defer stdlog.SetOutput(prev)

	log := New(Options{Out: &out, JSON: true})
	restore := CaptureStdLog(log)
	stdlog.Print("HTTP/1.1 503 Service Unavailable")
	restore()

	assert.Empty(t, stderr.String())
	assert.NotContains(t, out.String(), "503", "debug-level dumps are dropped at info level")
}
