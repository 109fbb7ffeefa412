package e2ee

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pair(t *testing.T) (*Conn, *Conn) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})

	type result struct {
		conn *Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := Server(b)
		ch <- result{c, err}
	}()

	client, err := Client(a)
	require.NoError(t, err)
	res := <-ch
	require.NoError(t, res.err)
	return client, res.conn
}

func TestHandshakeAgreesOnKey(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	keys := make(chan []byte, 1)
	go func() {
		k, err := Handshake(b, true)
		assert.NoError(t, err)
		keys <- k
	}()

	clientKey, err := Handshake(a, false)
	require.NoError(t, err)
	assert.Len(t, clientKey, KeySize)
	assert.Equal(t, clientKey, <-keys)
}

func TestRoundTrip(t *testing.T) {
	client, server := pair(t)

	go func() {
		client.Write([]byte("hello "))
		client.Write([]byte("relay"))
	}()

	buf := make([]byte, len("hello relay"))
	_, err := io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello relay", string(buf))
}

func TestLargeWriteIsSplit(t *testing.T) {
	client, server := pair(t)
	payload := bytes.Repeat([]byte("0123456789abcdef"), (3*MaxFrameSize)/16)

	errc := make(chan error, 1)
	go func() {
		n, err := client.Write(payload)
		if err == nil && n != len(payload) {
			err = io.ErrShortWrite
		}
		errc <- err
	}()

	got := make([]byte, len(payload))
	_, err := io.ReadFull(server, got)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.True(t, bytes.Equal(payload, got))
}

func TestTamperedFrameRejected(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	key := bytes.Repeat([]byte{7}, KeySize)
	writer, err := NewConn(a, key)
	require.NoError(t, err)
	reader, err := NewConn(&flipConn{Conn: b}, key)
	require.NoError(t, err)

	go writer.Write([]byte("secret payload"))

	_, err = reader.Read(make([]byte, 64))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestOversizedFrameRejected(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	reader, err := NewConn(b, bytes.Repeat([]byte{1}, KeySize))
	require.NoError(t, err)

	go a.Write([]byte{0xff, 0xff, 0xff, 0xff})

	_, err = reader.Read(make([]byte, 8))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}

// flipConn corrupts the last byte it reads.
type flipConn struct {
	net.Conn
	read int
}

func (f *flipConn) Read(p []byte) (int, error) {
	n, err := f.Conn.Read(p)
	f.read += n
	if n > 0 && f.read > 4+12+8 {
		p[n-1] ^= 0xff
	}
	return n, err
}
