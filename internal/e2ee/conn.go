// Package e2ee encrypts the relay link so an ssrok relay only ever sees
// ciphertext. Peers agree on a key with X25519 and then exchange
// ChaCha20-Poly1305 sealed frames.
package e2ee

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

var randReader = rand.Reader

const (
	lengthSize = 4
	// MaxFrameSize bounds a single sealed frame.
	MaxFrameSize = 1 << 20
)

// Conn seals every Write into one frame:
//
//	uint32 big-endian ciphertext length | nonce | ciphertext
type Conn struct {
	net.Conn
	aead cipher.AEAD

	wmu     sync.Mutex
	rmu     sync.Mutex
	pending []byte
}

func NewConn(conn net.Conn, key []byte) (*Conn, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: conn, aead: aead}, nil
}

func (c *Conn) Write(p []byte) (int, error) {
	if len(p)+c.aead.Overhead() > MaxFrameSize {
		written := 0
		for len(p) > 0 {
			chunk := MaxFrameSize - c.aead.Overhead()
			if chunk > len(p) {
				chunk = len(p)
			}
			n, err := c.Write(p[:chunk])
			written += n
			if err != nil {
				return written, err
			}
			p = p[chunk:]
		}
		return written, nil
	}

	nonceSize := c.aead.NonceSize()
	frame := make([]byte, lengthSize+nonceSize, lengthSize+nonceSize+len(p)+c.aead.Overhead())
	nonce := frame[lengthSize:]
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return 0, err
	}
	frame = c.aead.Seal(frame, nonce, p, nil)
	binary.BigEndian.PutUint32(frame[:lengthSize], uint32(len(frame)-lengthSize-nonceSize))

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.Conn.Write(frame); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *Conn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	if len(c.pending) == 0 {
		plain, err := c.readFrame()
		if err != nil {
			return 0, err
		}
		c.pending = plain
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *Conn) readFrame() ([]byte, error) {
	var header [lengthSize]byte
	if _, err := io.ReadFull(c.Conn, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", length)
	}

	buf := make([]byte, c.aead.NonceSize()+int(length))
	if _, err := io.ReadFull(c.Conn, buf); err != nil {
		return nil, err
	}

	nonce, sealed := buf[:c.aead.NonceSize()], buf[c.aead.NonceSize():]
	plain, err := c.aead.Open(sealed[:0], nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plain, nil
}
