package e2ee

import (
	"fmt"
	"io"
	"net"

	"golang.org/x/crypto/curve25519"
)

const KeySize = curve25519.ScalarSize

// Handshake exchanges X25519 public keys over conn and returns the shared
// key. The client speaks first.
func Handshake(conn net.Conn, isServer bool) ([]byte, error) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	remote := make([]byte, KeySize)
	if isServer {
		if _, err := io.ReadFull(conn, remote); err != nil {
			return nil, fmt.Errorf("failed to read peer public key: %w", err)
		}
		if _, err := conn.Write(pub); err != nil {
			return nil, fmt.Errorf("failed to send public key: %w", err)
		}
	} else {
		if _, err := conn.Write(pub); err != nil {
			return nil, fmt.Errorf("failed to send public key: %w", err)
		}
		if _, err := io.ReadFull(conn, remote); err != nil {
			return nil, fmt.Errorf("failed to read peer public key: %w", err)
		}
	}

	shared, err := curve25519.X25519(priv, remote)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}
	return shared, nil
}

// GenerateKeyPair returns a random X25519 private key and its public key.
func GenerateKeyPair() (priv, pub []byte, err error) {
	priv = make([]byte, KeySize)
	if _, err := io.ReadFull(randReader, priv); err != nil {
		return nil, nil, err
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

// Client runs the client side of the handshake and wraps conn.
func Client(conn net.Conn) (*Conn, error) {
	key, err := Handshake(conn, false)
	if err != nil {
		return nil, err
	}
	return NewConn(conn, key)
}

// Server is the relay-side counterpart of Client.
func Server(conn net.Conn) (*Conn, error) {
	key, err := Handshake(conn, true)
	if err != nil {
		return nil, err
	}
	return NewConn(conn, key)
}
