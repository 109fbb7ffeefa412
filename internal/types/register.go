package types

import "time"

// RegisterRequest is posted to an ssrok relay to reserve a public endpoint.
type RegisterRequest struct {
	Port      int           `json:"port"`
	Subdomain string        `json:"subdomain,omitempty"`
	E2EE      bool          `json:"e2ee"`
	ExpiresIn time.Duration `json:"expires_in"`
}

type RegisterResponse struct {
	UUID      string        `json:"uuid"`
	URL       string        `json:"url"`
	Token     string        `json:"token"`
	E2EE      bool          `json:"e2ee"`
	ExpiresIn time.Duration `json:"expires_in"`
}
