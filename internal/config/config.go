package config

import (
	"crypto/rand"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dchest/uniuri"
	"github.com/joho/godotenv"

	"localpub/internal/constants"
	"localpub/internal/types"
	"localpub/internal/utils"
)

const (
	EnvPort      = "LOCALPUB_PORT"
	EnvHost      = "LOCALPUB_HOST"
	EnvTTL       = "LOCALPUB_TTL"
	EnvRelay     = "LOCALPUB_RELAY"
	EnvSubdomain = "LOCALPUB_SUBDOMAIN"
	EnvUsername  = "LOCALPUB_USERNAME"
	EnvPassword  = "LOCALPUB_PASSWORD"
	EnvSecret    = "LOCALPUB_SESSION_SECRET"
	EnvLogDir    = "LOCALPUB_LOG_DIR"
	EnvE2EE      = "LOCALPUB_E2EE"
	EnvVerbose   = "LOCALPUB_VERBOSE"
)

const (
	RelayLocaltunnel = "localtunnel"
	RelaySSROK       = "ssrok"
)

type Credentials struct {
	Username string
	Password string
}

// TunnelConfig is immutable once Validate has succeeded.
type TunnelConfig struct {
	Port          int
	AuthPort      int
	Host          string
	Subdomain     string
	Relay         string
	TTL           time.Duration
	Credentials   *Credentials
	SessionSecret []byte
	E2EE          bool

	Verbose bool
	JSON    bool
	LogDir  string
}

// AuthEnabled reports whether the gateway sits in front of the target.
func (c *TunnelConfig) AuthEnabled() bool {
	return c.Credentials != nil
}

// RelayPort is the local port the relay forwards public traffic to.
func (c *TunnelConfig) RelayPort() int {
	if c.AuthEnabled() {
		return c.AuthPort
	}
	return c.Port
}

// Default returns a config populated from the environment, falling back to
// built-in defaults.
func Default() *TunnelConfig {
	port := utils.GetEnvInt(EnvPort, constants.DefaultPort)
	ttl, err := ParseTTL(utils.GetEnv(EnvTTL, constants.DefaultTTL))
	if err != nil {
		ttl = constants.DefaultTTLDuration
	}
	return &TunnelConfig{
		Port:      port,
		Host:      utils.GetEnv(EnvHost, constants.DefaultRelayHost),
		Subdomain: utils.GetEnv(EnvSubdomain, ""),
		Relay:     utils.GetEnv(EnvRelay, constants.DefaultRelayProvider),
		TTL:       ttl,
		LogDir:    utils.GetEnv(EnvLogDir, ""),
	}
}

// LoadEnv reads KEY=VALUE pairs from the given files (default ".env") into
// the process environment. Missing files are ignored and variables already
// set in the environment win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// EnableAuth turns on the gateway. An empty password is replaced with a
// generated one; generated reports whether that happened.
func (c *TunnelConfig) EnableAuth(username, password string) (generated bool) {
	if username == "" {
		username = constants.DefaultUsername
	}
	if password == "" {
		password = GeneratePassword()
		generated = true
	}
	c.Credentials = &Credentials{Username: username, Password: password}
	return generated
}

// Validate checks and normalizes the config. Every failure is a ConfigError.
func (c *TunnelConfig) Validate() error {
	const op = "validate config"

	if !utils.ValidPort(c.Port) {
		return types.E(types.ConfigError, op, fmt.Sprintf("invalid port %d: must be between %d and %d", c.Port, constants.MinPort, constants.MaxPort), nil)
	}
	if c.TTL <= 0 {
		return types.E(types.ConfigError, op, "ttl must be positive", nil)
	}

	c.Host = strings.TrimSuffix(strings.TrimSpace(c.Host), "/")
	if c.Host == "" {
		c.Host = constants.DefaultRelayHost
	}
	u, err := url.Parse(c.Host)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return types.E(types.ConfigError, op, fmt.Sprintf("invalid relay host %q: must be an http(s) URL", c.Host), err)
	}

	switch c.Relay {
	case "":
		c.Relay = constants.DefaultRelayProvider
	case RelayLocaltunnel, RelaySSROK:
	default:
		return types.E(types.ConfigError, op, fmt.Sprintf("unknown relay %q", c.Relay), nil)
	}
	if c.E2EE && c.Relay != RelaySSROK {
		return types.E(types.ConfigError, op, "end-to-end encryption requires --relay ssrok", nil)
	}

	if !c.AuthEnabled() {
		return nil
	}

	if c.Credentials.Username == "" || c.Credentials.Password == "" {
		return types.E(types.ConfigError, op, "username and password must not be empty", nil)
	}
	if c.AuthPort == 0 {
		c.AuthPort = c.Port + constants.AuthPortOffset
	}
	if !utils.ValidPort(c.AuthPort) {
		return types.E(types.ConfigError, op, fmt.Sprintf("invalid auth port %d: must be between %d and %d", c.AuthPort, constants.MinPort, constants.MaxPort), nil)
	}
	if c.AuthPort == c.Port {
		return types.E(types.ConfigError, op, fmt.Sprintf("auth port %d must differ from the target port", c.AuthPort), nil)
	}
	if len(c.SessionSecret) == 0 {
		secret, err := GenerateSecret()
		if err != nil {
			return types.E(types.ConfigError, op, "failed to generate session secret", err)
		}
		c.SessionSecret = secret
	}
	return nil
}

// GeneratePassword returns a random alphanumeric password.
func GeneratePassword() string {
	return uniuri.NewLen(constants.GeneratedPasswordLength)
}

// GenerateSecret returns a random session signing key.
func GenerateSecret() ([]byte, error) {
	b := make([]byte, constants.SessionSecretSize)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
