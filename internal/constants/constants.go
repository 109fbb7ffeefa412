package constants

import (
	"net/http"
	"time"
)

const (
	AppName = "localpub"
	Version = "0.1.0"
)

// Target and relay defaults
const (
	DefaultPort             = 3000
	DefaultRelayHost        = "https://loca.lt"
	DefaultRelayProvider    = "localtunnel"
	DefaultTTL              = "24h"
	DefaultTTLDuration      = 24 * time.Hour
	DefaultUsername         = "admin"
	DefaultTargetHost       = "localhost"
	AuthPortOffset          = 1000
	MinPort                 = 1
	MaxPort                 = 65535
	GeneratedPasswordLength = 16
	SessionSecretSize       = 32
)

// Probe settings
const (
	HealthCheckTimeout  = 5 * time.Second
	DetectTimeout       = 3 * time.Second
	HealthCheckInterval = 10 * time.Second
	SelfTestTimeout     = 10 * time.Second
	SelfTestMaxElapsed  = 20 * time.Second
	SPABodyThreshold    = 50000
	MaxProbeBodySize    = 1 << 20
)

// Session settings
const (
	SessionDuration       = 24 * time.Hour
	SessionCookieName     = "localpub_session"
	SessionCookieMaxAge   = 86400 // 24 hours
	SessionCookieSameSite = http.SameSiteLaxMode
	SessionTokenBytes     = 16
	CleanupInterval       = 30 * time.Second
	RedisKeyPrefix        = "localpub:"
)

// Gateway settings
const (
	LoginPath             = "/login"
	LogoutPath            = "/logout"
	MaxLoginBodySize      = 64 << 10
	DialTimeout           = 10 * time.Second
	ResponseHeaderTimeout = 30 * time.Second
	ShutdownTimeout       = 5 * time.Second
	IdleTimeout           = 120 * time.Second
	ReadHeaderTimeout     = 10 * time.Second
	MaxHeaderBytes        = 1 << 20
	WSBufferSize          = 32768
	WSControlTimeout      = 20 * time.Second
)

// ssrok relay protocol
const (
	EndpointRegister   = "/api/register"
	EndpointWebSocket  = "/ws/"
	WSHandshakeTimeout = 10 * time.Second
	MaxWSMessageSize   = 64 << 20
	RegisterMaxElapsed = 8 * time.Second
	RelayOpenTimeout   = 10 * time.Second
	CopyBufferSize     = 262144 // 256KB for io.Copy operations
)

// Stream types on a multiplexed relay session
const (
	StreamTypeProxy byte = 0x01
	StreamTypeLog   byte = 0x02
)

// Yamux tuning
const (
	YamuxMaxStreamWindowSize = 4 * 1024 * 1024
	YamuxAcceptBacklog       = 512
	YamuxEnableKeepAlive     = true
	YamuxKeepAliveInterval   = 30 * time.Second
)

// Relay events
const (
	RelayEventBuffer    = 16
	AcceptBackoffMin    = 100 * time.Millisecond
	AcceptBackoffMax    = 5 * time.Second
	MaxLocaltunnelConns = 10
	AcceptMaxFailures   = 10
)

// Audit log
const (
	MaxAuditLogsPerMinute       = 600
	MinDiskSpaceRequired  int64 = 100 * 1024 * 1024 // 100MB
)

// Time formats
const (
	TimeFormatShort = "15:04:05"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorRed    = "\033[31m"
	ColorPurple = "\033[35m"
)

// Messages
const (
	MsgNoServer         = "No server detected on localhost:%d. Please make sure your application is running."
	MsgInvalidLogin     = "Invalid username or password"
	MsgMalformedLogin   = "Could not read login form"
	MsgUpstreamDown     = "The local service is not responding."
	MsgBindConflictHint = "try a different --auth-port"
	MsgRelayHint        = "check your network connection or try a different --host"
)
