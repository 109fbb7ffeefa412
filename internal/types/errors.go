package types

import (
	"errors"
	"strings"
)

// Kind classifies tunnel failures.
type Kind int

const (
	KindUnknown Kind = iota
	ConfigError
	TargetUnreachable
	BindConflict
	RelayFailure
	ProxyUpstreamDown
	HealthDegraded
	Expired
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	ConfigError:       "config error",
	TargetUnreachable: "target unreachable",
	BindConflict:      "bind conflict",
	RelayFailure:      "relay failure",
	ProxyUpstreamDown: "proxy upstream down",
	HealthDegraded:    "health degraded",
	Expired:           "expired",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Sentinels for errors.Is.
var (
	ErrConfig            = &Error{Kind: ConfigError}
	ErrTargetUnreachable = &Error{Kind: TargetUnreachable}
	ErrBindConflict      = &Error{Kind: BindConflict}
	ErrRelayFailure      = &Error{Kind: RelayFailure}
	ErrProxyUpstreamDown = &Error{Kind: ProxyUpstreamDown}
	ErrHealthDegraded    = &Error{Kind: HealthDegraded}
	ErrExpired           = &Error{Kind: Expired}
)

type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Hint string
	Err  error
}

func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// WithHint attaches a remediation hint shown to the user.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	} else if e.Err == nil {
		parts = append(parts, e.Kind.String())
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HintOf returns the remediation hint of the first *Error in err's chain.
func HintOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}
