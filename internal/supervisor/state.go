package supervisor

import "fmt"

type State int32

const (
	Idle State = iota
	Probing
	AuthBootstrap
	RelayOpening
	Running
	Stopping
	Stopped
)

var stateNames = [...]string{
	Idle:          "idle",
	Probing:       "probing",
	AuthBootstrap: "auth-bootstrap",
	RelayOpening:  "relay-opening",
	Running:       "running",
	Stopping:      "stopping",
	Stopped:       "stopped",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Reason records why a tunnel stopped.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonManual      Reason = "stopped"
	ReasonSignal      Reason = "signal"
	ReasonExpired     Reason = "expired"
	ReasonHealth      Reason = "target unhealthy"
	ReasonRelayClosed Reason = "relay closed"
	ReasonStartFailed Reason = "startup failed"
)
