package viewmodel

import (
	"errors"

	"github.com/dovecote/pigeon/internal/deviceapi"
)

// Fields are the values the user types into the form
type Fields struct {
	WifiSSID     string
	WifiPassword string
	MQTTURL      string
	MQTTUsername string
	MQTTPassword string
}

// Payload returns the update body carrying exactly these fields
func (f Fields) Payload() deviceapi.SettingsPayload {
	return deviceapi.SettingsPayload{
		WifiSSID:     f.WifiSSID,
		WifiPassword: f.WifiPassword,
		MQTTURL:      f.MQTTURL,
		MQTTUsername: f.MQTTUsername,
		MQTTPassword: f.MQTTPassword,
	}
}

// FieldsFromPayload is the inverse of Payload
func FieldsFromPayload(p deviceapi.SettingsPayload) Fields {
	return Fields{
		WifiSSID:     p.WifiSSID,
		WifiPassword: p.WifiPassword,
		MQTTURL:      p.MQTTURL,
		MQTTUsername: p.MQTTUsername,
		MQTTPassword: p.MQTTPassword,
	}
}

// FieldsFromSettings pre-fills the form from settings read off a device
func FieldsFromSettings(s *deviceapi.Settings) Fields {
	if s == nil {
		return Fields{}
	}
	return Fields{
		WifiSSID:     s.WifiSSID,
		WifiPassword: s.WifiPassword,
		MQTTURL:      s.MQTTURL,
		MQTTUsername: s.MQTTUsername,
		MQTTPassword: s.MQTTPassword,
	}
}

// Action identifies a user action
type Action int

const (
	ActionNone Action = iota
	ActionScan
	ActionApply
	ActionFetch
)

func (a Action) String() string {
	switch a {
	case ActionScan:
		return "scan"
	case ActionApply:
		return "apply"
	case ActionFetch:
		return "fetch"
	default:
		return "none"
	}
}

// Status is the progress of the most recent action
type Status int

const (
	StatusIdle Status = iota
	StatusBusy
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusBusy:
		return "busy"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Outcome is the single resolution of one action
type Outcome struct {
	Action Action

	// Networks is set by a successful scan
	Networks *deviceapi.NetworkList

	// Applied is set by a successful apply
	Applied *deviceapi.ApplyResult

	// Settings is set by a successful fetch
	Settings *deviceapi.Settings

	Err error
}

// OK reports whether the action succeeded
func (o Outcome) OK() bool {
	return o.Err == nil
}

// State is the view state. Values are never modified in place; every
// method returns a new State.
type State struct {
	Fields Fields

	// WifiList is the last scanned network list. Nil means no scan has
	// completed or the device sent no list.
	WifiList []deviceapi.WifiNetwork

	LastAction Action
	Status     Status
	Err        error

	// Settings is the last snapshot read by a fetch, kept for diagnostics
	Settings *deviceapi.Settings

	// Applied is the device's answer to the last accepted update
	Applied *deviceapi.ApplyResult
}

// WithFields returns the state with new user input
func (s State) WithFields(f Fields) State {
	s.Fields = f
	return s
}

// Begin marks an action as started
func (s State) Begin(a Action) State {
	s.LastAction = a
	s.Status = StatusBusy
	s.Err = nil
	return s
}

// Busy reports whether an action is running
func (s State) Busy() bool {
	return s.Status == StatusBusy
}

// Apply folds an outcome into the state. A failure records the error and
// keeps everything else. An ErrInFlight outcome leaves the state as is.
// User fields are never written here.
func (s State) Apply(o Outcome) State {
	if errors.Is(o.Err, ErrInFlight) {
		return s
	}

	s.LastAction = o.Action
	if o.Err != nil {
		s.Status = StatusFailed
		s.Err = o.Err
		return s
	}

	switch o.Action {
	case ActionScan:
		if o.Networks != nil {
			s.WifiList = o.Networks.WifiList
		} else {
			s.WifiList = nil
		}
	case ActionApply:
		s.Applied = o.Applied
	case ActionFetch:
		s.Settings = o.Settings
	}

	s.Status = StatusSucceeded
	s.Err = nil
	return s
}
