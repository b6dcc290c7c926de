// Package models defines the wire-level types shared by the agentrelay
// server and the run engine.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies one kind of framed stream event.
type EventType string

const (
	EventSession EventType = "session"
	EventStdout  EventType = "stdout"
	EventStderr  EventType = "stderr"
	EventExit    EventType = "exit"
)

// Event is one NDJSON frame of a run's response stream. The session event
// is always first, the exit event always last; stdout/stderr events carry
// one line of decoded child output each (trailing newline included, except
// for a final partial line).
type Event struct {
	Type EventType
	ID   string
	Data string
	Code int
}

// SessionEvent builds the leading frame of a run.
func SessionEvent(id string) Event {
	return Event{Type: EventSession, ID: id}
}

// OutputEvent builds a stdout or stderr data frame.
func OutputEvent(t EventType, data string) Event {
	return Event{Type: t, Data: data}
}

// ExitEvent builds the terminal frame of a run.
func ExitEvent(code int) Event {
	return Event{Type: EventExit, Code: code}
}

// MarshalJSON emits the exact frame shape for each event type. A plain
// struct with omitempty would drop a zero exit code, so each type gets its
// own shape.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventSession:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			ID   string    `json:"id"`
		}{e.Type, e.ID})
	case EventStdout, EventStderr:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Data string    `json:"data"`
		}{e.Type, e.Data})
	case EventExit:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Code int       `json:"code"`
		}{e.Type, e.Code})
	default:
		return nil, fmt.Errorf("unknown event type: %q", e.Type)
	}
}

// UnmarshalJSON accepts any frame shape; unset fields stay zero.
func (e *Event) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type EventType `json:"type"`
		ID   string    `json:"id"`
		Data string    `json:"data"`
		Code int       `json:"code"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Type = raw.Type
	e.ID = raw.ID
	e.Data = raw.Data
	e.Code = raw.Code
	return nil
}

// RunRequest is the body of POST /run.
type RunRequest struct {
	CLI       string            `json:"cli"`
	Args      []string          `json:"args,omitempty"`
	Stdin     string            `json:"stdin,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// AgentInfo describes one configured agent for GET /agents.
type AgentInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Duration is a wrapper around time.Duration for JSON and YAML marshaling.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) < 2 {
		return nil
	}
	// Remove quotes
	s := string(b[1 : len(b)-1])
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}
