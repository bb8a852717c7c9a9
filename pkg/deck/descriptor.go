// Package deck defines the action model shared by the host and plugins.
package deck

import (
	"errors"
	"fmt"
	"strings"
)

// Type discriminates the kind of action a Descriptor describes.
type Type int

const (
	// TypeNone marks an unassigned key.
	TypeNone Type = iota
	// TypeMessage shows a message.
	TypeMessage
	// TypeCommand runs a command line.
	TypeCommand
	// TypePlugin delegates to a loaded plugin.
	TypePlugin
)

var typeNames = [...]string{"none", "message", "command", "plugin"}

// String returns the lower-case name of the type.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("type(%d)", int(t))
	}

	return typeNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(typeNames) {
		return nil, fmt.Errorf("unknown action type %d", int(t))
	}

	return []byte(typeNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range typeNames {
		if n == name {
			*t = Type(i)
			return nil
		}
	}

	return fmt.Errorf("unknown action type %q", name)
}

// Descriptor describes one bindable action. It holds only value fields, so
// assigning a Descriptor copies it completely.
type Descriptor struct {
	ActionID       string `json:"id,omitempty"`
	ActionName     string `json:"name"`
	ActionType     Type   `json:"type"`
	MessageToPrint string `json:"message,omitempty"`
	CommandToRun   string `json:"command,omitempty"`
}

// Descriptor validation errors.
var (
	ErrMissingActionID = errors.New("plugin action requires an action id")
	ErrUnexpectedID    = errors.New("built-in action must not carry an action id")
)

// Message builds a built-in message action.
func Message(name, text string) Descriptor {
	return Descriptor{ActionName: name, ActionType: TypeMessage, MessageToPrint: text}
}

// Command builds a built-in command action.
func Command(name, cmdline string) Descriptor {
	return Descriptor{ActionName: name, ActionType: TypeCommand, CommandToRun: cmdline}
}

// Builtins returns a template of each built-in action kind with an empty
// payload.
func Builtins() []Descriptor {
	return []Descriptor{
		Message("Message", ""),
		Command("Command", ""),
	}
}

// Label returns the caption shown on a key.
func (d Descriptor) Label() string {
	return d.ActionName
}

// IsZero reports whether d is the unassigned descriptor.
func (d Descriptor) IsZero() bool {
	return d == Descriptor{}
}

// Payload returns the field that is meaningful for the descriptor's type.
func (d Descriptor) Payload() string {
	switch d.ActionType {
	case TypeMessage:
		return d.MessageToPrint
	case TypeCommand:
		return d.CommandToRun
	case TypePlugin:
		return d.ActionID
	default:
		return ""
	}
}

// Validate checks that the action id is consistent with the action type.
func (d Descriptor) Validate() error {
	switch d.ActionType {
	case TypePlugin:
		if d.ActionID == "" {
			return ErrMissingActionID
		}
	case TypeMessage, TypeCommand:
		if d.ActionID != "" {
			return fmt.Errorf("%s %q: %w", d.ActionType, d.ActionName, ErrUnexpectedID)
		}
	case TypeNone:
	default:
		return fmt.Errorf("unknown action type %d", int(d.ActionType))
	}

	return nil
}
