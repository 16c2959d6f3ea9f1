package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResponse is returned when the pump sent nothing before XON
	ErrEmptyResponse = errors.New("no response from pump")

	// ErrNotInitialised is returned when a command is sent before Initialise completed
	ErrNotInitialised = errors.New("pump session is not initialised")

	// ErrAlreadyInitialised is returned by Initialise on a ready session
	ErrAlreadyInitialised = errors.New("pump session is already initialised")

	// ErrResyncFailed is returned when a stale frame could not be drained after an interrupted exchange
	ErrResyncFailed = errors.New("pump session could not be resynchronised")

	// ErrInvalidArgument is returned for inputs rejected before any I/O
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCommand matches every *CommandError
	ErrCommand = errors.New("pump rejected command")

	// ErrState matches every *StateError
	ErrState = errors.New("unexpected pump state")

	ErrTargetReached = errors.New("target reached")
	ErrStalled       = errors.New("pump stalled")
	ErrLimitSwitch   = errors.New("limit switch hit")
	ErrUnknownState  = errors.New("unknown pump state")
)

// Direction is the direction of plunger travel.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionInfuse
	DirectionWithdraw
)

// String returns the string representation of Direction
func (d Direction) String() string {
	switch d {
	case DirectionInfuse:
		return "infuse"
	case DirectionWithdraw:
		return "withdraw"
	default:
		return "none"
	}
}

// StateKind identifies the terminal motion condition a prompt reports.
type StateKind int

const (
	StateUnknown StateKind = iota
	StateTargetReached
	StateStalled
	StateLimitSwitch
)

// String returns the string representation of StateKind
func (k StateKind) String() string {
	switch k {
	case StateTargetReached:
		return "target reached"
	case StateStalled:
		return "stalled"
	case StateLimitSwitch:
		return "limit switch"
	default:
		return "unknown"
	}
}

func (k StateKind) sentinel() error {
	switch k {
	case StateTargetReached:
		return ErrTargetReached
	case StateStalled:
		return ErrStalled
	case StateLimitSwitch:
		return ErrLimitSwitch
	default:
		return ErrUnknownState
	}
}

// CommandError reports that the pump displayed an error for a command it received.
type CommandError struct {
	Response Response
}

// Detail returns the error text the pump printed.
func (e *CommandError) Detail() string {
	for _, line := range e.Response.Message {
		if strings.Contains(line, "error") {
			return strings.TrimSpace(line)
		}
	}
	return strings.TrimSpace(strings.Join(e.Response.Message, " "))
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("got %q while executing %q", e.Detail(), e.Response.Command)
}

// Is reports whether target is ErrCommand.
func (e *CommandError) Is(target error) bool {
	return target == ErrCommand
}

// StateError reports that the prompt signalled a stopped or unrecognised pump state.
type StateError struct {
	Kind      StateKind
	Direction Direction // set for StateLimitSwitch
	Prompt    string
	Response  Response
}

func (e *StateError) Error() string {
	cmd := e.Response.Command
	switch e.Kind {
	case StateTargetReached:
		return fmt.Sprintf("pump reached its target after executing %q", cmd)
	case StateStalled:
		return fmt.Sprintf("pump stalled while executing %q", cmd)
	case StateLimitSwitch:
		return fmt.Sprintf("pump hit the %s limit while executing %q", e.Direction, cmd)
	default:
		return fmt.Sprintf("unexpected pump state %q after executing %q", e.Prompt, cmd)
	}
}

// Is matches ErrState and the sentinel for the error's kind.
func (e *StateError) Is(target error) bool {
	return target == ErrState || target == e.Kind.sentinel()
}

// ValidationError reports an input rejected before it reached the transport.
type ValidationError struct {
	Command string
	Reason  string
}

// NewValidationError builds a ValidationError for the named command.
func NewValidationError(command, format string, args ...any) error {
	return &ValidationError{Command: command, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s for %q: %s", ErrInvalidArgument, e.Command, e.Reason)
}

// Unwrap returns ErrInvalidArgument for errors.Is support.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}
