package protocol

import "strings"

// Status tokens reported in the prompt.
const (
	PromptIdle          = ":"
	PromptInfusing      = ">"
	PromptWithdrawing   = "<"
	PromptTargetReached = "T*"
	PromptStalled       = "*"
	PromptInfuseLimit   = ">*"
	PromptWithdrawLimit = "<*"
)

// OutcomeKind is the top-level result of classifying a response.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeCommandError
	OutcomeStateError
)

// String returns the string representation of OutcomeKind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeCommandError:
		return "command error"
	case OutcomeStateError:
		return "state error"
	default:
		return "unknown"
	}
}

// Outcome is the classification of one exchange. State and Direction are
// only meaningful when Kind is OutcomeStateError.
type Outcome struct {
	Kind      OutcomeKind
	State     StateKind
	Direction Direction
	Response  Response
}

// Classify decides whether a response is a success, a rejected command or a
// state condition. Unrecognised prompts are never treated as success.
func Classify(resp Response) Outcome {
	if len(resp.Message) > 0 && strings.Contains(resp.Message[0], "error") {
		return Outcome{Kind: OutcomeCommandError, Response: resp}
	}

	out := Outcome{Kind: OutcomeStateError, Response: resp}
	switch resp.Prompt {
	case PromptIdle, PromptInfusing, PromptWithdrawing:
		out.Kind = OutcomeSuccess
	case PromptTargetReached:
		out.State = StateTargetReached
	case PromptStalled:
		out.State = StateStalled
	case PromptInfuseLimit:
		out.State = StateLimitSwitch
		out.Direction = DirectionInfuse
	case PromptWithdrawLimit:
		out.State = StateLimitSwitch
		out.Direction = DirectionWithdraw
	default:
		out.State = StateUnknown
	}
	return out
}

// OK reports whether the exchange succeeded.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// Err returns the typed error for a failed outcome, or nil on success.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeCommandError:
		return &CommandError{Response: o.Response}
	default:
		return &StateError{
			Kind:      o.State,
			Direction: o.Direction,
			Prompt:    o.Response.Prompt,
			Response:  o.Response,
		}
	}
}

// StateErr returns the *StateError for a state outcome, or nil otherwise.
func (o Outcome) StateErr() *StateError {
	if o.Kind != OutcomeStateError {
		return nil
	}
	se, _ := o.Err().(*StateError)
	return se
}
