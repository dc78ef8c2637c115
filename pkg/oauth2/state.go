package oauth2

import (
	"fmt"
)

type StateKind int

const (
	StateInitialized StateKind = iota
	StateAuthenticating
	StateCodeReceived
	StateAuthenticated
	StateFailed
	StateCancelled
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateInitialized:
		return "initialized"
	case StateAuthenticating:
		return "authenticating"
	case StateCodeReceived:
		return "code_received"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("StateKind(%d)", int(k))
	}
}

// State is the session's current position in the flow. Only the payload
// field matching Kind is set: Code for CodeReceived, Token for
// Authenticated, Err for Failed, Cancelled and Error.
type State struct {
	Kind  StateKind
	Code  string
	Token *AccessToken
	Err   error
}

// Terminal reports whether the state waits for Start or Reset.
func (s State) Terminal() bool {
	switch s.Kind {
	case StateFailed, StateCancelled, StateError:
		return true
	}
	return false
}

func (s State) String() string {
	if s.Err != nil {
		return s.Kind.String() + ": " + s.Err.Error()
	}
	return s.Kind.String()
}

type eventKind int

const (
	eventStart eventKind = iota
	eventPresentFailed
	eventCodeReceived
	eventCallbackMissingCode
	eventExchanged
	eventExchangeFailed
	eventCancel
	eventReset
	eventRefreshed
)

var eventNames = map[eventKind]string{
	eventStart:               "start",
	eventPresentFailed:       "present_failed",
	eventCodeReceived:        "code_received",
	eventCallbackMissingCode: "callback_missing_code",
	eventExchanged:           "exchanged",
	eventExchangeFailed:      "exchange_failed",
	eventCancel:              "cancel",
	eventReset:               "reset",
	eventRefreshed:           "refreshed",
}

func (k eventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("eventKind(%d)", int(k))
}

type event struct {
	kind  eventKind
	code  string
	token *AccessToken
	err   error

	// attempt and cancel identify the attempt begun by eventStart.
	attempt int64
	cancel  func()
	// prev is the token a refresh was based on.
	prev *AccessToken
}

// apply is the session's transition function. It has no side effects; a
// disallowed event returns ErrInvalidTransition.
func apply(current State, ev event) (State, error) {
	switch ev.kind {
	case eventStart:
		return State{Kind: StateAuthenticating}, nil

	case eventReset:
		return State{Kind: StateInitialized}, nil

	case eventPresentFailed:
		if current.Kind == StateAuthenticating {
			return State{Kind: StateError, Err: ev.err}, nil
		}

	case eventCodeReceived:
		if current.Kind == StateAuthenticating && ev.code != "" {
			return State{Kind: StateCodeReceived, Code: ev.code}, nil
		}

	case eventCallbackMissingCode:
		if current.Kind == StateAuthenticating {
			return State{Kind: StateFailed, Err: ErrCallbackMissingCode}, nil
		}

	case eventExchanged:
		if current.Kind == StateCodeReceived && ev.token != nil {
			return State{Kind: StateAuthenticated, Token: ev.token}, nil
		}

	case eventExchangeFailed:
		if current.Kind == StateCodeReceived {
			return State{Kind: StateFailed, Err: ev.err}, nil
		}

	case eventCancel:
		if current.Kind == StateAuthenticating || current.Kind == StateCodeReceived {
			return State{Kind: StateCancelled, Err: ErrUserCancelled}, nil
		}

	case eventRefreshed:
		if current.Kind == StateAuthenticated && ev.token != nil {
			return State{Kind: StateAuthenticated, Token: ev.token}, nil
		}
	}

	return current, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, ev.kind, current.Kind)
}
