package oauth2

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKinds = []StateKind{
	StateInitialized, StateAuthenticating, StateCodeReceived, StateAuthenticated,
	StateFailed, StateCancelled, StateError,
}

func stateOf(kind StateKind) State {
	s := State{Kind: kind}
	switch kind {
	case StateCodeReceived:
		s.Code = "c"
	case StateAuthenticated:
		s.Token = &AccessToken{Token: "t", IssuedAt: issued}
	case StateFailed, StateCancelled, StateError:
		s.Err = errors.New("earlier")
	}
	return s
}

func TestApply_StartAndResetFromAnyState(t *testing.T) {
	for _, kind := range allKinds {
		next, err := apply(stateOf(kind), event{kind: eventStart})
		require.NoError(t, err, kind.String())
		assert.Equal(t, State{Kind: StateAuthenticating}, next)

		next, err = apply(stateOf(kind), event{kind: eventReset})
		require.NoError(t, err, kind.String())
		assert.Equal(t, State{Kind: StateInitialized}, next)
	}
}

func TestApply_Table(t *testing.T) {
	token := &AccessToken{Token: "tok1", IssuedAt: issued}
	cause := errors.New("boom")

	tests := []struct {
		name string
		from StateKind
		ev   event
		want State
	}{
		{"presenter error", StateAuthenticating, event{kind: eventPresentFailed, err: cause}, State{Kind: StateError, Err: cause}},
		{"code received", StateAuthenticating, event{kind: eventCodeReceived, code: "ABC"}, State{Kind: StateCodeReceived, Code: "ABC"}},
		{"missing code", StateAuthenticating, event{kind: eventCallbackMissingCode}, State{Kind: StateFailed, Err: ErrCallbackMissingCode}},
		{"exchange ok", StateCodeReceived, event{kind: eventExchanged, token: token}, State{Kind: StateAuthenticated, Token: token}},
		{"exchange failed", StateCodeReceived, event{kind: eventExchangeFailed, err: cause}, State{Kind: StateFailed, Err: cause}},
		{"cancel while authenticating", StateAuthenticating, event{kind: eventCancel}, State{Kind: StateCancelled, Err: ErrUserCancelled}},
		{"cancel mid exchange", StateCodeReceived, event{kind: eventCancel}, State{Kind: StateCancelled, Err: ErrUserCancelled}},
		{"refreshed", StateAuthenticated, event{kind: eventRefreshed, token: token}, State{Kind: StateAuthenticated, Token: token}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := apply(stateOf(tt.from), tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestApply_Rejected(t *testing.T) {
	token := &AccessToken{Token: "tok1", IssuedAt: issued}

	tests := []struct {
		name string
		from StateKind
		ev   event
	}{
		{"code outside authentication", StateInitialized, event{kind: eventCodeReceived, code: "ABC"}},
		{"empty code", StateAuthenticating, event{kind: eventCodeReceived}},
		{"exchange result without code", StateAuthenticating, event{kind: eventExchanged, token: token}},
		{"exchange result after cancel", StateCancelled, event{kind: eventExchanged, token: token}},
		{"nil token", StateCodeReceived, event{kind: eventExchanged}},
		{"cancel when idle", StateInitialized, event{kind: eventCancel}},
		{"cancel when authenticated", StateAuthenticated, event{kind: eventCancel}},
		{"refresh when not authenticated", StateInitialized, event{kind: eventRefreshed, token: token}},
		{"presenter error after failure", StateFailed, event{kind: eventPresentFailed, err: errors.New("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := stateOf(tt.from)
			next, err := apply(from, tt.ev)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, from, next, "state must be untouched")
		})
	}
}

func TestState_Terminal(t *testing.T) {
	for _, kind := range allKinds {
		want := kind == StateFailed || kind == StateCancelled || kind == StateError
		assert.Equal(t, want, State{Kind: kind}.Terminal(), kind.String())
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "authenticated", State{Kind: StateAuthenticated}.String())
	assert.Equal(t, "failed: callback missing authorization code", State{Kind: StateFailed, Err: ErrCallbackMissingCode}.String())
	assert.Equal(t, "StateKind(42)", StateKind(42).String())
}
