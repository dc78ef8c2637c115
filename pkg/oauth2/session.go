package oauth2

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pkceauth/pkg/idgen"
	"pkceauth/pkg/logger"
	"pkceauth/pkg/secretstore"
)

const (
	DefaultStoreService = "pkceauth.oauth2"
	DefaultStoreAccount = "access_token"
)

// TokenExchanger is the token endpoint as the session sees it. *TokenClient
// implements it.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, provider ProviderConfig, code, verifier string) (*AccessToken, error)
	RefreshToken(ctx context.Context, provider ProviderConfig, refreshToken string) (*AccessToken, error)
}

// Session drives one user's authorization flow and owns its current token.
//
// Every state change goes through dispatch, which applies the transition,
// performs store writes, and notifies observers in order. Work started by an
// attempt carries that attempt's ID; once Start, Cancel or Reset has moved
// on, its completions are discarded.
type Session struct {
	provider       ProviderConfig
	exchanger      TokenExchanger
	presenter      WebAuthPresenter
	store          secretstore.Store
	ids            idgen.Generator
	logger         logger.Client
	service        string
	account        string
	callbackScheme string

	dispatchMu sync.Mutex

	mu            sync.RWMutex
	state         State
	attempt       int64
	cancelPresent func()
	observers     map[int]func(State)
	nextObserver  int
}

type SessionOption func(*Session)

func WithSessionLogger(l logger.Client) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// WithStoreKey sets the service/account pair the token is stored under.
func WithStoreKey(service, account string) SessionOption {
	return func(s *Session) {
		s.service = service
		s.account = account
	}
}

// WithCallbackScheme overrides the scheme passed to the presenter, which
// otherwise comes from the provider's redirect URI.
func WithCallbackScheme(scheme string) SessionOption {
	return func(s *Session) {
		s.callbackScheme = scheme
	}
}

func WithIDGenerator(ids idgen.Generator) SessionOption {
	return func(s *Session) {
		s.ids = ids
	}
}

// NewSession builds a session and restores a previously stored token. A
// missing or unreadable token leaves the session Initialized.
func NewSession(ctx context.Context, provider ProviderConfig, exchanger TokenExchanger, presenter WebAuthPresenter, store secretstore.Store, opts ...SessionOption) (*Session, error) {
	if exchanger == nil || presenter == nil || store == nil {
		return nil, errors.New("session requires an exchanger, a presenter and a store")
	}

	s := &Session{
		provider:       provider,
		exchanger:      exchanger,
		presenter:      presenter,
		store:          store,
		logger:         logger.Nop(),
		service:        DefaultStoreService,
		account:        DefaultStoreAccount,
		callbackScheme: provider.CallbackScheme(),
		state:          State{Kind: StateInitialized},
		observers:      make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		gen, err := idgen.NewSnowflakeGenerator(1)
		if err != nil {
			return nil, err
		}
		s.ids = gen
	}

	s.restore(ctx)
	return s, nil
}

func (s *Session) restore(ctx context.Context) {
	data, err := s.store.Read(ctx, s.service, s.account)
	if errors.Is(err, secretstore.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("failed to read stored token", logger.Field{Key: "err", Value: err})
		return
	}

	token, err := DecodeAccessToken(data)
	if err != nil {
		s.logger.Warn("ignoring stored token", logger.Field{Key: "err", Value: err})
		return
	}

	s.state = State{Kind: StateAuthenticated, Token: token}
	s.logger.Debug("restored stored token", logger.Field{Key: "can_refresh", Value: token.CanRefresh()})
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns the current token, or nil when not authenticated.
func (s *Session) Token() *AccessToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Kind != StateAuthenticated {
		return nil
	}
	return s.state.Token
}

// Subscribe registers fn for every future transition. Calls are made one at
// a time in transition order; fn must not call Start, Cancel, Reset or
// RefreshAccessToken synchronously.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Start begins a new authorization attempt, superseding any attempt in
// flight. The returned channel is closed once this attempt has settled.
// ctx bounds the whole attempt, including the token exchange.
func (s *Session) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	pkce := NewPKCE()
	authURL := s.provider.AuthorizeURL(pkce.CodeChallenge)
	attempt := s.ids.GenerateID()
	presentCtx, cancel := context.WithCancel(ctx)

	if _, err := s.dispatch(ctx, 0, event{kind: eventStart, attempt: attempt, cancel: cancel}); err != nil {
		cancel()
		close(done)
		return done
	}

	s.logger.Info("authorization started", logger.Field{Key: "attempt_id", Value: attempt})
	go s.authorize(ctx, presentCtx, attempt, pkce.CodeVerifier, authURL, done)
	return done
}

func (s *Session) authorize(ctx, presentCtx context.Context, attempt int64, verifier, authURL string, done chan<- struct{}) {
	defer close(done)

	callback, err := s.presenter.Present(presentCtx, authURL, s.callbackScheme)
	if err != nil {
		s.complete(ctx, attempt, event{kind: eventPresentFailed, err: err})
		return
	}

	var code string
	if callback != nil {
		code = callback.Query().Get("code")
	}
	if code == "" {
		s.complete(ctx, attempt, event{kind: eventCallbackMissingCode})
		return
	}

	if !s.complete(ctx, attempt, event{kind: eventCodeReceived, code: code}) {
		return
	}

	// The verifier lives only in this frame and is dropped when it returns.
	token, err := s.exchanger.ExchangeCode(ctx, s.provider, code, verifier)
	if err != nil {
		s.complete(ctx, attempt, event{kind: eventExchangeFailed, err: err})
		return
	}
	s.complete(ctx, attempt, event{kind: eventExchanged, token: token})
}

// complete delivers an attempt's result and reports whether it was accepted.
func (s *Session) complete(ctx context.Context, attempt int64, ev event) bool {
	next, err := s.dispatch(ctx, attempt, ev)
	switch {
	case err == nil, errors.Is(err, ErrPersistFailed):
	case errors.Is(err, ErrStaleCompletion), errors.Is(err, ErrInvalidTransition):
		s.logger.Debug("discarding completion",
			logger.Field{Key: "attempt_id", Value: attempt},
			logger.Field{Key: "event", Value: ev.kind.String()},
		)
		return false
	default:
		return false
	}

	fields := []logger.Field{
		{Key: "attempt_id", Value: attempt},
		{Key: "state", Value: next.Kind.String()},
	}
	if next.Err != nil {
		s.logger.Warn("authorization ended", append(fields, logger.Field{Key: "err", Value: next.Err})...)
	} else {
		s.logger.Info("authorization progressed", fields...)
	}
	return true
}

// Cancel abandons the attempt in flight. An exchange already sent is not
// aborted; its result is ignored.
func (s *Session) Cancel() error {
	_, err := s.dispatch(context.Background(), 0, event{kind: eventCancel})
	if errors.Is(err, ErrInvalidTransition) {
		return ErrNotAuthenticating
	}
	if err == nil {
		s.logger.Info("authorization cancelled")
	}
	return err
}

// Reset returns the session to Initialized from any state, dropping the
// in-memory token and deleting the stored one. The state changes even when
// the store delete fails; that failure is returned.
func (s *Session) Reset(ctx context.Context) error {
	_, err := s.dispatch(ctx, 0, event{kind: eventReset})
	s.logger.Info("session reset")
	return err
}

// RefreshAccessToken redeems the current refresh token. A failed refresh
// leaves the session and its token untouched.
func (s *Session) RefreshAccessToken(ctx context.Context) (*AccessToken, error) {
	current := s.State()
	if current.Kind != StateAuthenticated || !current.Token.CanRefresh() {
		return nil, ErrNoRefreshTokenAvailable
	}

	token, err := s.exchanger.RefreshToken(ctx, s.provider, current.Token.RefreshToken)
	if err != nil {
		s.logger.Warn("token refresh failed", logger.Field{Key: "err", Value: err})
		return nil, err
	}

	if _, err := s.dispatch(ctx, 0, event{kind: eventRefreshed, token: token, prev: current.Token}); err != nil && !errors.Is(err, ErrPersistFailed) {
		s.logger.Debug("discarding refreshed token", logger.Field{Key: "err", Value: err})
		return nil, err
	}

	s.logger.Info("token refreshed")
	return token, nil
}

// dispatch is the only place state changes. attempt 0 means the event comes
// from the caller rather than from an attempt's background work.
//
// dispatchMu serializes dispatches, so state and attempt are only written
// here. mu is held just long enough to read and commit them; store I/O runs
// without it and readers keep seeing the previous state meanwhile.
func (s *Session) dispatch(ctx context.Context, attempt int64, ev event) (State, error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.RLock()
	current, currentAttempt := s.state, s.attempt
	s.mu.RUnlock()

	if attempt != 0 && attempt != currentAttempt {
		return State{}, ErrStaleCompletion
	}
	if ev.kind == eventRefreshed && (current.Kind != StateAuthenticated || current.Token != ev.prev) {
		return State{}, ErrStaleCompletion
	}

	next, err := apply(current, ev)
	if err != nil {
		return State{}, err
	}

	persistErr := s.persist(ctx, ev, next)

	s.mu.Lock()
	s.advanceAttempt(ev)
	s.state = next
	observers := make([]func(State), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(next)
	}
	return next, persistErr
}

// advanceAttempt updates the attempt bookkeeping; mu must be held.
func (s *Session) advanceAttempt(ev event) {
	switch ev.kind {
	case eventStart:
		s.endAttempt()
		s.attempt = ev.attempt
		s.cancelPresent = ev.cancel
	case eventCancel, eventReset, eventPresentFailed, eventCallbackMissingCode, eventExchangeFailed, eventExchanged:
		s.endAttempt()
	}
}

// persist writes the store side of a transition. Only dispatch calls it, so
// store writes are serialized.
func (s *Session) persist(ctx context.Context, ev event, next State) error {
	storeCtx := context.WithoutCancel(ctx)
	switch ev.kind {
	case eventExchanged, eventRefreshed:
		data, err := next.Token.Encode()
		if err == nil {
			err = s.store.Save(storeCtx, s.service, s.account, data)
		}
		if err != nil {
			s.logger.Error("failed to persist token", logger.Field{Key: "err", Value: err})
			return fmt.Errorf("%w: %w", ErrPersistFailed, err)
		}
	case eventReset:
		if err := s.store.Delete(storeCtx, s.service, s.account); err != nil {
			s.logger.Error("failed to delete stored token", logger.Field{Key: "err", Value: err})
			return fmt.Errorf("%w: %w", ErrPersistFailed, err)
		}
	}
	return nil
}

func (s *Session) endAttempt() {
	if s.cancelPresent != nil {
		s.cancelPresent()
		s.cancelPresent = nil
	}
	s.attempt = 0
}
