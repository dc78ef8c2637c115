package oauth2

import (
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
)

// DefaultScope is requested when the provider config does not override it.
const DefaultScope = "profile offline_access openid"

var ErrInvalidProviderConfig = errors.New("invalid provider config")

// ProviderConfig describes one OAuth provider's endpoints and this client's
// identity. It is immutable once built by NewProviderConfig.
type ProviderConfig struct {
	authorizeBaseURL string
	tokenURL         string
	clientID         string
	redirectURI      string
	scope            string
}

type ProviderOption func(*ProviderConfig)

// WithScope overrides DefaultScope. An empty scope keeps the default.
func WithScope(scope string) ProviderOption {
	return func(p *ProviderConfig) {
		if scope != "" {
			p.scope = scope
		}
	}
}

// NewProviderConfig validates and freezes a provider description.
func NewProviderConfig(authorizeBaseURL, tokenURL, clientID, redirectURI string, opts ...ProviderOption) (ProviderConfig, error) {
	p := ProviderConfig{
		authorizeBaseURL: authorizeBaseURL,
		tokenURL:         tokenURL,
		clientID:         clientID,
		redirectURI:      redirectURI,
		scope:            DefaultScope,
	}
	for _, opt := range opts {
		opt(&p)
	}

	var errs []error
	if clientID == "" {
		errs = append(errs, errors.New("client id is empty"))
	}
	if err := requireAbsoluteURL("authorize url", authorizeBaseURL, true); err != nil {
		errs = append(errs, err)
	}
	if err := requireAbsoluteURL("token url", tokenURL, true); err != nil {
		errs = append(errs, err)
	}
	if err := requireAbsoluteURL("redirect uri", redirectURI, false); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return ProviderConfig{}, fmt.Errorf("%w: %w", ErrInvalidProviderConfig, errors.Join(errs...))
	}

	return p, nil
}

func requireAbsoluteURL(name, raw string, needHost bool) error {
	if raw == "" {
		return fmt.Errorf("%s is empty", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("%s %q has no scheme", name, raw)
	}
	if needHost && u.Host == "" {
		return fmt.Errorf("%s %q has no host", name, raw)
	}
	return nil
}

func (p ProviderConfig) AuthorizeBaseURL() string { return p.authorizeBaseURL }
func (p ProviderConfig) TokenURL() string         { return p.tokenURL }
func (p ProviderConfig) ClientID() string         { return p.clientID }
func (p ProviderConfig) RedirectURI() string      { return p.redirectURI }
func (p ProviderConfig) Scope() string            { return p.scope }

// CallbackScheme is the scheme of the redirect URI, e.g. "myapp" or "http".
func (p ProviderConfig) CallbackScheme() string {
	u, err := url.Parse(p.redirectURI)
	if err != nil {
		return ""
	}
	return u.Scheme
}

// AuthorizeURL builds the authorization request for one attempt. Query
// parameters are sorted by key, so the result is stable for a given challenge.
func (p ProviderConfig) AuthorizeURL(codeChallenge string) string {
	cfg := oauth2.Config{
		ClientID:    p.clientID,
		RedirectURL: p.redirectURI,
		Endpoint:    oauth2.Endpoint{AuthURL: p.authorizeBaseURL},
		Scopes:      []string{p.scope},
	}
	return cfg.AuthCodeURL("",
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethodS256),
	)
}
