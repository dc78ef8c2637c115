package oauth2

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// TokenResponse is the JSON body returned by the token endpoint (RFC 6749 §5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    *int64 `json:"expires_in,omitempty"`
}

// AccessToken is an issued token pair. It is never mutated; a refresh
// produces a new value. Empty optional strings mean "absent".
type AccessToken struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	Type         string    `json:"type,omitempty"`
	ExpiresIn    *int64    `json:"expiresIn,omitempty"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// NewAccessToken builds a token from a decoded response received at issuedAt.
func NewAccessToken(resp TokenResponse, issuedAt time.Time) (*AccessToken, error) {
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: response has no access_token", ErrTokenExchangeFailed)
	}

	token := &AccessToken{
		Token:        resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Scope:        resp.Scope,
		Type:         resp.TokenType,
		IssuedAt:     issuedAt.UTC().Round(0),
	}
	if resp.ExpiresIn != nil {
		expiresIn := *resp.ExpiresIn
		token.ExpiresIn = &expiresIn
	}
	return token, nil
}

// ExpiresAt returns IssuedAt+ExpiresIn, or false when the lifetime is unknown.
func (t *AccessToken) ExpiresAt() (time.Time, bool) {
	if t == nil || t.ExpiresIn == nil {
		return time.Time{}, false
	}
	return t.IssuedAt.Add(time.Duration(*t.ExpiresIn) * time.Second), true
}

// IsExpired reports whether the token expires within margin of now.
// Tokens without a known lifetime never expire.
func (t *AccessToken) IsExpired(now time.Time, margin time.Duration) bool {
	expiresAt, ok := t.ExpiresAt()
	if !ok {
		return false
	}
	return !now.Add(margin).Before(expiresAt)
}

func (t *AccessToken) CanRefresh() bool {
	return t != nil && t.RefreshToken != ""
}

// SetAuthHeader sets the Authorization header on r.
func (t *AccessToken) SetAuthHeader(r *http.Request) {
	t.oauth2Token().SetAuthHeader(r)
}

func (t *AccessToken) oauth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.Token,
		TokenType:    t.Type,
		RefreshToken: t.RefreshToken,
	}
	if expiresAt, ok := t.ExpiresAt(); ok {
		tok.Expiry = expiresAt
	}
	return tok
}

// Encode serializes the token for the secret store.
func (t *AccessToken) Encode() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token: %w", err)
	}
	return data, nil
}

// DecodeAccessToken parses a token written by Encode.
func DecodeAccessToken(data []byte) (*AccessToken, error) {
	var token AccessToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreCorrupt, err)
	}
	if token.Token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrStoreCorrupt)
	}
	if token.IssuedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing issuedAt", ErrStoreCorrupt)
	}
	return &token, nil
}
