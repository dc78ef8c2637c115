package oauth2

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

var issued = time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

func TestNewAccessToken(t *testing.T) {
	token, err := NewAccessToken(TokenResponse{
		AccessToken:  "tok1",
		TokenType:    "Bearer",
		RefreshToken: "ref1",
		Scope:        "openid profile",
		ExpiresIn:    int64Ptr(3600),
	}, issued)
	require.NoError(t, err)

	assert.Equal(t, "tok1", token.Token)
	assert.Equal(t, "Bearer", token.Type)
	assert.Equal(t, "ref1", token.RefreshToken)
	assert.Equal(t, "openid profile", token.Scope)
	assert.Equal(t, int64(3600), *token.ExpiresIn)
	assert.True(t, token.CanRefresh())
}

func TestNewAccessToken_MissingAccessToken(t *testing.T) {
	token, err := NewAccessToken(TokenResponse{RefreshToken: "ref"}, issued)
	assert.ErrorIs(t, err, ErrTokenExchangeFailed)
	assert.Nil(t, token)
}

func TestAccessToken_ExpiresAt(t *testing.T) {
	withExpiry := &AccessToken{Token: "t", IssuedAt: issued, ExpiresIn: int64Ptr(3600)}
	at, ok := withExpiry.ExpiresAt()
	assert.True(t, ok)
	assert.Equal(t, issued.Add(time.Hour), at)

	without := &AccessToken{Token: "t", IssuedAt: issued}
	at, ok = without.ExpiresAt()
	assert.False(t, ok)
	assert.True(t, at.IsZero())

	var nilToken *AccessToken
	_, ok = nilToken.ExpiresAt()
	assert.False(t, ok)
}

func TestAccessToken_IsExpired(t *testing.T) {
	token := &AccessToken{Token: "t", IssuedAt: issued, ExpiresIn: int64Ptr(60)}

	assert.False(t, token.IsExpired(issued, 0))
	assert.True(t, token.IsExpired(issued.Add(60*time.Second), 0))
	assert.True(t, token.IsExpired(issued.Add(45*time.Second), 30*time.Second))

	forever := &AccessToken{Token: "t", IssuedAt: issued}
	assert.False(t, forever.IsExpired(issued.Add(24*365*time.Hour), 0))
}

func TestAccessToken_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		token *AccessToken
	}{
		{"all fields", &AccessToken{Token: "tok", RefreshToken: "ref", Scope: "openid", Type: "Bearer", ExpiresIn: int64Ptr(3600), IssuedAt: issued}},
		{"only required", &AccessToken{Token: "tok", IssuedAt: issued}},
		{"zero lifetime", &AccessToken{Token: "tok", ExpiresIn: int64Ptr(0), IssuedAt: issued}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.token.Encode()
			require.NoError(t, err)

			decoded, err := DecodeAccessToken(data)
			require.NoError(t, err)
			assert.Equal(t, tt.token, decoded)
		})
	}
}

func TestAccessToken_EncodeFieldNames(t *testing.T) {
	token := &AccessToken{Token: "tok", RefreshToken: "ref", Scope: "s", Type: "Bearer", ExpiresIn: int64Ptr(10), IssuedAt: issued}
	data, err := token.Encode()
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"token":"tok","refreshToken":"ref","scope":"s","type":"Bearer","expiresIn":10,"issuedAt":"2026-10-19T08:30:00Z"}`,
		string(data))
}

func TestDecodeAccessToken_Corrupt(t *testing.T) {
	for _, data := range []string{``, `not json`, `{}`, `{"token":""}`, `{"token":"t"}`, `{"token":"t","issuedAt":"yesterday"}`} {
		_, err := DecodeAccessToken([]byte(data))
		assert.ErrorIs(t, err, ErrStoreCorrupt, "input %q", data)
	}
}

func TestAccessToken_SetAuthHeader(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://api.example.com", nil)
	require.NoError(t, err)

	(&AccessToken{Token: "tok", Type: "bearer", IssuedAt: issued}).SetAuthHeader(req)
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
}
