package oauth2

import (
	"golang.org/x/oauth2"
)

// ChallengeMethodS256 is the only PKCE method this client sends.
const ChallengeMethodS256 = "S256"

// PKCE holds the secret for a single authorization attempt.
type PKCE struct {
	CodeVerifier  string
	CodeChallenge string
	Method        string
}

// GenerateCodeVerifier draws 32 bytes from crypto/rand and returns them
// base64url-encoded without padding (43 characters, RFC 7636 §4.1).
func GenerateCodeVerifier() string {
	return oauth2.GenerateVerifier()
}

// GenerateCodeChallenge returns BASE64URL(SHA256(verifier)) without padding.
func GenerateCodeChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// NewPKCE generates a fresh verifier and its S256 challenge.
func NewPKCE() PKCE {
	verifier := GenerateCodeVerifier()
	return PKCE{
		CodeVerifier:  verifier,
		CodeChallenge: GenerateCodeChallenge(verifier),
		Method:        ChallengeMethodS256,
	}
}
