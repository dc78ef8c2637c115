package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkceauth/pkg/logger"
	"pkceauth/pkg/oauth2"
)

func TestManualPresenter(t *testing.T) {
	tests := map[string]struct {
		input   string
		code    string
		wantErr string
	}{
		"callback":       {input: "myapp://cb?code=ABC123\n", code: "ABC123"},
		"no newline":     {input: "  myapp://cb?code=XYZ", code: "XYZ"},
		"wrong scheme":   {input: "https://cb?code=ABC123\n", wantErr: "scheme"},
		"provider error": {input: "myapp://cb?error=access_denied\n", wantErr: "access_denied"},
		"no input":       {input: "", wantErr: "read callback url"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			p := manualPresenter(strings.NewReader(tc.input), &out)

			callback, err := p.Present(context.Background(), "https://auth.example.com/authorize?x=1", "myapp")

			assert.Contains(t, out.String(), "https://auth.example.com/authorize?x=1")
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.code, callback.Query().Get("code"))
		})
	}
}

func TestManualPresenter_Cancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := manualPresenter(r, io.Discard).Present(ctx, "https://auth.example.com/authorize", "myapp")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPresenter_PicksLoopbackForHTTP(t *testing.T) {
	loopback, err := oauth2.NewProviderConfig("https://auth.example.com/authorize", "https://auth.example.com/token",
		"client-123", "http://127.0.0.1:8765/callback")
	require.NoError(t, err)
	p, err := newPresenter(loopback, strings.NewReader(""), io.Discard, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &oauth2.LoopbackPresenter{}, p)

	custom, err := oauth2.NewProviderConfig("https://auth.example.com/authorize", "https://auth.example.com/token",
		"client-123", "myapp://cb")
	require.NoError(t, err)
	p, err = newPresenter(custom, strings.NewReader(""), io.Discard, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, oauth2.PresenterFunc(nil), p)
}

func TestPrintToken_HidesSecrets(t *testing.T) {
	expiresIn := int64(3600)
	token := &oauth2.AccessToken{
		Token:        "secret-access",
		RefreshToken: "secret-refresh",
		Scope:        "openid",
		Type:         "Bearer",
		ExpiresIn:    &expiresIn,
		IssuedAt:     time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC),
	}

	var out bytes.Buffer
	printToken(&out, token)

	assert.Contains(t, out.String(), "Bearer")
	assert.Contains(t, out.String(), "openid")
	assert.Contains(t, out.String(), "refresh:  true")
	assert.NotContains(t, out.String(), "secret-access")
	assert.NotContains(t, out.String(), "secret-refresh")
}

func TestAppClose_LogsShutdownErrors(t *testing.T) {
	var out bytes.Buffer
	var order []string
	a := &app{
		log: logger.NewWithWriter("development", &out),
		closers: []func(context.Context) error{
			func(context.Context) error { order = append(order, "store"); return nil },
			func(context.Context) error { order = append(order, "otel"); return errors.New("collector unreachable") },
		},
	}

	a.close()

	assert.Equal(t, []string{"otel", "store"}, order)
	assert.Contains(t, out.String(), `"message":"shutdown failed"`)
	assert.Contains(t, out.String(), "collector unreachable")
}
