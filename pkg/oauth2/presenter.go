package oauth2

import (
	"context"
	"net/url"
)

// WebAuthPresenter shows the authorization page to the user and waits for
// the provider to redirect back. It returns the full callback URI, or nil
// with a nil error when the flow ended without a callback. Implementations
// must return promptly once ctx is cancelled.
type WebAuthPresenter interface {
	Present(ctx context.Context, authURL string, callbackScheme string) (*url.URL, error)
}

// PresenterFunc adapts a function to WebAuthPresenter.
type PresenterFunc func(ctx context.Context, authURL string, callbackScheme string) (*url.URL, error)

func (f PresenterFunc) Present(ctx context.Context, authURL string, callbackScheme string) (*url.URL, error) {
	return f(ctx, authURL, callbackScheme)
}
