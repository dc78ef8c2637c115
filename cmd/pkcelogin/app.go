package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pkceauth/cfg"
	"pkceauth/pkg/idgen"
	"pkceauth/pkg/logger"
	"pkceauth/pkg/oauth2"
	"pkceauth/pkg/secretstore"
)

// app holds everything a command needs, built from the environment.
type app struct {
	config  *cfg.Config
	log     logger.Client
	session *oauth2.Session
	closers []func(context.Context) error
}

func newApp(ctx context.Context, stdin io.Reader, stdout io.Writer) (*app, error) {
	// ============
	// config
	// ============
	config, err := cfg.Load()
	if err != nil {
		return nil, err
	}
	a := &app{config: config}

	// ============
	// logger
	// ============
	zlogger := logger.NewZeroLog(config.AppEnv)
	a.log = zlogger

	// ============
	// Otel
	// ============
	if config.Otel.Endpoint != "" {
		shutdownOtel, err := initOtel(ctx, config, zlogger)
		if err != nil {
			zlogger.Warn("failed to initialize OpenTelemetry, continuing without tracing/metrics",
				logger.Field{Key: "err", Value: err})
		} else {
			a.closers = append(a.closers, shutdownOtel)
		}
	}

	// ============
	// token store
	// ============
	store, err := a.openStore()
	if err != nil {
		a.close()
		return nil, err
	}

	// ============
	// provider + session
	// ============
	provider, err := oauth2.NewProviderConfig(
		config.OAuth.AuthorizeURL,
		config.OAuth.TokenURL,
		config.OAuth.ClientID,
		config.OAuth.RedirectURI,
		oauth2.WithScope(config.OAuth.Scope),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	presenter, err := newPresenter(provider, stdin, stdout, zlogger)
	if err != nil {
		a.close()
		return nil, err
	}

	ids, err := idgen.NewSnowflakeGenerator(config.NodeID)
	if err != nil {
		a.close()
		return nil, err
	}

	client := oauth2.NewTokenClient(
		oauth2.WithHTTPClient(&http.Client{Timeout: config.HTTPTimeout}),
		oauth2.WithTokenClientLogger(zlogger),
	)

	opts := []oauth2.SessionOption{
		oauth2.WithSessionLogger(zlogger),
		oauth2.WithIDGenerator(ids),
	}
	if config.OAuth.CallbackScheme != "" {
		opts = append(opts, oauth2.WithCallbackScheme(config.OAuth.CallbackScheme))
	}

	a.session, err = oauth2.NewSession(ctx, provider, client, presenter, store, opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore() (secretstore.Store, error) {
	switch a.config.Store.Kind {
	case cfg.StoreRedis:
		store := secretstore.NewRedisStoreFromAddr(a.config.Store.Redis.Addr(), a.config.Store.Redis.Password, "pkcelogin")
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	case cfg.StoreMemory:
		return secretstore.NewMemoryStore(), nil
	default:
		return secretstore.NewFileStore(a.config.Store.Dir)
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Error("shutdown failed", logger.Field{Key: "err", Value: err})
		}
	}
}

// newPresenter serves http redirect URIs on loopback. Any other scheme is
// handed to the user, who pastes the callback URL back in.
func newPresenter(provider oauth2.ProviderConfig, stdin io.Reader, stdout io.Writer, l logger.Client) (oauth2.WebAuthPresenter, error) {
	if provider.CallbackScheme() == "http" {
		return oauth2.NewLoopbackPresenter(provider.RedirectURI(), oauth2.WithLoopbackLogger(l))
	}
	return manualPresenter(stdin, stdout), nil
}

// manualPresenter prints authURL and reads the callback URL from stdin. When
// ctx is cancelled first, the goroutine blocked reading stdin is left behind
// until the next line or EOF; the process is about to exit at that point.
func manualPresenter(stdin io.Reader, stdout io.Writer) oauth2.WebAuthPresenter {
	return oauth2.PresenterFunc(func(ctx context.Context, authURL, callbackScheme string) (*url.URL, error) {
		fmt.Fprintf(stdout, "Open this URL in a browser:\n\n  %s\n\nThen paste the %s:// URL you were redirected to:\n", authURL, callbackScheme)

		lines := make(chan string, 1)
		errs := make(chan error, 1)
		go func() {
			line, err := bufio.NewReader(stdin).ReadString('\n')
			if err != nil && line == "" {
				errs <- err
				return
			}
			lines <- strings.TrimSpace(line)
		}()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-errs:
			return nil, fmt.Errorf("read callback url: %w", err)
		case line := <-lines:
			callback, err := url.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("parse callback url: %w", err)
			}
			if callback.Scheme != callbackScheme {
				return nil, fmt.Errorf("callback url scheme %q, want %q", callback.Scheme, callbackScheme)
			}
			if code := callback.Query().Get("error"); code != "" {
				return nil, &oauth2.AuthorizationError{Code: code, Description: callback.Query().Get("error_description")}
			}
			return callback, nil
		}
	})
}
