package oauth2

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkceauth/pkg/logger"
)

// DefaultCallbackTimeout is how long the loopback presenter waits for the redirect.
const DefaultCallbackTimeout = 5 * time.Minute

const callbackServerName = "oauth2-callback"

var callbackPages = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html><head><title>Signed in</title></head>
<body><h1>Signed in</h1><p>You can close this window and return to the terminal.</p></body></html>`))

func init() {
	template.Must(callbackPages.New("failure").Parse(`<!DOCTYPE html>
<html><head><title>Sign-in failed</title></head>
<body><h1>Sign-in failed</h1><p>{{.Error}}</p>{{if .Description}}<p>{{.Description}}</p>{{end}}</body></html>`))
}

// LoopbackPresenter implements WebAuthPresenter for native apps using a
// loopback redirect URI (RFC 8252 §7.3): it listens on the redirect URI's
// host:port, opens the system browser, and returns the first callback.
type LoopbackPresenter struct {
	redirect       *url.URL
	openBrowser    func(string) error
	timeout        time.Duration
	logger         logger.Client
	tracerProvider trace.TracerProvider
}

type LoopbackOption func(*LoopbackPresenter)

// WithBrowserOpener replaces OpenBrowser, e.g. to print the URL instead.
func WithBrowserOpener(open func(string) error) LoopbackOption {
	return func(p *LoopbackPresenter) {
		p.openBrowser = open
	}
}

func WithCallbackTimeout(d time.Duration) LoopbackOption {
	return func(p *LoopbackPresenter) {
		p.timeout = d
	}
}

func WithLoopbackLogger(l logger.Client) LoopbackOption {
	return func(p *LoopbackPresenter) {
		p.logger = l
	}
}

// WithLoopbackTracerProvider replaces the global tracer provider for the
// callback server's spans.
func WithLoopbackTracerProvider(tp trace.TracerProvider) LoopbackOption {
	return func(p *LoopbackPresenter) {
		p.tracerProvider = tp
	}
}

func NewLoopbackPresenter(redirectURI string, opts ...LoopbackOption) (*LoopbackPresenter, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("loopback redirect uri must use http, got %q", u.Scheme)
	}
	if u.Port() == "" {
		return nil, fmt.Errorf("loopback redirect uri %q has no port", redirectURI)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	p := &LoopbackPresenter{
		redirect:       u,
		openBrowser:    OpenBrowser,
		timeout:        DefaultCallbackTimeout,
		logger:         logger.Nop(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *LoopbackPresenter) Present(ctx context.Context, authURL string, callbackScheme string) (*url.URL, error) {
	if callbackScheme != p.redirect.Scheme {
		return nil, fmt.Errorf("loopback presenter cannot receive %q callbacks", callbackScheme)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	listener, err := net.Listen("tcp", p.redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener on %s: %w", p.redirect.Host, err)
	}

	results := make(chan *url.URL, 1)
	srv := &http.Server{
		Handler:           p.callbackHandler(results),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	p.logger.Debug("waiting for authorization callback", logger.Field{Key: "listen", Value: p.redirect.Host})
	if err := p.openBrowser(authURL); err != nil {
		return nil, err
	}

	select {
	case callback := <-results:
		if code := callback.Query().Get("error"); code != "" {
			return nil, &AuthorizationError{Code: code, Description: callback.Query().Get("error_description")}
		}
		return callback, nil
	case err := <-serveErr:
		return nil, fmt.Errorf("callback server failed: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *LoopbackPresenter) callbackHandler(results chan<- *url.URL) http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(callbackServerName, otelgin.WithTracerProvider(p.tracerProvider)))
	engine.SetHTMLTemplate(callbackPages)

	var once sync.Once
	engine.GET(p.redirect.Path, func(c *gin.Context) {
		handled := false
		once.Do(func() {
			handled = true

			c.Header("X-Content-Type-Options", "nosniff")
			c.Header("X-Frame-Options", "DENY")
			c.Header("Referrer-Policy", "no-referrer")
			c.Header("Cache-Control", "no-store")

			callback := *c.Request.URL
			callback.Scheme = p.redirect.Scheme
			callback.Host = p.redirect.Host

			if errCode := c.Query("error"); errCode != "" {
				span := trace.SpanFromContext(c.Request.Context())
				span.SetAttributes(attribute.String("oauth2.callback.error", errCode))
				span.SetStatus(codes.Error, "authorization denied")
				c.HTML(http.StatusOK, "failure", gin.H{
					"Error":       errCode,
					"Description": c.Query("error_description"),
				})
			} else {
				c.HTML(http.StatusOK, "success", nil)
			}
			results <- &callback
		})

		if !handled {
			c.String(http.StatusBadRequest, "callback already processed")
		}
	})

	return engine
}
