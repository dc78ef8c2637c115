package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"pkceauth/pkg/logger"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"

	formContentType = "application/x-www-form-urlencoded; charset=UTF-8"

	// DefaultHTTPTimeout bounds a token request when no client is supplied.
	DefaultHTTPTimeout = 30 * time.Second

	maxTokenResponseBytes = 1 << 20

	instrumentationName = "pkceauth/pkg/oauth2"
)

// HTTPDoer sends a request; *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenClient performs the authorization-code and refresh-token grants.
// It never retries; that decision belongs to the caller.
type TokenClient struct {
	httpClient HTTPDoer
	logger     logger.Client
	now        func() time.Time

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	exchanges      metric.Int64Counter
	duration       metric.Float64Histogram
}

type TokenClientOption func(*TokenClient)

func WithHTTPClient(doer HTTPDoer) TokenClientOption {
	return func(c *TokenClient) {
		c.httpClient = doer
	}
}

func WithTokenClientLogger(l logger.Client) TokenClientOption {
	return func(c *TokenClient) {
		c.logger = l
	}
}

// WithTokenClock overrides the clock used for IssuedAt.
func WithTokenClock(now func() time.Time) TokenClientOption {
	return func(c *TokenClient) {
		c.now = now
	}
}

// WithTelemetry replaces the global OpenTelemetry providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) TokenClientOption {
	return func(c *TokenClient) {
		c.tracerProvider = tp
		c.meterProvider = mp
	}
}

func NewTokenClient(opts ...TokenClientOption) *TokenClient {
	c := &TokenClient{
		httpClient:     &http.Client{Timeout: DefaultHTTPTimeout},
		logger:         logger.Nop(),
		now:            time.Now,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.tracer = c.tracerProvider.Tracer(instrumentationName)
	meter := c.meterProvider.Meter(instrumentationName)
	var err error
	c.exchanges, err = meter.Int64Counter("oauth2.token.exchanges",
		metric.WithDescription("Token endpoint calls by grant and outcome"))
	if err != nil {
		c.logger.Warn("failed to create exchange counter", logger.Field{Key: "err", Value: err})
	}
	c.duration, err = meter.Float64Histogram("oauth2.token.exchange.duration",
		metric.WithDescription("Token endpoint latency"),
		metric.WithUnit("s"))
	if err != nil {
		c.logger.Warn("failed to create exchange histogram", logger.Field{Key: "err", Value: err})
	}

	return c
}

// ExchangeCode trades an authorization code and its PKCE verifier for a token.
func (c *TokenClient) ExchangeCode(ctx context.Context, provider ProviderConfig, code, verifier string) (*AccessToken, error) {
	if code == "" {
		return nil, &ExchangeError{Grant: grantAuthorizationCode, Err: ErrCallbackMissingCode}
	}
	if verifier == "" {
		return nil, &ExchangeError{Grant: grantAuthorizationCode, Err: errors.New("code verifier is missing")}
	}

	form := url.Values{}
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	form.Set("grant_type", grantAuthorizationCode)
	form.Set("redirect_uri", provider.RedirectURI())
	form.Set("client_id", provider.ClientID())

	resp, err := c.post(ctx, provider.TokenURL(), grantAuthorizationCode, form)
	if err != nil {
		return nil, err
	}
	return NewAccessToken(*resp, c.now())
}

// RefreshToken redeems refreshToken for a new access token. When the server
// does not rotate the refresh token, the previous one is carried over.
func (c *TokenClient) RefreshToken(ctx context.Context, provider ProviderConfig, refreshToken string) (*AccessToken, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshTokenAvailable
	}

	form := url.Values{}
	form.Set("grant_type", grantRefreshToken)
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", provider.ClientID())

	resp, err := c.post(ctx, provider.TokenURL(), grantRefreshToken, form)
	if err != nil {
		return nil, err
	}
	if resp.RefreshToken == "" {
		resp.RefreshToken = refreshToken
	}
	return NewAccessToken(*resp, c.now())
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *TokenClient) post(ctx context.Context, tokenURL, grant string, form url.Values) (resp *TokenResponse, err error) {
	ctx, span := c.tracer.Start(ctx, "oauth2."+grant,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("oauth2.grant_type", grant)))
	started := time.Now()
	defer func() {
		c.record(ctx, grant, started, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "token exchange failed")
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &ExchangeError{Grant: grant, Err: fmt.Errorf("failed to create token request: %w", err)}
	}
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Grant: grant, Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}
	defer httpResp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", httpResp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, &ExchangeError{Grant: grant, StatusCode: httpResp.StatusCode, Err: fmt.Errorf("%w: reading body: %w", ErrTransport, err)}
	}

	if httpResp.StatusCode != http.StatusOK {
		exErr := &ExchangeError{Grant: grant, StatusCode: httpResp.StatusCode}
		var oauthErr tokenErrorResponse
		if json.Unmarshal(body, &oauthErr) == nil {
			exErr.Code = oauthErr.Error
			exErr.Description = oauthErr.ErrorDescription
		}
		c.logger.Warn("token endpoint rejected request",
			logger.Field{Key: "grant", Value: grant},
			logger.Field{Key: "status", Value: httpResp.StatusCode},
			logger.Field{Key: "error_code", Value: exErr.Code},
		)
		return nil, exErr
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, &ExchangeError{Grant: grant, StatusCode: httpResp.StatusCode, Err: fmt.Errorf("failed to decode token response: %w", err)}
	}
	if tokenResp.AccessToken == "" {
		return nil, &ExchangeError{Grant: grant, StatusCode: httpResp.StatusCode, Err: errors.New("no access token in response")}
	}

	c.logger.Debug("token endpoint issued token",
		logger.Field{Key: "grant", Value: grant},
		logger.Field{Key: "token_type", Value: tokenResp.TokenType},
		logger.Field{Key: "rotated_refresh_token", Value: tokenResp.RefreshToken != ""},
	)
	return &tokenResp, nil
}

func (c *TokenClient) record(ctx context.Context, grant string, started time.Time, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, ErrTransport):
		outcome = "transport_error"
	case err != nil:
		outcome = "rejected"
	}
	attrs := metric.WithAttributes(
		attribute.String("grant", grant),
		attribute.String("outcome", outcome),
	)
	if c.exchanges != nil {
		c.exchanges.Add(ctx, 1, attrs)
	}
	if c.duration != nil {
		c.duration.Record(ctx, time.Since(started).Seconds(), attrs)
	}
}
