package cfg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type OAuthConfig struct {
	AuthorizeURL   string
	TokenURL       string
	ClientID       string
	RedirectURI    string
	Scope          string
	CallbackScheme string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type StoreConfig struct {
	Kind  string
	Dir   string
	Redis RedisConfig
}

type OtelConfig struct {
	Endpoint    string
	ServiceName string
}

type Config struct {
	AppEnv      string
	OAuth       OAuthConfig
	Store       StoreConfig
	HTTPTimeout time.Duration
	NodeID      int64
	Otel        OtelConfig
}

// Load reads configuration from the environment, loading .env first when one
// exists. All problems are reported together.
func Load() (*Config, error) {
	var errs []error

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.New("failed load cfg: " + err.Error())
	}

	appEnv := mustEnv("APP_ENV", &errs)
	authorizeURL := mustEnv("OAUTH_AUTHORIZE_URL", &errs)
	tokenURL := mustEnv("OAUTH_TOKEN_URL", &errs)
	clientID := mustEnv("OAUTH_CLIENT_ID", &errs)
	redirectURI := mustEnv("OAUTH_REDIRECT_URI", &errs)

	timeoutSeconds := intEnv("HTTP_TIMEOUT_SECONDS", 30, &errs)
	if timeoutSeconds <= 0 {
		errs = append(errs, errors.New("invalid env: HTTP_TIMEOUT_SECONDS must be positive"))
	}
	nodeID := intEnv("NODE_ID", 1, &errs)

	store := StoreConfig{
		Kind: envOr("TOKEN_STORE", StoreFile),
		Dir:  os.Getenv("TOKEN_STORE_DIR"),
	}
	switch store.Kind {
	case StoreFile:
		if store.Dir == "" {
			store.Dir = defaultStoreDir()
		}
	case StoreRedis:
		store.Redis = RedisConfig{
			Host:     mustEnv("REDIS_HOST", &errs),
			Port:     mustEnv("REDIS_PORT", &errs),
			Password: os.Getenv("REDIS_PASSWORD"),
		}
	case StoreMemory:
	default:
		errs = append(errs, errors.New("invalid env: TOKEN_STORE must be file, redis or memory"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Config{
		AppEnv: appEnv,
		OAuth: OAuthConfig{
			AuthorizeURL:   authorizeURL,
			TokenURL:       tokenURL,
			ClientID:       clientID,
			RedirectURI:    redirectURI,
			Scope:          os.Getenv("OAUTH_SCOPE"),
			CallbackScheme: os.Getenv("OAUTH_CALLBACK_SCHEME"),
		},
		Store:       store,
		HTTPTimeout: time.Duration(timeoutSeconds) * time.Second,
		NodeID:      int64(nodeID),
		Otel: OtelConfig{
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: envOr("OTEL_SERVICE_NAME", "pkcelogin"),
		},
	}, nil
}

func mustEnv(key string, errs *[]error) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		*errs = append(*errs, errors.New("missing env: "+key))
	}
	return value
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func intEnv(key string, fallback int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, errors.New("conversion failed env: "+key))
		return fallback
	}
	return n
}

func defaultStoreDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pkcelogin", "tokens")
	}
	return filepath.Join(os.TempDir(), "pkcelogin", "tokens")
}
