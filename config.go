package goNoPass

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goNoPass/signer"
	"github.com/MrEthical07/goNoPass/transport"
)

const (
	authPath       = "/apiuser"
	validationPath = "/apiuser/validate"
	devPathPrefix  = "/api"
)

// Config holds everything a Client needs. It is copied at construction and
// never mutated afterwards.
type Config struct {
	// BaseURL is the endpoint root, e.g. "http://localhost:27001".
	// It must be absolute and must not end with a slash.
	BaseURL string
	// ClientID identifies the calling application to the server.
	ClientID string
	// SharedSecretKey signs every outbound payload. It is never transmitted.
	SharedSecretKey string
	// Verbose enables debug diagnostics.
	Verbose bool
	// Silent disables all diagnostics and wins over Verbose.
	Silent bool
	// Dev selects the "/api" path prefix used by development deployments.
	Dev bool

	Signing SigningConfig
	HTTP    HTTPConfig
	Metrics MetricsConfig
	Audit   AuditConfig
}

/*
====================================
SIGNING CONFIG
====================================
*/

// SigningConfig tunes the request signer.
type SigningConfig struct {
	Method         string // "hs256" (default), "hs384", "hs512"
	TTL            time.Duration
	Issuer         string
	Audience       string
	KeyID          string
	IncludeTokenID bool
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig tunes the default transport. It is ignored when a custom
// transport.Sender is supplied through the Builder.
type HTTPConfig struct {
	// Timeout bounds a whole round trip. Zero means no client-side timeout.
	Timeout          time.Duration
	MaxResponseBytes int64
	UserAgent        string
}

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the defaults used by New. BaseURL, ClientID and
// SharedSecretKey are left empty.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Signing: SigningConfig{
			Method:         string(signer.MethodHS256),
			TTL:            signer.DefaultTTL,
			IncludeTokenID: true,
		},
		HTTP: HTTPConfig{
			MaxResponseBytes: transport.DefaultMaxResponseBytes,
			UserAgent:        transport.DefaultUserAgent,
		},
		Audit: AuditConfig{
			BufferSize: 64,
			DropIfFull: true,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first problem with c, wrapped in ErrConfiguration.
func (c *Config) Validate() error {
	if err := validateBaseURL(c.BaseURL); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("%w: ClientID is required", ErrConfiguration)
	}
	if c.SharedSecretKey == "" {
		return fmt.Errorf("%w: SharedSecretKey is required", ErrConfiguration)
	}

	switch signer.SigningMethod(c.Signing.Method) {
	case "", signer.MethodHS256, signer.MethodHS384, signer.MethodHS512:
	default:
		return fmt.Errorf("%w: unsupported signing method %q", ErrConfiguration, c.Signing.Method)
	}
	if c.Signing.TTL < 0 {
		return fmt.Errorf("%w: Signing TTL must be >= 0", ErrConfiguration)
	}
	if c.Signing.Audience != "" && strings.TrimSpace(c.Signing.Audience) == "" {
		return fmt.Errorf("%w: Signing Audience must not be blank", ErrConfiguration)
	}

	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("%w: HTTP Timeout must be >= 0", ErrConfiguration)
	}
	if c.HTTP.MaxResponseBytes < 0 {
		return fmt.Errorf("%w: HTTP MaxResponseBytes must be >= 0", ErrConfiguration)
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: Audit BufferSize must be > 0 when enabled", ErrConfiguration)
	}

	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return errors.New("BaseURL is required")
	}
	if strings.HasSuffix(raw, "/") {
		return errors.New("BaseURL must not end with a trailing slash")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("BaseURL is not a valid URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return errors.New("BaseURL must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("BaseURL scheme %q is not http or https", u.Scheme)
	}
	if u.RawQuery != "" || u.Fragment != "" || strings.ContainsAny(raw, "?#") {
		return errors.New("BaseURL must not carry a query or fragment")
	}
	return nil
}

// endpoints derives the two fixed endpoint URLs from a validated config.
func (c *Config) endpoints() (authURL, validationURL string) {
	prefix := c.BaseURL
	if c.Dev {
		prefix += devPathPrefix
	}
	return prefix + authPath, prefix + validationPath
}

func (c *Config) signerConfig() signer.Config {
	return signer.Config{
		SigningMethod: signer.SigningMethod(c.Signing.Method),
		Secret:        []byte(c.SharedSecretKey),
		TTL:           c.Signing.TTL,
		Issuer:        c.Signing.Issuer,
		Audience:      c.Signing.Audience,
		KeyID:         c.Signing.KeyID,
		TokenID:       c.Signing.IncludeTokenID,
	}
}
