package goNoPass

import (
	"fmt"
	"net/http"

	"github.com/MrEthical07/goNoPass/signer"
	"github.com/MrEthical07/goNoPass/transport"
	"github.com/rs/zerolog"
)

// Builder assembles a Client. A Builder is single use.
//
// Builder instances are intended to be configured during initialization and then discarded.
type Builder struct {
	config Config

	sender     transport.Sender
	httpClient *http.Client
	logger     *zerolog.Logger
	auditSink  AuditSink
	tracker    ChallengeTracker

	built bool
}

// New returns a Builder seeded with default settings. BaseURL, ClientID and
// SharedSecretKey must still be supplied through WithConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithSender replaces the HTTP transport, e.g. with a test double.
func (b *Builder) WithSender(sender transport.Sender) *Builder {
	b.sender = sender
	return b
}

// WithHTTPClient sets the *http.Client used by the default transport.
// HTTPConfig.Timeout is ignored when a client is supplied.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithLogger sets the base logger for diagnostics. Verbose and Silent still
// decide the effective level.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithAuditSink sets where audit events go. Audit.Enabled must be true.
// Without a sink, enabled audit events are written to the client logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithChallengeTracker enables the token/email pairing check.
func (b *Builder) WithChallengeTracker(tracker ChallengeTracker) *Builder {
	b.tracker = tracker
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the round-trip latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Client. It performs no
// network activity. Every failure wraps ErrConfiguration.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, fmt.Errorf("%w: builder already used", ErrConfiguration)
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.auditSink != nil && !cfg.Audit.Enabled {
		return nil, fmt.Errorf("%w: audit sink set but Audit.Enabled is false", ErrConfiguration)
	}

	s, err := signer.NewSigner(cfg.signerConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	sender := b.sender
	if sender == nil {
		httpClient := b.httpClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: cfg.HTTP.Timeout}
		}
		sender = transport.NewHTTPSender(httpClient, transport.HTTPConfig{
			UserAgent:        cfg.HTTP.UserAgent,
			MaxResponseBytes: cfg.HTTP.MaxResponseBytes,
		})
	} else if b.httpClient != nil {
		return nil, fmt.Errorf("%w: WithSender and WithHTTPClient are exclusive", ErrConfiguration)
	}

	authURL, validationURL := cfg.endpoints()
	logger := newLogger(b.logger, cfg)

	b.built = true

	return &Client{
		config:        cfg,
		authURL:       authURL,
		validationURL: validationURL,
		signer:        s,
		sender:        sender,
		logger:        logger,
		metrics:       NewMetrics(cfg.Metrics),
		audit:         newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		tracker:       b.tracker,
		newRequestID:  defaultRequestID,
	}, nil
}

// NewClient is shorthand for New().WithConfig(cfg).Build().
func NewClient(cfg Config) (*Client, error) {
	return New().WithConfig(cfg).Build()
}
