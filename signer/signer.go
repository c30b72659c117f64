package signer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod names the HMAC algorithm used to sign request payloads.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256. It is the default.
	MethodHS256 SigningMethod = "hs256"
	// MethodHS384 signs with HMAC-SHA384.
	MethodHS384 SigningMethod = "hs384"
	// MethodHS512 signs with HMAC-SHA512.
	MethodHS512 SigningMethod = "hs512"
)

const (
	// DefaultTTL is the expiration horizon embedded in every signed payload.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxFutureIAT bounds how far ahead of the verifier clock an iat may be.
	DefaultMaxFutureIAT = 10 * time.Minute
)

var (
	// ErrEmptySecret is returned when no shared secret is configured.
	ErrEmptySecret = errors.New("shared secret key is empty")
	// ErrPayloadEncoding is returned when a payload cannot be serialized to JSON.
	ErrPayloadEncoding = errors.New("payload cannot be serialized")
	// ErrPayloadNotObject is returned when a payload does not serialize to a JSON object.
	ErrPayloadNotObject = errors.New("payload must serialize to a JSON object")
	// ErrUnsupportedMethod is returned for signing methods other than the HMAC family.
	ErrUnsupportedMethod = errors.New("unsupported signing method")
	// ErrReservedClaim is returned when a payload carries a claim name the
	// signer sets itself (iat, exp, iss, aud or jti).
	ErrReservedClaim = errors.New("payload uses a reserved claim name")
	// ErrTokenInvalid is returned by Verify for any token that fails validation.
	ErrTokenInvalid = errors.New("invalid signed token")
)

// reserved lists the claims the signer may add on top of the caller payload.
var reserved = []string{"iat", "exp", "iss", "aud", "jti"}

// Config controls how payloads are signed and verified.
//
// The same Config (with the same Secret) must be used on both sides of the
// exchange; Issuer, Audience and KeyID are optional and only enforced by
// Verify when set.
type Config struct {
	SigningMethod SigningMethod
	Secret        []byte
	TTL           time.Duration
	Issuer        string
	Audience      string
	KeyID         string
	TokenID       bool
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

// Envelope is the wire form of a signed request: the plaintext client id
// next to the signed token.
type Envelope struct {
	ClientID string `json:"clientId"`
	Data     string `json:"data"`
}

// Signer produces and checks HMAC-signed payload tokens.
// A Signer is immutable after NewSigner and safe for concurrent use.
type Signer struct {
	config Config
	now    func() time.Time
}

// NewSigner validates cfg and returns a Signer.
func NewSigner(cfg Config) (*Signer, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrEmptySecret
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	switch cfg.SigningMethod {
	case MethodHS256, MethodHS384, MethodHS512:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, cfg.SigningMethod)
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = DefaultMaxFutureIAT
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	cfg.Secret = append([]byte(nil), cfg.Secret...)

	return &Signer{config: cfg, now: time.Now}, nil
}

// Sign serializes payload and returns a signed token carrying its fields
// plus iat and exp. Payloads that already use a reserved claim name fail
// with ErrReservedClaim. Two calls with the same payload yield different
// tokens whenever the clock or the token id differs.
func (s *Signer) Sign(payload any) (string, error) {
	claims, err := payloadClaims(payload)
	if err != nil {
		return "", err
	}

	now := s.now()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(s.config.TTL).Unix()
	if s.config.Issuer != "" {
		claims["iss"] = s.config.Issuer
	}
	if s.config.Audience != "" {
		claims["aud"] = s.config.Audience
	}
	if s.config.TokenID {
		claims["jti"] = uuid.NewString()
	}

	token := jwt.NewWithClaims(s.method(), claims)
	if s.config.KeyID != "" {
		token.Header["kid"] = s.config.KeyID
	}

	return token.SignedString(s.config.Secret)
}

// Envelope signs payload and pairs the result with clientID.
func (s *Signer) Envelope(clientID string, payload any) (Envelope, error) {
	data, err := s.Sign(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ClientID: clientID, Data: data}, nil
}

// Sign is the one-shot form of Signer.Envelope using default settings.
func Sign(payload any, clientID, secret string) (Envelope, error) {
	s, err := NewSigner(Config{Secret: []byte(secret)})
	if err != nil {
		return Envelope{}, err
	}
	return s.Envelope(clientID, payload)
}

// VerifyClaims checks the signature and registered claims of token and
// returns every claim it carries.
func (s *Signer) VerifyClaims(tokenStr string) (jwt.MapClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method().Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithJSONNumber(),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}
	if s.config.Audience != "" {
		options = append(options, jwt.WithAudience(s.config.Audience))
	}

	parser := jwt.NewParser(options...)
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != s.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if s.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			if kid != s.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return s.config.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if iat != nil && iat.Time.After(s.now().Add(s.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenInvalid)
	}

	return claims, nil
}

// Verify checks token and decodes the original payload into out.
// Only the claims this Signer's Config adds are removed before decoding;
// anything else the token carries reaches out unchanged.
func (s *Signer) Verify(tokenStr string, out any) error {
	claims, err := s.VerifyClaims(tokenStr)
	if err != nil {
		return err
	}
	for _, name := range s.added() {
		delete(claims, name)
	}
	raw, err := json.Marshal(map[string]interface{}(claims))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	return json.Unmarshal(raw, out)
}

// added returns the claim names Sign sets under this Config.
func (s *Signer) added() []string {
	names := []string{"iat", "exp"}
	if s.config.Issuer != "" {
		names = append(names, "iss")
	}
	if s.config.Audience != "" {
		names = append(names, "aud")
	}
	if s.config.TokenID {
		names = append(names, "jti")
	}
	return names
}

func (s *Signer) method() jwt.SigningMethod {
	switch s.config.SigningMethod {
	case MethodHS384:
		return jwt.SigningMethodHS384
	case MethodHS512:
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

func payloadClaims(payload any) (jwt.MapClaims, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPayloadEncoding, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, ErrPayloadNotObject
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	claims := jwt.MapClaims{}
	if err := dec.Decode(&claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPayloadEncoding, err)
	}
	for _, name := range reserved {
		if _, ok := claims[name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrReservedClaim, name)
		}
	}
	return claims, nil
}
