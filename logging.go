package goNoPass

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// redactedValue replaces sensitive values in diagnostic output.
const redactedValue = "***REDACTED***"

// sensitiveKeys are response fields that must never reach a log line.
var sensitiveKeys = []string{
	"token",
	"jwt",
	"code",
	"secret",
	"password",
	"data",
}

// newLogger returns the logger a Client writes diagnostics to.
// Silent wins over Verbose; without either only failures are logged.
func newLogger(base *zerolog.Logger, cfg Config) zerolog.Logger {
	if cfg.Silent {
		return zerolog.Nop()
	}

	var l zerolog.Logger
	if base != nil {
		l = *base
	} else {
		l = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	l = l.With().Str("component", "goNoPass").Str("client_id", cfg.ClientID).Logger()

	if cfg.Verbose {
		return l.Level(zerolog.DebugLevel)
	}
	return l.Level(zerolog.WarnLevel)
}

// redactFields copies fields with sensitive values masked.
func redactFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitiveKey(k) {
			if s, ok := v.(string); ok && s == "" {
				out[k] = s
				continue
			}
			out[k] = redactedValue
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range sensitiveKeys {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// maskEmail keeps the first rune and the domain: "u***@example.com".
func maskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return redactedValue
	}
	r, size := utf8.DecodeRuneInString(email)
	if r == utf8.RuneError || size > at {
		return redactedValue
	}
	return email[:size] + "***" + email[at:]
}
