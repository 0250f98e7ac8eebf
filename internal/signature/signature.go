// Package signature verifies the authenticity of inbound provider webhooks.
//
// Each provider is configured with a shared secret, the header its sender
// writes the signature to, and the encoding it uses (hex or base64). The
// validator computes an HMAC-SHA256 over the exact raw request body and
// compares it to the supplied signature in constant time. An optional source
// IP allow-list is checked before any cryptographic work is done.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Encoding is the wire encoding a provider uses for its signature header.
type Encoding string

const (
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
)

var (
	ErrUnknownProvider  = errors.New("no signature configuration for provider")
	ErrIPNotAllowed     = errors.New("source ip not in provider allow-list")
	ErrMissingSignature = errors.New("signature header missing")
	ErrInvalidSignature = errors.New("signature mismatch")
)

// Config holds one provider's signature verification settings.
type Config struct {
	// Secret is the shared HMAC secret issued by the provider.
	Secret string
	// Header is the request header carrying the signature,
	// e.g. "x-careem-signature".
	Header string
	// Encoding is how the sender encodes the HMAC digest. Defaults to hex.
	Encoding Encoding
	// AllowedIPs restricts accepted source addresses when non-empty.
	AllowedIPs []string
}

// Validator verifies webhook signatures for a static set of providers.
// It performs no network or disk I/O and is safe for concurrent use.
type Validator struct {
	configs map[string]Config

	// compareHook observes each constant-time comparison. Used by tests to
	// assert that differing-length signatures never reach the comparator.
	compareHook func(expected, got []byte)
}

// NewValidator creates a validator from per-provider configs keyed however
// the caller likes; lookup is case-insensitive on the provider name.
func NewValidator(configs map[string]Config) *Validator {
	normalized := make(map[string]Config, len(configs))
	for name, cfg := range configs {
		if cfg.Encoding == "" {
			cfg.Encoding = EncodingHex
		}
		normalized[strings.ToLower(name)] = cfg
	}
	return &Validator{configs: normalized}
}

// Validate checks a single inbound delivery. It returns nil only when the
// source IP is acceptable and the signature matches the raw body. All failure
// modes collapse to a 401 at the HTTP layer so callers must not surface the
// specific error to the external sender.
func (v *Validator) Validate(provider string, rawBody []byte, headers http.Header, sourceIP string) error {
	cfg, ok := v.configs[strings.ToLower(provider)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	// Cheap rejection first: no point hashing for a disallowed source.
	if len(cfg.AllowedIPs) > 0 && !slices.Contains(cfg.AllowedIPs, sourceIP) {
		return fmt.Errorf("%w: %s", ErrIPNotAllowed, sourceIP)
	}

	supplied := strings.TrimSpace(headers.Get(cfg.Header))
	if supplied == "" {
		return ErrMissingSignature
	}

	mac := hmac.New(sha256.New, []byte(cfg.Secret))
	mac.Write(rawBody)
	digest := mac.Sum(nil)

	got, err := decodeSignature(cfg.Encoding, supplied)
	if err != nil {
		return fmt.Errorf("%w: undecodable signature", ErrInvalidSignature)
	}

	// Length gate before the comparator: unequal lengths can never match and
	// must be rejected without feeding attacker-controlled data into the
	// equality routine.
	if len(got) != len(digest) {
		return ErrInvalidSignature
	}

	if v.compareHook != nil {
		v.compareHook(digest, got)
	}
	if !hmac.Equal(digest, got) {
		return ErrInvalidSignature
	}
	return nil
}

// HasProvider reports whether a signature config exists for the provider.
func (v *Validator) HasProvider(provider string) bool {
	_, ok := v.configs[strings.ToLower(provider)]
	return ok
}

func decodeSignature(enc Encoding, s string) ([]byte, error) {
	switch enc {
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(s)
	default:
		// Some senders prefix hex signatures with "sha256=".
		return hex.DecodeString(strings.TrimPrefix(s, "sha256="))
	}
}
