// Package auth validates gateway client credentials.
//
// Two credentials guard the chat route: a bearer token every caller must
// present, and a shared secret required only for requests flagged as
// originating from the Discord bot. All secret comparisons are constant-time.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"chat-gateway-go/internal/config"
)

// Sentinel errors mapped to HTTP statuses by the handler.
var (
	// ErrClientKeyNotConfigured means the gateway itself is misconfigured;
	// it maps to 500 and is checked before any credential validation.
	ErrClientKeyNotConfigured = errors.New("GATEWAY_CLIENT_API_KEY is not configured")

	// ErrInvalidAPIKey covers a missing Authorization header, a non-Bearer
	// scheme, an empty token, and a token mismatch alike.
	ErrInvalidAPIKey = errors.New("invalid or missing API key")

	// ErrInvalidBotPassword covers a missing or mismatched X-Discord-Password.
	ErrInvalidBotPassword = errors.New("invalid Discord bot password")
)

// Header names used by the Discord bot integration.
const (
	HeaderDiscordBot      = "X-Discord-Bot"
	HeaderDiscordPassword = "X-Discord-Password"
)

// botFlagValues are the accepted true-like values of the X-Discord-Bot header.
var botFlagValues = map[string]bool{"1": true, "true": true, "yes": true}

// Authenticator validates inbound credentials against configured secrets.
type Authenticator struct {
	cfg *config.Config
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg *config.Config) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// VerifyBearer checks the Authorization header against the configured client
// API key. It returns ErrClientKeyNotConfigured when no key is configured
// (fail closed; deliberately checked before inspecting the header) and
// ErrInvalidAPIKey for every credential failure.
func (a *Authenticator) VerifyBearer(header http.Header) error {
	configured := a.cfg.Gateway.ClientAPIKey
	if configured == "" {
		return ErrClientKeyNotConfigured
	}

	value := header.Get("Authorization")
	const prefix = "bearer "
	if len(value) < len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return ErrInvalidAPIKey
	}

	token := strings.TrimSpace(value[len(prefix):])
	if token == "" {
		return ErrInvalidAPIKey
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(configured)) != 1 {
		return ErrInvalidAPIKey
	}
	return nil
}

// BotOriginated reports whether the request carries a true-like X-Discord-Bot
// marker.
func (a *Authenticator) BotOriginated(header http.Header) bool {
	return botFlagValues[strings.ToLower(header.Get(HeaderDiscordBot))]
}

// VerifyBotPassword checks the X-Discord-Password header against the
// configured bot secret. Callers invoke it only for bot-originated requests.
func (a *Authenticator) VerifyBotPassword(header http.Header) error {
	provided := header.Get(HeaderDiscordPassword)
	if provided == "" {
		return ErrInvalidBotPassword
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(a.cfg.Gateway.DiscordBotPassword)) != 1 {
		return ErrInvalidBotPassword
	}
	return nil
}
