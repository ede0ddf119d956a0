// Package csrf issues and validates anti-forgery tokens for state-changing
// requests. Tokens bind to a server-side session when one exists; without a
// session the guard falls back to an HMAC-signed double-submit token carried
// in a dedicated cookie.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

var (
	ErrTokenMismatch    = errors.New("CSRF token mismatch")
	ErrTokenMissing     = errors.New("CSRF token missing")
	ErrTokenExpired     = errors.New("CSRF token expired")
	ErrSecureKeyMissing = errors.New("CSRF secure key required for double-submit mode")
)

// DefaultTokenLength is the random byte length of generated tokens.
const DefaultTokenLength = 32

// DefaultFormFieldName is the form field clients echo the token in.
const DefaultFormFieldName = "_csrf"

// DefaultHeaderName is the request header clients echo the token in. The
// header wins when both header and form field are present.
const DefaultHeaderName = "X-CSRF-Token"

// DefaultCookieName carries the client key for double-submit validation when
// no session exists.
const DefaultCookieName = "XSRF-TOKEN"

// TokenBinding is anything a token can be bound to, typically a session.
type TokenBinding interface {
	CSRFToken() string
	SetCSRFToken(token string)
}

// Config defines the guard configuration.
type Config struct {
	// TokenLength defines the length of the generated token in bytes
	TokenLength int

	// FormFieldName defines the name of the form field containing the token
	FormFieldName string

	// HeaderName defines the header name for the token
	HeaderName string

	// CookieName defines the cookie carrying the double-submit client key
	CookieName string

	// SecureKey signs double-submit tokens; required only when sessionless
	// validation is in play. Must be at least 32 bytes.
	SecureKey []byte

	// Expiration bounds double-submit token age (0 = no bound)
	Expiration time.Duration
}

// Guard issues and validates tokens. Safe for concurrent use.
type Guard struct {
	cfg Config
}

// New creates a guard with defaults filled in.
func New(config ...Config) *Guard {
	return &Guard{cfg: configDefault(config...)}
}

func (g *Guard) FieldName() string  { return g.cfg.FormFieldName }
func (g *Guard) HeaderName() string { return g.cfg.HeaderName }
func (g *Guard) CookieName() string { return g.cfg.CookieName }

// Issue returns the token bound to b, generating and binding a fresh one when
// none exists yet.
func (g *Guard) Issue(b TokenBinding) (string, error) {
	if token := b.CSRFToken(); token != "" {
		return token, nil
	}
	return g.Rotate(b)
}

// Rotate unconditionally binds a fresh token, invalidating the previous one.
// Called on login as part of session-fixation mitigation.
func (g *Guard) Rotate(b TokenBinding) (string, error) {
	token, err := generateToken(g.cfg.TokenLength)
	if err != nil {
		return "", err
	}
	b.SetCSRFToken(token)
	return token, nil
}

// Extract pulls the echoed token from the request: header first, then the
// form field. Empty string means the client sent none.
func (g *Guard) Extract(ctx router.Context) string {
	if token := ctx.GetString(g.cfg.HeaderName, ""); token != "" {
		return token
	}
	return ctx.FormValue(g.cfg.FormFieldName)
}

// Validate checks the echoed token against the binding. A nil binding means
// no session exists and the guard validates in double-submit mode against the
// client-key cookie. Returns ErrTokenMissing or ErrTokenMismatch.
func (g *Guard) Validate(ctx router.Context, b TokenBinding) error {
	received := g.Extract(ctx)
	if received == "" {
		return ErrTokenMissing
	}

	if b != nil {
		expected := b.CSRFToken()
		if expected == "" {
			return ErrTokenMismatch
		}
		if subtle.ConstantTimeCompare([]byte(received), []byte(expected)) != 1 {
			return ErrTokenMismatch
		}
		return nil
	}

	clientKey := ctx.Cookies(g.cfg.CookieName)
	if clientKey == "" {
		return ErrTokenMissing
	}
	return g.ValidateStateless(clientKey, received)
}

// IssueStateless signs a token bound to an opaque client key (the value of
// the double-submit cookie) rather than to a session.
func (g *Guard) IssueStateless(clientKey string) (string, error) {
	if len(g.cfg.SecureKey) == 0 {
		return "", ErrSecureKeyMissing
	}

	nonce := make([]byte, g.cfg.TokenLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	timestamp := time.Now().UTC().Unix()
	payload := fmt.Sprintf("%d:%s:%s", timestamp, hex.EncodeToString(nonce), clientKey)

	mac := hmac.New(sha256.New, g.cfg.SecureKey)
	mac.Write([]byte(payload))
	signature := mac.Sum(nil)

	token := fmt.Sprintf("%s:%s", payload, hex.EncodeToString(signature))
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

// ValidateStateless verifies a double-submit token against the client key.
func (g *Guard) ValidateStateless(clientKey, token string) error {
	if len(g.cfg.SecureKey) == 0 {
		return ErrSecureKeyMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return ErrTokenMismatch
	}

	timestampStr, nonceHex, keyFromToken, signatureHex := parts[0], parts[1], parts[2], parts[3]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}

	if _, err := hex.DecodeString(nonceHex); err != nil {
		return ErrTokenMismatch
	}

	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrTokenMismatch
	}

	payload := strings.Join(parts[:3], ":")
	mac := hmac.New(sha256.New, g.cfg.SecureKey)
	mac.Write([]byte(payload))
	expectedSignature := mac.Sum(nil)

	if !hmac.Equal(signature, expectedSignature) {
		return ErrTokenMismatch
	}

	if subtle.ConstantTimeCompare([]byte(keyFromToken), []byte(clientKey)) != 1 {
		return ErrTokenMismatch
	}

	if g.cfg.Expiration > 0 {
		expiresAt := time.Unix(timestamp, 0).Add(g.cfg.Expiration)
		if time.Now().UTC().After(expiresAt) {
			return ErrTokenExpired
		}
	}

	return nil
}

// IsProtectedMethod reports whether the HTTP method requires a valid token.
func IsProtectedMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	default:
		return false
	}
}

// generateToken generates a cryptographically secure random token
func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// NewClientKey returns a random value for the double-submit cookie.
func NewClientKey() (string, error) {
	return generateToken(16)
}

func configDefault(config ...Config) Config {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenLength == 0 {
		cfg.TokenLength = DefaultTokenLength
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.Expiration == 0 {
		cfg.Expiration = 24 * time.Hour
	}
	cfg.SecureKey = initializeSecureKey(cfg.SecureKey)

	return cfg
}

func initializeSecureKey(current []byte) []byte {
	if len(current) > 0 {
		if len(current) < 32 {
			panic(fmt.Errorf("csrf: secure key must be at least 32 bytes, got %d", len(current)))
		}
		return current
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		panic(fmt.Errorf("csrf: unable to initialize secure key: %w", err))
	}
	return key
}
