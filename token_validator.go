package secure

import (
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// JWKSValidator validates bearer tokens signed by an external issuer against
// one or more remote JWK Set endpoints. This is validation only, not an
// OAuth2 flow: a zone configured with it will accept third-party tokens whose
// claims carry an authority set.
type JWKSValidator struct {
	keyfunc jwt.Keyfunc
	issuer  string
	logger  Logger
}

// NewJWKSValidator fetches the JWK Sets and returns a validator. The key set
// refreshes in the background; unknown key IDs trigger an eager refresh.
func NewJWKSValidator(issuer string, jwksURLs []string) (*JWKSValidator, error) {
	if len(jwksURLs) == 0 {
		return nil, goerrors.New("at least one JWKS URL is required", goerrors.CategoryValidation)
	}

	opts := keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to do a background refresh of JWK set: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}

	m := make(map[string]keyfunc.Options, len(jwksURLs))
	for _, url := range jwksURLs {
		m[url] = opts
	}

	multi, err := keyfunc.GetMultiple(m, keyfunc.MultipleOptions{
		KeySelector: keyfunc.KeySelectorFirst,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, fmt.Sprintf("failed to fetch JWK sets: %v", jwksURLs))
	}

	return &JWKSValidator{
		keyfunc: multi.Keyfunc,
		issuer:  issuer,
		logger:  defLogger{},
	}, nil
}

func (v *JWKSValidator) WithLogger(l Logger) *JWKSValidator {
	if l != nil {
		v.logger = l
	}
	return v
}

// Validate parses and verifies an externally issued token.
func (v *JWKSValidator) Validate(raw string) (*Claims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 1)
	if v.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, v.keyfunc, parserOptions...)
	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		v.logger.Error("jwks validate could not decode claims")
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

var _ BearerValidator = (*JWKSValidator)(nil)
