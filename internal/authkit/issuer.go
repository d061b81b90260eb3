package authkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClass distinguishes the two independently keyed token families.
type TokenClass string

const (
	// TokenClassAccess marks short-lived tokens that authorize individual requests.
	TokenClassAccess TokenClass = "access"
	// TokenClassRefresh marks long-lived tokens used solely to obtain new access tokens.
	TokenClassRefresh TokenClass = "refresh"
)

// Verification failures, ordered by the checks the issuer performs.
var (
	// ErrTokenMalformed indicates the token is not a structurally valid JWT.
	ErrTokenMalformed = errors.New("token.malformed")
	// ErrTokenSignatureInvalid indicates the signature does not match the class secret.
	ErrTokenSignatureInvalid = errors.New("token.invalid_signature")
	// ErrTokenExpired indicates the token expiry has elapsed.
	ErrTokenExpired = errors.New("token.expired")
	// ErrTokenWrongClass indicates a token of one class was presented where the other is required.
	ErrTokenWrongClass = errors.New("token.wrong_class")
	// ErrTokenEmptySubject indicates an issue call without a subject identifier.
	ErrTokenEmptySubject = errors.New("token.empty_subject")
)

// TokenClaims are embedded in every issued token.
type TokenClaims struct {
	TokenClass TokenClass `json:"token_class"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens for a single token class.
// Two instances exist side by side: one for access tokens and one for
// refresh tokens, each with its own secret and TTL. A compromise of one
// secret must not compromise the other.
type TokenIssuer struct {
	signingKey []byte
	issuer     string
	class      TokenClass
	ttl        time.Duration
	clock      Clock
}

// NewTokenIssuer constructs an issuer bound to one class secret and TTL.
func NewTokenIssuer(signingKey []byte, issuer string, class TokenClass, ttl time.Duration, clock Clock) *TokenIssuer {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &TokenIssuer{
		signingKey: signingKey,
		issuer:     issuer,
		class:      class,
		ttl:        ttl,
		clock:      clock,
	}
}

// Class reports the token class this issuer signs.
func (tokenIssuer *TokenIssuer) Class() TokenClass {
	return tokenIssuer.class
}

// TTL reports the configured lifetime for tokens of this class.
func (tokenIssuer *TokenIssuer) TTL() time.Duration {
	return tokenIssuer.ttl
}

// Issue signs a token binding the subject to this issuer's class and TTL.
func (tokenIssuer *TokenIssuer) Issue(subjectID string) (string, time.Time, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", time.Time{}, fmt.Errorf("token.issue.%s: %w", tokenIssuer.class, ErrTokenEmptySubject)
	}
	issuedAt := tokenIssuer.clock.Now()
	expiresAt := issuedAt.Add(tokenIssuer.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{
		TokenClass: tokenIssuer.class,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer.issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(tokenIssuer.signingKey)
	if signErr != nil {
		return "", time.Time{}, fmt.Errorf("token.issue.%s: %w", tokenIssuer.class, signErr)
	}
	return signed, expiresAt, nil
}

// Verify checks structure, signature, expiry, and class in that order and
// returns the subject identifier. An access token never verifies where a
// refresh token is required, and vice versa.
func (tokenIssuer *TokenIssuer) Verify(tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" {
		return "", fmt.Errorf("token.verify.%s: %w", tokenIssuer.class, ErrTokenMalformed)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return tokenIssuer.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return tokenIssuer.clock.Now()
	}))
	if parseErr != nil {
		switch {
		case errors.Is(parseErr, jwt.ErrTokenMalformed):
			return "", fmt.Errorf("token.verify.%s: %w", tokenIssuer.class, ErrTokenMalformed)
		case errors.Is(parseErr, jwt.ErrTokenSignatureInvalid):
			return "", fmt.Errorf("token.verify.%s: %w", tokenIssuer.class, ErrTokenSignatureInvalid)
		case errors.Is(parseErr, jwt.ErrTokenExpired):
			return "", fmt.Errorf("token.verify.%s: %w", tokenIssuer.class, ErrTokenExpired)
		default:
			return "", fmt.Errorf("token.verify.%s: %w", tokenIssuer.class, ErrTokenMalformed)
		}
	}
	if parsedToken == nil || !parsedToken.Valid {
		return "", fmt.Errorf("token.verify.%s: %w", tokenIssuer.class, ErrTokenSignatureInvalid)
	}
	claims, ok := parsedToken.Claims.(*TokenClaims)
	if !ok {
		return "", fmt.Errorf("token.verify.%s: %w", tokenIssuer.class, ErrTokenMalformed)
	}
	if claims.Issuer != tokenIssuer.issuer {
		return "", fmt.Errorf("token.verify.%s: %w", tokenIssuer.class, ErrTokenSignatureInvalid)
	}
	if claims.TokenClass != tokenIssuer.class {
		return "", fmt.Errorf("token.verify.%s: %w", tokenIssuer.class, ErrTokenWrongClass)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("token.verify.%s: %w", tokenIssuer.class, ErrTokenMalformed)
	}
	return claims.Subject, nil
}
