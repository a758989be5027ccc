package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"

	apperrors "github.com/kbukum/svckit/errors"
)

const (
	claimsKey    = "console.claims"
	bearerScheme = "Bearer"
)

// tokenVerifier checks HS256 bearer tokens signed with the console secret.
type tokenVerifier struct {
	secret []byte
	issuer string
}

func (v tokenVerifier) parse(token string) (*gojwt.RegisteredClaims, error) {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(v.issuer))
	}
	claims := &gojwt.RegisteredClaims{}
	if _, err := gojwt.ParseWithClaims(token, claims, func(*gojwt.Token) (any, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("console: parse token: %w", err)
	}
	return claims, nil
}

// bearerAuth rejects requests without a valid token. Paths in skip pass
// through.
func bearerAuth(v tokenVerifier, skip ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, p := range skip {
			if c.Request.URL.Path == p {
				c.Next()
				return
			}
		}

		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, bearerScheme) || token == "" {
			abortWithError(c, apperrors.Unauthorized("bearer token required"))
			return
		}
		claims, err := v.parse(token)
		if err != nil {
			abortWithError(c, apperrors.Unauthorized("invalid token"))
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// IssueToken signs an HS256 token for the console, valid for ttl. Operators
// use it to mint credentials from the configured secret.
func IssueToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := gojwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("console: sign token: %w", err)
	}
	return signed, nil
}
