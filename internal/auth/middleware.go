package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const CtxClaimsKey = "auth_claims"

// OptionalClaims parses a bearer token when one is sent and stores its claims.
// Requests without a valid token pass through anonymously.
func OptionalClaims(tokens TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := bearerClaims(c, tokens); err == nil {
			c.Set(CtxClaimsKey, claims)
		}
		c.Next()
	}
}

// AdminMiddleware rejects every request that does not carry an admin token.
func AdminMiddleware(tokens TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := bearerClaims(c, tokens)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		if claims.Role != RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

type authError string

func (e authError) Error() string { return string(e) }

const (
	errMissingBearer = authError("missing bearer token")
	errInvalidToken  = authError("invalid token")
)

func bearerClaims(c *gin.Context, tokens TokenService) (*Claims, error) {
	h := c.GetHeader("Authorization")
	if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return nil, errMissingBearer
	}
	raw := strings.TrimSpace(h[len("Bearer "):])
	claims, err := tokens.Parse(raw)
	if err != nil {
		return nil, errInvalidToken
	}
	return claims, nil
}

func MustGetClaims(c *gin.Context) *Claims {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

// IsAdmin reports whether the request carries admin claims.
func IsAdmin(c *gin.Context) bool {
	claims := MustGetClaims(c)
	return claims != nil && claims.Role == RoleAdmin
}
