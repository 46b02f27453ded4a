package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	ctxlog "github.com/ErlanBelekov/token-ledger/internal/log"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	errUnauthorized = "Unauthorized"

	// SubjectKey holds the authenticated caller in the gin context.
	SubjectKey = "subject"
)

// Auth requires an HS256 bearer token with a subject and an expiry.
func Auth(jwtKey []byte) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		var claims jwt.RegisteredClaims
		token, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return jwtKey, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Request = c.Request.WithContext(ctxlog.WithAttrs(c.Request.Context(), slog.String("subject", claims.Subject)))
		c.Next()
	}
}
