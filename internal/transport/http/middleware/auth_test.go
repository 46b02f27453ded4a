package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ErlanBelekov/token-ledger/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testKey = "middleware-test-secret-32-chars!!"

func init() {
	gin.SetMode(gin.TestMode)
}

// newAuthEngine echoes the authenticated subject from GET /protected.
func newAuthEngine() *gin.Engine {
	r := gin.New()
	r.GET("/protected", middleware.Auth([]byte(testKey)), func(c *gin.Context) {
		c.String(http.StatusOK, "%s", c.GetString(middleware.SubjectKey))
	})
	return r
}

func makeJWT(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return s
}

func doAuth(header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	newAuthEngine().ServeHTTP(w, req)
	return w
}

func TestAuth_Rejections(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	cases := []struct {
		name   string
		header func(t *testing.T) string
	}{
		{"missing header", func(*testing.T) string { return "" }},
		{"basic scheme", func(*testing.T) string { return "Basic dXNlcjpwYXNz" }},
		{"garbage token", func(*testing.T) string { return "Bearer not.a.jwt" }},
		{"expired", func(t *testing.T) string {
			return "Bearer " + makeJWT(t, jwt.SigningMethodHS256, []byte(testKey), jwt.MapClaims{
				"sub": "svc", "exp": time.Now().Add(-time.Hour).Unix(),
			})
		}},
		{"no expiry", func(t *testing.T) string {
			return "Bearer " + makeJWT(t, jwt.SigningMethodHS256, []byte(testKey), jwt.MapClaims{"sub": "svc"})
		}},
		{"no subject", func(t *testing.T) string {
			return "Bearer " + makeJWT(t, jwt.SigningMethodHS256, []byte(testKey), jwt.MapClaims{"exp": future})
		}},
		{"wrong key", func(t *testing.T) string {
			return "Bearer " + makeJWT(t, jwt.SigningMethodHS256, []byte("different-key-that-is-32-chars!!"), jwt.MapClaims{
				"sub": "svc", "exp": future,
			})
		}},
		{"wrong algorithm", func(t *testing.T) string {
			return "Bearer " + makeJWT(t, jwt.SigningMethodHS512, []byte(testKey), jwt.MapClaims{
				"sub": "svc", "exp": future,
			})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := doAuth(tc.header(t)); w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestAuth_ValidToken_SetsSubject(t *testing.T) {
	tok := makeJWT(t, jwt.SigningMethodHS256, []byte(testKey), jwt.MapClaims{
		"sub": "billing-service",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})

	w := doAuth("Bearer " + tok)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "billing-service" {
		t.Errorf("body = %q, want %q", got, "billing-service")
	}
}
