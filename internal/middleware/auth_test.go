package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func runRequest(handler gin.HandlerFunc, authHeader string) (*httptest.ResponseRecorder, *string) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var userID *string
	r.GET("/whoami", handler, func(c *gin.Context) {
		userID = UserID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, userID
}

func TestRequireAuth(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	w, userID := runRequest(RequireAuth(testSecret), "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, userID)
	assert.Equal(t, "user-42", *userID)

	w, _ = runRequest(RequireAuth(testSecret), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = runRequest(RequireAuth(testSecret), "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	wrongKey := signToken(t, "other-secret", jwt.MapClaims{"sub": "user-42"})
	w, _ = runRequest(RequireAuth(testSecret), "Bearer "+wrongKey)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	official := signToken(t, testSecret, jwt.MapClaims{"sub": "op-1", "role": RoleOfficial})
	citizen := signToken(t, testSecret, jwt.MapClaims{"sub": "user-42", "role": "citizen"})

	w, _ := runRequest(RequireRole(testSecret, RoleOfficial), "Bearer "+official)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = runRequest(RequireRole(testSecret, RoleOfficial), "Bearer "+citizen)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = runRequest(RequireRole(testSecret, RoleOfficial), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "user-42"})

	w, userID := runRequest(OptionalAuth(testSecret), "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, userID)
	assert.Equal(t, "user-42", *userID)

	// No token still passes, just anonymously.
	w, userID = runRequest(OptionalAuth(testSecret), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, userID)

	w, userID = runRequest(OptionalAuth(testSecret), "Bearer garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, userID)
}
