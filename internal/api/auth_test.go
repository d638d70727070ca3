package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/timetable-linebot-go/internal/ctxutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAuthenticator_IssueAndParse(t *testing.T) {
	t.Parallel()
	a := NewAuthenticator(testSecret, "timetable")

	token, err := a.Issue("U1", time.Hour)
	require.NoError(t, err)

	userID, err := a.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "U1", userID)
}

func TestAuthenticator_Rejects(t *testing.T) {
	t.Parallel()
	a := NewAuthenticator(testSecret, "timetable")

	past := NewAuthenticator(testSecret, "timetable")
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := past.Issue("U1", time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewAuthenticator(testSecret, "someone-else").Issue("U1", time.Hour)
	require.NoError(t, err)

	otherSecret, err := NewAuthenticator("ffffffffffffffffffffffffffffffff", "timetable").Issue("U1", time.Hour)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "timetable",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "U1",
		Issuer:  "timetable",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expired, ErrTokenExpired},
		{"wrong issuer", otherIssuer, ErrTokenInvalid},
		{"wrong secret", otherSecret, ErrTokenInvalid},
		{"no subject", noSubject, ErrTokenInvalid},
		{"alg none", unsigned, ErrTokenInvalid},
		{"garbage", "not-a-token", ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := a.Parse(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAuthenticator_IssueRequiresUser(t *testing.T) {
	t.Parallel()
	_, err := NewAuthenticator(testSecret, "").Issue("", time.Hour)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	a := NewAuthenticator(testSecret, "timetable")
	token, err := a.Issue("U42", time.Hour)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", a.Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(userIDKey)+"|"+ctxutil.GetUserID(c.Request.Context()))
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid", "Bearer " + token, http.StatusOK, "U42|U42"},
		{"lowercase scheme", "bearer " + token, http.StatusOK, "U42|U42"},
		{"missing", "", http.StatusUnauthorized, "缺少认证信息"},
		{"basic scheme", "Basic abc", http.StatusUnauthorized, "认证头格式无效"},
		{"no token", "Bearer ", http.StatusUnauthorized, "认证头格式无效"},
		{"bad token", "Bearer xyz", http.StatusUnauthorized, "登录状态无效"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}
