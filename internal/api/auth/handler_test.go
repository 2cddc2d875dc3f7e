package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ngeblog/internal/api/middleware"
	"ngeblog/internal/model"
	"ngeblog/internal/pkg/otp"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(env *testEnv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(nil))
	NewHandler(env.svc).RegisterRoutes(r.Group("/api/auth"), middleware.AuthMiddleware(env.tokens, env.users))
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}, bearer string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_RegisterVerifyFlow(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(env)

	w := doJSON(r, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice_01",
		"email":    "alice@example.com",
		"phone":    "08123456789",
		"password": goodPassword,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	authHeader := w.Header().Get("Authorization")
	require.True(t, strings.HasPrefix(authHeader, "Bearer "))
	bearer := strings.TrimPrefix(authHeader, "Bearer ")

	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	user := body["user"]
	assert.Equal(t, "alice_01", user["username"])
	for _, hidden := range []string{"password", "Password", "otp", "OTP", "otpExpiresAt", "OTPExpiresAt"} {
		_, ok := user[hidden]
		assert.False(t, ok, "field %s leaked", hidden)
	}

	m := env.mail.last()
	link := env.link(t, otp.PurposeVerify, m)

	w = doJSON(r, http.MethodPost, "/api/auth/verify", map[string]string{"uuid": link, "token": "999999x"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/auth/verify", map[string]string{"uuid": link, "token": m.code}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Account verified successfully")

	stored, err := env.users.FindByEmail(t.Context(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, stored.Status)

	w = doJSON(r, http.MethodGet, "/api/auth/keep-login", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":1`)
}

func TestHandler_ErrorsAndAuth(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(env)

	w := doJSON(r, http.MethodGet, "/api/auth/keep-login", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/auth/login", map[string]string{"username": "ghost", "password": "x"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":404,"message":"User does not exist"}`, w.Body.String())

	sess := env.register(t, "alice_01", "alice@example.com")
	w = doJSON(r, http.MethodPatch, "/api/auth/change-phone", map[string]string{"phone": "081234567890"}, sess.Token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodPost, "/api/auth/login", map[string]string{"username": "alice_01", "password": goodPassword}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Authorization"))

	w = doJSON(r, http.MethodDelete, "/api/auth/account", nil, sess.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Account deleted successfully")

	// 删除后旧令牌失效
	w = doJSON(r, http.MethodGet, "/api/auth/keep-login", nil, sess.Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
