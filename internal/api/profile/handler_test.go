package profile

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"ngeblog/internal/api/middleware"
	"ngeblog/internal/model"
	"ngeblog/internal/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, users *memUsers, images *memImages) (*gin.Engine, *token.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens := token.NewService("test-secret", time.Hour, 4)
	r := gin.New()
	r.Use(middleware.ErrorHandler(nil))
	svc := NewService(users, images, nil)
	NewHandler(svc).RegisterRoutes(r.Group("/api/user"), middleware.AuthMiddleware(tokens, users))
	return r, tokens
}

func bearerFor(t *testing.T, tokens *token.Service, u *model.User) string {
	t.Helper()
	tok, err := tokens.Sign(u.ID, u.UUID, u.Role)
	require.NoError(t, err)
	return "Bearer " + tok
}

func imageForm(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandler_ProfileFlow(t *testing.T) {
	users := newMemUsers()
	u := users.add(1, model.StatusVerified)
	images := newMemImages()
	r, tokens := newTestRouter(t, users, images)
	auth := bearerFor(t, tokens, u)

	req := httptest.NewRequest(http.MethodPatch, "/api/user/profile", bytes.NewBufferString(`{"fullName":"Alice","bio":"writer"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", auth)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Profile updated successfully")

	body, contentType := imageForm(t, "file", "me.png", "image/png", []byte("png"))
	req = httptest.NewRequest(http.MethodPost, "/api/user/profile/image", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", auth)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var uploaded struct {
		Message  string `json:"message"`
		ImageURL string `json:"imageUrl"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploaded))
	assert.Equal(t, "Image uploaded successfully.", uploaded.Message)
	assert.Contains(t, uploaded.ImageURL, "profiles/")

	req = httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	req.Header.Set("Authorization", auth)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Profile model.Profile `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Alice", got.Profile.FullName)
	assert.Equal(t, "writer", got.Profile.Bio)
	assert.Equal(t, uploaded.ImageURL, got.Profile.ProfileImg)
}

func TestHandler_UploadWithoutFile(t *testing.T) {
	users := newMemUsers()
	u := users.add(1, model.StatusVerified)
	r, tokens := newTestRouter(t, users, newMemImages())

	req := httptest.NewRequest(http.MethodPost, "/api/user/profile/image", nil)
	req.Header.Set("Authorization", bearerFor(t, tokens, u))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Please upload an image.")
}

func TestHandler_RequiresAuth(t *testing.T) {
	r, _ := newTestRouter(t, newMemUsers(), newMemImages())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/user/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
