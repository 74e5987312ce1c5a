package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/rohits-web03/todo-api/internal/api/middleware"
	"github.com/rohits-web03/todo-api/internal/api/services"
	"github.com/rohits-web03/todo-api/internal/metrics"
	"github.com/rohits-web03/todo-api/internal/models"
	"github.com/rohits-web03/todo-api/internal/repositories"
)

func newHandler(t *testing.T) *Handler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := repositories.NewMemoryStore()
	opts := []services.Option{services.WithHashCost(bcrypt.MinCost), services.WithLogger(logger)}
	return &Handler{
		Todos:           services.NewTodoService(store.Todos(), opts...),
		Users:           services.NewUserService(store.Users(), store.Todos(), opts...),
		Logger:          logger,
		Metrics:         metrics.Nop{},
		JWTSecret:       "handler-secret",
		FrontendBaseURL: "http://localhost:5173/",
	}
}

func TestState_RoundTrip(t *testing.T) {
	state, err := GenerateState(map[string]string{"flow": "login"})
	require.NoError(t, err)

	data, err := DecodeState(state)
	require.NoError(t, err)
	assert.Equal(t, "login", data["flow"])

	other, err := GenerateState(map[string]string{"flow": "login"})
	require.NoError(t, err)
	assert.NotEqual(t, state, other)
}

func TestDecodeState_Invalid(t *testing.T) {
	for _, state := range []string{"", "nodot", ".e30", "abc.%%%", "abc.bm90LWpzb24"} {
		_, err := DecodeState(state)
		assert.Error(t, err, state)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", models.ValidationErrors{{Field: "title", Reason: "title is required"}}, http.StatusBadRequest, "Validation failed"},
		{"single validation", models.ValidationError{Field: "id", Reason: "bad"}, http.StatusBadRequest, "Validation failed"},
		{"not found", &models.NotFoundError{Entity: "todo", ID: "1"}, http.StatusNotFound, "Todo not found"},
		{"conflict", &models.ConflictError{Field: "username"}, http.StatusConflict, "Username already exists"},
		{"credentials", models.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
		{"inactive", models.ErrAccountInactive, http.StatusForbidden, "Account is deactivated"},
		{"internal", &models.InternalError{Op: "query", Err: errors.New("connection refused")}, http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(t)
			rec := httptest.NewRecorder()

			h.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["error"])
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestWriteError_LogsInternalErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := newHandler(t)
	h.Logger = zap.New(core)

	h.writeError(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/todos", nil), errors.New("boom"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "/api/todos", logs.All()[0].ContextMap()["path"])
}

func TestDecodeJSON(t *testing.T) {
	decode := func(body string) (models.TodoInput, error) {
		var in models.TodoInput
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := decodeJSON(httptest.NewRecorder(), req, &in)
		return in, err
	}

	in, err := decode(`{"title":"a","dueStatus":"overdue","id":"x"}`)
	require.NoError(t, err, "derived and unknown fields are ignored")
	assert.Equal(t, "a", in.Title)

	var verrs models.ValidationErrors
	_, err = decode(``)
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("body"))

	_, err = decode(`{"title": 5}`)
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("title"))
}

type fakeImages struct {
	objects map[string]bool
}

func (f *fakeImages) PresignUpload(_ context.Context, key, contentType string, _ time.Duration) (string, error) {
	return "https://upload.example.com/" + key + "?type=" + url.QueryEscape(contentType), nil
}

func (f *fakeImages) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (f *fakeImages) Exists(_ context.Context, key string) (bool, error) {
	return f.objects[key], nil
}

func ownerRequest(t *testing.T, id uuid.UUID, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.SetPathValue("id", id.String())
	return req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, id))
}

func TestProfileImageUpload(t *testing.T) {
	h := newHandler(t)
	images := &fakeImages{objects: map[string]bool{}}
	h.Images = images
	user, err := h.Users.Register(context.Background(), models.UserInput{Username: "kim", Email: "kim@example.com", Password: "abcdef"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.PresignProfileImage(rec, ownerRequest(t, user.ID, `{"contentType":"image/svg+xml"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.PresignProfileImage(rec, ownerRequest(t, user.ID, `{"contentType":"image/png"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var presigned struct {
		Data presignImageResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &presigned))
	key := presigned.Data.Key
	assert.True(t, strings.HasPrefix(key, profileImagePrefix(user.ID)))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.Equal(t, 900, presigned.Data.ExpiresIn)

	rec = httptest.NewRecorder()
	h.CompleteProfileImage(rec, ownerRequest(t, user.ID, `{"key":"`+key+`"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "nothing uploaded yet")

	rec = httptest.NewRecorder()
	h.CompleteProfileImage(rec, ownerRequest(t, user.ID, `{"key":"profile-images/someone-else/a.png"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	images.objects[key] = true
	rec = httptest.NewRecorder()
	h.CompleteProfileImage(rec, ownerRequest(t, user.ID, `{"key":"`+key+`"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := h.Users.FindByEmail(context.Background(), "kim@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.ProfileImage)
	assert.Equal(t, "https://cdn.example.com/"+key, *stored.ProfileImage)
}

func TestGoogleLogin_SetsStateCookie(t *testing.T) {
	h := newHandler(t)
	h.Google = &oauth2.Config{
		ClientID:    "client",
		RedirectURL: "http://localhost:5000/api/auth/google/callback",
		Endpoint:    oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: "https://accounts.example.com/token"},
	}

	rec := httptest.NewRecorder()
	h.HandleGoogleLogin(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil))

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, oauthStateCookie, cookies[0].Name)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.example.com", location.Host)
	assert.Equal(t, cookies[0].Value, location.Query().Get("state"))

	callback := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state=forged&code=x", nil)
	callback.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.HandleGoogleCallback(rec, callback)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRequest_Identifier(t *testing.T) {
	assert.Equal(t, "kim", loginRequest{Login: " kim "}.identifier())
	assert.Equal(t, "kim@example.com", loginRequest{Email: "kim@example.com"}.identifier())
	assert.Equal(t, "kim", loginRequest{Username: "kim", Email: "kim@example.com"}.identifier())
	assert.Empty(t, loginRequest{}.identifier())
}
