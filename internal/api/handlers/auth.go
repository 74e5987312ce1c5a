package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rohits-web03/todo-api/internal/api/middleware"
	"github.com/rohits-web03/todo-api/internal/api/services"
	"github.com/rohits-web03/todo-api/internal/models"
	"github.com/rohits-web03/todo-api/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	sessionTTL       = 24 * time.Hour
	oauthStateCookie = "oauth_state"
)

// JWT Claims struct
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type loginRequest struct {
	// Login is a username or an email address.
	Login    string `json:"login" example:"jane_doe"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password" example:"s3cret!"`
}

func (req loginRequest) identifier() string {
	for _, v := range []string{req.Login, req.Username, req.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// RegisterUser godoc
// @Summary Sign up
// @Tags Auth
// @Accept json
// @Produce json
// @Param user body models.UserInput true "New account"
// @Success 201 {object} utils.Payload{data=models.User}
// @Failure 400 {object} utils.Payload
// @Failure 409 {object} utils.Payload
// @Router /api/auth/sign-up [post]
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var input models.UserInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.Users.Register(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusCreated, utils.Payload{
		Success: true,
		Message: "User registered successfully",
		Data:    user,
	})
}

// LoginUser godoc
// @Summary Log in with username or email
// @Description Sets an HTTP-only session cookie.
// @Tags Auth
// @Accept json
// @Produce json
// @Param credentials body loginRequest true "Credentials"
// @Success 200 {object} utils.Payload{data=models.User}
// @Failure 401 {object} utils.Payload
// @Failure 403 {object} utils.Payload
// @Failure 429 {object} utils.Payload
// @Router /api/auth/login [post]
func (h *Handler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var input loginRequest
	if err := decodeJSON(w, r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.Users.Authenticate(r.Context(), input.identifier(), input.Password)
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		h.Metrics.RecordLogin("failure")
	case errors.Is(err, models.ErrAccountInactive):
		h.Metrics.RecordLogin("inactive")
	case err == nil:
		h.Metrics.RecordLogin("success")
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.startSession(w, user); err != nil {
		h.writeError(w, r, &models.InternalError{Op: "sign session", Err: err})
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Login successful",
		Data:    user,
	})
}

// Logout godoc
// @Summary Log out
// @Tags Auth
// @Produce json
// @Success 200 {object} utils.Payload
// @Router /api/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearSession(w)
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Logged out successfully",
	})
}

// Me godoc
// @Summary The session user with todo counts
// @Tags Auth
// @Produce json
// @Success 200 {object} utils.Payload{data=models.UserView}
// @Failure 401 {object} utils.Payload
// @Router /api/auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		utils.JSONResponse(w, http.StatusUnauthorized, utils.Payload{Success: false, Error: "Unauthorized"})
		return
	}
	user, err := h.Users.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Data: user})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

// VerifyEmail godoc
// @Summary Confirm an email address with the token issued at sign-up
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body verifyEmailRequest true "Verification token"
// @Success 200 {object} utils.Payload{data=models.User}
// @Failure 400 {object} utils.Payload
// @Router /api/auth/verify-email [post]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body verifyEmailRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.Users.VerifyEmail(r.Context(), body.Token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "Email verified", Data: user})
}

// HandleGoogleLogin godoc
// @Summary Start Google sign-in
// @Tags Auth
// @Success 307
// @Router /api/auth/google/login [get]
func (h *Handler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.Google == nil {
		utils.JSONResponse(w, http.StatusServiceUnavailable, utils.Payload{Success: false, Error: "Google sign-in is not configured"})
		return
	}

	state, err := GenerateState(map[string]string{"flow": "login"})
	if err != nil {
		h.writeError(w, r, &models.InternalError{Op: "generate oauth state", Err: err})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.isProd(),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.Google.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

type googleUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// HandleGoogleCallback godoc
// @Summary Finish Google sign-in
// @Description Only existing accounts can sign in with Google; they are matched by email.
// @Tags Auth
// @Success 307
// @Router /api/auth/google/callback [get]
func (h *Handler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.Google == nil {
		utils.JSONResponse(w, http.StatusServiceUnavailable, utils.Payload{Success: false, Error: "Google sign-in is not configured"})
		return
	}

	state := r.FormValue("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value != state {
		h.writeError(w, r, models.ValidationErrors{{Field: "state", Reason: "invalid OAuth state"}})
		return
	}
	if _, err := DecodeState(state); err != nil {
		h.writeError(w, r, models.ValidationErrors{{Field: "state", Reason: "invalid OAuth state"}})
		return
	}

	token, err := h.Google.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		h.Logger.Warn("google code exchange failed", zap.Error(err))
		h.redirectFrontend(w, r, "/login", "error", "google_exchange_failed")
		return
	}

	profile, err := h.fetchGoogleUser(r, token)
	if err != nil {
		h.writeError(w, r, &models.InternalError{Op: "google userinfo", Err: err})
		return
	}

	user, err := h.Users.FindByEmail(r.Context(), profile.Email)
	var notFound *models.NotFoundError
	switch {
	case errors.As(err, &notFound):
		h.redirectFrontend(w, r, "/register", "error", "user_not_found")
		return
	case err != nil:
		h.writeError(w, r, err)
		return
	case !user.IsActive:
		h.Metrics.RecordLogin("inactive")
		h.redirectFrontend(w, r, "/login", "error", "account_inactive")
		return
	}

	user, err = h.Users.RecordLogin(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.startSession(w, user); err != nil {
		h.writeError(w, r, &models.InternalError{Op: "sign session", Err: err})
		return
	}
	h.Metrics.RecordLogin("success")
	h.redirectFrontend(w, r, "/", "status", "success_login")
}

func (h *Handler) fetchGoogleUser(r *http.Request, token *oauth2.Token) (*googleUser, error) {
	client := h.Google.Client(r.Context(), token)
	resp, err := client.Get(services.GoogleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info: %w", err)
	}

	var profile googleUser
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	if profile.Email == "" {
		return nil, errors.New("google account has no email")
	}
	return &profile, nil
}

func (h *Handler) redirectFrontend(w http.ResponseWriter, r *http.Request, path, key, value string) {
	target := strings.TrimSuffix(h.FrontendBaseURL, "/") + path + "?" + url.Values{key: {value}}.Encode()
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// startSession signs a JWT for user and stores it in the session cookie.
func (h *Handler) startSession(w http.ResponseWriter, user *models.User) error {
	now := time.Now()
	expiration := now.Add(sessionTTL)
	claims := &Claims{
		UserID:   user.ID.String(),
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.JWTSecret))
	if err != nil {
		return err
	}

	// SameSite cookie policy
	sameSite := http.SameSiteLaxMode
	if h.isProd() {
		sameSite = http.SameSiteNoneMode
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    tokenString,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		Secure:   h.isProd(),
		HttpOnly: true,
		SameSite: sameSite,
	})
	return nil
}

func (h *Handler) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.isProd(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) isProd() bool {
	return h.Environment == "production"
}
