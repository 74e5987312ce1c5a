package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rohits-web03/todo-api/internal/api/services"
	"github.com/rohits-web03/todo-api/internal/metrics"
	"github.com/rohits-web03/todo-api/internal/models"
	"github.com/rohits-web03/todo-api/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const maxBodyBytes = 1 << 20

// ImageStore signs direct uploads of profile images.
type ImageStore interface {
	PresignUpload(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
	PublicURL(key string) string
	Exists(ctx context.Context, key string) (bool, error)
}

// Handler carries the dependencies shared by every route.
type Handler struct {
	Todos   *services.TodoService
	Users   *services.UserService
	Logger  *zap.Logger
	Metrics metrics.Recorder

	// Optional integrations; nil disables the routes that need them.
	Images ImageStore
	Google *oauth2.Config

	JWTSecret       string
	Environment     string
	FrontendBaseURL string
}

// decodeJSON reads a JSON object body. Unknown fields are ignored so clients
// may send back whole documents, derived fields included.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return models.ValidationErrors{{Field: "body", Reason: "request body is required"}}
		}
		var unmarshalErr *json.UnmarshalTypeError
		if errors.As(err, &unmarshalErr) && unmarshalErr.Field != "" {
			return models.ValidationErrors{{Field: unmarshalErr.Field, Reason: "has the wrong type"}}
		}
		return models.ValidationErrors{{Field: "body", Reason: "request body must be valid JSON"}}
	}
	return nil
}

func parseID(r *http.Request) (uuid.UUID, error) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, models.ValidationErrors{{Field: "id", Reason: "id must be a valid UUID"}}
	}
	return id, nil
}

// writeError maps the error taxonomy onto HTTP responses. Internal details
// are logged and never sent to the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verrs    models.ValidationErrors
		verr     models.ValidationError
		notFound *models.NotFoundError
		conflict *models.ConflictError
	)
	switch {
	case errors.As(err, &verrs):
		utils.JSONResponse(w, http.StatusBadRequest, utils.Payload{
			Success: false,
			Error:   "Validation failed",
			Details: verrs,
		})
	case errors.As(err, &verr):
		utils.JSONResponse(w, http.StatusBadRequest, utils.Payload{
			Success: false,
			Error:   "Validation failed",
			Details: models.ValidationErrors{verr},
		})
	case errors.As(err, &notFound):
		utils.JSONResponse(w, http.StatusNotFound, utils.Payload{
			Success: false,
			Error:   capitalize(notFound.Entity) + " not found",
		})
	case errors.As(err, &conflict):
		utils.JSONResponse(w, http.StatusConflict, utils.Payload{
			Success: false,
			Error:   capitalize(conflict.Error()),
			Details: map[string]string{"field": conflict.Field},
		})
	case errors.Is(err, models.ErrInvalidCredentials):
		utils.JSONResponse(w, http.StatusUnauthorized, utils.Payload{
			Success: false,
			Error:   "Invalid credentials",
		})
	case errors.Is(err, models.ErrAccountInactive):
		utils.JSONResponse(w, http.StatusForbidden, utils.Payload{
			Success: false,
			Error:   "Account is deactivated",
		})
	default:
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		utils.JSONResponse(w, http.StatusInternalServerError, utils.Payload{
			Success: false,
			Error:   "Internal server error",
		})
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
