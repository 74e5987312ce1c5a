package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rohits-web03/todo-api/internal/api/middleware"
	"github.com/rohits-web03/todo-api/internal/models"
	"github.com/rohits-web03/todo-api/internal/repositories"
	"github.com/rohits-web03/todo-api/internal/utils"
)

const profileImageURLExpiry = 15 * time.Minute

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// CreateUser godoc
// @Summary Create a user
// @Tags Users
// @Accept json
// @Produce json
// @Param user body models.UserInput true "User"
// @Success 201 {object} utils.Payload{data=models.User}
// @Failure 400 {object} utils.Payload
// @Failure 409 {object} utils.Payload
// @Router /api/users [post]
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
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
		Message: "User created",
		Data:    user,
	})
}

// ListUsers godoc
// @Summary List users
// @Tags Users
// @Produce json
// @Param isActive query bool false "Filter by active flag"
// @Param sort query string false "createdAt, username or lastLogin, prefix with - for descending"
// @Success 200 {object} utils.Payload{data=[]models.User}
// @Router /api/users [get]
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	var filter repositories.UserFilter
	if raw := r.URL.Query().Get("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, models.ValidationErrors{{Field: "isActive", Reason: "isActive must be true or false"}})
			return
		}
		filter.IsActive = &active
	}
	sort, err := repositories.ParseUserSort(r.URL.Query().Get("sort"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	users, err := h.Users.List(r.Context(), filter, sort)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeUsers(w, users)
}

// ActiveUsers godoc
// @Summary List active users
// @Tags Users
// @Produce json
// @Success 200 {object} utils.Payload{data=[]models.User}
// @Router /api/users/active [get]
func (h *Handler) ActiveUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.FindActive(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeUsers(w, users)
}

// GetUser godoc
// @Summary Get a user with todo counts
// @Tags Users
// @Produce json
// @Param id path string true "User id"
// @Success 200 {object} utils.Payload{data=models.UserView}
// @Failure 404 {object} utils.Payload
// @Router /api/users/{id} [get]
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.Users.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Data: user})
}

// UpdateUser godoc
// @Summary Update the profile of the session user
// @Description Only name, profileImage and preferences can change here.
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User id"
// @Param profile body models.UserInput false "Profile fields"
// @Success 200 {object} utils.Payload{data=models.User}
// @Failure 400 {object} utils.Payload
// @Failure 403 {object} utils.Payload
// @Router /api/users/{id} [patch]
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	var patch models.ProfilePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.Users.UpdateProfile(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "Profile updated", Data: user})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword godoc
// @Summary Change the password of the session user
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User id"
// @Param body body changePasswordRequest true "Current and new password"
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Router /api/users/{id}/password [patch]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	var body changePasswordRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Users.ChangePassword(r.Context(), id, body.CurrentPassword, body.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "Password changed"})
}

// ActivateUser godoc
// @Summary Reactivate the session user
// @Tags Users
// @Produce json
// @Param id path string true "User id"
// @Success 200 {object} utils.Payload{data=models.User}
// @Router /api/users/{id}/activate [patch]
func (h *Handler) ActivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	user, err := h.Users.Activate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "User activated", Data: user})
}

// DeactivateUser godoc
// @Summary Deactivate the session user
// @Tags Users
// @Produce json
// @Param id path string true "User id"
// @Success 200 {object} utils.Payload{data=models.User}
// @Router /api/users/{id}/deactivate [patch]
func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	user, err := h.Users.Deactivate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "User deactivated", Data: user})
}

// DeleteUser godoc
// @Summary Delete the session user
// @Tags Users
// @Produce json
// @Param id path string true "User id"
// @Success 200 {object} utils.Payload
// @Router /api/users/{id} [delete]
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	if err := h.Users.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.clearSession(w)
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "User deleted"})
}

type presignImageRequest struct {
	ContentType string `json:"contentType" example:"image/png"`
}

type presignImageResponse struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
	PublicURL string `json:"publicUrl"`
	ExpiresIn int    `json:"expiresIn"`
}

// PresignProfileImage godoc
// @Summary Get a presigned URL to upload a profile image
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User id"
// @Param body body presignImageRequest true "Image content type"
// @Success 200 {object} utils.Payload{data=presignImageResponse}
// @Failure 503 {object} utils.Payload
// @Router /api/users/{id}/profile-image/presign [post]
func (h *Handler) PresignProfileImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	if !h.imagesEnabled(w) {
		return
	}
	var body presignImageRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	ext, ok := allowedImageTypes[body.ContentType]
	if !ok {
		h.writeError(w, r, models.ValidationErrors{{Field: "contentType", Reason: "contentType must be a jpeg, png, webp or gif image"}})
		return
	}

	key := fmt.Sprintf("%s%s", profileImagePrefix(id), uuid.NewString()+ext)
	url, err := h.Images.PresignUpload(r.Context(), key, body.ContentType, profileImageURLExpiry)
	if err != nil {
		h.writeError(w, r, &models.InternalError{Op: "presign upload", Err: err})
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Data: presignImageResponse{
			UploadURL: url,
			Key:       key,
			PublicURL: h.Images.PublicURL(key),
			ExpiresIn: int(profileImageURLExpiry.Seconds()),
		},
	})
}

type completeImageRequest struct {
	Key string `json:"key"`
}

// CompleteProfileImage godoc
// @Summary Attach an uploaded image as the profile image
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User id"
// @Param body body completeImageRequest true "Object key returned by presign"
// @Success 200 {object} utils.Payload{data=models.User}
// @Failure 400 {object} utils.Payload
// @Router /api/users/{id}/profile-image/complete [post]
func (h *Handler) CompleteProfileImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	if !h.imagesEnabled(w) {
		return
	}
	var body completeImageRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if !strings.HasPrefix(body.Key, profileImagePrefix(id)) {
		h.writeError(w, r, models.ValidationErrors{{Field: "key", Reason: "key does not belong to this user"}})
		return
	}
	exists, err := h.Images.Exists(r.Context(), body.Key)
	if err != nil {
		h.writeError(w, r, &models.InternalError{Op: "check upload", Err: err})
		return
	}
	if !exists {
		h.writeError(w, r, models.ValidationErrors{{Field: "key", Reason: "no uploaded object under this key"}})
		return
	}

	patch := models.ProfilePatch{ProfileImage: models.Some(h.Images.PublicURL(body.Key))}
	user, err := h.Users.UpdateProfile(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "Profile image updated", Data: user})
}

func profileImagePrefix(id uuid.UUID) string {
	return "profile-images/" + id.String() + "/"
}

func (h *Handler) imagesEnabled(w http.ResponseWriter) bool {
	if h.Images == nil {
		utils.JSONResponse(w, http.StatusServiceUnavailable, utils.Payload{
			Success: false,
			Error:   "Image uploads are not configured",
		})
		return false
	}
	return true
}

// ownerID parses the path id and checks it is the session user.
func (h *Handler) ownerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, r, err)
		return uuid.Nil, false
	}
	session, ok := middleware.UserIDFromContext(r.Context())
	if !ok || session != id {
		utils.JSONResponse(w, http.StatusForbidden, utils.Payload{
			Success: false,
			Error:   "Forbidden",
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeUsers(w http.ResponseWriter, users []models.User) {
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Data:    users,
		Count:   utils.CountOf(len(users)),
	})
}
