package handler

import (
	"net/http"
	"time"

	"github.com/sandeepkv93/device-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/device-auth-service/internal/http/response"
	"github.com/sandeepkv93/device-auth-service/internal/service"
)

type UserHandler struct {
	auth     service.AuthServiceInterface
	sessions service.SessionServiceInterface
}

func NewUserHandler(auth service.AuthServiceInterface, sessions service.SessionServiceInterface) *UserHandler {
	return &UserHandler{auth: auth, sessions: sessions}
}

type meResponse struct {
	ID          uint      `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity", nil)
		return
	}
	user, err := h.auth.CurrentUser(r.Context(), userID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, meResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		PhoneNumber: user.PhoneNumber,
		CreatedAt:   user.CreatedAt,
	})
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity", nil)
		return
	}
	views, err := h.sessions.ListActive(r.Context(), userID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}
