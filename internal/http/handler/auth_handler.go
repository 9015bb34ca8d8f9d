package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/sandeepkv93/device-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/device-auth-service/internal/http/response"
	"github.com/sandeepkv93/device-auth-service/internal/security"
	"github.com/sandeepkv93/device-auth-service/internal/service"
)

const maxUsernameLength = 50

type AuthHandler struct {
	auth   service.AuthServiceInterface
	logger *slog.Logger
}

func NewAuthHandler(auth service.AuthServiceInterface, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: auth, logger: logger}
}

type registerRequest struct {
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	PhoneNumber *string `json:"phone_number"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validateRegister(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	pair, err := h.auth.Register(r.Context(), service.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.writeError(w, r, "register", err)
		return
	}
	response.JSON(w, r, http.StatusCreated, toTokenResponse(pair))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Login) == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "login and password are required", nil)
		return
	}
	pair, err := h.auth.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}
	response.JSON(w, r, http.StatusOK, toTokenResponse(pair))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "refresh_token is required", nil)
		return
	}
	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, "refresh", err)
		return
	}
	response.JSON(w, r, http.StatusOK, toTokenResponse(pair))
}

// Logout answers ok for any well-formed request, whether or not the token
// matched a session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.auth.Logout(r.Context(), req.RefreshToken)
	response.JSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity", nil)
		return
	}
	n, err := h.auth.LogoutAll(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "logout_all", err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "revoked": n})
}

func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, service.ErrStorage) || !isAuthError(err) {
		h.logger.ErrorContext(r.Context(), "auth operation failed", "op", op, "error", err)
	}
	response.FromError(w, r, err)
}

func isAuthError(err error) bool {
	return errors.Is(err, service.ErrConflict) ||
		errors.Is(err, service.ErrInvalidCredentials) ||
		errors.Is(err, service.ErrInvalidRefreshToken) ||
		errors.Is(err, service.ErrInvalidToken) ||
		errors.Is(err, service.ErrTokenExpired)
}

func toTokenResponse(p *service.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(p.ExpiresIn.Seconds()),
	}
}

func validateRegister(req *registerRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case req.Username == "":
		return errors.New("username is required")
	case len(req.Username) > maxUsernameLength:
		return fmt.Errorf("username must be at most %d characters", maxUsernameLength)
	case req.Password == "":
		return errors.New("password is required")
	case len(req.Password) > security.MaxPasswordBytes:
		return fmt.Errorf("password must be at most %d bytes", security.MaxPasswordBytes)
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return errors.New("email is invalid")
	}
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return false
		}
		if errors.Is(err, io.EOF) {
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "request body is required", nil)
			return false
		}
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return false
	}
	return true
}
