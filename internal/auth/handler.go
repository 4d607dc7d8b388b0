package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/getsentry/sentry-go"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9]{3,50}$`)
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRegex    = regexp.MustCompile(`^[0-9]{10,15}$`)
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
	cookies *CookieCodec
}

func NewHandler(service *Service, cookies *CookieCodec) *Handler {
	return &Handler{service: service, cookies: cookies}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateProfileRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Username = strings.TrimSpace(body.Username)
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	body.Phone = strings.TrimSpace(body.Phone)
	body.Password = strings.TrimSpace(body.Password)

	if !usernameRegex.MatchString(body.Username) {
		writeError(w, http.StatusBadRequest, "username must be 3-50 letters and numbers")
		return
	}
	if !emailRegex.MatchString(body.Email) {
		writeError(w, http.StatusBadRequest, "invalid email format")
		return
	}
	if !phoneRegex.MatchString(body.Phone) {
		writeError(w, http.StatusBadRequest, "phone number must be 10-15 digits long")
		return
	}
	if msg, ok := checkPasswordPolicy(body.Password); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	user, pair, err := h.service.Register(r.Context(), RegisterInput{
		Username: body.Username,
		Email:    body.Email,
		Phone:    body.Phone,
		Password: body.Password,
	})
	if err != nil {
		h.writeServiceError(w, err, "failed to register")
		return
	}

	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "user registered successfully",
		"user":    user,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	body.Password = strings.TrimSpace(body.Password)
	if !emailRegex.MatchString(body.Email) {
		writeError(w, http.StatusBadRequest, "invalid email format")
		return
	}
	if len(body.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, pair, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.writeServiceError(w, err, "failed to login")
		return
	}

	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "logged in successfully",
		"user":    user,
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	presented, err := h.cookies.ReadRefresh(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	pair, err := h.service.Refresh(r.Context(), presented)
	if err != nil {
		h.writeServiceError(w, err, "failed to refresh token")
		return
	}

	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, map[string]string{"message": "token refresh success"})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized: Token missing")
		return
	}

	if err := h.service.Logout(r.Context(), identity.UserID); err != nil {
		h.writeServiceError(w, err, "failed to logout")
		return
	}

	h.cookies.ClearTokenPair(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out successfully"})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized: Token missing")
		return
	}

	if err := h.service.DeleteAccount(r.Context(), identity.UserID); err != nil {
		h.writeServiceError(w, err, "failed to delete account")
		return
	}

	h.cookies.ClearTokenPair(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized: Token missing")
		return
	}

	var body changePasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.OldPassword = strings.TrimSpace(body.OldPassword)
	body.NewPassword = strings.TrimSpace(body.NewPassword)
	if len(body.OldPassword) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if msg, ok := checkPasswordPolicy(body.NewPassword); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.service.ChangePassword(r.Context(), identity.UserID, body.OldPassword, body.NewPassword); err != nil {
		h.writeServiceError(w, err, "failed to change password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed successfully"})
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized: Token missing")
		return
	}

	var body updateProfileRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	update := ProfileUpdate{}
	if body.Username != nil {
		username := strings.TrimSpace(*body.Username)
		if !usernameRegex.MatchString(username) {
			writeError(w, http.StatusBadRequest, "username must be 3-50 letters and numbers")
			return
		}
		update.Username = &username
	}
	if body.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*body.Email))
		if !emailRegex.MatchString(email) {
			writeError(w, http.StatusBadRequest, "invalid email format")
			return
		}
		update.Email = &email
	}
	if body.Phone != nil {
		phone := strings.TrimSpace(*body.Phone)
		if !phoneRegex.MatchString(phone) {
			writeError(w, http.StatusBadRequest, "phone number must be 10-15 digits long")
			return
		}
		update.Phone = &phone
	}

	user, err := h.service.UpdateProfile(r.Context(), identity.UserID, update)
	if err != nil {
		h.writeServiceError(w, err, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "user updated successfully",
		"user":    user,
	})
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, pair TokenPair) {
	h.cookies.SetTokenPair(w, pair, h.service.Tokens().AccessTTL(), h.service.Tokens().RefreshTTL())
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrConflict):
		writeError(w, http.StatusConflict, ErrConflict.Error())
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
	case errors.Is(err, ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, ErrInvalidRefreshToken.Error())
	case errors.Is(err, ErrUserNotFound):
		writeError(w, http.StatusNotFound, ErrUserNotFound.Error())
	case errors.Is(err, ErrOldPasswordIncorrect):
		writeError(w, http.StatusBadRequest, ErrOldPasswordIncorrect.Error())
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func checkPasswordPolicy(password string) (string, bool) {
	if len(password) < 8 {
		return "password must be at least 8 characters", false
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return "password must contain upper and lower case letters, a number and a special character", false
	}

	return "", true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
