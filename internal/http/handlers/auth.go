package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/carechat/server/internal/auth"
	"github.com/carechat/server/internal/middleware"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sendOTPRequest struct {
	Email string `json:"email"`
	Type  int    `json:"type"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyAccountRequest struct {
	Email    string `json:"email"`
	OTP      string `json:"otp"`
	DeviceID string `json:"deviceId"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

type googleRequest struct {
	IDToken  string `json:"idToken"`
	DeviceID string `json:"deviceId"`
}

type logoutRequest struct {
	DeviceID string `json:"deviceId"`
}

type accountResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type sessionResponse struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	Account      accountResponse `json:"account"`
	Avatar       string          `json:"avatar"`
}

type googleSessionResponse struct {
	sessionResponse
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

func toAccountResponse(v auth.AccountView) accountResponse {
	return accountResponse{
		ID:        v.ID.String(),
		Email:     v.Email,
		Username:  v.Username,
		Role:      string(v.Role),
		CreatedAt: v.CreatedAt,
	}
}

func toSessionResponse(s *auth.Session) sessionResponse {
	return sessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Account:      toAccountResponse(s.Account),
		Avatar:       s.AvatarURL,
	}
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if err := firstError(
		validateEmail(req.Email),
		required(req.Username, "username"),
		required(req.Password, "password"),
	); err != nil {
		writeError(w, r, err)
		return
	}

	account, err := h.authService.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, "registered", toAccountResponse(*account))
}

// HandleLogin handles POST /auth/login (step 1)
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	if err := firstError(validateEmail(req.Email), required(req.Password, "password")); err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := h.authService.Login(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, "verification code sent, complete step 2", nil)
}

// HandleSendOTP handles POST /auth/send-otp. An omitted type resends the login code.
func (h *AuthHandler) HandleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	if err := validateEmail(req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Type == 0 {
		req.Type = int(auth.PurposeLoginStep2)
	}
	purpose, err := auth.ParseOtpPurpose(req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.authService.SendOTP(r.Context(), req.Email, purpose); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, "verification code sent", nil)
}

// HandleVerifyAccount handles POST /auth/verify-account (step 2)
func (h *AuthHandler) HandleVerifyAccount(w http.ResponseWriter, r *http.Request) {
	var req verifyAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	if err := firstError(
		validateEmail(req.Email),
		required(req.OTP, "otp"),
		required(req.DeviceID, "deviceId"),
	); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := h.authService.VerifyAccount(r.Context(), req.Email, req.OTP, req.DeviceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, "account verified", toSessionResponse(session))
}

// HandleForgotPassword handles POST /auth/forgot-password
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	if err := validateEmail(req.Email); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, "verification code sent", nil)
}

// HandleVerifyOTP handles POST /auth/verify-otp
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	if err := firstError(validateEmail(req.Email), required(req.OTP, "otp")); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.authService.VerifyOTP(r.Context(), req.Email, req.OTP); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, "code verified", nil)
}

// HandleResetPassword handles POST /auth/reset-password
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	if err := firstError(
		validateEmail(req.Email),
		required(req.OTP, "otp"),
		required(req.NewPassword, "newPassword"),
	); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, "password reset", nil)
}

// HandleChangePassword handles POST /auth/updated-password (protected)
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respondWithError(w, r, http.StatusUnauthorized, "token invalid")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := firstError(required(req.OldPassword, "oldPassword"), required(req.NewPassword, "newPassword")); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), principal.AccountID, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, "password changed", nil)
}

// HandleRefresh handles POST /auth/refresh-accessToken
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if err := firstError(required(req.RefreshToken, "refreshToken"), required(req.DeviceID, "deviceId")); err != nil {
		writeError(w, r, err)
		return
	}

	accessToken, err := h.authService.Refresh(r.Context(), req.RefreshToken, req.DeviceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, "token refreshed", refreshResponse{AccessToken: accessToken})
}

// HandleGoogle handles POST /auth/google
func (h *AuthHandler) HandleGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := firstError(required(req.IDToken, "idToken"), required(req.DeviceID, "deviceId")); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := h.authService.LoginWithGoogle(r.Context(), req.IDToken, req.DeviceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, "signed in with google", googleSessionResponse{
		sessionResponse: toSessionResponse(&session.Session),
		Name:            session.Name,
		Picture:         session.Picture,
	})
}

// HandleLogout handles POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := required(req.DeviceID, "deviceId"); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.authService.Logout(r.Context(), r.Header.Get("Authorization"), req.DeviceID); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, "logged out", nil)
}
