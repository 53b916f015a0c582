// Package auth contiene el controller de usuarios y 2FA.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	dto "github.com/dropDatabas3/littlejohn/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/littlejohn/internal/http/errors"
	"github.com/dropDatabas3/littlejohn/internal/http/middlewares"
	svc "github.com/dropDatabas3/littlejohn/internal/http/services/auth"
	"github.com/dropDatabas3/littlejohn/internal/observability/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxBodyBytes límite para los bodies JSON chicos de este controller.
const maxBodyBytes = 4 << 10

// UserController expone los endpoints de autenticación y 2FA.
type UserController struct {
	service svc.Service
}

// NewUserController crea el controller.
func NewUserController(s svc.Service) *UserController {
	return &UserController{service: s}
}

// Login maneja POST /users/login
func (c *UserController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("users.login"))

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("email and password required"))
		return
	}

	profile, err := c.service.Login(ctx, req.Email, req.Password, deviceID(ctx))
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse(profile))
}

// GetUser maneja GET /users/{id}
func (c *UserController) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("users.get"))

	userID := chi.URLParam(r, "id")
	if userID == "" {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("user id required"))
		return
	}

	profile, err := c.service.GetProfile(ctx, userID, deviceID(ctx))
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse(profile))
}

// Logout maneja DELETE /users/{id}/logout
func (c *UserController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("users.logout"))

	userID := chi.URLParam(r, "id")
	if userID == "" {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("user id required"))
		return
	}

	if err := c.service.Logout(ctx, userID, deviceID(ctx)); err != nil {
		c.handleServiceError(w, err, log)
		return
	}

	writeJSON(w, http.StatusOK, dto.LogoutResponse{LoggedOut: true})
}

// QRCode maneja GET /users/{id}/get_2fa_qr_code
func (c *UserController) QRCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("users.qr_code"))

	userID := chi.URLParam(r, "id")
	if userID == "" {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("user id required"))
		return
	}

	qr, err := c.service.QRCode(ctx, userID)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}

	writeJSON(w, http.StatusOK, dto.QRCodeResponse{QRCode: qr})
}

// Setup2FA maneja POST /users/{id}/setup_2fa
func (c *UserController) Setup2FA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("users.setup_2fa"))

	userID := chi.URLParam(r, "id")
	if userID == "" {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("user id required"))
		return
	}

	otp, ok := readOTP(w, r)
	if !ok {
		return
	}

	profile, err := c.service.ConfirmSetup(ctx, userID, deviceID(ctx), otp)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}

	verified := profile.Session != nil && profile.Session.Verified
	writeJSON(w, http.StatusOK, dto.Setup2FAResponse{
		ID:         profile.User.ID,
		Email:      profile.User.Email,
		Username:   profile.User.Username,
		Require2FA: profile.User.Requires2FA,
		Is2FAOK:    verified,
		Message:    profile.Message,
	})
}

// Verify2FA maneja PUT /users/{id}/verify_2fa
func (c *UserController) Verify2FA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("users.verify_2fa"))

	userID := chi.URLParam(r, "id")
	if userID == "" {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("user id required"))
		return
	}

	otp, ok := readOTP(w, r)
	if !ok {
		return
	}

	profile, err := c.service.VerifyCode(ctx, userID, deviceID(ctx), otp)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse(profile))
}

func (c *UserController) handleServiceError(w http.ResponseWriter, err error, log *zap.Logger) {
	switch err {
	case svc.ErrUserNotFound:
		httperrors.WriteError(w, httperrors.ErrUserNotFound)
	case svc.ErrWrongPassword:
		httperrors.WriteError(w, httperrors.ErrWrongPassword)
	case svc.ErrSecretNotFound:
		httperrors.WriteError(w, httperrors.ErrSecretNotFound)
	case svc.ErrSessionNotFound:
		httperrors.WriteError(w, httperrors.ErrSessionNotFound)
	case svc.ErrOTPRequired:
		httperrors.WriteError(w, httperrors.ErrOTPRequired)
	case svc.ErrOTPInvalid:
		httperrors.WriteError(w, httperrors.ErrOTPInvalid)
	case svc.ErrStoreFailed:
		log.Error("store error", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
	default:
		log.Error("unexpected error", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
	}
}

// ─── helpers ───

// deviceID toma la identidad de dispositivo resuelta por el middleware.
func deviceID(ctx context.Context) string {
	if id := middlewares.GetDeviceID(ctx); id != "" {
		return id
	}
	return "unknown"
}

// readOTP decodifica el body {otp}. Devuelve false si ya escribió el error.
func readOTP(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req dto.OTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return "", false
	}
	return req.OTP, true
}

// profileResponse proyecta Profile al contrato público.
// Los campos de sesión salen en null cuando no hay sesión para el dispositivo.
func profileResponse(p *svc.Profile) dto.UserResponse {
	resp := dto.UserResponse{
		ID:         p.User.ID,
		Email:      p.User.Email,
		Username:   p.User.Username,
		Require2FA: p.User.Requires2FA,
		Message:    p.Message,
	}
	if p.Session != nil {
		verified := p.Session.Verified
		lastLogin := p.Session.LastLoginAt.UnixMilli()
		resp.Is2FAOK = &verified
		resp.LastLoginMs = &lastLogin
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
