// Package auth contiene los DTOs del flujo de autenticación y 2FA.
package auth

// LoginRequest es el body de POST /users/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OTPRequest es el body de setup/verify de 2FA.
type OTPRequest struct {
	OTP string `json:"otp"`
}

// UserResponse es el perfil público del usuario, incluyendo el estado de su
// sesión en el dispositivo que hace el request.
// is_2fa_verified y last_login son null cuando no hay sesión para el dispositivo.
type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	Require2FA  bool   `json:"require_2fa"`
	Is2FAOK     *bool  `json:"is_2fa_verified"`
	LastLoginMs *int64 `json:"last_login"`
	Message     string `json:"message,omitempty"`
}

// Setup2FAResponse es la respuesta del alta de 2FA.
// A diferencia de UserResponse no incluye last_login.
type Setup2FAResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Require2FA bool   `json:"require_2fa"`
	Is2FAOK    bool   `json:"is_2fa_verified"`
	Message    string `json:"message"`
}

// LogoutResponse confirma el cierre de sesión.
type LogoutResponse struct {
	LoggedOut bool `json:"loggedOut"`
}

// QRCodeResponse entrega el QR de enrolamiento como data URI PNG.
type QRCodeResponse struct {
	QRCode string `json:"qrcode"`
}

// MessageResponse es una respuesta simple con mensaje de estado.
type MessageResponse struct {
	Message string `json:"message"`
}
