package auth

import "errors"

// Errores del servicio de autenticación. El controller los mapea a HTTP.
var (
	// ErrUserNotFound el usuario no existe (por email o por ID).
	ErrUserNotFound = errors.New("auth: user not found")

	// ErrWrongPassword el password no coincide con el hash almacenado.
	ErrWrongPassword = errors.New("auth: wrong password")

	// ErrSecretNotFound el usuario todavía no tiene secreto TOTP.
	ErrSecretNotFound = errors.New("auth: totp secret not found")

	// ErrSessionNotFound no hay sesión para el par (usuario, dispositivo).
	ErrSessionNotFound = errors.New("auth: device session not found")

	// ErrOTPRequired el request no trajo código OTP.
	ErrOTPRequired = errors.New("auth: otp is required")

	// ErrOTPInvalid el código OTP no valida contra el secreto
	// (incluye códigos ya usados dentro de la misma ventana).
	ErrOTPInvalid = errors.New("auth: invalid otp")

	// ErrStoreFailed falla del storage subyacente.
	ErrStoreFailed = errors.New("auth: store operation failed")
)
