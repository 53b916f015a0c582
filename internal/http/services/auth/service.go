// Package auth implementa el orquestador de autenticación y 2FA.
//
// Toda transición de estado de una sesión (NoSession -> Unverified -> Verified)
// pasa por acá. El servicio es stateless: el estado vive en los stores y el
// orquestador solo coordina lecturas/escrituras a través de los repositorios.
package auth

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/littlejohn/internal/cache"
	"github.com/dropDatabas3/littlejohn/internal/domain/repository"
	"github.com/dropDatabas3/littlejohn/internal/metrics"
	"github.com/dropDatabas3/littlejohn/internal/observability/logger"
	"github.com/dropDatabas3/littlejohn/internal/security/totp"
	"github.com/dropDatabas3/littlejohn/internal/store"
	"go.uber.org/zap"
)

// TTLs de cache. El QR es derivable del secreto (inmutable), así que es
// cacheable; el contador anti-replay solo necesita sobrevivir la ventana.
const (
	qrCacheTTL     = time.Hour
	replayCacheTTL = 10 * totp.Period * time.Second
)

// Profile es el resultado de las operaciones que proyectan usuario + sesión.
// Session es nil cuando no existe sesión para el dispositivo.
type Profile struct {
	User    *repository.User
	Session *repository.DeviceSession
	Message string
}

// Service define las operaciones del orquestador.
type Service interface {
	// Login autentica email+password y garantiza una sesión para el dispositivo.
	Login(ctx context.Context, email, password, deviceID string) (*Profile, error)

	// GetProfile retorna el perfil del usuario con el estado de sesión del
	// dispositivo. Solo lectura: nunca avanza la máquina de estados.
	GetProfile(ctx context.Context, userID, deviceID string) (*Profile, error)

	// Logout elimina la sesión del dispositivo. Idempotente.
	Logout(ctx context.Context, userID, deviceID string) error

	// QRCode retorna el QR de provisioning como data URI PNG,
	// creando el secreto TOTP del usuario si todavía no existe.
	QRCode(ctx context.Context, userID string) (string, error)

	// ConfirmSetup valida el primer OTP, marca requires_2fa en el usuario y
	// deja la sesión del dispositivo en Verified.
	ConfirmSetup(ctx context.Context, userID, deviceID, otp string) (*Profile, error)

	// VerifyCode valida un OTP y promueve la sesión existente a Verified.
	VerifyCode(ctx context.Context, userID, deviceID, otp string) (*Profile, error)
}

// Deps agrupa las dependencias del servicio.
type Deps struct {
	Store store.Connection
	Cache cache.Client

	// Issuer del otpauth:// en el QR de provisioning.
	Issuer string
	// Window tolerancia de ventana TOTP en pasos (0..3).
	Window int
	// QRSize lado del PNG del QR en pixels.
	QRSize int

	// ReverifyOnLogin fuerza re-verificación 2FA en cada login nuevo:
	// un login sobre una sesión existente la recrea como Unverified en
	// lugar de refrescar el timestamp.
	ReverifyOnLogin bool
}

type service struct {
	d Deps
}

// New crea el servicio de autenticación.
func New(d Deps) Service {
	return &service{d: d}
}

// Login autentica y hace find-or-create de la sesión del dispositivo.
func (s *service) Login(ctx context.Context, email, password, deviceID string) (*Profile, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("auth.login"))

	user, err := s.d.Store.Users().GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if repository.IsNotFound(err) {
			metrics.LoginAttempts.WithLabelValues("user_not_found").Inc()
			return nil, ErrUserNotFound
		}
		log.Error("user lookup failed", logger.Err(err))
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, ErrStoreFailed
	}

	if !s.d.Store.Users().CheckPassword(user.PasswordHash, password) {
		metrics.LoginAttempts.WithLabelValues("wrong_password").Inc()
		return nil, ErrWrongPassword
	}

	sess, err := s.ensureSession(ctx, user, deviceID)
	if err != nil {
		log.Error("session ensure failed", logger.Err(err), logger.UserID(user.ID))
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, ErrStoreFailed
	}

	metrics.LoginAttempts.WithLabelValues("ok").Inc()
	log.Info("login ok", logger.UserID(user.ID), logger.DeviceID(deviceID))
	return &Profile{User: user, Session: sess}, nil
}

// ensureSession resuelve la sesión del par (user, device) en el login.
//
// Sin política de re-verificación: si existe, refresca last_login; si no,
// la crea como Unverified. Con ReverifyOnLogin, una sesión existente se
// elimina y recrea: verified solo vuelve a false por borrado de fila, nunca
// por un update in-place.
func (s *service) ensureSession(ctx context.Context, user *repository.User, deviceID string) (*repository.DeviceSession, error) {
	sessions := s.d.Store.Sessions()

	_, err := sessions.Get(ctx, user.ID, deviceID)
	switch {
	case err == nil:
		if !s.d.ReverifyOnLogin {
			return sessions.TouchLogin(ctx, user.ID, deviceID)
		}
		if _, err := sessions.Delete(ctx, user.ID, deviceID); err != nil {
			return nil, err
		}
	case repository.IsNotFound(err):
		// sigue a crear
	default:
		return nil, err
	}

	created, err := sessions.Create(ctx, user.ID, deviceID)
	if err == nil {
		metrics.SessionsCreated.Inc()
		return created, nil
	}
	if repository.IsConflict(err) {
		// Otro login para el mismo par ganó la carrera: su fila sirve igual.
		return sessions.Get(ctx, user.ID, deviceID)
	}
	return nil, err
}

func (s *service) GetProfile(ctx context.Context, userID, deviceID string) (*Profile, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("auth.get_profile"))

	user, err := s.d.Store.Users().GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		log.Error("user lookup failed", logger.Err(err))
		return nil, ErrStoreFailed
	}

	sess, err := s.d.Store.Sessions().Get(ctx, userID, deviceID)
	if err != nil {
		if !repository.IsNotFound(err) {
			log.Error("session lookup failed", logger.Err(err), logger.UserID(userID))
			return nil, ErrStoreFailed
		}
		sess = nil // sin sesión: el perfil sale con campos de sesión en null
	}

	return &Profile{User: user, Session: sess}, nil
}

func (s *service) Logout(ctx context.Context, userID, deviceID string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("auth.logout"))

	if _, err := s.d.Store.Users().GetByID(ctx, userID); err != nil {
		if repository.IsNotFound(err) {
			return ErrUserNotFound
		}
		log.Error("user lookup failed", logger.Err(err))
		return ErrStoreFailed
	}

	deleted, err := s.d.Store.Sessions().Delete(ctx, userID, deviceID)
	if err != nil {
		log.Error("session delete failed", logger.Err(err), logger.UserID(userID))
		return ErrStoreFailed
	}
	if deleted {
		metrics.SessionsDeleted.Inc()
		log.Info("logout ok", logger.UserID(userID), logger.DeviceID(deviceID))
	}
	// Sin sesión también es éxito: logout es idempotente.
	return nil
}

// QRCode crea el secreto TOTP en el primer acceso y lo reusa después.
func (s *service) QRCode(ctx context.Context, userID string) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("auth.qr_code"))

	user, err := s.d.Store.Users().GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", ErrUserNotFound
		}
		log.Error("user lookup failed", logger.Err(err))
		return "", ErrStoreFailed
	}

	// El QR es una función pura del secreto, que es inmutable.
	cacheKey := "qr:user:" + user.ID
	if cached, err := s.d.Cache.Get(ctx, cacheKey); err == nil && cached != "" {
		return cached, nil
	}

	secret, err := s.ensureSecret(ctx, user.ID)
	if err != nil {
		log.Error("secret ensure failed", logger.Err(err), logger.UserID(user.ID))
		return "", ErrStoreFailed
	}

	uri := totp.ProvisioningURI(s.d.Issuer, user.Username, secret.Value)
	dataURI, err := totp.QRCodePNGDataURI(uri, s.d.QRSize)
	if err != nil {
		log.Error("qr render failed", logger.Err(err), logger.UserID(user.ID))
		return "", ErrStoreFailed
	}

	if err := s.d.Cache.Set(ctx, cacheKey, dataURI, qrCacheTTL); err != nil {
		// Cache degradada no bloquea la emisión del QR.
		log.Warn("qr cache set failed", logger.Err(err))
	}

	metrics.QRCodesIssued.Inc()
	return dataURI, nil
}

// ensureSecret hace find-or-create del secreto TOTP de un usuario.
// La unicidad la garantiza el store; ante Conflict se relee el ganador.
func (s *service) ensureSecret(ctx context.Context, userID string) (*repository.TOTPSecret, error) {
	secrets := s.d.Store.Secrets()

	secret, err := secrets.GetByUser(ctx, userID)
	if err == nil {
		return secret, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}

	value, err := totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	created, err := secrets.Create(ctx, userID, value)
	if err == nil {
		return created, nil
	}
	if repository.IsConflict(err) {
		return secrets.GetByUser(ctx, userID)
	}
	return nil, err
}

// ConfirmSetup valida el primer OTP del usuario y activa 2FA.
//
// Orden de escrituras: primero requires_2fa en el usuario, después la sesión.
// Cada paso es idempotente por sí mismo; no hay rollback si el segundo falla.
func (s *service) ConfirmSetup(ctx context.Context, userID, deviceID, otp string) (*Profile, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("auth.confirm_setup"))

	user, secret, err := s.userAndSecret(ctx, userID, log)
	if err != nil {
		return nil, err
	}

	counter, err := s.checkOTP(ctx, "setup", user.ID, secret.Value, otp)
	if err != nil {
		return nil, err
	}

	user, err = s.d.Store.Users().SetRequires2FA(ctx, user.ID)
	if err != nil {
		log.Error("set requires_2fa failed", logger.Err(err), logger.UserID(userID))
		return nil, ErrStoreFailed
	}

	sess, err := s.verifiedSession(ctx, user.ID, deviceID)
	if err != nil {
		log.Error("session verify failed", logger.Err(err), logger.UserID(userID))
		return nil, ErrStoreFailed
	}

	s.commitOTPCounter(ctx, user.ID, counter, log)
	log.Info("2fa setup complete", logger.UserID(user.ID), logger.DeviceID(deviceID))
	return &Profile{User: user, Session: sess, Message: "2FA setup successfully!"}, nil
}

// verifiedSession deja la sesión del par en Verified, creándola si no existe.
func (s *service) verifiedSession(ctx context.Context, userID, deviceID string) (*repository.DeviceSession, error) {
	sessions := s.d.Store.Sessions()

	sess, err := sessions.MarkVerified(ctx, userID, deviceID)
	if err == nil {
		return sess, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}

	if _, err := sessions.Create(ctx, userID, deviceID); err != nil && !repository.IsConflict(err) {
		return nil, err
	} else if err == nil {
		metrics.SessionsCreated.Inc()
	}
	return sessions.MarkVerified(ctx, userID, deviceID)
}

// VerifyCode promueve una sesión existente a Verified.
func (s *service) VerifyCode(ctx context.Context, userID, deviceID, otp string) (*Profile, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("auth.verify_code"))

	user, secret, err := s.userAndSecret(ctx, userID, log)
	if err != nil {
		return nil, err
	}

	counter, err := s.checkOTP(ctx, "verify", user.ID, secret.Value, otp)
	if err != nil {
		return nil, err
	}

	sess, err := s.d.Store.Sessions().MarkVerified(ctx, user.ID, deviceID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		log.Error("session verify failed", logger.Err(err), logger.UserID(userID))
		return nil, ErrStoreFailed
	}

	s.commitOTPCounter(ctx, user.ID, counter, log)
	log.Info("2fa verified", logger.UserID(user.ID), logger.DeviceID(deviceID))
	return &Profile{User: user, Session: sess, Message: "2FA verified successfully!"}, nil
}

// userAndSecret resuelve usuario y su secreto TOTP, con los NotFound tipados.
func (s *service) userAndSecret(ctx context.Context, userID string, log *zap.Logger) (*repository.User, *repository.TOTPSecret, error) {
	user, err := s.d.Store.Users().GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, ErrUserNotFound
		}
		log.Error("user lookup failed", logger.Err(err))
		return nil, nil, ErrStoreFailed
	}

	secret, err := s.d.Store.Secrets().GetByUser(ctx, user.ID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, ErrSecretNotFound
		}
		log.Error("secret lookup failed", logger.Err(err), logger.UserID(userID))
		return nil, nil, ErrStoreFailed
	}
	return user, secret, nil
}

// checkOTP valida el código contra el secreto con ventana de tolerancia y
// guarda anti-replay: un contador ya consumido no puede volver a aceptarse.
// No consume el contador: retorna el aceptado para que el caller lo marque
// con commitOTPCounter recién cuando la operación completa tuvo éxito. Un
// código válido que falla más adelante (sesión inexistente, error de store)
// sigue siendo usable en un reintento.
func (s *service) checkOTP(ctx context.Context, op, userID, secretValue, otp string) (int64, error) {
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return 0, ErrOTPRequired
	}

	var lastCounter *int64
	if raw, err := s.d.Cache.Get(ctx, replayKey(userID)); err == nil {
		if n, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			lastCounter = &n
		}
	}

	ok, counter := totp.Verify(secretValue, otp, time.Now(), s.d.Window, lastCounter)
	if !ok {
		result := "invalid"
		if lastCounter != nil {
			// Si sin el guard el código valida, el rechazo fue por replay.
			if replayed, _ := totp.Verify(secretValue, otp, time.Now(), s.d.Window, nil); replayed {
				result = "replay"
			}
		}
		metrics.OTPChecks.WithLabelValues(op, result).Inc()
		return 0, ErrOTPInvalid
	}

	metrics.OTPChecks.WithLabelValues(op, "ok").Inc()
	return counter, nil
}

// commitOTPCounter marca el contador como consumido.
func (s *service) commitOTPCounter(ctx context.Context, userID string, counter int64, log *zap.Logger) {
	if err := s.d.Cache.Set(ctx, replayKey(userID), strconv.FormatInt(counter, 10), replayCacheTTL); err != nil {
		// Perder el guard degrada el anti-replay, no la validación en sí.
		log.Warn("replay counter set failed", logger.Err(err), logger.UserID(userID))
	}
}

func replayKey(userID string) string { return "totp:last:" + userID }
