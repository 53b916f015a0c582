// Package router arma el router HTTP del servicio.
package router

import (
	"net/http"

	authctrl "github.com/dropDatabas3/littlejohn/internal/http/controllers/auth"
	httperrors "github.com/dropDatabas3/littlejohn/internal/http/errors"
	mw "github.com/dropDatabas3/littlejohn/internal/http/middlewares"
	svc "github.com/dropDatabas3/littlejohn/internal/http/services/auth"
	"github.com/go-chi/chi/v5"
)

// Deps contiene las dependencias del router.
type Deps struct {
	Auth svc.Service

	// CORSAllowedOrigins orígenes permitidos; vacío deshabilita CORS.
	CORSAllowedOrigins []string

	// Device resuelve la identidad de dispositivo. Default: User-Agent.
	Device mw.DeviceIdentityProvider
}

// New construye el router con la cadena de middlewares y todas las rutas.
func New(d Deps) http.Handler {
	device := d.Device
	if device == nil {
		device = mw.UserAgentProvider{}
	}

	r := chi.NewRouter()

	uc := authctrl.NewUserController(d.Auth)

	r.Route("/users", func(r chi.Router) {
		r.Post("/login", uc.Login)
		r.Get("/{id}", uc.GetUser)
		r.Delete("/{id}/logout", uc.Logout)
		// Las respuestas de enrolamiento llevan el secreto: nunca cacheables.
		r.With(mw.WithNoStore()).Get("/{id}/get_2fa_qr_code", uc.QRCode)
		r.With(mw.WithNoStore()).Post("/{id}/setup_2fa", uc.Setup2FA)
		r.Put("/{id}/verify_2fa", uc.Verify2FA)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// El orden importa: request id primero para que todo lo demás loguee con él.
	stack := []mw.Middleware{
		mw.WithRequestID(),
		mw.WithDevice(device),
		mw.WithLogging(),
		mw.WithRecover(),
		mw.WithSecurityHeaders(),
	}
	if len(d.CORSAllowedOrigins) > 0 {
		stack = append(stack, mw.WithCORS(d.CORSAllowedOrigins))
	}
	return mw.Chain(r, stack...)
}
