package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/littlejohn/internal/cache"
	"github.com/dropDatabas3/littlejohn/internal/domain/repository"
	"github.com/dropDatabas3/littlejohn/internal/security/password"
	"github.com/dropDatabas3/littlejohn/internal/security/totp"
	"github.com/dropDatabas3/littlejohn/internal/store/adapters/memory"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "hunter2"
	testDevice   = "test-agent/1.0"
)

// newTestService arma un servicio sobre store y cache en memoria,
// con un usuario ya creado.
func newTestService(t *testing.T, reverify bool) (Service, *memory.Conn, *repository.User) {
	t.Helper()

	conn := memory.New()
	c, err := cache.New(cache.Config{Kind: "memory", Prefix: "test", DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	hash, err := password.Hash(password.Default, testPassword)
	if err != nil {
		t.Fatalf("password.Hash: %v", err)
	}
	user, err := conn.Users().Create(context.Background(), repository.CreateUserInput{
		Email:        testEmail,
		Username:     "ada",
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	svc := New(Deps{
		Store:           conn,
		Cache:           c,
		Issuer:          "LittleJohn",
		Window:          1,
		QRSize:          256,
		ReverifyOnLogin: reverify,
	})
	return svc, conn, user
}

// currentCode deriva el código TOTP vigente del secreto del usuario.
func currentCode(t *testing.T, conn *memory.Conn, userID string) string {
	t.Helper()
	secret, err := conn.Secrets().GetByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetByUser: %v", err)
	}
	code, err := totp.GenerateCode(secret.Value, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	return code
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t, false)

	if _, err := svc.Login(context.Background(), "nobody@example.com", testPassword, testDevice); err != ErrUserNotFound {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newTestService(t, false)

	if _, err := svc.Login(context.Background(), testEmail, "nope", testDevice); err != ErrWrongPassword {
		t.Fatalf("err = %v, want ErrWrongPassword", err)
	}
}

func TestLoginCreatesUnverifiedSession(t *testing.T) {
	svc, _, user := newTestService(t, false)
	ctx := context.Background()

	p, err := svc.Login(ctx, testEmail, testPassword, testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if p.Session == nil {
		t.Fatal("Login should create a session")
	}
	if p.Session.Verified {
		t.Error("first session must start unverified")
	}
	if p.Session.UserID != user.ID || p.Session.DeviceID != testDevice {
		t.Errorf("session keyed to (%s, %s)", p.Session.UserID, p.Session.DeviceID)
	}

	// Login repetido reusa la fila y no toca verified.
	first := p.Session.ID
	p2, err := svc.Login(ctx, testEmail, testPassword, testDevice)
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if p2.Session.ID != first {
		t.Error("repeat login must reuse the existing session row")
	}
	if p2.Session.Verified {
		t.Error("repeat login must not change verified")
	}
}

func TestLoginNormalizesEmail(t *testing.T) {
	svc, _, _ := newTestService(t, false)

	if _, err := svc.Login(context.Background(), "  ADA@example.COM ", testPassword, testDevice); err != nil {
		t.Fatalf("Login with unnormalized email: %v", err)
	}
}

func TestGetProfileWithoutSession(t *testing.T) {
	svc, _, user := newTestService(t, false)

	p, err := svc.GetProfile(context.Background(), user.ID, testDevice)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.Session != nil {
		t.Error("profile without login must carry a nil session")
	}
	if p.User.Email != testEmail {
		t.Errorf("user email = %s", p.User.Email)
	}
}

func TestGetProfileUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t, false)

	if _, err := svc.GetProfile(context.Background(), "missing", testDevice); err != ErrUserNotFound {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestQRCodeCreatesSecretOnce(t *testing.T) {
	svc, conn, user := newTestService(t, false)
	ctx := context.Background()

	qr1, err := svc.QRCode(ctx, user.ID)
	if err != nil {
		t.Fatalf("first QRCode: %v", err)
	}
	if !strings.HasPrefix(qr1, "data:image/png;base64,") {
		t.Fatalf("qr is not a png data uri: %.40s", qr1)
	}

	secret1, err := conn.Secrets().GetByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("secret after first QRCode: %v", err)
	}

	qr2, err := svc.QRCode(ctx, user.ID)
	if err != nil {
		t.Fatalf("second QRCode: %v", err)
	}
	if qr2 != qr1 {
		t.Error("second QRCode must reuse the same payload")
	}

	secret2, err := conn.Secrets().GetByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("secret after second QRCode: %v", err)
	}
	if secret2.ID != secret1.ID || secret2.Value != secret1.Value {
		t.Error("second QRCode must not mint a new secret")
	}
}

func TestQRCodeUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t, false)

	if _, err := svc.QRCode(context.Background(), "missing"); err != ErrUserNotFound {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestConfirmSetupFlow(t *testing.T) {
	svc, conn, user := newTestService(t, false)
	ctx := context.Background()

	if _, err := svc.Login(ctx, testEmail, testPassword, testDevice); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.QRCode(ctx, user.ID); err != nil {
		t.Fatalf("QRCode: %v", err)
	}

	code := currentCode(t, conn, user.ID)
	p, err := svc.ConfirmSetup(ctx, user.ID, testDevice, code)
	if err != nil {
		t.Fatalf("ConfirmSetup: %v", err)
	}
	if !p.User.Requires2FA {
		t.Error("setup must flip requires_2fa")
	}
	if p.Session == nil || !p.Session.Verified {
		t.Error("setup must leave a verified session")
	}
	if p.Message != "2FA setup successfully!" {
		t.Errorf("message = %q", p.Message)
	}

	// El mismo código no puede aceptarse dos veces (replay).
	if _, err := svc.ConfirmSetup(ctx, user.ID, testDevice, code); err != ErrOTPInvalid {
		t.Fatalf("replayed code: err = %v, want ErrOTPInvalid", err)
	}

	// requires_2fa es monotónico: sigue en true en lecturas posteriores.
	got, err := conn.Users().GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.Requires2FA {
		t.Error("requires_2fa must stay true")
	}
}

func TestConfirmSetupCreatesSessionIfMissing(t *testing.T) {
	// Setup en un dispositivo que nunca hizo login: la sesión nace verificada.
	svc, conn, user := newTestService(t, false)
	ctx := context.Background()

	if _, err := svc.QRCode(ctx, user.ID); err != nil {
		t.Fatalf("QRCode: %v", err)
	}
	code := currentCode(t, conn, user.ID)

	p, err := svc.ConfirmSetup(ctx, user.ID, "fresh-device", code)
	if err != nil {
		t.Fatalf("ConfirmSetup: %v", err)
	}
	if p.Session == nil || !p.Session.Verified {
		t.Error("setup on a fresh device must create a verified session")
	}
}

func TestConfirmSetupWithoutSecret(t *testing.T) {
	svc, _, user := newTestService(t, false)

	if _, err := svc.ConfirmSetup(context.Background(), user.ID, testDevice, "123456"); err != ErrSecretNotFound {
		t.Fatalf("err = %v, want ErrSecretNotFound", err)
	}
}

func TestConfirmSetupRequiresOTP(t *testing.T) {
	svc, _, user := newTestService(t, false)
	ctx := context.Background()

	if _, err := svc.QRCode(ctx, user.ID); err != nil {
		t.Fatalf("QRCode: %v", err)
	}
	if _, err := svc.ConfirmSetup(ctx, user.ID, testDevice, "   "); err != ErrOTPRequired {
		t.Fatalf("err = %v, want ErrOTPRequired", err)
	}
}

func TestVerifyCodePromotesSession(t *testing.T) {
	svc, conn, user := newTestService(t, false)
	ctx := context.Background()

	if _, err := svc.Login(ctx, testEmail, testPassword, testDevice); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.QRCode(ctx, user.ID); err != nil {
		t.Fatalf("QRCode: %v", err)
	}

	code := currentCode(t, conn, user.ID)
	p, err := svc.VerifyCode(ctx, user.ID, testDevice, code)
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if p.Session == nil || !p.Session.Verified {
		t.Error("verify must promote the session")
	}
	if p.Message != "2FA verified successfully!" {
		t.Errorf("message = %q", p.Message)
	}
}

func TestVerifyCodeWithoutSession(t *testing.T) {
	svc, conn, user := newTestService(t, false)
	ctx := context.Background()

	if _, err := svc.QRCode(ctx, user.ID); err != nil {
		t.Fatalf("QRCode: %v", err)
	}
	code := currentCode(t, conn, user.ID)

	if _, err := svc.VerifyCode(ctx, user.ID, "never-logged-in", code); err != ErrSessionNotFound {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestVerifyCodeFailureKeepsCodeUsable(t *testing.T) {
	svc, conn, user := newTestService(t, false)
	ctx := context.Background()

	if _, err := svc.QRCode(ctx, user.ID); err != nil {
		t.Fatalf("QRCode: %v", err)
	}
	code := currentCode(t, conn, user.ID)

	// Código válido desde un dispositivo sin sesión: falla, pero no debe
	// consumir el contador anti-replay.
	if _, err := svc.VerifyCode(ctx, user.ID, "never-logged-in", code); err != ErrSessionNotFound {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}

	if _, err := svc.Login(ctx, testEmail, testPassword, testDevice); err != nil {
		t.Fatalf("Login: %v", err)
	}
	p, err := svc.VerifyCode(ctx, user.ID, testDevice, code)
	if err != nil {
		t.Fatalf("retry with the same code: %v", err)
	}
	if p.Session == nil || !p.Session.Verified {
		t.Error("retry must promote the session")
	}

	// Tras el éxito sí queda consumido.
	if _, err := svc.VerifyCode(ctx, user.ID, testDevice, code); err != ErrOTPInvalid {
		t.Fatalf("replay after success: err = %v, want ErrOTPInvalid", err)
	}
}

func TestVerifyCodeWrongSecret(t *testing.T) {
	svc, _, user := newTestService(t, false)
	ctx := context.Background()

	if _, err := svc.Login(ctx, testEmail, testPassword, testDevice); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.QRCode(ctx, user.ID); err != nil {
		t.Fatalf("QRCode: %v", err)
	}

	// Código derivado de otro secreto: nunca debe validar.
	other, err := totp.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	code, err := totp.GenerateCode(other, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if _, err := svc.VerifyCode(ctx, user.ID, testDevice, code); err != ErrOTPInvalid {
		t.Fatalf("err = %v, want ErrOTPInvalid", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	svc, conn, user := newTestService(t, false)
	ctx := context.Background()

	if _, err := svc.Login(ctx, testEmail, testPassword, testDevice); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Logout(ctx, user.ID, testDevice); err != nil {
		t.Fatalf("first Logout: %v", err)
	}
	if _, err := conn.Sessions().Get(ctx, user.ID, testDevice); !repository.IsNotFound(err) {
		t.Fatalf("session should be gone, got %v", err)
	}

	// Segundo logout sin sesión también es éxito.
	if err := svc.Logout(ctx, user.ID, testDevice); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
}

func TestLogoutUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t, false)

	if err := svc.Logout(context.Background(), "missing", testDevice); err != ErrUserNotFound {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestReverifyOnLoginResetsSession(t *testing.T) {
	svc, conn, user := newTestService(t, true)
	ctx := context.Background()

	if _, err := svc.Login(ctx, testEmail, testPassword, testDevice); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.QRCode(ctx, user.ID); err != nil {
		t.Fatalf("QRCode: %v", err)
	}
	code := currentCode(t, conn, user.ID)
	if _, err := svc.ConfirmSetup(ctx, user.ID, testDevice, code); err != nil {
		t.Fatalf("ConfirmSetup: %v", err)
	}

	// Con la política activa, el próximo login recrea la sesión sin verificar.
	p, err := svc.Login(ctx, testEmail, testPassword, testDevice)
	if err != nil {
		t.Fatalf("re-login: %v", err)
	}
	if p.Session.Verified {
		t.Error("reverify policy must reset verified on login")
	}
}
