// Package totp envuelve la capacidad TOTP (RFC 6238) que usa el orquestador:
// generación de secreto, otpauth:// para QR, verificación con ventana de reloj
// y anti-replay por contador. La matemática del código y el render del QR se
// delegan en github.com/pquerna/otp.
package totp

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	totplib "github.com/pquerna/otp/totp"
)

const (
	// Period tamaño del paso de tiempo en segundos.
	Period = 30
	// Digits cantidad de dígitos del código.
	Digits = 6
)

var validateOpts = totplib.ValidateOpts{
	Period:    Period,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// GenerateSecret retorna 20 bytes base32 sin padding (RFC 3548).
func GenerateSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// ProvisioningURI construye otpauth:// para QR.
// otpauth://totp/{issuer}:{account}?secret=...&issuer=...&algorithm=SHA1&digits=6&period=30
func ProvisioningURI(issuer, accountName, secretB32 string) string {
	label := url.PathEscape(fmt.Sprintf("%s:%s", issuer, accountName))
	q := url.Values{}
	q.Set("secret", secretB32)
	q.Set("issuer", issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", "6")
	q.Set("period", "30")
	return fmt.Sprintf("otpauth://totp/%s?%s", label, q.Encode())
}

// GenerateCode deriva el código de 6 dígitos para el instante t.
func GenerateCode(secretB32 string, t time.Time) (string, error) {
	return totplib.GenerateCodeCustom(secretB32, t, validateOpts)
}

// Verify valida un código TOTP en ventana +/- windowSteps.
// Evita replay: un contador <= lastCounterUsed nunca se acepta.
// Retorna el contador que matcheó para que el caller lo persista.
func Verify(secretB32, code string, t time.Time, windowSteps int, lastCounterUsed *int64) (ok bool, counter int64) {
	code = strings.TrimSpace(code)
	if len(code) != Digits {
		return false, 0
	}
	counter = t.Unix() / Period
	for c := counter - int64(windowSteps); c <= counter+int64(windowSteps); c++ {
		if lastCounterUsed != nil && c <= *lastCounterUsed {
			continue // anti-replay
		}
		expected, err := totplib.GenerateCodeCustom(secretB32, time.Unix(c*Period, 0).UTC(), validateOpts)
		if err != nil {
			return false, 0
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true, c
		}
	}
	return false, 0
}

// QRCodePNGDataURI renderiza el otpauth:// como PNG y lo retorna como data URI,
// listo para un <img src=...> del cliente.
func QRCodePNGDataURI(otpauthURL string, size int) (string, error) {
	key, err := otp.NewKeyFromURL(otpauthURL)
	if err != nil {
		return "", fmt.Errorf("totp: parse otpauth url: %w", err)
	}
	img, err := key.Image(size, size)
	if err != nil {
		return "", fmt.Errorf("totp: render qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("totp: encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
