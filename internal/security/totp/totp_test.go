package totp

import (
	"strings"
	"testing"
	"time"
)

// instante fijo para que los tests no dependan del reloj
var at = time.Unix(1_700_000_010, 0).UTC()

func mustSecret(t *testing.T) string {
	t.Helper()
	s, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	return s
}

func TestGenerateSecret_Base32NoPadding(t *testing.T) {
	s := mustSecret(t)
	if len(s) != 32 { // 20 bytes -> 32 chars base32 sin padding
		t.Errorf("len: got %d (%q)", len(s), s)
	}
	if strings.Contains(s, "=") {
		t.Errorf("unexpected padding in %q", s)
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	s := mustSecret(t)
	code, err := GenerateCode(s, at)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	ok, counter := Verify(s, code, at, 1, nil)
	if !ok {
		t.Fatal("expected code to verify")
	}
	if counter != at.Unix()/Period {
		t.Errorf("counter: got %d want %d", counter, at.Unix()/Period)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	s1 := mustSecret(t)
	s2 := mustSecret(t)
	code, err := GenerateCode(s1, at)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := Verify(s2, code, at, 1, nil); ok {
		t.Fatal("code from another secret must not verify")
	}
}

func TestVerify_ClockSkew(t *testing.T) {
	s := mustSecret(t)

	// paso adyacente (+/-30s): aceptado con window 1
	for _, offset := range []time.Duration{-Period * time.Second, Period * time.Second} {
		code, err := GenerateCode(s, at.Add(offset))
		if err != nil {
			t.Fatal(err)
		}
		if ok, _ := Verify(s, code, at, 1, nil); !ok {
			t.Errorf("offset %v: expected accept", offset)
		}
	}

	// dos pasos: rechazado
	for _, offset := range []time.Duration{-2 * Period * time.Second, 2 * Period * time.Second} {
		code, err := GenerateCode(s, at.Add(offset))
		if err != nil {
			t.Fatal(err)
		}
		if ok, _ := Verify(s, code, at, 1, nil); ok {
			t.Errorf("offset %v: expected reject", offset)
		}
	}
}

func TestVerify_Replay(t *testing.T) {
	s := mustSecret(t)
	code, err := GenerateCode(s, at)
	if err != nil {
		t.Fatal(err)
	}
	ok, counter := Verify(s, code, at, 1, nil)
	if !ok {
		t.Fatal("first use must verify")
	}
	if ok, _ := Verify(s, code, at, 1, &counter); ok {
		t.Fatal("replayed counter must be rejected")
	}
}

func TestVerify_BadInput(t *testing.T) {
	s := mustSecret(t)
	for _, code := range []string{"", "12345", "1234567", "abc"} {
		if ok, _ := Verify(s, code, at, 1, nil); ok {
			t.Errorf("code %q must be rejected", code)
		}
	}
}

func TestQRCodePNGDataURI(t *testing.T) {
	s := mustSecret(t)
	uri := ProvisioningURI("LittleJohn", "john@example.com", s)
	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Fatalf("unexpected uri: %q", uri)
	}
	dataURI, err := QRCodePNGDataURI(uri, 256)
	if err != nil {
		t.Fatalf("QRCodePNGDataURI: %v", err)
	}
	if !strings.HasPrefix(dataURI, "data:image/png;base64,") {
		t.Fatalf("unexpected data uri prefix: %.40q", dataURI)
	}
}
