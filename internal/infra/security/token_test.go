package security

import (
	"encoding/base64"
	"testing"
)

func TestGenerateNumericCode(t *testing.T) {
	code, err := GenerateNumericCode(6)
	if err != nil {
		t.Fatalf("GenerateNumericCode returned error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %d", len(code))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("unexpected character %q in code %q", r, code)
		}
	}
}

func TestGenerateNumericCodeRejectsNonPositiveLength(t *testing.T) {
	if _, err := GenerateNumericCode(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken(24)
	if err != nil {
		t.Fatalf("GenerateSecureToken returned error: %v", err)
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not URL-safe base64: %v", err)
	}
	if len(decoded) != 24 {
		t.Fatalf("expected 24 random bytes, got %d", len(decoded))
	}

	other, err := GenerateSecureToken(24)
	if err != nil {
		t.Fatalf("GenerateSecureToken returned error: %v", err)
	}
	if token == other {
		t.Fatal("expected distinct tokens across calls")
	}
}

func TestHashTokenIsDeterministic(t *testing.T) {
	first := HashToken("session-token")
	second := HashToken("session-token")
	if first != second {
		t.Fatal("expected identical hashes for identical inputs")
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(first))
	}
	if first == HashToken("other-token") {
		t.Fatal("expected different hashes for different inputs")
	}
}
