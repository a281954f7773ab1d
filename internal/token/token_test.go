package token

import (
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	secret := []byte("s3cret")

	tok, err := Sign("client-1", "client", time.Minute, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := Verify(tok, secret)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "client-1" || claims.Role != "client" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	secret := []byte("s3cret")

	tok, err := Sign("client-1", "client", time.Minute, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := Verify(tok, []byte("other-secret")); err == nil {
		t.Fatal("wrong secret verified")
	}
	if _, err := Verify(tok+"x", secret); err == nil {
		t.Fatal("tampered signature verified")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	secret := []byte("s3cret")

	tok, err := Sign("client-1", "client", -time.Minute, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := Verify(tok, secret); err == nil {
		t.Fatal("expired token verified")
	}
}
