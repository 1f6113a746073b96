package auth

import "testing"

func TestToken_RoundTrip(t *testing.T) {
	secret := []byte("test-secret-do-not-use")

	tok, err := NewToken("175928847299117063", secret)
	if err != nil {
		t.Fatalf("NewToken failed: %v", err)
	}
	if tok == "" {
		t.Fatal("empty token")
	}

	uid, err := ParseToken(tok, secret)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if uid != "175928847299117063" {
		t.Errorf("expected uid to round trip, got %q", uid)
	}
}

func TestToken_RejectsWrongSecret(t *testing.T) {
	tok, err := NewToken("123", []byte("secret-a"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseToken(tok, []byte("secret-b")); err == nil {
		t.Error("token verified with the wrong secret")
	}
}

func TestToken_RejectsGarbage(t *testing.T) {
	if _, err := ParseToken("not.a.token", []byte("secret")); err == nil {
		t.Error("garbage token accepted")
	}
}
