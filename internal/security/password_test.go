package security

import "testing"

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("longenough1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "longenough1" {
		t.Fatal("hash must not equal the plaintext")
	}

	if !VerifyPassword(hash, "longenough1") {
		t.Error("correct password rejected")
	}
	if VerifyPassword(hash, "wrongpassword") {
		t.Error("wrong password accepted")
	}
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	a, _ := HashPassword("longenough1")
	b, _ := HashPassword("longenough1")
	if a == b {
		t.Error("two hashes of the same password should differ (random salt)")
	}
}
