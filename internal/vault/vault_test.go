package vault

import "testing"

func TestDeriveIsDeterministicPerMarket(t *testing.T) {
	v, err := New([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}

	if v.Derive(7) != v.Derive(7) {
		t.Fatal("derivation must be deterministic")
	}
	if v.Derive(7) == v.Derive(8) {
		t.Fatal("different markets must get different capabilities")
	}
}

func TestVerify(t *testing.T) {
	v, err := New([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}

	token := v.Derive(42)
	if !v.Verify(42, token) {
		t.Fatal("minted capability must verify")
	}
	if v.Verify(43, token) {
		t.Fatal("capability must not transfer between markets")
	}
	if v.Verify(42, "not-base64!") {
		t.Fatal("malformed token must not verify")
	}

	other, err := New([]byte("fedcba9876543210"))
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	if other.Verify(42, token) {
		t.Fatal("capability must be bound to the vault secret")
	}
}

func TestNewRejectsShortSecret(t *testing.T) {
	if _, err := New([]byte("short")); err == nil {
		t.Fatal("expected error for short secret")
	}
}
