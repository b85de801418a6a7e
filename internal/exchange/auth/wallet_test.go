package auth

import "testing"

// A well-known test-only private key; never used on a live chain.
const testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewWalletDerivesAddress(t *testing.T) {
	w, err := NewWallet(testPrivateKey)
	if err != nil {
		t.Fatalf("NewWallet returned error: %v", err)
	}
	if w.AddressHex() == "" {
		t.Fatal("expected a non-empty derived address")
	}
	if w.Address().Hex() != w.AddressHex() {
		t.Fatalf("Address().Hex() = %q, AddressHex() = %q, want equal", w.Address().Hex(), w.AddressHex())
	}
}

func TestNewWalletAcceptsHexPrefix(t *testing.T) {
	w1, err := NewWallet(testPrivateKey)
	if err != nil {
		t.Fatalf("NewWallet returned error: %v", err)
	}
	w2, err := NewWallet("0x" + testPrivateKey)
	if err != nil {
		t.Fatalf("NewWallet with 0x prefix returned error: %v", err)
	}
	if w1.AddressHex() != w2.AddressHex() {
		t.Fatal("expected the same address regardless of 0x prefix")
	}
}

func TestNewWalletRejectsInvalidKey(t *testing.T) {
	if _, err := NewWallet("not-a-hex-key"); err == nil {
		t.Fatal("expected an error for a malformed private key")
	}
}

func TestSignHashProducesRecoverableSignature(t *testing.T) {
	w, err := NewWallet(testPrivateKey)
	if err != nil {
		t.Fatalf("NewWallet returned error: %v", err)
	}
	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
	}
	sig, err := w.SignHash(hash)
	if err != nil {
		t.Fatalf("SignHash returned error: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("len(sig) = %d, want 65", len(sig))
	}
	if sig[64] < 27 {
		t.Fatalf("sig[64] (V) = %d, want >= 27", sig[64])
	}
}
