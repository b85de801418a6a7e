package auth

import "testing"

func testCreds() *APICredentials {
	// Valid base64, arbitrary bytes.
	return &APICredentials{APIKey: "key-1", Secret: "c2VjcmV0LWJ5dGVz", Passphrase: "pass-1"}
}

func TestSignRequestIncludesAllHeaders(t *testing.T) {
	signer := NewHMACSigner(testCreds())
	headers, err := signer.SignRequest("1700000000", "POST", "/order", []byte(`{"a":1}`), "0xfunder")
	if err != nil {
		t.Fatalf("SignRequest returned error: %v", err)
	}

	for _, key := range []string{"EXCH_ADDRESS", "EXCH_SIGNATURE", "EXCH_TIMESTAMP", "EXCH_API_KEY", "EXCH_PASSPHRASE"} {
		if headers[key] == "" {
			t.Fatalf("missing or empty header %s", key)
		}
	}
	if headers["EXCH_ADDRESS"] != "0xfunder" {
		t.Fatalf("EXCH_ADDRESS = %q, want 0xfunder", headers["EXCH_ADDRESS"])
	}
}

func TestSignRequestVariesWithBody(t *testing.T) {
	signer := NewHMACSigner(testCreds())
	h1, _ := signer.SignRequest("1700000000", "POST", "/order", []byte(`{"a":1}`), "0xfunder")
	h2, _ := signer.SignRequest("1700000000", "POST", "/order", []byte(`{"a":2}`), "0xfunder")
	if h1["EXCH_SIGNATURE"] == h2["EXCH_SIGNATURE"] {
		t.Fatal("expected different signatures for different bodies")
	}
}

func TestSignRequestRejectsUndecodableSecret(t *testing.T) {
	signer := NewHMACSigner(&APICredentials{Secret: "not base64 at all!!"})
	if _, err := signer.SignRequest("1700000000", "GET", "/positions", nil, "0xfunder"); err == nil {
		t.Fatal("expected an error for an undecodable secret")
	}
}

func TestL1AuthHeaders(t *testing.T) {
	headers := L1AuthHeaders("0xfunder", "0xsig", "1700000000", 5)
	if headers["EXCH_ORDER_ADDRESS"] != "0xfunder" {
		t.Fatalf("EXCH_ORDER_ADDRESS = %q, want 0xfunder", headers["EXCH_ORDER_ADDRESS"])
	}
	if headers["EXCH_ORDER_NONCE"] != "5" {
		t.Fatalf("EXCH_ORDER_NONCE = %q, want 5", headers["EXCH_ORDER_NONCE"])
	}
}
