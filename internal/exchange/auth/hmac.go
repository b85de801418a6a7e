package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
)

// APICredentials holds the exchange's L2 API credentials.
type APICredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// HMACSigner signs requests using HMAC-SHA256 for L2 authentication.
type HMACSigner struct {
	creds *APICredentials
}

// NewHMACSigner creates a new HMAC signer with the given credentials.
func NewHMACSigner(creds *APICredentials) *HMACSigner {
	return &HMACSigner{creds: creds}
}

// SignRequest signs an HTTP request for L2 authentication.
// Returns headers to add to the request.
func (s *HMACSigner) SignRequest(timestamp, method, path string, body []byte, funder string) (map[string]string, error) {
	// Build the message to sign: timestamp + method + path + body
	message := timestamp + method + path
	if len(body) > 0 {
		message += string(body)
	}

	// Decode the base64 secret
	secret, err := base64.URLEncoding.DecodeString(s.creds.Secret)
	if err != nil {
		// Try standard base64
		secret, err = base64.StdEncoding.DecodeString(s.creds.Secret)
		if err != nil {
			return nil, fmt.Errorf("decode secret: %w", err)
		}
	}

	// HMAC-SHA256
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	signature := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"EXCH_ADDRESS":    funder,
		"EXCH_SIGNATURE":  signature,
		"EXCH_TIMESTAMP":  timestamp,
		"EXCH_API_KEY":    s.creds.APIKey,
		"EXCH_PASSPHRASE": s.creds.Passphrase,
	}, nil
}

// L1AuthHeaders returns headers proving wallet ownership of an order
// signed with SignOrder: the exchange needs these in addition to
// SignRequest's L2 headers before it will accept an order placement
// rather than a read-only request.
func L1AuthHeaders(address, orderSignature, timestamp string, nonce int64) map[string]string {
	return map[string]string{
		"EXCH_ORDER_ADDRESS":   address,
		"EXCH_ORDER_SIGNATURE": orderSignature,
		"EXCH_ORDER_TIMESTAMP": timestamp,
		"EXCH_ORDER_NONCE":     strconv.FormatInt(nonce, 10),
	}
}
