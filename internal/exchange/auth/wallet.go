// Package auth implements the two-layer credential scheme the live
// weather-exchange adapter signs requests with: an EIP-712 typed-data
// signature over the wallet's own key for order placement (L1), and an
// HMAC-SHA256 signature over API credentials for authenticated reads
// and order submission (L2).
package auth

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet wraps the ECDSA key that signs outcome-token orders for this
// exchange account.
type Wallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewWallet creates a wallet from a hex-encoded private key.
func NewWallet(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)

	return &Wallet{
		privateKey: key,
		address:    addr,
	}, nil
}

// Address returns the wallet's Ethereum address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// AddressHex returns the wallet address as a checksummed hex string.
func (w *Wallet) AddressHex() string {
	return w.address.Hex()
}

// SignHash signs a 32-byte hash and returns the 65-byte signature.
func (w *Wallet) SignHash(hash []byte) ([]byte, error) {
	sig, err := crypto.Sign(hash, w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign hash: %w", err)
	}
	// Adjust V value from 0/1 to 27/28 (EIP-155)
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}
