package auth

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func testWallet(t *testing.T) *Wallet {
	t.Helper()
	w, err := NewWallet(testPrivateKey)
	if err != nil {
		t.Fatalf("NewWallet returned error: %v", err)
	}
	return w
}

func TestSignAuthIsDeterministicForSameInputs(t *testing.T) {
	signer := NewEIP712Signer(testWallet(t))

	sig1, err := signer.SignAuth(137, "1700000000", big.NewInt(1))
	if err != nil {
		t.Fatalf("SignAuth returned error: %v", err)
	}
	sig2, err := signer.SignAuth(137, "1700000000", big.NewInt(1))
	if err != nil {
		t.Fatalf("SignAuth returned error: %v", err)
	}
	if sig1 != sig2 {
		t.Fatal("expected identical signatures for identical inputs")
	}
}

func TestSignAuthVariesWithNonce(t *testing.T) {
	signer := NewEIP712Signer(testWallet(t))

	sig1, _ := signer.SignAuth(137, "1700000000", big.NewInt(1))
	sig2, _ := signer.SignAuth(137, "1700000000", big.NewInt(2))
	if sig1 == sig2 {
		t.Fatal("expected different signatures for different nonces")
	}
}

func TestNewBuyOrderScalesAmountsToUSDCDecimals(t *testing.T) {
	w := testWallet(t)
	tokenID := big.NewInt(42)
	price := decimal.NewFromFloat(0.35)
	size := decimal.NewFromFloat(100)

	order := NewBuyOrder(w.Address(), tokenID, price, size, big.NewInt(2000000000), big.NewInt(1))

	wantMaker := big.NewInt(35_000_000) // 0.35 * 100 * 1e6
	wantTaker := big.NewInt(100_000_000) // 100 * 1e6
	if order.MakerAmount.Cmp(wantMaker) != 0 {
		t.Fatalf("MakerAmount = %s, want %s", order.MakerAmount, wantMaker)
	}
	if order.TakerAmount.Cmp(wantTaker) != 0 {
		t.Fatalf("TakerAmount = %s, want %s", order.TakerAmount, wantTaker)
	}
	if order.Side != orderSideBuy {
		t.Fatalf("Side = %d, want BUY (%d)", order.Side, orderSideBuy)
	}
	if order.SignatureType != orderSignatureTypeEOA {
		t.Fatalf("SignatureType = %d, want EOA (%d)", order.SignatureType, orderSignatureTypeEOA)
	}
}

func TestSignOrderVariesWithContractAddress(t *testing.T) {
	w := testWallet(t)
	signer := NewEIP712Signer(w)
	order := NewBuyOrder(w.Address(), big.NewInt(42), decimal.NewFromFloat(0.35), decimal.NewFromFloat(100), big.NewInt(2000000000), big.NewInt(1))

	sigStandard, err := signer.SignOrder(137, ExchangeAddress, order)
	if err != nil {
		t.Fatalf("SignOrder returned error: %v", err)
	}
	sigNegRisk, err := signer.SignOrder(137, NegRiskExchangeAddress, order)
	if err != nil {
		t.Fatalf("SignOrder returned error: %v", err)
	}
	if sigStandard == sigNegRisk {
		t.Fatal("expected different signatures for different verifying contracts")
	}
}

func TestContractAddressSelectsNegRisk(t *testing.T) {
	if ContractAddress(false) != ExchangeAddress {
		t.Fatal("expected the standard exchange address when negRisk is false")
	}
	if ContractAddress(true) != NegRiskExchangeAddress {
		t.Fatal("expected the neg-risk exchange address when negRisk is true")
	}
}
