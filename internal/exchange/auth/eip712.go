package auth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// EIP712Signer signs the typed-data messages the exchange's order and
// auth endpoints require.
type EIP712Signer struct {
	wallet *Wallet
}

// NewEIP712Signer creates a new EIP-712 signer.
func NewEIP712Signer(wallet *Wallet) *EIP712Signer {
	return &EIP712Signer{wallet: wallet}
}

// SignAuth signs an L1 authentication message: proof of wallet
// ownership accompanying a nonce and timestamp, independent of any
// particular order.
func (s *EIP712Signer) SignAuth(chainID int64, timestamp string, nonce *big.Int) (string, error) {
	domainSep := hashEIP712Domain("ExchangeAuthDomain", "1", chainID)

	typeHash := crypto.Keccak256Hash([]byte("ExchangeAuth(address address,string timestamp,uint256 nonce)"))
	addrHash := crypto.Keccak256Hash(s.wallet.Address().Bytes())
	tsHash := crypto.Keccak256Hash([]byte(timestamp))
	nonceHash := common.LeftPadBytes(nonce.Bytes(), 32)

	msgHash := crypto.Keccak256Hash(
		typeHash.Bytes(),
		addrHash.Bytes(),
		tsHash.Bytes(),
		nonceHash,
	)

	finalHash := crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSep.Bytes(), msgHash.Bytes())

	sig, err := s.wallet.SignHash(finalHash.Bytes())
	if err != nil {
		return "", fmt.Errorf("sign auth: %w", err)
	}
	return fmt.Sprintf("0x%x", sig), nil
}

// usdcDecimals is the scale the exchange contract expects MakerAmount
// and TakerAmount at: USDC has 6 decimal places on-chain, independent
// of the probability's own 2-4 decimal display precision.
const usdcDecimals = 6

// OrderData is the signed payload for a single on-chain order. This
// exchange only ever takes a long position in a YES or NO outcome
// token — there is no sell/exit path — so Side is always the
// contract's BUY value and SignatureType always identifies a plain
// EOA signature; NewBuyOrder bakes both in rather than exposing them
// as fields a caller could get wrong.
type OrderData struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8
	SignatureType uint8
}

const (
	orderSideBuy          uint8 = 0
	orderSignatureTypeEOA uint8 = 0
)

// NewBuyOrder builds the order the exchange contract expects for
// buying size shares of tokenID at price (a probability in [0,1]):
// MakerAmount is the USDC the account pays, TakerAmount is the number
// of outcome shares it receives, both scaled to the contract's
// 6-decimal fixed-point representation.
func NewBuyOrder(maker common.Address, tokenID *big.Int, price, size decimal.Decimal, expiration, nonce *big.Int) *OrderData {
	scale := decimal.New(1, usdcDecimals)
	makerAmount := price.Mul(size).Mul(scale).Truncate(0).BigInt()
	takerAmount := size.Mul(scale).Truncate(0).BigInt()

	return &OrderData{
		Salt:          nonce,
		Maker:         maker,
		Signer:        maker,
		Taker:         common.Address{},
		TokenID:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    expiration,
		Nonce:         nonce,
		FeeRateBps:    big.NewInt(0),
		Side:          orderSideBuy,
		SignatureType: orderSignatureTypeEOA,
	}
}

// SignOrder signs order against exchangeAddress using EIP-712.
func (s *EIP712Signer) SignOrder(chainID int64, exchangeAddress common.Address, order *OrderData) (string, error) {
	domainSep := hashEIP712DomainWithContract("OutcomeExchange", "1", chainID, exchangeAddress)

	typeHash := crypto.Keccak256Hash([]byte(
		"Order(uint256 salt,address maker,address signer,address taker," +
			"uint256 tokenId,uint256 makerAmount,uint256 takerAmount," +
			"uint256 expiration,uint256 nonce,uint256 feeRateBps," +
			"uint8 side,uint8 signatureType)"))

	msgHash := crypto.Keccak256Hash(
		typeHash.Bytes(),
		math.U256Bytes(order.Salt),
		common.LeftPadBytes(order.Maker.Bytes(), 32),
		common.LeftPadBytes(order.Signer.Bytes(), 32),
		common.LeftPadBytes(order.Taker.Bytes(), 32),
		math.U256Bytes(order.TokenID),
		math.U256Bytes(order.MakerAmount),
		math.U256Bytes(order.TakerAmount),
		math.U256Bytes(order.Expiration),
		math.U256Bytes(order.Nonce),
		math.U256Bytes(order.FeeRateBps),
		common.LeftPadBytes([]byte{order.Side}, 32),
		common.LeftPadBytes([]byte{order.SignatureType}, 32),
	)

	finalHash := crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSep.Bytes(), msgHash.Bytes())

	sig, err := s.wallet.SignHash(finalHash.Bytes())
	if err != nil {
		return "", fmt.Errorf("sign order: %w", err)
	}
	return fmt.Sprintf("0x%x", sig), nil
}

func hashEIP712Domain(name, version string, chainID int64) common.Hash {
	typeHash := crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)"))

	nameHash := crypto.Keccak256Hash([]byte(name))
	versionHash := crypto.Keccak256Hash([]byte(version))
	chainIDBytes := common.LeftPadBytes(big.NewInt(chainID).Bytes(), 32)

	return crypto.Keccak256Hash(typeHash.Bytes(), nameHash.Bytes(), versionHash.Bytes(), chainIDBytes)
}

func hashEIP712DomainWithContract(name, version string, chainID int64, contract common.Address) common.Hash {
	typeHash := crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	nameHash := crypto.Keccak256Hash([]byte(name))
	versionHash := crypto.Keccak256Hash([]byte(version))
	chainIDBytes := common.LeftPadBytes(big.NewInt(chainID).Bytes(), 32)

	return crypto.Keccak256Hash(
		typeHash.Bytes(),
		nameHash.Bytes(),
		versionHash.Bytes(),
		chainIDBytes,
		common.LeftPadBytes(contract.Bytes(), 32),
	)
}
