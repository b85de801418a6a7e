package auth

import "github.com/ethereum/go-ethereum/common"

// Deployment addresses for the binary-outcome exchange contract this
// adapter submits orders against. A weather market that settles into
// more than two mutually exclusive outcomes (e.g. a grouped
// temperature-bucket series) trades on the neg-risk variant of the
// contract instead of the standard one.
var (
	ExchangeAddress        = common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	NegRiskExchangeAddress = common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a")
)

// ContractAddress resolves which exchange contract an order's EIP-712
// domain separator should bind to.
func ContractAddress(negRisk bool) common.Address {
	if negRisk {
		return NegRiskExchangeAddress
	}
	return ExchangeAddress
}
