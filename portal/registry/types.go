package registry

import (
	"math/big"
	"strings"
	"time"
)

// Loan mirrors one loan record of the lending contract. The contract-assigned
// numeric loanId is the canonical identity; enumeration indexes from bulk
// reads are adapted to it at the gateway boundary.
type Loan struct {
	ID               uint64
	Deadline         uint64 // unix seconds
	Amount           *big.Int
	Lender           string
	Borrower         string
	Active           bool
	NumberOfPayments uint64
	StartTime        uint64 // unix seconds, 0 until confirmed on chain
	IsBasedOnNft     bool
	NftContract      string // set only when IsBasedOnNft
	NftID            string // decimal token id, set only when IsBasedOnNft
}

// CollateralKey returns the key of the NFT backing this loan, or a zero key
// for plain token loans.
func (l Loan) CollateralKey() NftKey {
	if !l.IsBasedOnNft {
		return NftKey{}
	}
	return NewNftKey(l.NftContract, l.NftID)
}

// NftKey identifies a token by (contract, tokenId). Contract addresses are
// normalised to lower case so hex-case differences cannot split entries.
type NftKey struct {
	Contract string
	TokenID  string
}

func NewNftKey(contract, tokenID string) NftKey {
	return NftKey{Contract: strings.ToLower(contract), TokenID: tokenID}
}

// Nft mirrors one token of the companion ERC-721 contract.
type Nft struct {
	Contract string
	TokenID  string
	Owner    string
	TokenURI string
	// InUseByLoanID is a weak reference to the loan the token collateralises.
	// Lookup only; the loan record stays authoritative.
	InUseByLoanID *uint64
}

func (n Nft) Key() NftKey {
	return NewNftKey(n.Contract, n.TokenID)
}

// Balances is the balance/rate panel refreshed after every write action.
// All amounts are integers in the smallest unit.
type Balances struct {
	ContractEth   *big.Int // ETH held by the lending contract
	ContractDex   *big.Int // DEX held by the lending contract
	AccountDex    *big.Int // DEX held by the current account
	TotalBorrowed *big.Int // borrowed and not paid back, in wei
	RateEthToDex  *big.Int // DEX smallest units per 1 wei numerator, contract semantics
	UpdatedAt     time.Time
}
