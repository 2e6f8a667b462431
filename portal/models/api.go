package models

import (
	"time"

	"github.com/dexlend-labs/dexlend-hub/portal/registry"
	"github.com/dexlend-labs/dexlend-hub/portal/units"
)

// LoanView - one registry loan as the frontend renders it. Amounts travel as
// strings in both forms: raw smallest units and the human decimal.
type LoanView struct {
	Id               uint64 `json:"id"`
	Borrower         string `json:"borrower"`
	Lender           string `json:"lender,omitempty"`
	Amount           string `json:"amount"`      // e.g., "5000000000000000000"
	AmountHuman      string `json:"amountHuman"` // e.g., "5"
	Deadline         uint64 `json:"deadline"`    // unix seconds
	Active           bool   `json:"active"`
	NumberOfPayments uint64 `json:"numberOfPayments"`
	StartTime        uint64 `json:"startTime"`
	IsBasedOnNft     bool   `json:"isBasedOnNft"`
	NftContract      string `json:"nftContract,omitempty"`
	NftId            string `json:"nftId,omitempty"`
}

// NftView - one tracked token.
type NftView struct {
	Contract      string  `json:"contract"`
	TokenId       string  `json:"tokenId"`
	Owner         string  `json:"owner"`
	TokenUri      string  `json:"tokenUri,omitempty"`
	InUseByLoanId *uint64 `json:"inUseByLoanId,omitempty"`
}

// BalancesView - the balance panel.
type BalancesView struct {
	ContractEth      string `json:"contractEth"`
	ContractEthHuman string `json:"contractEthHuman"`
	ContractDex      string `json:"contractDex"`
	ContractDexHuman string `json:"contractDexHuman"`
	AccountDex       string `json:"accountDex"`
	AccountDexHuman  string `json:"accountDexHuman"`
	TotalBorrowed    string `json:"totalBorrowed"`
	RateEthToDex     string `json:"rateEthToDex"`
	UpdatedAt        string `json:"updatedAt"` // RFC3339
}

// AmountRequest - API POST body for buy/sell swaps.
type AmountRequest struct {
	Amount string `json:"amount"` // human decimal, e.g., "1.5"
}

// LoanRequest - API POST body for opening a token loan.
type LoanRequest struct {
	Amount          string `json:"amount"`
	DeadlineMinutes int64  `json:"deadlineMinutes"`
}

// PaymentRequest - API POST body for an instalment.
type PaymentRequest struct {
	LoanId uint64 `json:"loanId"`
	Amount string `json:"amount"`
}

// LoanIdRequest - API POST body for terminate/cancel/accept.
type LoanIdRequest struct {
	LoanId uint64 `json:"loanId"`
}

// NftLoanRequest - API POST body for an NFT-collateralised request.
type NftLoanRequest struct {
	NftContract     string `json:"nftContract"`
	TokenId         string `json:"tokenId"`
	Amount          string `json:"amount"`
	DeadlineMinutes int64  `json:"deadlineMinutes"`
}

// MintRequest - API POST body for minting.
type MintRequest struct {
	TokenUri string `json:"tokenUri"`
}

// RateRequest - API POST body for the owner rate update.
type RateRequest struct {
	Rate string `json:"rate"` // integer DEX per ETH
}

// TxResponse - acknowledgement for a mined action.
type TxResponse struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
}

// QuoteResponse - the repayment value for early termination.
type QuoteResponse struct {
	LoanId     uint64 `json:"loanId"`
	Value      string `json:"value"`
	ValueHuman string `json:"valueHuman"`
}

// ErrorResponse - error body for every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewLoanView converts a registry loan.
func NewLoanView(l registry.Loan) LoanView {
	return LoanView{
		Id:               l.ID,
		Borrower:         l.Borrower,
		Lender:           l.Lender,
		Amount:           l.Amount.String(),
		AmountHuman:      units.FromSmallestUnit(l.Amount),
		Deadline:         l.Deadline,
		Active:           l.Active,
		NumberOfPayments: l.NumberOfPayments,
		StartTime:        l.StartTime,
		IsBasedOnNft:     l.IsBasedOnNft,
		NftContract:      l.NftContract,
		NftId:            l.NftID,
	}
}

// NewLoanViews converts a slice, keeping order.
func NewLoanViews(loans []registry.Loan) []LoanView {
	views := make([]LoanView, len(loans))
	for i, l := range loans {
		views[i] = NewLoanView(l)
	}
	return views
}

// NewNftView converts a tracked token.
func NewNftView(n registry.Nft) NftView {
	return NftView{
		Contract:      n.Contract,
		TokenId:       n.TokenID,
		Owner:         n.Owner,
		TokenUri:      n.TokenURI,
		InUseByLoanId: n.InUseByLoanID,
	}
}

// NewNftViews converts a slice, keeping order.
func NewNftViews(nfts []registry.Nft) []NftView {
	views := make([]NftView, len(nfts))
	for i, n := range nfts {
		views[i] = NewNftView(n)
	}
	return views
}

// NewBalancesView converts the balance panel.
func NewBalancesView(b registry.Balances) BalancesView {
	return BalancesView{
		ContractEth:      b.ContractEth.String(),
		ContractEthHuman: units.FromSmallestUnit(b.ContractEth),
		ContractDex:      b.ContractDex.String(),
		ContractDexHuman: units.FromSmallestUnit(b.ContractDex),
		AccountDex:       b.AccountDex.String(),
		AccountDexHuman:  units.FromSmallestUnit(b.AccountDex),
		TotalBorrowed:    b.TotalBorrowed.String(),
		RateEthToDex:     b.RateEthToDex.String(),
		UpdatedAt:        b.UpdatedAt.Format(time.RFC3339),
	}
}
