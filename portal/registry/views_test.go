package registry_test

import (
	"math/big"
	"testing"

	"github.com/dexlend-labs/dexlend-hub/portal/registry"
	"github.com/zeebo/assert"
)

func TestAvailableNftsExcludesActiveCollateral(t *testing.T) {
	s := registry.NewStore()
	s.UpsertNft(registry.Nft{Contract: "0xNFT", TokenID: "1", Owner: "0xabc"})
	s.UpsertNft(registry.Nft{Contract: "0xNFT", TokenID: "2", Owner: "0xabc"})
	s.UpsertLoan(registry.Loan{
		ID: 3, Active: true, IsBasedOnNft: true,
		NftContract: "0xNFT", NftID: "1",
		Borrower: "0xabc", Amount: big.NewInt(1),
	})

	got := registry.AvailableNfts(s, "0xabc")
	assert.Equal(t, 1, len(got))
	assert.Equal(t, "2", got[0].TokenID)
}

func TestAvailableNftsInactiveLoanDoesNotBlock(t *testing.T) {
	s := registry.NewStore()
	s.UpsertNft(registry.Nft{Contract: "0xNFT", TokenID: "1", Owner: "0xabc"})
	s.UpsertLoan(registry.Loan{
		ID: 3, Active: false, IsBasedOnNft: true,
		NftContract: "0xNFT", NftID: "1", Borrower: "0xabc",
	})

	assert.Equal(t, 1, len(registry.AvailableNfts(s, "0xabc")))
}

func TestAvailableNftsFiltersOwnerAndLoanRef(t *testing.T) {
	s := registry.NewStore()
	s.UpsertNft(registry.Nft{Contract: "0xNFT", TokenID: "1", Owner: "0xother"})
	s.UpsertNft(registry.Nft{Contract: "0xNFT", TokenID: "2", Owner: "0xABC"})
	s.UpsertNft(registry.Nft{Contract: "0xNFT", TokenID: "3", Owner: "0xabc"})
	s.SetNftLoanRef(registry.NewNftKey("0xNFT", "3"), 11)

	got := registry.AvailableNfts(s, "0xabc")
	// Owner comparison is case-insensitive; token 1 belongs to someone else,
	// token 3 carries a loan reference.
	assert.Equal(t, 1, len(got))
	assert.Equal(t, "2", got[0].TokenID)
}

func TestCancellableLoansIgnoresActiveFlag(t *testing.T) {
	s := registry.NewStore()
	s.UpsertLoan(registry.Loan{ID: 1, IsBasedOnNft: true, Active: true, NftContract: "0xNFT", NftID: "1"})
	s.UpsertLoan(registry.Loan{ID: 2, IsBasedOnNft: true, Active: false, NftContract: "0xNFT", NftID: "2"})
	s.UpsertLoan(registry.Loan{ID: 3, IsBasedOnNft: false})

	got := registry.CancellableLoans(s)
	assert.Equal(t, 2, len(got))
	assert.Equal(t, uint64(1), got[0].ID)
	assert.Equal(t, uint64(2), got[1].ID)
}

func TestPayableLoansIncludesEverything(t *testing.T) {
	s := registry.NewStore()
	s.UpsertLoan(registry.Loan{ID: 7, Amount: big.NewInt(0).SetUint64(5_000_000_000_000_000_000), Borrower: "0xabc", Active: true})
	s.UpsertLoan(registry.Loan{ID: 8, Borrower: "0xother", Active: false})

	got := registry.PayableLoans(s)
	assert.Equal(t, 2, len(got))
	assert.Equal(t, "5000000000000000000", got[0].Amount.String())
}

func TestAcceptableLoanRequestsExcludesOwnBorrowerCaseInsensitive(t *testing.T) {
	s := registry.NewStore()
	s.UpsertLoan(registry.Loan{ID: 1, IsBasedOnNft: true, Borrower: "0xABC"})
	s.UpsertLoan(registry.Loan{ID: 2, IsBasedOnNft: true, Borrower: "0xdef"})
	s.UpsertLoan(registry.Loan{ID: 3, IsBasedOnNft: false, Borrower: "0xdef"})

	got := registry.AcceptableLoanRequests(s, "0xabc")
	assert.Equal(t, 1, len(got))
	assert.Equal(t, uint64(2), got[0].ID)
}

func TestViewsDeterministicForSameSnapshot(t *testing.T) {
	s := registry.NewStore()
	for id := uint64(1); id <= 5; id++ {
		s.UpsertLoan(registry.Loan{ID: id, IsBasedOnNft: id%2 == 0, Borrower: "0xdef", NftContract: "0xNFT", NftID: "1"})
	}
	first := registry.AcceptableLoanRequests(s, "0xabc")
	second := registry.AcceptableLoanRequests(s, "0xabc")
	assert.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}
