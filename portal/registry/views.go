package registry

import "strings"

// The view functions below are the read models the UI renders into dropdowns
// and lists. Each one is a pure projection of a store snapshot taken at call
// time; given the same store contents and account they return the same slice.

// AvailableNfts lists tokens selectable as collateral for a new loan: owned
// by the account, carrying no loan reference, and not referenced by any
// active NFT-backed loan.
func AvailableNfts(s *Store, account string) []Nft {
	loans, nfts := s.Snapshot()
	inUse := make(map[NftKey]bool)
	for _, l := range loans {
		if l.Active && l.IsBasedOnNft {
			inUse[l.CollateralKey()] = true
		}
	}
	var out []Nft
	for _, n := range nfts {
		if !strings.EqualFold(n.Owner, account) {
			continue
		}
		if n.InUseByLoanID != nil || inUse[n.Key()] {
			continue
		}
		out = append(out, n)
	}
	return out
}

// CancellableLoans lists loans the cancel action accepts: every NFT-backed
// loan, active or not. Not filtering on Active mirrors the deployed UI; see
// DESIGN.md for why this is preserved rather than fixed here.
func CancellableLoans(s *Store) []Loan {
	var out []Loan
	for _, l := range s.Loans() {
		if l.IsBasedOnNft {
			out = append(out, l)
		}
	}
	return out
}

// PayableLoans lists loans the payment dropdown offers. Deliberately
// unfiltered, matching the deployed UI; see DESIGN.md.
func PayableLoans(s *Store) []Loan {
	return s.Loans()
}

// AcceptableLoanRequests lists NFT-backed requests another party can fund:
// everything NFT-backed whose borrower is not the given account. Address
// comparison is case-insensitive.
func AcceptableLoanRequests(s *Store, account string) []Loan {
	var out []Loan
	for _, l := range s.Loans() {
		if l.IsBasedOnNft && !strings.EqualFold(l.Borrower, account) {
			out = append(out, l)
		}
	}
	return out
}
