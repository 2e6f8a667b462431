package registry

import (
	"sort"
	"sync"
)

// Store is the in-memory mirror of on-chain loan and NFT state. It lives for
// the process lifetime, starts empty and is populated by the syncer, which is
// its sole writer; readers get copies. Operations never fail: a missing key
// reads as an absent result, upserts are last write wins.
type Store struct {
	mu       sync.RWMutex
	loans    map[uint64]Loan
	nfts     map[NftKey]Nft
	balances *Balances
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		loans: make(map[uint64]Loan),
		nfts:  make(map[NftKey]Nft),
	}
}

// UpsertLoan inserts or replaces the loan keyed by its ID.
func (s *Store) UpsertLoan(l Loan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[l.ID] = l
}

// UpsertNft inserts or replaces the token keyed by (contract, tokenId).
func (s *Store) UpsertNft(n Nft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nfts[n.Key()] = n
}

// RemoveLoan deletes a loan entry. Used only by explicit reconciliation;
// regular refreshes are additive.
func (s *Store) RemoveLoan(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loans, id)
}

// RemoveNft deletes a token entry, e.g. after an accepted collateral claim.
func (s *Store) RemoveNft(key NftKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nfts, key)
}

// SetNftLoanRef marks a token as collateral of the given loan. No-op when the
// token is not in the store.
func (s *Store) SetNftLoanRef(key NftKey, loanID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nfts[key]
	if !ok {
		return
	}
	id := loanID
	n.InUseByLoanID = &id
	s.nfts[key] = n
}

// ClearNftLoanRef drops the collateral reference after a cancelled or settled
// NFT loan request. No-op when the token is not in the store.
func (s *Store) ClearNftLoanRef(key NftKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nfts[key]
	if !ok {
		return
	}
	n.InUseByLoanID = nil
	s.nfts[key] = n
}

// Loan returns the loan with the given ID.
func (s *Store) Loan(id uint64) (Loan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loans[id]
	return l, ok
}

// Nft returns the token with the given key.
func (s *Store) Nft(key NftKey) (Nft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nfts[key]
	return n, ok
}

// Loans returns all loans ordered by ID. Ordering keeps dropdown projections
// stable between refreshes.
func (s *Store) Loans() []Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loansLocked()
}

// Nfts returns all tokens ordered by (contract, tokenId).
func (s *Store) Nfts() []Nft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nftsLocked()
}

// Snapshot returns the loan and token sets under a single lock acquisition,
// so views joining both never see a state no single write produced.
func (s *Store) Snapshot() ([]Loan, []Nft) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loansLocked(), s.nftsLocked()
}

func (s *Store) loansLocked() []Loan {
	out := make([]Loan, 0, len(s.loans))
	for _, l := range s.loans {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) nftsLocked() []Nft {
	out := make([]Nft, 0, len(s.nfts))
	for _, n := range s.nfts {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if a.Contract != b.Contract {
			return a.Contract < b.Contract
		}
		return a.TokenID < b.TokenID
	})
	return out
}

// SetBalances replaces the balance panel snapshot.
func (s *Store) SetBalances(b Balances) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = &b
}

// Balances returns the last balance panel snapshot, if any refresh completed.
func (s *Store) Balances() (Balances, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.balances == nil {
		return Balances{}, false
	}
	return *s.balances, true
}
