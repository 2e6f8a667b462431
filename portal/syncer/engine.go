package syncer

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexlend-labs/dexlend-hub/portal/gateway"
	"github.com/dexlend-labs/dexlend-hub/portal/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "syncer").Logger()
}

// SetLogger allows setting a custom logger.
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "syncer").Logger()
}

// Config tunes the engine's poll loop.
type Config struct {
	// NftContract is the address recorded on tokens discovered via events.
	NftContract string
	// PollInterval drives the periodic full refresh. The deployed checker
	// ran every 10 minutes; anything at or under that keeps parity.
	PollInterval time.Duration
	// SweepOverdueLoans submits checkLoan for the account's active loans on
	// every poll tick, letting the contract mark expired loans.
	SweepOverdueLoans bool
}

// Engine reconciles the registry with the chain. It is the registry's only
// writer: bulk refreshes repopulate it, push events upsert incrementally, and
// write actions trigger targeted refreshes through the Refresher methods.
// A refresh that fails mid-fetch leaves the registry exactly as it was.
type Engine struct {
	gw    gateway.ChainGateway
	store *registry.Store
	cfg   Config
}

// NewEngine creates an engine over the given gateway and registry.
func NewEngine(gw gateway.ChainGateway, store *registry.Store, cfg Config) *Engine {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Minute
	}
	return &Engine{gw: gw, store: store, cfg: cfg}
}

// RefreshLoans reloads the account's loans plus every NFT-backed request
// (the accept view needs requests from other borrowers). All detail reads
// complete before the first upsert, so a failed call mutates nothing.
func (e *Engine) RefreshLoans(ctx context.Context, account string) error {
	values, err := e.gw.Call(ctx, gateway.ContractDefi, "loanCount")
	if err != nil {
		observeRefresh("loans", err)
		return fmt.Errorf("loan count: %w", err)
	}
	count, ok := firstBig(values)
	if !ok {
		err = fmt.Errorf("loan count: unexpected result %v", values)
		observeRefresh("loans", err)
		return err
	}

	var loans []registry.Loan
	for i := uint64(0); i < count.Uint64(); i++ {
		details, err := e.gw.Call(ctx, gateway.ContractDefi, "getLoanDetails", i)
		if err != nil {
			observeRefresh("loans", err)
			return fmt.Errorf("loan %d details: %w", i, err)
		}
		loan, err := parseLoan(details)
		if err != nil {
			observeRefresh("loans", err)
			return fmt.Errorf("loan %d details: %w", i, err)
		}
		if strings.EqualFold(loan.Borrower, account) || loan.IsBasedOnNft {
			loans = append(loans, loan)
		}
	}

	for _, loan := range loans {
		e.store.UpsertLoan(loan)
		if !loan.IsBasedOnNft {
			continue
		}
		key := loan.CollateralKey()
		if loan.Active {
			e.store.SetNftLoanRef(key, loan.ID)
		} else if n, ok := e.store.Nft(key); ok && n.InUseByLoanID != nil && *n.InUseByLoanID == loan.ID {
			// The loan backing the token settled or was cancelled off-session.
			// Only drop the reference this loan owns; a newer loan on the same
			// token keeps its ref.
			e.store.ClearNftLoanRef(key)
		}
	}
	observeRefresh("loans", nil)
	log.Debug().Str("account", account).Int("loans", len(loans)).Msg("Loans refreshed")
	return nil
}

// ReleaseCollateral drops a token's loan reference once the loan backing it
// is cancelled or settled. The registry has a single writer, so actions route
// the clear through the engine instead of touching the store.
func (e *Engine) ReleaseCollateral(key registry.NftKey) {
	e.store.ClearNftLoanRef(key)
}

// RefreshNfts reloads the tokens the account owns. The refresh is additive:
// tokens no longer owned stay in the registry until ReconcileNfts runs.
func (e *Engine) RefreshNfts(ctx context.Context, account string) error {
	owned, err := e.fetchOwnedNfts(ctx, account)
	if err != nil {
		observeRefresh("nfts", err)
		return err
	}
	for _, n := range owned {
		e.store.UpsertNft(n)
	}
	observeRefresh("nfts", nil)
	log.Debug().Str("account", account).Int("nfts", len(owned)).Msg("NFTs refreshed")
	return nil
}

// ReconcileNfts removes registry tokens the account is recorded as owning but
// the chain no longer attributes to it. Never run implicitly; refreshes stay
// additive and callers opt into pruning.
func (e *Engine) ReconcileNfts(ctx context.Context, account string) error {
	owned, err := e.fetchOwnedNfts(ctx, account)
	if err != nil {
		return err
	}
	current := make(map[registry.NftKey]bool, len(owned))
	for _, n := range owned {
		current[n.Key()] = true
	}
	for _, n := range e.store.Nfts() {
		if strings.EqualFold(n.Owner, account) && !current[n.Key()] {
			e.store.RemoveNft(n.Key())
		}
	}
	return nil
}

func (e *Engine) fetchOwnedNfts(ctx context.Context, account string) ([]registry.Nft, error) {
	values, err := e.gw.Call(ctx, gateway.ContractNft, "balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("nft balance: %w", err)
	}
	count, ok := firstBig(values)
	if !ok {
		return nil, fmt.Errorf("nft balance: unexpected result %v", values)
	}

	var owned []registry.Nft
	for i := uint64(0); i < count.Uint64(); i++ {
		values, err := e.gw.Call(ctx, gateway.ContractNft, "tokenOfOwnerByIndex", account, i)
		if err != nil {
			return nil, fmt.Errorf("token at index %d: %w", i, err)
		}
		tokenID, ok := firstBig(values)
		if !ok {
			return nil, fmt.Errorf("token at index %d: unexpected result %v", i, values)
		}

		n := registry.Nft{
			Contract: e.cfg.NftContract,
			TokenID:  tokenID.String(),
			Owner:    account,
		}
		if values, err = e.gw.Call(ctx, gateway.ContractNft, "tokenURI", tokenID); err == nil && len(values) > 0 {
			if uri, ok := values[0].(string); ok {
				n.TokenURI = uri
			}
		}
		if existing, ok := e.store.Nft(n.Key()); ok {
			n.InUseByLoanID = existing.InUseByLoanID
		}
		owned = append(owned, n)
	}
	return owned, nil
}

// RefreshBalances reloads the balance/rate panel in one pass.
func (e *Engine) RefreshBalances(ctx context.Context, account string) error {
	b := registry.Balances{UpdatedAt: time.Now()}

	reads := []struct {
		method string
		args   []any
		dst    **big.Int
	}{
		{"getBalance", nil, &b.ContractEth},
		{"getDexBalance", nil, &b.ContractDex},
		{"balanceOf", []any{account}, &b.AccountDex},
		{"rateEthToDex", nil, &b.RateEthToDex},
		{"getTotalBorrowedAndNotPaidBackEth", nil, &b.TotalBorrowed},
	}
	for _, r := range reads {
		values, err := e.gw.Call(ctx, gateway.ContractDefi, r.method, r.args...)
		if err != nil {
			observeRefresh("balances", err)
			return fmt.Errorf("%s: %w", r.method, err)
		}
		v, ok := firstBig(values)
		if !ok {
			err = fmt.Errorf("%s: unexpected result %v", r.method, values)
			observeRefresh("balances", err)
			return err
		}
		*r.dst = v
	}

	e.store.SetBalances(b)
	observeRefresh("balances", nil)
	return nil
}

// RefreshAll runs the three refreshes; the first failure aborts the pass.
func (e *Engine) RefreshAll(ctx context.Context, account string) error {
	if err := e.RefreshBalances(ctx, account); err != nil {
		return err
	}
	if err := e.RefreshLoans(ctx, account); err != nil {
		return err
	}
	return e.RefreshNfts(ctx, account)
}

// SweepOverdueLoans asks the contract to re-check every active loan of the
// account, the on-chain path that deactivates expired loans. Per-loan
// failures are logged and skipped, matching the deployed checker.
func (e *Engine) SweepOverdueLoans(ctx context.Context, account string) {
	for _, loan := range e.store.Loans() {
		if !loan.Active || !strings.EqualFold(loan.Borrower, account) {
			continue
		}
		_, err := e.gw.Send(ctx, gateway.ContractDefi, "checkLoan",
			gateway.TxParams{From: account}, loan.ID)
		if err != nil {
			log.Warn().Err(err).Uint64("loan", loan.ID).Msg("Loan check failed")
		}
	}
}

// Run drives the live sync: it subscribes to loan creation and token
// transfers, performs an initial full refresh, then alternates between push
// events and the periodic poll until ctx ends.
func (e *Engine) Run(ctx context.Context, account string) error {
	loanEvents, err := e.gw.Subscribe(ctx, gateway.ContractDefi, "loanCreated")
	if err != nil {
		return fmt.Errorf("subscribe loanCreated: %w", err)
	}
	nftEvents, err := e.gw.Subscribe(ctx, gateway.ContractNft, "Transfer")
	if err != nil {
		return fmt.Errorf("subscribe Transfer: %w", err)
	}

	if err := e.RefreshAll(ctx, account); err != nil {
		log.Error().Err(err).Msg("Initial refresh failed, continuing with empty registry")
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-loanEvents:
			if !ok {
				loanEvents = nil
				continue
			}
			e.HandleEvent(ctx, ev)
		case ev, ok := <-nftEvents:
			if !ok {
				nftEvents = nil
				continue
			}
			e.HandleEvent(ctx, ev)
		case <-ticker.C:
			if err := e.RefreshAll(ctx, account); err != nil {
				log.Warn().Err(err).Msg("Periodic refresh failed")
			}
			if e.cfg.SweepOverdueLoans {
				e.SweepOverdueLoans(ctx, account)
			}
		}
	}
}
