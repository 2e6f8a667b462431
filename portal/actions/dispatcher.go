package actions

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexlend-labs/dexlend-hub/portal/gateway"
	"github.com/dexlend-labs/dexlend-hub/portal/registry"
	"github.com/dexlend-labs/dexlend-hub/portal/units"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "actions").Logger()
}

// SetLogger allows setting a custom logger.
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "actions").Logger()
}

// ErrInvalidInput marks precondition failures rejected before any remote
// call. Handlers map it to a client error instead of a gateway error.
var ErrInvalidInput = errors.New("invalid input")

// Refresher is the slice of the sync engine the dispatcher drives after a
// successful write. Narrowed to an interface so action tests run against a
// recording fake.
type Refresher interface {
	RefreshLoans(ctx context.Context, account string) error
	RefreshNfts(ctx context.Context, account string) error
	RefreshBalances(ctx context.Context, account string) error
	ReleaseCollateral(key registry.NftKey)
}

// Dispatcher validates user input, converts human units to contract units,
// submits transactions through the gateway and triggers the matching registry
// refresh once the chain confirms. It never writes the registry directly:
// state only changes via a post-success refresh, so a failed action leaves
// everything as it was.
type Dispatcher struct {
	gw      gateway.ChainGateway
	store   *registry.Store
	sync    Refresher
	mintFee *big.Int // fixed protocol mint price in wei
}

// NewDispatcher wires a dispatcher. mintFee is the protocol's fixed NFT mint
// price in wei.
func NewDispatcher(gw gateway.ChainGateway, store *registry.Store, sync Refresher, mintFee *big.Int) *Dispatcher {
	if mintFee == nil {
		mintFee = big.NewInt(0)
	}
	return &Dispatcher{gw: gw, store: store, sync: sync, mintFee: mintFee}
}

// account resolves the caller's wallet account; a missing wallet is fatal
// for every action.
func (d *Dispatcher) account(ctx context.Context) (string, error) {
	accounts, err := d.gw.RequestAccounts(ctx)
	if err != nil {
		return "", err
	}
	return accounts[0], nil
}

// BuyToken swaps ETH for DEX. ethAmount is a human decimal string.
func (d *Dispatcher) BuyToken(ctx context.Context, ethAmount string) (*gateway.Receipt, error) {
	wei, err := units.ParsePositiveAmount(ethAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	account, err := d.account(ctx)
	if err != nil {
		return nil, err
	}

	receipt, err := d.gw.Send(ctx, gateway.ContractDefi, "buyDex",
		gateway.TxParams{From: account, Value: wei})
	if err != nil {
		observeAction("buy_token", err)
		return nil, err
	}
	observeAction("buy_token", nil)
	d.refreshBalances(ctx, account)
	return receipt, nil
}

// SellToken swaps DEX back to ETH. dexAmount is a human decimal string.
func (d *Dispatcher) SellToken(ctx context.Context, dexAmount string) (*gateway.Receipt, error) {
	amount, err := units.ParsePositiveAmount(dexAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	account, err := d.account(ctx)
	if err != nil {
		return nil, err
	}

	receipt, err := d.gw.Send(ctx, gateway.ContractDefi, "sellDex",
		gateway.TxParams{From: account}, amount)
	if err != nil {
		observeAction("sell_token", err)
		return nil, err
	}
	observeAction("sell_token", nil)
	d.refreshBalances(ctx, account)
	return receipt, nil
}

// RequestLoan opens a plain token loan with a deadline the given minutes
// from now.
func (d *Dispatcher) RequestLoan(ctx context.Context, dexAmount string, deadlineMinutes int64) (*gateway.Receipt, error) {
	amount, err := units.ParsePositiveAmount(dexAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	deadline, err := units.DeadlineFromMinutes(time.Now(), deadlineMinutes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	account, err := d.account(ctx)
	if err != nil {
		return nil, err
	}

	receipt, err := d.gw.Send(ctx, gateway.ContractDefi, "loan",
		gateway.TxParams{From: account}, amount, deadline)
	if err != nil {
		observeAction("request_loan", err)
		return nil, err
	}
	observeAction("request_loan", nil)
	d.refreshBalances(ctx, account)
	d.refreshLoans(ctx, account)
	return receipt, nil
}

// MakePayment pays an instalment on a loan already present in the registry.
func (d *Dispatcher) MakePayment(ctx context.Context, loanID uint64, ethAmount string) (*gateway.Receipt, error) {
	if _, ok := d.store.Loan(loanID); !ok {
		return nil, fmt.Errorf("%w: unknown loan %d", ErrInvalidInput, loanID)
	}
	wei, err := units.ParsePositiveAmount(ethAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	account, err := d.account(ctx)
	if err != nil {
		return nil, err
	}

	receipt, err := d.gw.Send(ctx, gateway.ContractDefi, "makePayment",
		gateway.TxParams{From: account, Value: wei}, loanID, wei)
	if err != nil {
		observeAction("make_payment", err)
		return nil, err
	}
	observeAction("make_payment", nil)
	d.refreshBalances(ctx, account)
	return receipt, nil
}

// TerminationQuote returns the wei the contract demands to settle a loan
// early. The UI shows it for confirmation before TerminateLoan runs; the
// amount is never user-entered.
func (d *Dispatcher) TerminationQuote(ctx context.Context, loanID uint64) (*big.Int, error) {
	if _, ok := d.store.Loan(loanID); !ok {
		return nil, fmt.Errorf("%w: unknown loan %d", ErrInvalidInput, loanID)
	}
	values, err := d.gw.Call(ctx, gateway.ContractDefi, "getValueToTerminateLoan", loanID)
	if err != nil {
		return nil, err
	}
	quote, ok := firstBig(values)
	if !ok {
		return nil, fmt.Errorf("getValueToTerminateLoan: unexpected result %v", values)
	}
	return quote, nil
}

// TerminateLoan settles a loan for the contract-quoted repayment value. The
// quote is re-fetched at send time so a stale confirmation cannot underpay.
func (d *Dispatcher) TerminateLoan(ctx context.Context, loanID uint64) (*gateway.Receipt, error) {
	quote, err := d.TerminationQuote(ctx, loanID)
	if err != nil {
		observeAction("terminate_loan", err)
		return nil, err
	}
	account, err := d.account(ctx)
	if err != nil {
		return nil, err
	}

	receipt, err := d.gw.Send(ctx, gateway.ContractDefi, "terminateLoan",
		gateway.TxParams{From: account, Value: quote}, loanID)
	if err != nil {
		observeAction("terminate_loan", err)
		return nil, err
	}
	observeAction("terminate_loan", nil)
	d.refreshBalances(ctx, account)
	d.refreshLoans(ctx, account)
	return receipt, nil
}

// RequestNftLoan opens a loan collateralised by one of the caller's
// available tokens. The contract needs transfer rights first, so an ERC-721
// approve for the lending contract precedes the request itself.
func (d *Dispatcher) RequestNftLoan(ctx context.Context, nftContract, tokenID, ethAmount string, deadlineMinutes int64) (*gateway.Receipt, error) {
	wei, err := units.ParsePositiveAmount(ethAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	deadline, err := units.DeadlineFromMinutes(time.Now(), deadlineMinutes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	account, err := d.account(ctx)
	if err != nil {
		return nil, err
	}

	key := registry.NewNftKey(nftContract, tokenID)
	if !nftAvailable(d.store, account, key) {
		return nil, fmt.Errorf("%w: token %s/%s is not available as collateral", ErrInvalidInput, nftContract, tokenID)
	}

	lendingAddr, err := d.lendingContractAddress()
	if err != nil {
		return nil, err
	}
	if _, err := d.gw.Send(ctx, gateway.ContractNft, "approve",
		gateway.TxParams{From: account}, lendingAddr, tokenID); err != nil {
		observeAction("request_nft_loan", err)
		return nil, fmt.Errorf("approve collateral transfer: %w", err)
	}

	receipt, err := d.gw.Send(ctx, gateway.ContractDefi, "makeLoanRequestByNft",
		gateway.TxParams{From: account}, nftContract, tokenID, wei, deadline)
	if err != nil {
		observeAction("request_nft_loan", err)
		return nil, err
	}
	observeAction("request_nft_loan", nil)
	d.refreshBalances(ctx, account)
	d.refreshLoans(ctx, account)
	return receipt, nil
}

// CancelNftLoanRequest withdraws an NFT-backed request and releases the
// collateral reference so the token shows as available again.
func (d *Dispatcher) CancelNftLoanRequest(ctx context.Context, loanID uint64) (*gateway.Receipt, error) {
	loan, ok := d.store.Loan(loanID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown loan %d", ErrInvalidInput, loanID)
	}
	if !loan.IsBasedOnNft {
		return nil, fmt.Errorf("%w: loan %d is not NFT-backed", ErrInvalidInput, loanID)
	}
	account, err := d.account(ctx)
	if err != nil {
		return nil, err
	}

	receipt, err := d.gw.Send(ctx, gateway.ContractDefi, "cancelLoanRequestByNft",
		gateway.TxParams{From: account}, loan.NftContract, loan.NftID)
	if err != nil {
		observeAction("cancel_nft_loan", err)
		return nil, err
	}
	observeAction("cancel_nft_loan", nil)
	d.sync.ReleaseCollateral(loan.CollateralKey())
	d.refreshBalances(ctx, account)
	d.refreshLoans(ctx, account)
	return receipt, nil
}

// AcceptNftLoanRequest funds another borrower's NFT-backed request.
func (d *Dispatcher) AcceptNftLoanRequest(ctx context.Context, loanID uint64) (*gateway.Receipt, error) {
	loan, ok := d.store.Loan(loanID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown loan %d", ErrInvalidInput, loanID)
	}
	if !loan.IsBasedOnNft {
		return nil, fmt.Errorf("%w: loan %d is not NFT-backed", ErrInvalidInput, loanID)
	}
	account, err := d.account(ctx)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(loan.Borrower, account) {
		return nil, fmt.Errorf("%w: cannot fund your own loan request", ErrInvalidInput)
	}

	receipt, err := d.gw.Send(ctx, gateway.ContractDefi, "loanByNft",
		gateway.TxParams{From: account, Value: loan.Amount}, loan.NftContract, loan.NftID)
	if err != nil {
		observeAction("accept_nft_loan", err)
		return nil, err
	}
	observeAction("accept_nft_loan", nil)
	d.refreshBalances(ctx, account)
	d.refreshLoans(ctx, account)
	return receipt, nil
}

// MintNft mints a token at the fixed protocol price.
func (d *Dispatcher) MintNft(ctx context.Context, uri string) (*gateway.Receipt, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("%w: token URI must not be empty", ErrInvalidInput)
	}
	account, err := d.account(ctx)
	if err != nil {
		return nil, err
	}

	receipt, err := d.gw.Send(ctx, gateway.ContractNft, "mint",
		gateway.TxParams{From: account, Value: d.mintFee}, uri)
	if err != nil {
		observeAction("mint_nft", err)
		return nil, err
	}
	observeAction("mint_nft", nil)
	d.refreshNfts(ctx, account)
	return receipt, nil
}

// SetSwapRate updates the contract's ETH→DEX rate. Owner-only on chain; the
// contract enforces that, this layer only validates the number.
func (d *Dispatcher) SetSwapRate(ctx context.Context, rate string) (*gateway.Receipt, error) {
	value, ok := new(big.Int).SetString(rate, 10)
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: rate %q must be a positive integer", ErrInvalidInput, rate)
	}
	account, err := d.account(ctx)
	if err != nil {
		return nil, err
	}

	receipt, err := d.gw.Send(ctx, gateway.ContractDefi, "setRateEthToDex",
		gateway.TxParams{From: account}, value)
	if err != nil {
		observeAction("set_swap_rate", err)
		return nil, err
	}
	observeAction("set_swap_rate", nil)
	d.refreshBalances(ctx, account)
	return receipt, nil
}

// lendingContractAddress is the approve target for collateral transfers.
func (d *Dispatcher) lendingContractAddress() (string, error) {
	addr, ok := d.gw.ContractAddress(gateway.ContractDefi)
	if !ok {
		return "", fmt.Errorf("gateway does not know the lending contract address")
	}
	return addr, nil
}

func nftAvailable(store *registry.Store, account string, key registry.NftKey) bool {
	for _, n := range registry.AvailableNfts(store, account) {
		if n.Key() == key {
			return true
		}
	}
	return false
}

// The refresh helpers run after the chain confirmed a write. A refresh
/// failure is logged, not returned: the action already succeeded and the next
// poll tick repairs the registry.
func (d *Dispatcher) refreshBalances(ctx context.Context, account string) {
	if err := d.sync.RefreshBalances(ctx, account); err != nil {
		log.Warn().Err(err).Msg("Balance refresh after action failed")
	}
}

func (d *Dispatcher) refreshLoans(ctx context.Context, account string) {
	if err := d.sync.RefreshLoans(ctx, account); err != nil {
		log.Warn().Err(err).Msg("Loan refresh after action failed")
	}
}

func (d *Dispatcher) refreshNfts(ctx context.Context, account string) {
	if err := d.sync.RefreshNfts(ctx, account); err != nil {
		log.Warn().Err(err).Msg("NFT refresh after action failed")
	}
}

func firstBig(values []any) (*big.Int, bool) {
	if len(values) == 0 {
		return nil, false
	}
	b, ok := values[0].(*big.Int)
	return b, ok
}
