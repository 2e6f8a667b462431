package actions

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/zeebo/assert"

	"github.com/dexlend-labs/dexlend-hub/portal/gateway"
	"github.com/dexlend-labs/dexlend-hub/portal/registry"
)

const (
	account  = "0xAbc0000000000000000000000000000000000001"
	lender   = "0xDef0000000000000000000000000000000000002"
	nftAddr  = "0x9990000000000000000000000000000000000003"
	defiAddr = "0x1000000000000000000000000000000000000001"
)

type sentTx struct {
	contract string
	method   string
	value    *big.Int
	args     []any
}

type fakeGateway struct {
	callFn  func(contract, method string, args ...any) ([]any, error)
	sendErr error
	sends   []sentTx
}

func (f *fakeGateway) RequestAccounts(ctx context.Context) ([]string, error) {
	return []string{account}, nil
}

func (f *fakeGateway) Call(ctx context.Context, contract, method string, args ...any) ([]any, error) {
	if f.callFn == nil {
		return nil, fmt.Errorf("unexpected call %s.%s", contract, method)
	}
	return f.callFn(contract, method, args...)
}

func (f *fakeGateway) Send(ctx context.Context, contract, method string, params gateway.TxParams, args ...any) (*gateway.Receipt, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sends = append(f.sends, sentTx{contract: contract, method: method, value: params.Value, args: args})
	return &gateway.Receipt{TxHash: "0xtx", BlockNumber: 7}, nil
}

func (f *fakeGateway) Subscribe(ctx context.Context, contract, eventName string) (<-chan gateway.Event, error) {
	ch := make(chan gateway.Event)
	close(ch)
	return ch, nil
}

func (f *fakeGateway) ContractAddress(contract string) (string, bool) {
	if contract != gateway.ContractDefi {
		return "", false
	}
	return defiAddr, true
}

type fakeRefresher struct {
	calls    []string
	released []registry.NftKey
}

func (f *fakeRefresher) RefreshLoans(ctx context.Context, account string) error {
	f.calls = append(f.calls, "loans")
	return nil
}

func (f *fakeRefresher) RefreshNfts(ctx context.Context, account string) error {
	f.calls = append(f.calls, "nfts")
	return nil
}

func (f *fakeRefresher) RefreshBalances(ctx context.Context, account string) error {
	f.calls = append(f.calls, "balances")
	return nil
}

func (f *fakeRefresher) ReleaseCollateral(key registry.NftKey) {
	f.released = append(f.released, key)
}

func newDispatcher(gw *fakeGateway) (*Dispatcher, *registry.Store, *fakeRefresher) {
	store := registry.NewStore()
	sync := &fakeRefresher{}
	return NewDispatcher(gw, store, sync, big.NewInt(100)), store, sync
}

func contains(calls []string, want string) bool {
	for _, c := range calls {
		if c == want {
			return true
		}
	}
	return false
}

func TestBuyTokenConvertsToWei(t *testing.T) {
	gw := &fakeGateway{}
	d, _, sync := newDispatcher(gw)

	receipt, err := d.BuyToken(context.Background(), "1.5")
	assert.NoError(t, err)
	assert.Equal(t, "0xtx", receipt.TxHash)

	assert.Equal(t, 1, len(gw.sends))
	tx := gw.sends[0]
	assert.Equal(t, gateway.ContractDefi, tx.contract)
	assert.Equal(t, "buyDex", tx.method)
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, 0, tx.value.Cmp(want))
	assert.True(t, contains(sync.calls, "balances"))
}

func TestBuyTokenRejectsBadAmount(t *testing.T) {
	gw := &fakeGateway{}
	d, _, sync := newDispatcher(gw)

	for _, amount := range []string{"", "abc", "-1", "0"} {
		_, err := d.BuyToken(context.Background(), amount)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	}
	assert.Equal(t, 0, len(gw.sends))
	assert.Equal(t, 0, len(sync.calls))
}

func TestSendFailureSkipsRefresh(t *testing.T) {
	gw := &fakeGateway{sendErr: errors.New("execution reverted")}
	d, _, sync := newDispatcher(gw)

	_, err := d.SellToken(context.Background(), "2")
	assert.Error(t, err)
	assert.Equal(t, 0, len(sync.calls))
}

func TestMakePaymentRequiresKnownLoan(t *testing.T) {
	gw := &fakeGateway{}
	d, store, _ := newDispatcher(gw)

	_, err := d.MakePayment(context.Background(), 3, "0.5")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	store.UpsertLoan(registry.Loan{ID: 3, Borrower: account, Amount: big.NewInt(1), Active: true})
	_, err = d.MakePayment(context.Background(), 3, "0.5")
	assert.NoError(t, err)

	tx := gw.sends[0]
	assert.Equal(t, "makePayment", tx.method)
	assert.Equal(t, uint64(3), tx.args[0].(uint64))
	assert.Equal(t, 0, tx.value.Cmp(tx.args[1].(*big.Int)))
}

func TestTerminateLoanPaysQuotedValue(t *testing.T) {
	quote := big.NewInt(123456789)
	gw := &fakeGateway{callFn: func(contract, method string, args ...any) ([]any, error) {
		assert.Equal(t, "getValueToTerminateLoan", method)
		return []any{new(big.Int).Set(quote)}, nil
	}}
	d, store, sync := newDispatcher(gw)
	store.UpsertLoan(registry.Loan{ID: 1, Borrower: account, Amount: big.NewInt(10), Active: true})

	_, err := d.TerminateLoan(context.Background(), 1)
	assert.NoError(t, err)

	tx := gw.sends[0]
	assert.Equal(t, "terminateLoan", tx.method)
	assert.Equal(t, 0, tx.value.Cmp(quote))
	assert.True(t, contains(sync.calls, "loans"))
}

func TestRequestNftLoanApprovesThenRequests(t *testing.T) {
	gw := &fakeGateway{}
	d, store, _ := newDispatcher(gw)
	store.UpsertNft(registry.Nft{Contract: nftAddr, TokenID: "7", Owner: account})

	_, err := d.RequestNftLoan(context.Background(), nftAddr, "7", "1", 60)
	assert.NoError(t, err)

	assert.Equal(t, 2, len(gw.sends))
	assert.Equal(t, gateway.ContractNft, gw.sends[0].contract)
	assert.Equal(t, "approve", gw.sends[0].method)
	assert.Equal(t, defiAddr, gw.sends[0].args[0].(string))
	assert.Equal(t, "makeLoanRequestByNft", gw.sends[1].method)
}

func TestRequestNftLoanRejectsUnavailableCollateral(t *testing.T) {
	gw := &fakeGateway{}
	d, store, _ := newDispatcher(gw)

	// Unknown token.
	_, err := d.RequestNftLoan(context.Background(), nftAddr, "7", "1", 60)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	// Known but already locked as collateral.
	id := uint64(4)
	store.UpsertNft(registry.Nft{Contract: nftAddr, TokenID: "7", Owner: account, InUseByLoanID: &id})
	_, err = d.RequestNftLoan(context.Background(), nftAddr, "7", "1", 60)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, 0, len(gw.sends))
}

func TestAcceptNftLoanRejectsOwnRequest(t *testing.T) {
	gw := &fakeGateway{}
	d, store, _ := newDispatcher(gw)
	store.UpsertLoan(registry.Loan{
		ID: 2, Borrower: account, Amount: big.NewInt(500),
		IsBasedOnNft: true, NftContract: nftAddr, NftID: "7",
	})

	_, err := d.AcceptNftLoanRequest(context.Background(), 2)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, 0, len(gw.sends))
}

func TestAcceptNftLoanFundsRequestedAmount(t *testing.T) {
	gw := &fakeGateway{}
	d, store, _ := newDispatcher(gw)
	store.UpsertLoan(registry.Loan{
		ID: 2, Borrower: lender, Amount: big.NewInt(500),
		IsBasedOnNft: true, NftContract: nftAddr, NftID: "7",
	})

	_, err := d.AcceptNftLoanRequest(context.Background(), 2)
	assert.NoError(t, err)

	tx := gw.sends[0]
	assert.Equal(t, "loanByNft", tx.method)
	assert.Equal(t, 0, tx.value.Cmp(big.NewInt(500)))
}

func TestCancelNftLoanReleasesCollateral(t *testing.T) {
	gw := &fakeGateway{}
	d, store, sync := newDispatcher(gw)
	id := uint64(2)
	store.UpsertLoan(registry.Loan{
		ID: 2, Borrower: account, Amount: big.NewInt(500),
		IsBasedOnNft: true, NftContract: nftAddr, NftID: "7",
	})
	store.UpsertNft(registry.Nft{Contract: nftAddr, TokenID: "7", Owner: account, InUseByLoanID: &id})

	_, err := d.CancelNftLoanRequest(context.Background(), 2)
	assert.NoError(t, err)
	assert.Equal(t, "cancelLoanRequestByNft", gw.sends[0].method)

	// The clear goes through the sync engine; the dispatcher never writes
	// the registry itself.
	assert.Equal(t, 1, len(sync.released))
	assert.Equal(t, registry.NewNftKey(nftAddr, "7"), sync.released[0])
	nft, ok := store.Nft(registry.NewNftKey(nftAddr, "7"))
	assert.True(t, ok)
	assert.Equal(t, id, *nft.InUseByLoanID)
}

func TestMintNft(t *testing.T) {
	gw := &fakeGateway{}
	d, _, sync := newDispatcher(gw)

	_, err := d.MintNft(context.Background(), "  ")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = d.MintNft(context.Background(), "ipfs://QmToken")
	assert.NoError(t, err)

	tx := gw.sends[0]
	assert.Equal(t, gateway.ContractNft, tx.contract)
	assert.Equal(t, "mint", tx.method)
	assert.Equal(t, 0, tx.value.Cmp(big.NewInt(100)))
	assert.True(t, contains(sync.calls, "nfts"))
}

func TestSetSwapRateValidatesRate(t *testing.T) {
	gw := &fakeGateway{}
	d, _, _ := newDispatcher(gw)

	for _, rate := range []string{"", "0", "-5", "1.5"} {
		_, err := d.SetSwapRate(context.Background(), rate)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	}

	_, err := d.SetSwapRate(context.Background(), "1000")
	assert.NoError(t, err)
	assert.Equal(t, "setRateEthToDex", gw.sends[0].method)
}
