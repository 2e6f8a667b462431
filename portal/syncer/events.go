package syncer

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/dexlend-labs/dexlend-hub/portal/gateway"
	"github.com/dexlend-labs/dexlend-hub/portal/registry"
)

// zeroAddress marks a mint in ERC-721 Transfer events.
const zeroAddress = "0x0000000000000000000000000000000000000000"

// HandleEvent applies one push event to the registry. Duplicate delivery is
// harmless (keyed upserts) and a malformed payload is logged and dropped,
// never fatal to the subscription.
func (e *Engine) HandleEvent(ctx context.Context, ev gateway.Event) {
	switch ev.Name {
	case "loanCreated":
		e.onLoanCreated(ctx, ev)
	case "Transfer":
		e.onNftTransfer(ev)
	default:
		observeEvent(ev.Name, fmt.Errorf("unhandled"))
		log.Debug().Str("event", ev.Name).Msg("Ignoring unhandled event")
	}
}

func (e *Engine) onLoanCreated(ctx context.Context, ev gateway.Event) {
	id, ok := fieldBig(ev.Fields, "loanId")
	if !ok {
		observeEvent(ev.Name, fmt.Errorf("missing loanId"))
		log.Warn().Str("tx", ev.TxHash).Msg("loanCreated event without loanId, dropping")
		return
	}

	details, err := e.gw.Call(ctx, gateway.ContractDefi, "getLoanDetails", id)
	if err != nil {
		observeEvent(ev.Name, err)
		log.Warn().Err(err).Str("loan", id.String()).Msg("Loan detail fetch after event failed")
		return
	}
	loan, err := parseLoan(details)
	if err != nil {
		observeEvent(ev.Name, err)
		log.Warn().Err(err).Str("loan", id.String()).Msg("Undecodable loan details, dropping event")
		return
	}

	e.store.UpsertLoan(loan)
	if loan.Active && loan.IsBasedOnNft {
		e.store.SetNftLoanRef(loan.CollateralKey(), loan.ID)
	}
	observeEvent(ev.Name, nil)
	log.Info().Uint64("loan", loan.ID).Str("borrower", loan.Borrower).Msg("Loan upserted from event")
}

// onNftTransfer records mints and ownership moves. The record is minimal
// (no tokenURI); the next full refresh completes it.
func (e *Engine) onNftTransfer(ev gateway.Event) {
	tokenID, ok := fieldBig(ev.Fields, "tokenId")
	if !ok {
		observeEvent(ev.Name, fmt.Errorf("missing tokenId"))
		log.Warn().Str("tx", ev.TxHash).Msg("Transfer event without tokenId, dropping")
		return
	}
	to, _ := fieldString(ev.Fields, "to")

	n := registry.Nft{
		Contract: e.cfg.NftContract,
		TokenID:  tokenID.String(),
		Owner:    to,
	}
	if existing, ok := e.store.Nft(n.Key()); ok {
		n.TokenURI = existing.TokenURI
		n.InUseByLoanID = existing.InUseByLoanID
	}
	e.store.UpsertNft(n)
	observeEvent(ev.Name, nil)

	from, _ := fieldString(ev.Fields, "from")
	if strings.EqualFold(from, zeroAddress) {
		log.Info().Str("token", tokenID.String()).Str("owner", to).Msg("Token minted")
	}
}

// parseLoan converts the getLoanDetails output tuple into a registry record.
// The contract-reported loanId, not the enumeration index, keys the store.
func parseLoan(values []any) (registry.Loan, error) {
	if len(values) != 11 {
		return registry.Loan{}, fmt.Errorf("want 11 output values, got %d", len(values))
	}
	id, ok := asBig(values[0])
	if !ok {
		return registry.Loan{}, fmt.Errorf("bad loanId %v", values[0])
	}
	deadline, ok := asBig(values[1])
	if !ok {
		return registry.Loan{}, fmt.Errorf("bad deadline %v", values[1])
	}
	amount, ok := asBig(values[2])
	if !ok {
		return registry.Loan{}, fmt.Errorf("bad amount %v", values[2])
	}
	lender, ok := asAddress(values[3])
	if !ok {
		return registry.Loan{}, fmt.Errorf("bad lender %v", values[3])
	}
	borrower, ok := asAddress(values[4])
	if !ok {
		return registry.Loan{}, fmt.Errorf("bad borrower %v", values[4])
	}
	active, ok := values[5].(bool)
	if !ok {
		return registry.Loan{}, fmt.Errorf("bad active flag %v", values[5])
	}
	payments, ok := asBig(values[6])
	if !ok {
		return registry.Loan{}, fmt.Errorf("bad numberOfPayments %v", values[6])
	}
	startTime, ok := asBig(values[7])
	if !ok {
		return registry.Loan{}, fmt.Errorf("bad startTime %v", values[7])
	}
	isNft, ok := values[8].(bool)
	if !ok {
		return registry.Loan{}, fmt.Errorf("bad isBasedOnNft flag %v", values[8])
	}

	loan := registry.Loan{
		ID:               id.Uint64(),
		Deadline:         deadline.Uint64(),
		Amount:           amount,
		Lender:           lender,
		Borrower:         borrower,
		Active:           active,
		NumberOfPayments: payments.Uint64(),
		StartTime:        startTime.Uint64(),
		IsBasedOnNft:     isNft,
	}
	if isNft {
		contract, ok := asAddress(values[9])
		if !ok {
			return registry.Loan{}, fmt.Errorf("bad nftContract %v", values[9])
		}
		nftID, ok := asBig(values[10])
		if !ok {
			return registry.Loan{}, fmt.Errorf("bad nftId %v", values[10])
		}
		loan.NftContract = contract
		loan.NftID = nftID.String()
	}
	return loan, nil
}

func firstBig(values []any) (*big.Int, bool) {
	if len(values) == 0 {
		return nil, false
	}
	return asBig(values[0])
}

func asBig(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		return n, true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case int64:
		return big.NewInt(n), true
	case int:
		return big.NewInt(int64(n)), true
	case string:
		b, ok := new(big.Int).SetString(n, 10)
		return b, ok
	}
	return nil, false
}

func asAddress(v any) (string, bool) {
	switch a := v.(type) {
	case string:
		return a, true
	case fmt.Stringer:
		// common.Address and friends
		return a.String(), true
	}
	return "", false
}

func fieldBig(fields map[string]any, key string) (*big.Int, bool) {
	v, ok := fields[key]
	if !ok {
		return nil, false
	}
	return asBig(v)
}

func fieldString(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	return asAddress(v)
}
