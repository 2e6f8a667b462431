package gateway

import (
	"context"
	"errors"
	"math/big"
)

// Contract names the gateway routes by. The portal talks to exactly two
// deployed contracts: the lending/exchange contract and its companion ERC-721.
const (
	ContractDefi = "defi"
	ContractNft  = "nft"
)

// ErrNoWallet is returned when the endpoint manages no accounts. It is a
// fatal precondition for every write action.
var ErrNoWallet = errors.New("no accounts available")

// TxParams carries the transaction envelope for a write call. A nil Value
// sends no ether; a zero Gas lets the endpoint estimate.
type TxParams struct {
	From  string
	Value *big.Int
	Gas   uint64
}

// Receipt reports a mined, successful transaction. Reverted transactions are
// surfaced as errors, never as receipts.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// Event is one decoded contract event. Fields hold the event arguments keyed
// by ABI name; addresses are hex strings, numeric values are *big.Int.
// Handlers must tolerate missing or oddly typed fields.
type Event struct {
	Contract    string
	Name        string
	Fields      map[string]any
	BlockNumber uint64
	TxHash      string
}

// ChainGateway is the capability surface the portal consumes: account
// discovery, read calls, transaction submission and event push. Everything
// above this interface is testable without a wallet or a live chain.
type ChainGateway interface {
	// RequestAccounts lists the accounts the endpoint can sign for.
	// Returns ErrNoWallet when there are none.
	RequestAccounts(ctx context.Context) ([]string, error)

	// Call performs a read-only contract call and returns the unpacked
	// output values in declaration order.
	Call(ctx context.Context, contract, method string, args ...any) ([]any, error)

	// Send submits a state-changing transaction and waits for its receipt.
	// A revert is an error, not a partial success.
	Send(ctx context.Context, contract, method string, params TxParams, args ...any) (*Receipt, error)

	// Subscribe delivers decoded events for one contract event until ctx is
	// cancelled. The returned channel is closed on cancellation.
	Subscribe(ctx context.Context, contract, eventName string) (<-chan Event, error)

	// ContractAddress reports the deployed address bound to a contract name.
	ContractAddress(contract string) (string, bool)
}
