package gateway

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/zeebo/assert"
)

func mustABI(t *testing.T, raw string) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(raw))
	assert.NoError(t, err)
	return parsed
}

func TestEmbeddedABIsParse(t *testing.T) {
	defi := mustABI(t, defiABI)
	nft := mustABI(t, nftABI)

	for _, method := range []string{
		"buyDex", "sellDex", "loan", "makePayment", "terminateLoan",
		"getValueToTerminateLoan", "checkLoan", "makeLoanRequestByNft",
		"cancelLoanRequestByNft", "loanByNft", "setRateEthToDex",
		"rateEthToDex", "loanCount", "getLoanDetails", "getBalance",
		"getDexBalance", "balanceOf", "getTotalBorrowedAndNotPaidBackEth",
	} {
		_, ok := defi.Methods[method]
		assert.True(t, ok)
	}
	_, ok := defi.Events["loanCreated"]
	assert.True(t, ok)

	for _, method := range []string{"mint", "approve", "ownerOf", "tokenURI", "balanceOf", "tokenOfOwnerByIndex"} {
		_, ok := nft.Methods[method]
		assert.True(t, ok)
	}
	_, ok = nft.Events["Transfer"]
	assert.True(t, ok)
}

func TestDecodeLoanCreatedLog(t *testing.T) {
	defi := mustABI(t, defiABI)
	ev := defi.Events["loanCreated"]
	borrower := common.HexToAddress("0x00000000000000000000000000000000000000ab")

	data, err := ev.Inputs.NonIndexed().Pack(
		big.NewInt(5_000_000), big.NewInt(1_700_000_600), big.NewInt(7),
	)
	assert.NoError(t, err)

	lg := types.Log{
		Topics: []common.Hash{ev.ID, common.BytesToHash(common.LeftPadBytes(borrower.Bytes(), 32))},
		Data:   data,
	}
	fields, err := decodeLog(defi, ev, lg)
	assert.NoError(t, err)
	assert.Equal(t, borrower.Hex(), fields["borrower"].(string))
	assert.Equal(t, "7", fields["loanId"].(*big.Int).String())
	assert.Equal(t, "5000000", fields["amount"].(*big.Int).String())
}

func TestDecodeLogMissingTopicsFails(t *testing.T) {
	defi := mustABI(t, defiABI)
	ev := defi.Events["loanCreated"]

	_, err := decodeLog(defi, ev, types.Log{Topics: []common.Hash{ev.ID}})
	assert.NotNil(t, err)
}

func TestDecodeTransferLog(t *testing.T) {
	nft := mustABI(t, nftABI)
	ev := nft.Events["Transfer"]
	zero := common.Address{}
	to := common.HexToAddress("0x00000000000000000000000000000000000000cd")

	lg := types.Log{
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(common.LeftPadBytes(zero.Bytes(), 32)),
			common.BytesToHash(common.LeftPadBytes(to.Bytes(), 32)),
			common.BigToHash(big.NewInt(42)),
		},
	}
	fields, err := decodeLog(nft, ev, lg)
	assert.NoError(t, err)
	assert.Equal(t, zero.Hex(), fields["from"].(string))
	assert.Equal(t, to.Hex(), fields["to"].(string))
	assert.Equal(t, "42", fields["tokenId"].(*big.Int).String())
}

func TestCoerceArg(t *testing.T) {
	defi := mustABI(t, defiABI)
	addrType := defi.Methods["makeLoanRequestByNft"].Inputs[0].Type
	uintType := defi.Methods["makeLoanRequestByNft"].Inputs[1].Type

	got, err := coerceArg(addrType, "0x00000000000000000000000000000000000000ab")
	assert.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xab"), got.(common.Address))

	_, err = coerceArg(addrType, "not-an-address")
	assert.NotNil(t, err)

	for _, v := range []any{big.NewInt(9), uint64(9), int64(9), 9, "9"} {
		got, err = coerceArg(uintType, v)
		assert.NoError(t, err)
		assert.Equal(t, "9", got.(*big.Int).String())
	}
	_, err = coerceArg(uintType, "nine")
	assert.NotNil(t, err)
}

func TestPackRejectsArityMismatch(t *testing.T) {
	defi := mustABI(t, defiABI)
	g := &EVM{contracts: map[string]boundContract{
		ContractDefi: {abi: defi},
	}}

	_, err := g.pack(g.contracts[ContractDefi], "sellDex")
	assert.NotNil(t, err)
	_, err = g.pack(g.contracts[ContractDefi], "noSuchMethod", 1)
	assert.NotNil(t, err)

	data, err := g.pack(g.contracts[ContractDefi], "sellDex", big.NewInt(10))
	assert.NoError(t, err)
	// 4-byte selector + one 32-byte word
	assert.Equal(t, 36, len(data))
}
