package gateway

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "gateway").Logger()
}

// SetLogger allows setting a custom logger.
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "gateway").Logger()
}

// Config configures the EVM gateway. The first endpoint is the primary; the
// rest are backups used when the primary fails.
type Config struct {
	Endpoints    []string
	DefiContract string
	NftContract  string

	// ReceiptTimeout bounds how long Send waits for a transaction to mine.
	ReceiptTimeout time.Duration
	// LogPollInterval is used on HTTP endpoints where eth_subscribe is not
	// available and logs are fetched by block polling instead.
	LogPollInterval time.Duration
	// HealthCheckInterval is how often a demoted primary is re-probed.
	HealthCheckInterval time.Duration
}

// DefaultConfig returns sensible defaults for a local development chain.
func DefaultConfig() Config {
	return Config{
		Endpoints:           []string{"http://127.0.0.1:8545"},
		ReceiptTimeout:      90 * time.Second,
		LogPollInterval:     5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

type boundContract struct {
	address common.Address
	abi     abi.ABI
}

type endpoint struct {
	url    string
	client *rpc.Client
	eth    *ethclient.Client
}

// EVM implements ChainGateway over JSON-RPC endpoints with node-managed
// accounts (eth_accounts / eth_sendTransaction), matching the wallet setup
// the portal was built against. Endpoint failover follows the primary/backup
// scheme: on failure the next endpoint takes over, and a background probe
// promotes the primary back once it responds again.
type EVM struct {
	cfg       Config
	endpoints []*endpoint
	contracts map[string]boundContract

	mu      sync.RWMutex
	current int

	healthOnce sync.Once
	healthStop chan struct{}
}

// NewEVM dials the configured endpoints and binds the two contract ABIs.
// At least one endpoint must be reachable at construction time.
func NewEVM(ctx context.Context, cfg Config) (*EVM, error) {
	if cfg.ReceiptTimeout == 0 {
		cfg.ReceiptTimeout = DefaultConfig().ReceiptTimeout
	}
	if cfg.LogPollInterval == 0 {
		cfg.LogPollInterval = DefaultConfig().LogPollInterval
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = DefaultConfig().HealthCheckInterval
	}
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}

	var eps []*endpoint
	for _, url := range cfg.Endpoints {
		client, err := rpc.DialContext(ctx, url)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("Endpoint unreachable, skipping")
			continue
		}
		eps = append(eps, &endpoint{url: url, client: client, eth: ethclient.NewClient(client)})
	}
	if len(eps) == 0 {
		return nil, fmt.Errorf("no reachable endpoints out of %d configured", len(cfg.Endpoints))
	}

	defi, err := abi.JSON(strings.NewReader(defiABI))
	if err != nil {
		return nil, fmt.Errorf("parse lending contract abi: %w", err)
	}
	nft, err := abi.JSON(strings.NewReader(nftABI))
	if err != nil {
		return nil, fmt.Errorf("parse nft contract abi: %w", err)
	}

	g := &EVM{
		cfg:       cfg,
		endpoints: eps,
		contracts: map[string]boundContract{
			ContractDefi: {address: common.HexToAddress(cfg.DefiContract), abi: defi},
			ContractNft:  {address: common.HexToAddress(cfg.NftContract), abi: nft},
		},
		healthStop: make(chan struct{}),
	}
	if len(eps) > 1 {
		g.healthOnce.Do(func() { go g.probePrimary() })
	}
	log.Info().
		Str("primary", eps[0].url).
		Int("backups", len(eps)-1).
		Msg("EVM gateway initialised")
	return g, nil
}

// Close stops the health probe and closes every endpoint connection.
func (g *EVM) Close() {
	close(g.healthStop)
	for _, ep := range g.endpoints {
		ep.client.Close()
	}
}

// ContractAddress reports the deployed address bound to a contract name.
func (g *EVM) ContractAddress(contract string) (string, bool) {
	bc, ok := g.contracts[contract]
	if !ok {
		return "", false
	}
	return bc.address.Hex(), true
}

func (g *EVM) active() *endpoint {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.endpoints[g.current]
}

// failover advances to the next endpoint after a transport-level failure.
func (g *EVM) failover(from *endpoint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.endpoints[g.current] != from || len(g.endpoints) == 1 {
		return
	}
	g.current = (g.current + 1) % len(g.endpoints)
	log.Warn().
		Str("failed", from.url).
		Str("now", g.endpoints[g.current].url).
		Msg("Endpoint failover")
}

// probePrimary periodically re-checks endpoint 0 and promotes it back.
func (g *EVM) probePrimary() {
	ticker := time.NewTicker(g.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.healthStop:
			return
		case <-ticker.C:
			g.mu.RLock()
			demoted := g.current != 0
			g.mu.RUnlock()
			if !demoted {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			var id hexutil.Big
			err := g.endpoints[0].client.CallContext(ctx, &id, "eth_chainId")
			cancel()
			if err != nil {
				continue
			}
			g.mu.Lock()
			g.current = 0
			g.mu.Unlock()
			log.Info().Str("url", g.endpoints[0].url).Msg("Primary endpoint restored")
		}
	}
}

// withFailover runs fn against the active endpoint, demoting it and retrying
// on the remaining ones when the transport fails.
func (g *EVM) withFailover(fn func(ep *endpoint) error) error {
	var err error
	for range g.endpoints {
		ep := g.active()
		if err = fn(ep); err == nil {
			return nil
		}
		g.failover(ep)
	}
	return err
}

// RequestAccounts lists the endpoint-managed accounts.
func (g *EVM) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []common.Address
	err := g.withFailover(func(ep *endpoint) error {
		return ep.client.CallContext(ctx, &accounts, "eth_accounts")
	})
	if err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrNoWallet
	}
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.Hex()
	}
	return out, nil
}

// Call performs an eth_call against the named contract method.
func (g *EVM) Call(ctx context.Context, contract, method string, args ...any) ([]any, error) {
	bc, ok := g.contracts[contract]
	if !ok {
		return nil, fmt.Errorf("unknown contract %q", contract)
	}
	data, err := g.pack(bc, method, args...)
	if err != nil {
		return nil, err
	}

	var raw hexutil.Bytes
	msg := map[string]any{
		"to":   bc.address.Hex(),
		"data": hexutil.Encode(data),
	}
	err = g.withFailover(func(ep *endpoint) error {
		return ep.client.CallContext(ctx, &raw, "eth_call", msg, "latest")
	})
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", contract, method, err)
	}

	values, err := bc.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s.%s: %w", contract, method, err)
	}
	return values, nil
}

// Send submits eth_sendTransaction and waits for a successful receipt.
func (g *EVM) Send(ctx context.Context, contract, method string, params TxParams, args ...any) (*Receipt, error) {
	bc, ok := g.contracts[contract]
	if !ok {
		return nil, fmt.Errorf("unknown contract %q", contract)
	}
	if params.From == "" {
		return nil, fmt.Errorf("send %s.%s: missing from address", contract, method)
	}
	data, err := g.pack(bc, method, args...)
	if err != nil {
		return nil, err
	}

	tx := map[string]any{
		"from": params.From,
		"to":   bc.address.Hex(),
		"data": hexutil.Encode(data),
	}
	if params.Value != nil && params.Value.Sign() > 0 {
		tx["value"] = (*hexutil.Big)(params.Value)
	}
	if params.Gas > 0 {
		tx["gas"] = hexutil.Uint64(params.Gas)
	}

	var hash common.Hash
	err = g.withFailover(func(ep *endpoint) error {
		return ep.client.CallContext(ctx, &hash, "eth_sendTransaction", tx)
	})
	if err != nil {
		return nil, fmt.Errorf("send %s.%s: %w", contract, method, err)
	}
	return g.waitReceipt(ctx, contract, method, hash)
}

func (g *EVM) waitReceipt(ctx context.Context, contract, method string, hash common.Hash) (*Receipt, error) {
	deadline := time.NewTimer(g.cfg.ReceiptTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		var receipt *types.Receipt
		err := g.withFailover(func(ep *endpoint) error {
			return ep.client.CallContext(ctx, &receipt, "eth_getTransactionReceipt", hash)
		})
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return nil, fmt.Errorf("send %s.%s: transaction %s reverted", contract, method, hash.Hex())
			}
			return &Receipt{
				TxHash:      hash.Hex(),
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("send %s.%s: %w", contract, method, ctx.Err())
		case <-deadline.C:
			return nil, fmt.Errorf("send %s.%s: transaction %s not mined within %s",
				contract, method, hash.Hex(), g.cfg.ReceiptTimeout)
		case <-ticker.C:
		}
	}
}

// Subscribe delivers decoded events. Websocket endpoints use eth_subscribe;
// HTTP endpoints fall back to eth_getLogs block polling.
func (g *EVM) Subscribe(ctx context.Context, contract, eventName string) (<-chan Event, error) {
	bc, ok := g.contracts[contract]
	if !ok {
		return nil, fmt.Errorf("unknown contract %q", contract)
	}
	ev, ok := bc.abi.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("unknown event %s.%s", contract, eventName)
	}

	out := make(chan Event, 16)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{bc.address},
		Topics:    [][]common.Hash{{ev.ID}},
	}
	if isWebsocket(g.active().url) {
		go g.streamLogs(ctx, contract, bc, ev, query, out)
	} else {
		go g.pollLogs(ctx, contract, bc, ev, query, out)
	}
	return out, nil
}

func isWebsocket(url string) bool {
	return strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://")
}

func (g *EVM) streamLogs(ctx context.Context, contract string, bc boundContract, ev abi.Event, query ethereum.FilterQuery, out chan<- Event) {
	defer close(out)
	for {
		logs := make(chan types.Log, 16)
		sub, err := g.active().eth.SubscribeFilterLogs(ctx, query, logs)
		if err != nil {
			log.Warn().Err(err).Str("event", ev.Name).Msg("Log subscription failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(g.cfg.LogPollInterval):
				continue
			}
		}
		if !g.forwardLogs(ctx, contract, bc, ev, sub, logs, out) {
			return
		}
	}
}

// forwardLogs pumps one subscription; returns false when ctx ended.
func (g *EVM) forwardLogs(ctx context.Context, contract string, bc boundContract, ev abi.Event, sub ethereum.Subscription, logs <-chan types.Log, out chan<- Event) bool {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return false
		case err := <-sub.Err():
			log.Warn().Err(err).Str("event", ev.Name).Msg("Log subscription dropped, resubscribing")
			return true
		case lg := <-logs:
			g.emit(contract, bc, ev, lg, out)
		}
	}
}

func (g *EVM) pollLogs(ctx context.Context, contract string, bc boundContract, ev abi.Event, query ethereum.FilterQuery, out chan<- Event) {
	defer close(out)

	var from uint64
	if head, err := g.active().eth.BlockNumber(ctx); err == nil {
		from = head + 1
	}

	ticker := time.NewTicker(g.cfg.LogPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		head, err := g.active().eth.BlockNumber(ctx)
		if err != nil || head < from {
			continue
		}
		q := query
		q.FromBlock = new(big.Int).SetUint64(from)
		q.ToBlock = new(big.Int).SetUint64(head)
		entries, err := g.active().eth.FilterLogs(ctx, q)
		if err != nil {
			log.Warn().Err(err).Str("event", ev.Name).Msg("Log poll failed")
			continue
		}
		for _, lg := range entries {
			g.emit(contract, bc, ev, lg, out)
		}
		from = head + 1
	}
}

func (g *EVM) emit(contract string, bc boundContract, ev abi.Event, lg types.Log, out chan<- Event) {
	fields, err := decodeLog(bc.abi, ev, lg)
	if err != nil {
		// Malformed events are dropped, never fatal; the next full refresh
		// repairs any gap.
		log.Warn().Err(err).Str("event", ev.Name).Str("tx", lg.TxHash.Hex()).Msg("Dropping undecodable event")
		return
	}
	out <- Event{
		Contract:    contract,
		Name:        ev.Name,
		Fields:      fields,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
	}
}

func decodeLog(contractABI abi.ABI, ev abi.Event, lg types.Log) (map[string]any, error) {
	fields := make(map[string]any)

	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(indexed) > 0 {
		if len(lg.Topics) < len(indexed)+1 {
			return nil, fmt.Errorf("event %s: %d topics for %d indexed args", ev.Name, len(lg.Topics), len(indexed))
		}
		if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
			return nil, fmt.Errorf("event %s topics: %w", ev.Name, err)
		}
	}
	if len(lg.Data) > 0 {
		if err := contractABI.UnpackIntoMap(fields, ev.Name, lg.Data); err != nil {
			return nil, fmt.Errorf("event %s data: %w", ev.Name, err)
		}
	}
	for k, v := range fields {
		if addr, ok := v.(common.Address); ok {
			fields[k] = addr.Hex()
		}
	}
	return fields, nil
}

// pack coerces loosely typed arguments (hex strings, uint64) into the ABI
// types before encoding, so callers do not need go-ethereum types.
func (g *EVM) pack(bc boundContract, method string, args ...any) ([]byte, error) {
	m, ok := bc.abi.Methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown method %q", method)
	}
	if len(args) != len(m.Inputs) {
		return nil, fmt.Errorf("method %s wants %d args, got %d", method, len(m.Inputs), len(args))
	}
	coerced := make([]any, len(args))
	for i, arg := range args {
		v, err := coerceArg(m.Inputs[i].Type, arg)
		if err != nil {
			return nil, fmt.Errorf("method %s arg %d: %w", method, i, err)
		}
		coerced[i] = v
	}
	data, err := bc.abi.Pack(method, coerced...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

func coerceArg(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		switch a := v.(type) {
		case common.Address:
			return a, nil
		case string:
			if !common.IsHexAddress(a) {
				return nil, fmt.Errorf("invalid address %q", a)
			}
			return common.HexToAddress(a), nil
		}
	case abi.UintTy, abi.IntTy:
		switch n := v.(type) {
		case *big.Int:
			return n, nil
		case uint64:
			return new(big.Int).SetUint64(n), nil
		case int64:
			return big.NewInt(n), nil
		case int:
			return big.NewInt(int64(n)), nil
		case string:
			b, ok := new(big.Int).SetString(n, 10)
			if !ok {
				return nil, fmt.Errorf("invalid integer %q", n)
			}
			return b, nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, t.String())
}
