package config

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	getter "github.com/hashicorp/go-getter"
	"github.com/pelletier/go-toml/v2"
)

// Manifest describes one contract deployment: the endpoints to reach it and
// the addresses the portal binds to. Deployments publish it next to their
// artifacts, so the manifest can live on a remote host while the portal
// config stays local.
type Manifest struct {
	Endpoints []string `toml:"endpoints"`

	DefiContract string `toml:"defi_contract"`
	NftContract  string `toml:"nft_contract"`

	// MintPriceWei is a decimal string, wei amounts overflow toml integers.
	MintPriceWei string `toml:"mint_price_wei"`

	ReceiptTimeoutSeconds int `toml:"receipt_timeout_seconds"`
	LogPollSeconds        int `toml:"log_poll_seconds"`
	HealthCheckSeconds    int `toml:"health_check_seconds"`
}

// MintPrice parses MintPriceWei; an empty field means free mints.
func (m *Manifest) MintPrice() (*big.Int, error) {
	if m.MintPriceWei == "" {
		return big.NewInt(0), nil
	}
	price, ok := new(big.Int).SetString(m.MintPriceWei, 10)
	if !ok || price.Sign() < 0 {
		return nil, fmt.Errorf("mint_price_wei %q is not a non-negative integer", m.MintPriceWei)
	}
	return price, nil
}

// LoadManifest reads a deployment manifest from a local path or a remote
// source. Remote sources are fetched with go-getter, so plain https URLs and
// github.com/owner/repo//path forms both work.
func LoadManifest(src string) (*Manifest, error) {
	path := src
	if isRemote(src) {
		fetched, cleanup, err := fetchManifest(src)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		path = fetched
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := verifyManifest(&manifest); err != nil {
		return nil, fmt.Errorf("failed to verify manifest: %w", err)
	}
	return &manifest, nil
}

func isRemote(src string) bool {
	return strings.Contains(src, "://") || strings.HasPrefix(src, "github.com/")
}

func fetchManifest(src string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "portal-manifest-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create manifest dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	dst := filepath.Join(dir, "manifest.toml")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeFile,
		Detectors: []getter.Detector{
			&getter.GitHubDetector{},
		},
	}
	if err := client.Get(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	return dst, cleanup, nil
}

func verifyManifest(m *Manifest) error {
	if len(m.Endpoints) == 0 {
		return fmt.Errorf("endpoints is required")
	}
	for _, e := range m.Endpoints {
		if e == "" {
			return fmt.Errorf("endpoints must not be empty")
		}
	}

	if !common.IsHexAddress(m.DefiContract) {
		return fmt.Errorf("defi_contract %q is not a hex address", m.DefiContract)
	}
	if !common.IsHexAddress(m.NftContract) {
		return fmt.Errorf("nft_contract %q is not a hex address", m.NftContract)
	}

	if _, err := m.MintPrice(); err != nil {
		return err
	}

	if m.ReceiptTimeoutSeconds < 0 || m.LogPollSeconds < 0 || m.HealthCheckSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}
