package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/backyardfi/vaultledger/internal/models"
	"github.com/backyardfi/vaultledger/internal/utils"
)

// VaultMetrics is one vault's metrics as reported by a platform API.
type VaultMetrics struct {
	TVLUSD        float64
	APY           float64
	AssetPriceUSD float64
	RewardRate    float64
}

// MetricsSource pulls current metrics for a platform's vaults. Results are
// keyed by vault id; a vault missing from the result simply gets no snapshot
// this cycle.
type MetricsSource interface {
	Platform() string
	FetchMetrics(ctx context.Context, vaults []models.Vault) (map[string]VaultMetrics, error)
}

// KaminoClient reads vault metrics from the Kamino kvaults API, one request
// per vault.
type KaminoClient struct {
	httpClient *utils.HTTPClient
}

// NewKaminoClient creates a Kamino metrics source against the given base URL
// (e.g. https://api.kamino.finance).
func NewKaminoClient(baseURL string) *KaminoClient {
	return &KaminoClient{
		httpClient: utils.NewHTTPClient(
			utils.WithBaseURL(baseURL),
			utils.WithRateLimit(2.0, 5),
		),
	}
}

func (c *KaminoClient) Platform() string { return models.PlatformKamino }

type kvaultMetrics struct {
	APY               float64 `json:"apy"`
	APYActual         float64 `json:"apyActual"`
	APYIncentives     float64 `json:"apyIncentives"`
	APYFarmRewards    float64 `json:"apyFarmRewards"`
	TokensInvestedUSD float64 `json:"tokensInvestedUsd"`
	TokenPrice        float64 `json:"tokenPrice"`
}

func (c *KaminoClient) FetchMetrics(ctx context.Context, vaults []models.Vault) (map[string]VaultMetrics, error) {
	result := make(map[string]VaultMetrics, len(vaults))
	for _, vault := range vaults {
		response, err := c.httpClient.Get(ctx, fmt.Sprintf("/kvaults/%s/metrics", vault.Address), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch kamino metrics for %s: %w", vault.Address, err)
		}
		var kv kvaultMetrics
		if err := response.DecodeJSON(&kv); err != nil {
			return nil, fmt.Errorf("failed to decode kamino metrics for %s: %w", vault.Address, err)
		}

		base := kv.APYActual
		if base == 0 {
			base = kv.APY
		}
		result[vault.ID] = VaultMetrics{
			TVLUSD:        kv.TokensInvestedUSD,
			APY:           base + kv.APYIncentives + kv.APYFarmRewards,
			AssetPriceUSD: kv.TokenPrice,
			RewardRate:    kv.APYIncentives,
		}
	}
	return result, nil
}

// JupiterClient reads vault metrics from the Jupiter lend token list: a
// single request covering every listed token, matched to vaults by address.
type JupiterClient struct {
	httpClient *utils.HTTPClient
}

// NewJupiterClient creates a Jupiter metrics source against the given base
// URL (e.g. https://api.solana.fluid.io).
func NewJupiterClient(baseURL string) *JupiterClient {
	return &JupiterClient{
		httpClient: utils.NewHTTPClient(
			utils.WithBaseURL(baseURL),
			utils.WithRateLimit(2.0, 5),
		),
	}
}

func (c *JupiterClient) Platform() string { return models.PlatformJupiter }

// bps denominator for the lend API's rate fields.
const bps = 10_000

type fluidToken struct {
	Address     string      `json:"address"`
	Decimals    json.Number `json:"decimals"`
	Price       json.Number `json:"price"`
	TotalAssets json.Number `json:"totalAssets"`
	TotalSupply json.Number `json:"totalSupply"`
	TotalRate   json.Number `json:"totalRate"`
	SupplyRate  json.Number `json:"supplyRate"`
	RewardsRate json.Number `json:"rewardsRate"`
	Asset       *struct {
		Decimals json.Number `json:"decimals"`
		Price    json.Number `json:"price"`
	} `json:"asset"`
}

func (c *JupiterClient) FetchMetrics(ctx context.Context, vaults []models.Vault) (map[string]VaultMetrics, error) {
	if len(vaults) == 0 {
		return map[string]VaultMetrics{}, nil
	}

	response, err := c.httpClient.Get(ctx, "/v1/lending/tokens", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jupiter lend tokens: %w", err)
	}
	var tokens []fluidToken
	if err := response.DecodeJSON(&tokens); err != nil {
		return nil, fmt.Errorf("failed to decode jupiter lend tokens: %w", err)
	}

	byAddress := make(map[string]fluidToken, len(tokens))
	for _, token := range tokens {
		byAddress[token.Address] = token
	}

	result := make(map[string]VaultMetrics, len(vaults))
	for _, vault := range vaults {
		token, ok := byAddress[vault.Address]
		if !ok {
			continue
		}

		decimals := toNum(token.Decimals, 9)
		price := toNum(token.Price, 0)
		if token.Asset != nil {
			decimals = toNum(token.Asset.Decimals, decimals)
			price = toNum(token.Asset.Price, price)
		}

		totalAssetsRaw := toNum(token.TotalAssets, toNum(token.TotalSupply, 0))
		totalAssets := totalAssetsRaw / math.Pow(10, decimals)

		rateBps := toNum(token.TotalRate, 0)
		if rateBps == 0 {
			rateBps = toNum(token.SupplyRate, 0) + toNum(token.RewardsRate, 0)
		}

		result[vault.ID] = VaultMetrics{
			TVLUSD:        totalAssets * price,
			APY:           rateBps / bps,
			AssetPriceUSD: price,
			RewardRate:    toNum(token.RewardsRate, 0) / bps,
		}
	}
	return result, nil
}

// toNum converts the API's loosely typed numeric fields, falling back when
// the field is absent or unparseable.
func toNum(n json.Number, fallback float64) float64 {
	if n == "" {
		return fallback
	}
	v, err := n.Float64()
	if err != nil {
		return fallback
	}
	return v
}
