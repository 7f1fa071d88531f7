// Package types contains shared type definitions used across multiple packages
package types

// SupportedChain represents a blockchain network with an indexed liquidity venue
type SupportedChain string

// Supported blockchain networks
const (
	ChainEthereum SupportedChain = "ethereum"
	ChainArbitrum SupportedChain = "arbitrum"
	ChainOptimism SupportedChain = "optimism"
	ChainPolygon  SupportedChain = "polygon"
	ChainBase     SupportedChain = "base"
)

// DisplayName returns the chain name as shown in liquidity tiles
func (c SupportedChain) DisplayName() string {
	switch c {
	case ChainEthereum:
		return "Ethereum"
	case ChainArbitrum:
		return "Arbitrum"
	case ChainOptimism:
		return "Optimism"
	case ChainPolygon:
		return "Polygon"
	case ChainBase:
		return "Base"
	default:
		return string(c)
	}
}

// ChainConfig holds the liquidity indexer settings for one chain
type ChainConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	SubgraphURL string `json:"subgraph_url" yaml:"subgraph_url"`
	APIKey      string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Token addresses used to locate the wrapped-token/WETH pools
	WrappedToken string `json:"wrapped_token" yaml:"wrapped_token"`
	PairToken    string `json:"pair_token" yaml:"pair_token"`
}

// DefaultChains returns the chains on which the wrapped staking token is
// known to trade against WETH
func DefaultChains() map[SupportedChain]ChainConfig {
	return map[SupportedChain]ChainConfig{
		ChainEthereum: {
			Enabled:      true,
			SubgraphURL:  "https://api.thegraph.com/subgraphs/name/uniswap/uniswap-v3",
			WrappedToken: "0xcd5fe23c85820f7b72d0926fc9b05b43e359b7ee",
			PairToken:    "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		},
		ChainArbitrum: {
			Enabled:      true,
			SubgraphURL:  "https://api.thegraph.com/subgraphs/name/ianlapham/uniswap-arbitrum-one",
			WrappedToken: "0x35751007a407ca6feffe80b3cb397736d2cf4dbe",
			PairToken:    "0x82af49447d8a07e3bd95bd0d56f35241523fbab1",
		},
		ChainBase: {
			Enabled:      true,
			SubgraphURL:  "https://api.studio.thegraph.com/query/48211/uniswap-v3-base/version/latest",
			WrappedToken: "0x04c0599ae5a44757c0af6f9ec3b93da8976c150a",
			PairToken:    "0x4200000000000000000000000000000000000006",
		},
	}
}
