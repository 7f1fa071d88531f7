package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/yourorg/restake-risk-ea/internal/config"
	"github.com/yourorg/restake-risk-ea/internal/model"
	"github.com/yourorg/restake-risk-ea/internal/types"
)

// VenueName is the venue reported for subgraph pools
const VenueName = "Uniswap V3"

// Slippage quoted when a pool has no depth at all
const noDepthSlippageBps = 9999

const poolQuery = `{
  pools(
    where: { or: [ { token0: "%[1]s", token1: "%[2]s" }, { token0: "%[2]s", token1: "%[1]s" } ] },
    orderBy: totalValueLockedUSD,
    orderDirection: desc,
    first: 5
  ) {
    id
    token0 { symbol }
    token1 { symbol }
    feeTier
    totalValueLockedUSD
  }
}`

// SubgraphClient quotes wrapped-token/WETH pools on every enabled chain
type SubgraphClient struct {
	chains       map[types.SupportedChain]types.ChainConfig
	tradeUSD     int
	chainTimeout time.Duration
	req          requester
}

// NewSubgraphClient creates a client that fans out over the enabled chains
func NewSubgraphClient(cfg config.Config, opts Options) *SubgraphClient {
	return &SubgraphClient{
		chains:       cfg.Chains,
		tradeUSD:     cfg.ReferenceTradeUSD,
		chainTimeout: 10 * time.Second,
		req:          newRequester("uniswap", opts),
	}
}

// Configured reports ErrNotConfigured when no chain is enabled
func (c *SubgraphClient) Configured() error {
	if len(c.enabledChains()) == 0 {
		return fmt.Errorf("%w: no enabled subgraph chains", ErrNotConfigured)
	}
	return nil
}

// enabledChains returns the enabled chains in a stable order
func (c *SubgraphClient) enabledChains() []types.SupportedChain {
	var enabled []types.SupportedChain
	for chain, cc := range c.chains {
		if cc.Enabled && cc.SubgraphURL != "" {
			enabled = append(enabled, chain)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i] < enabled[j] })
	return enabled
}

// FetchLiquidity quotes the best pool of each chain. Chains that fail are
// skipped; the call fails only when no chain produced a pool.
func (c *SubgraphClient) FetchLiquidity(ctx context.Context) (model.LiquidityProfile, error) {
	if err := c.Configured(); err != nil {
		return model.LiquidityProfile{}, err
	}
	enabled := c.enabledChains()

	type chainResult struct {
		chain types.SupportedChain
		venue model.Venue
		err   error
	}

	var wg sync.WaitGroup
	resultCh := make(chan chainResult, len(enabled))

	for _, chain := range enabled {
		wg.Add(1)
		go func(chain types.SupportedChain) {
			defer wg.Done()

			chainCtx, cancel := context.WithTimeout(ctx, c.chainTimeout)
			defer cancel()

			venue, err := c.fetchChain(chainCtx, chain)
			resultCh <- chainResult{chain: chain, venue: venue, err: err}
		}(chain)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	profile := model.LiquidityProfile{ReferenceTradeUSD: c.tradeUSD}
	failures := make(map[types.SupportedChain]error)
	for result := range resultCh {
		if result.err != nil {
			failures[result.chain] = result.err
			logrus.WithFields(logrus.Fields{
				"chain": result.chain,
				"error": result.err,
			}).Warn("Subgraph chain fetch failed")
			continue
		}
		profile.Venues = append(profile.Venues, result.venue)
	}

	if len(profile.Venues) == 0 {
		for _, err := range failures {
			return model.LiquidityProfile{}, fmt.Errorf("multi-chain fetch failed: %w", err)
		}
		return model.LiquidityProfile{}, fmt.Errorf("no pools found on any chain")
	}

	sort.Slice(profile.Venues, func(i, j int) bool { return profile.Venues[i].Chain < profile.Venues[j].Chain })

	logrus.WithFields(logrus.Fields{
		"chains": len(enabled),
		"failed": len(failures),
		"venues": len(profile.Venues),
	}).Debug("Fetched liquidity venues")
	return profile, nil
}

// fetchChain queries one subgraph and returns its lowest-slippage pool
func (c *SubgraphClient) fetchChain(ctx context.Context, chain types.SupportedChain) (model.Venue, error) {
	cc := c.chains[chain]
	query := fmt.Sprintf(poolQuery, strings.ToLower(cc.WrappedToken), strings.ToLower(cc.PairToken))
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return model.Venue{}, fmt.Errorf("error encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cc.SubgraphURL, bytes.NewReader(payload))
	if err != nil {
		return model.Venue{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cc.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cc.APIKey)
	}

	body, err := c.req.do(ctx, req)
	if err != nil {
		return model.Venue{}, err
	}

	if errs := gjson.GetBytes(body, "errors"); errs.Exists() {
		return model.Venue{}, fmt.Errorf("subgraph error on %s: %s", chain, errs.Get("0.message").String())
	}

	pools := gjson.GetBytes(body, "data.pools").Array()
	if len(pools) == 0 {
		return model.Venue{}, fmt.Errorf("no pools found on %s", chain)
	}

	var best model.Venue
	for i, p := range pools {
		pair := p.Get("token0.symbol").String() + "/" + p.Get("token1.symbol").String()
		v := QuoteVenue(chain.DisplayName(), pair, p.Get("totalValueLockedUSD").Float(), int(p.Get("feeTier").Int()), c.tradeUSD)
		if i == 0 || v.SlippageBps < best.SlippageBps {
			best = v
		}
	}
	return best, nil
}

// QuoteVenue estimates slippage and fee of a reference trade against a pool:
// price impact trade/depth in bps plus the fee tier in bps. feeTier is in
// hundredths of a bip (3000 = 0.3%).
func QuoteVenue(chain, pool string, depthUSD float64, feeTier, tradeUSD int) model.Venue {
	v := model.Venue{
		Chain:    chain,
		Venue:    VenueName,
		Pool:     pool,
		DepthUSD: depthUSD,
		FeeTier:  feeTier,
	}
	v.FeeUSD = math.Round(float64(tradeUSD)*float64(feeTier)/1e6*100) / 100
	if !(depthUSD > 0) {
		v.SlippageBps = noDepthSlippageBps
		return v
	}
	// Clamp before converting: a dust pool overflows int.
	bps := math.Min(float64(tradeUSD)/depthUSD*10000+float64(feeTier)/100, noDepthSlippageBps)
	v.SlippageBps = int(bps)
	return v
}
