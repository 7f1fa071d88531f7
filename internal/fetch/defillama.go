package fetch

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/yourorg/restake-risk-ea/internal/config"
	"github.com/yourorg/restake-risk-ea/internal/model"
)

// Token contracts on Ethereum mainnet
var (
	EETHAddress  = common.HexToAddress("0x35fA164735182de50811E8e2E824cFb9B6118ac2")
	WEETHAddress = common.HexToAddress("0xCd5fE23C85820F7B72D0926FC9b05b43E359b7ee")
	ETHFIAddress = common.HexToAddress("0xFe0c30065B384F05761f15d0CC899D4F9F9Cc0eB")
)

// ethCoinKey is the DefiLlama coin key for native ETH
const ethCoinKey = "coingecko:ethereum"

// priceKeys maps DefiLlama coin keys to the symbols of the price book
var priceKeys = map[string]string{
	ethCoinKey:                       "ETH",
	"ethereum:" + EETHAddress.Hex():  "eETH",
	"ethereum:" + WEETHAddress.Hex(): "weETH",
	"ethereum:" + ETHFIAddress.Hex(): "ETHFI",
}

// yieldTarget describes how a tracked asset is located in the pools list
type yieldTarget struct {
	symbol  string
	match   string
	address string
}

var yieldTargets = []yieldTarget{
	{symbol: "eETH", match: "EETH", address: strings.ToLower(EETHAddress.Hex())},
	{symbol: "weETH", match: "WEETH", address: strings.ToLower(WEETHAddress.Hex())},
	{symbol: "LiquidUSD", match: "LIQUIDUSD"},
}

// Project slugs the protocol has been listed under
var protocolProjects = map[string]bool{
	"ether.fi": true,
	"ether-fi": true,
	"etherfi":  true,
}

// DefiLlamaClient reads spot prices and pool yields from DefiLlama
type DefiLlamaClient struct {
	coinsURL  string
	yieldsURL string
	req       requester
}

// NewDefiLlamaClient creates a new DefiLlama client
func NewDefiLlamaClient(cfg config.Config, opts Options) *DefiLlamaClient {
	return &DefiLlamaClient{
		coinsURL:  strings.TrimRight(cfg.CoinsURL, "/"),
		yieldsURL: strings.TrimRight(cfg.YieldsURL, "/"),
		req:       newRequester("defillama", opts),
	}
}

// Configured reports ErrNotConfigured when either endpoint is blank
func (c *DefiLlamaClient) Configured() error {
	if c.coinsURL == "" || c.yieldsURL == "" {
		return fmt.Errorf("%w: DefiLlama endpoints", ErrNotConfigured)
	}
	return nil
}

// FetchPrices returns USD prices for ETH, eETH, weETH and ETHFI. Coins
// missing from the response are omitted from the book.
func (c *DefiLlamaClient) FetchPrices(ctx context.Context) (model.PriceBook, error) {
	if err := c.Configured(); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(priceKeys))
	keys = append(keys, ethCoinKey)
	for key := range priceKeys {
		if key != ethCoinKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys[1:])

	url := fmt.Sprintf("%s/prices/current/%s", c.coinsURL, strings.Join(keys, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	body, err := c.req.do(ctx, req)
	if err != nil {
		return nil, err
	}

	// Key casing in the response does not always match the request.
	lookup := make(map[string]string, len(priceKeys))
	for key, symbol := range priceKeys {
		lookup[strings.ToLower(key)] = symbol
	}

	book := model.PriceBook{}
	gjson.GetBytes(body, "coins").ForEach(func(key, value gjson.Result) bool {
		symbol, ok := lookup[strings.ToLower(key.String())]
		if !ok {
			return true
		}
		if price := value.Get("price"); price.Exists() {
			book[symbol] = price.Float()
		}
		return true
	})

	if len(book) == 0 {
		return nil, fmt.Errorf("no prices returned from DefiLlama")
	}
	return book, nil
}

// FetchYields returns the highest-TVL pool quote for each tracked asset
func (c *DefiLlamaClient) FetchYields(ctx context.Context) (model.YieldBook, error) {
	if err := c.Configured(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.yieldsURL+"/pools", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	body, err := c.req.do(ctx, req)
	if err != nil {
		return nil, err
	}

	pools := gjson.GetBytes(body, "data")
	if !pools.IsArray() {
		return nil, fmt.Errorf("DefiLlama pools response has no data array")
	}

	book := model.YieldBook{}
	pools.ForEach(func(_, pool gjson.Result) bool {
		for _, target := range yieldTargets {
			if !target.matches(pool) {
				continue
			}
			quote := model.YieldQuote{
				BaseAPY:   pool.Get("apyBase").Float(),
				RewardAPY: pool.Get("apyReward").Float(),
				TotalAPY:  pool.Get("apy").Float(),
				TVLUSD:    pool.Get("tvlUsd").Float(),
			}
			if existing, ok := book[target.symbol]; !ok || quote.TVLUSD > existing.TVLUSD {
				book[target.symbol] = quote
			}
		}
		return true
	})

	if len(book) == 0 {
		return nil, fmt.Errorf("no tracked pools found on DefiLlama")
	}

	logrus.WithField("assets", len(book)).Debug("Fetched yield quotes")
	return book, nil
}

func (t yieldTarget) matches(pool gjson.Result) bool {
	if t.address != "" && strings.Contains(strings.ToLower(pool.Get("pool").String()), t.address) {
		return true
	}
	project := strings.ToLower(pool.Get("project").String())
	return protocolProjects[project] && strings.EqualFold(pool.Get("symbol").String(), t.match)
}
