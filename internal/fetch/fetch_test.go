package fetch

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/restake-risk-ea/internal/config"
	"github.com/yourorg/restake-risk-ea/internal/types"
)

const testOperator = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func testServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func testOptions(srv *httptest.Server) Options {
	return Options{HTTPClient: srv.Client()}
}

func TestRequester_NonOKStatus(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	r := newRequester("test", testOptions(srv))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = r.do(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestRequester_RateLimitHonoursContext(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	r := newRequester("test", Options{HTTPClient: srv.Client(), RPS: 0.001, Burst: 1})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = r.do(context.Background(), req)
	require.NoError(t, err)

	// the single token is spent; the next wait exceeds the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.do(ctx, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestBeaconchainClient_FetchUptime(t *testing.T) {
	tests := []struct {
		name       string
		indices    []int
		body       string
		wantPath   string
		wantUptime float64
		wantMissed int
		wantTotal  int
		wantCount  int
	}{
		{
			name:       "single validator object",
			indices:    []int{42},
			body:       `{"status":"OK","data":{"validatorindex":42,"attestations":2000,"missed_attestations":10}}`,
			wantPath:   "/validator/42/performance",
			wantUptime: 99.5,
			wantMissed: 10,
			wantTotal:  2000,
			wantCount:  1,
		},
		{
			name:    "validator array",
			indices: []int{1, 2},
			body: `{"status":"OK","data":[
				{"validatorindex":1,"attestations":1500,"missed_attestations":3},
				{"validatorindex":2,"attestations":1500,"missed_attestations":0}
			]}`,
			wantPath:   "/validator/1,2/performance",
			wantUptime: 99.9,
			wantMissed: 3,
			wantTotal:  3000,
			wantCount:  2,
		},
		{
			name:       "no attestations yet",
			indices:    []int{7},
			body:       `{"data":{"attestations":0,"missed_attestations":0}}`,
			wantPath:   "/validator/7/performance",
			wantUptime: 100,
			wantCount:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.wantPath, r.URL.Path)
				assert.Equal(t, "secret", r.Header.Get("apikey"))
				_, _ = w.Write([]byte(tt.body))
			})

			cfg := config.Config{
				BeaconchainURL:    srv.URL + "/",
				BeaconchainAPIKey: "secret",
				ValidatorIndices:  tt.indices,
				DVTProtected:      true,
				ClientDiversity:   config.ClientDiversity{Note: "mixed", Score: 75},
			}
			uptime, err := NewBeaconchainClient(cfg, testOptions(srv)).FetchUptime(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.wantUptime, uptime.UptimePct)
			assert.Equal(t, tt.wantMissed, uptime.MissedAttestations)
			assert.Equal(t, tt.wantTotal, uptime.TotalAttestations)
			assert.Equal(t, tt.wantCount, uptime.ValidatorCount)
			assert.True(t, uptime.DVTProtected)
			assert.Equal(t, 75, uptime.ClientDiversityScore)
		})
	}
}

func TestBeaconchainClient_NotConfigured(t *testing.T) {
	c := NewBeaconchainClient(config.Config{BeaconchainURL: "http://unused"}, Options{})
	_, err := c.FetchUptime(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestBeaconchainClient_MissingData(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ERROR"}`))
	})
	cfg := config.Config{BeaconchainURL: srv.URL, ValidatorIndices: []int{1}}
	_, err := NewBeaconchainClient(cfg, testOptions(srv)).FetchUptime(context.Background())
	assert.Error(t, err)
}

func TestQuoteVenue(t *testing.T) {
	tests := []struct {
		name    string
		depth   float64
		feeTier int
		wantBps int
		wantFee float64
	}{
		{"deep pool low fee", 5_500_000, 100, 19, 1.0},
		{"deep pool mid fee", 5_500_000, 500, 23, 5.0},
		{"shallow pool", 100_000, 3000, 1030, 30.0},
		{"tiny pool capped", 1, 500, 9999, 5.0},
		{"dust pool", 1e-13, 3000, 9999, 30.0},
		{"no depth", 0, 500, 9999, 5.0},
		{"unpriced depth", math.NaN(), 100, 9999, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := QuoteVenue("Ethereum", "weETH/WETH", tt.depth, tt.feeTier, 10000)
			assert.Equal(t, tt.wantBps, v.SlippageBps)
			assert.Equal(t, tt.wantFee, v.FeeUSD)
			assert.Equal(t, VenueName, v.Venue)
		})
	}
}

func TestSubgraphClient_FetchLiquidity(t *testing.T) {
	ethereum := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"data":{"pools":[
			{"id":"0x1","token0":{"symbol":"weETH"},"token1":{"symbol":"WETH"},"feeTier":"100","totalValueLockedUSD":"5500000"},
			{"id":"0x2","token0":{"symbol":"weETH"},"token1":{"symbol":"WETH"},"feeTier":"500","totalValueLockedUSD":"2000000"}
		]}}`))
	})
	arbitrum := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	base := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"pools":[
			{"id":"0x3","token0":{"symbol":"WETH"},"token1":{"symbol":"weETH"},"feeTier":"500","totalValueLockedUSD":"1000000"}
		]}}`))
	})

	cfg := config.Config{
		ReferenceTradeUSD: 10000,
		Chains: map[types.SupportedChain]types.ChainConfig{
			types.ChainEthereum: {Enabled: true, SubgraphURL: ethereum.URL, WrappedToken: "0xA", PairToken: "0xB"},
			types.ChainArbitrum: {Enabled: true, SubgraphURL: arbitrum.URL, WrappedToken: "0xA", PairToken: "0xB"},
			types.ChainBase:     {Enabled: true, SubgraphURL: base.URL, WrappedToken: "0xA", PairToken: "0xB"},
			types.ChainPolygon:  {Enabled: false, SubgraphURL: "http://disabled"},
		},
	}

	profile, err := NewSubgraphClient(cfg, Options{HTTPClient: http.DefaultClient}).FetchLiquidity(context.Background())
	require.NoError(t, err)

	require.Len(t, profile.Venues, 2)
	assert.Equal(t, 10000, profile.ReferenceTradeUSD)

	assert.Equal(t, "Base", profile.Venues[0].Chain)
	assert.Equal(t, "WETH/weETH", profile.Venues[0].Pool)
	assert.Equal(t, 105, profile.Venues[0].SlippageBps)

	assert.Equal(t, "Ethereum", profile.Venues[1].Chain)
	assert.Equal(t, 19, profile.Venues[1].SlippageBps)
	assert.Equal(t, 5_500_000.0, profile.Venues[1].DepthUSD)
}

func TestSubgraphClient_AllChainsFail(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"indexer unavailable"}]}`))
	})
	cfg := config.Config{
		ReferenceTradeUSD: 10000,
		Chains: map[types.SupportedChain]types.ChainConfig{
			types.ChainEthereum: {Enabled: true, SubgraphURL: srv.URL},
		},
	}

	_, err := NewSubgraphClient(cfg, testOptions(srv)).FetchLiquidity(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexer unavailable")
}

func TestSubgraphClient_NoChains(t *testing.T) {
	_, err := NewSubgraphClient(config.Config{}, Options{}).FetchLiquidity(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestEigenLayerClient_Configured(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr error
	}{
		{"missing key", config.Config{OperatorAddress: testOperator}, ErrMissingCredential},
		{"missing operator", config.Config{EigenLayerAPIKey: "k"}, ErrNotConfigured},
		{"bad operator", config.Config{EigenLayerAPIKey: "k", OperatorAddress: "0x12"}, ErrNotConfigured},
		{"ok", config.Config{EigenLayerAPIKey: "k", OperatorAddress: testOperator}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEigenLayerClient(tt.cfg, Options{}).Configured()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// a missing credential is also a configuration gap
	err := NewEigenLayerClient(config.Config{}, Options{}).Configured()
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestEigenLayerClient_Fetch(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/operators/" + testOperator + "/avs":
			_, _ = w.Write([]byte(`{"active_avs":[
				{"name":"EigenDA","type":"Data Availability","allocation_pct":46.2,"audit_status":"audited"},
				{"name":"Witness Chain","type":"Oracle Network","allocation_pct":30.9,"audit_status":"audited"},
				{"name":"Lagrange","type":"ZK Coprocessor","allocation_pct":22.9,"audit_status":"in_progress"}
			],"historical_slashes":1}`))
		case "/operators/" + testOperator + "/restaking":
			_, _ = w.Write([]byte(`{"total_staked_eth":5000000,"restaked_eth":3100000}`))
		default:
			http.NotFound(w, r)
		}
	})

	cfg := config.Config{
		EigenLayerURL:    srv.URL,
		EigenLayerAPIKey: "key",
		OperatorAddress:  "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
	}
	c := NewEigenLayerClient(cfg, testOptions(srv))

	profile, err := c.FetchConcentration(context.Background())
	require.NoError(t, err)
	require.Len(t, profile.Shares, 3)
	assert.Equal(t, "EigenDA", profile.LargestShareName)
	assert.Equal(t, 46.2, profile.LargestSharePct)
	assert.InDelta(t, 0.3614, profile.HHI, 0.0001)
	assert.Equal(t, "mixed", profile.AuditStatus)
	assert.Equal(t, 1, profile.HistoricalSlashes)

	dist, err := c.FetchDistribution(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 62.0, dist.RestakedPct)
	assert.Equal(t, 38.0, dist.BaseStakePct)
}

func TestEigenLayerClient_EmptyResponses(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"active_avs":[],"total_staked_eth":0}`))
	})
	cfg := config.Config{EigenLayerURL: srv.URL, EigenLayerAPIKey: "key", OperatorAddress: testOperator}
	c := NewEigenLayerClient(cfg, testOptions(srv))

	_, err := c.FetchConcentration(context.Background())
	assert.Error(t, err)
	_, err = c.FetchDistribution(context.Background())
	assert.Error(t, err)
}

func TestDefiLlamaClient_FetchPrices(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/prices/current/coingecko:ethereum,")
		// lowercased address keys must still match
		_, _ = w.Write([]byte(`{"coins":{
			"coingecko:ethereum":{"price":3412.5,"symbol":"ETH"},
			"ethereum:0xcd5fe23c85820f7b72d0926fc9b05b43e359b7ee":{"price":3580.1},
			"ethereum:0x35fA164735182de50811E8e2E824cFb9B6118ac2":{"price":3410.9},
			"ethereum:0xdeadbeef":{"price":1}
		}}`))
	})

	cfg := config.Config{CoinsURL: srv.URL, YieldsURL: srv.URL}
	book, err := NewDefiLlamaClient(cfg, testOptions(srv)).FetchPrices(context.Background())
	require.NoError(t, err)

	assert.Len(t, book, 3)
	assert.Equal(t, 3412.5, book["ETH"])
	assert.Equal(t, 3410.9, book["eETH"])
	assert.Equal(t, 3580.1, book["weETH"])
	_, ok := book["ETHFI"]
	assert.False(t, ok)
}

func TestDefiLlamaClient_FetchYields(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pools", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"success","data":[
			{"pool":"abc","project":"ether.fi-stake","symbol":"EETH","apy":9,"tvlUsd":1},
			{"pool":"p1","project":"ether.fi","symbol":"EETH","apy":3.1,"apyBase":3.1,"apyReward":0,"tvlUsd":7000000000},
			{"pool":"p2","project":"ether-fi","symbol":"eETH","apy":3.3,"apyBase":3.0,"apyReward":0.3,"tvlUsd":8500000000},
			{"pool":"0xcd5fe23c85820f7b72d0926fc9b05b43e359b7ee-ethereum","project":"uniswap-v3","symbol":"WEETH-WETH","apy":2.5,"tvlUsd":40000000},
			{"pool":"p4","project":"etherfi","symbol":"LIQUIDUSD","apy":11.2,"apyBase":11.2,"tvlUsd":120000000},
			{"pool":"p5","project":"lido","symbol":"STETH","apy":3.0,"tvlUsd":30000000000}
		]}`))
	})

	cfg := config.Config{CoinsURL: srv.URL, YieldsURL: srv.URL}
	book, err := NewDefiLlamaClient(cfg, testOptions(srv)).FetchYields(context.Background())
	require.NoError(t, err)

	require.Len(t, book, 3)
	assert.Equal(t, 3.3, book["eETH"].TotalAPY)
	assert.Equal(t, 0.3, book["eETH"].RewardAPY)
	assert.Equal(t, 8.5e9, book["eETH"].TVLUSD)
	assert.Equal(t, 2.5, book["weETH"].TotalAPY)
	assert.Equal(t, 11.2, book["LiquidUSD"].TotalAPY)
}

func TestDefiLlamaClient_NoTrackedPools(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"pool":"x","project":"lido","symbol":"STETH","apy":3}]}`))
	})
	cfg := config.Config{CoinsURL: srv.URL, YieldsURL: srv.URL}
	_, err := NewDefiLlamaClient(cfg, testOptions(srv)).FetchYields(context.Background())
	assert.Error(t, err)
}
