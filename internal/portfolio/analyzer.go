// Package portfolio annotates caller holdings with price, yield, risk and
// liquidity, and folds them into value-weighted portfolio metrics.
package portfolio

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/yourorg/restake-risk-ea/internal/concentration"
	"github.com/yourorg/restake-risk-ea/internal/model"
	"github.com/yourorg/restake-risk-ea/internal/validation"
)

// Inputs is the upstream picture holdings are annotated with.
type Inputs struct {
	Uptime       model.OperatorUptime
	Liquidity    model.LiquidityProfile
	Distribution model.DistributionProfile
	Prices       model.PriceBook
	Yields       model.YieldBook
}

// Analysis is the annotated asset list and its aggregates.
type Analysis struct {
	Assets  []model.PortfolioAsset `json:"assets"`
	Metrics model.PortfolioMetrics `json:"metrics"`
}

// Analyzer is stateless apart from its asset catalog and safe for concurrent use.
type Analyzer struct {
	assets map[string]assetSpec
}

// NewAnalyzer creates an analyzer over the supported asset catalog
func NewAnalyzer() *Analyzer {
	return &Analyzer{assets: catalog()}
}

// Supports reports whether a symbol is in the catalog. Matching is
// case-insensitive.
func (a *Analyzer) Supports(symbol string) bool {
	_, ok := a.lookup(symbol)
	return ok
}

// Symbols lists the canonical symbols of the catalog.
func (a *Analyzer) Symbols() []string {
	return []string{SymbolETH, SymbolEETH, SymbolWEETH, SymbolLiquidUSD}
}

func (a *Analyzer) lookup(symbol string) (assetSpec, bool) {
	s, ok := a.assets[strings.ToUpper(strings.TrimSpace(symbol))]
	return s, ok
}

// Analyze validates the holdings and annotates them. Zero balances are
// skipped and repeated symbols are merged in first-seen order. The only error
// is validation.ErrInvalidHolding.
func (a *Analyzer) Analyze(holdings []model.Holding, in Inputs) (Analysis, error) {
	if err := validation.CheckHoldings(holdings, a.Supports); err != nil {
		return Analysis{}, err
	}

	var (
		order    []string
		balances = map[string]float64{}
	)
	for _, h := range holdings {
		spec, _ := a.lookup(h.Symbol)
		if _, seen := balances[spec.symbol]; !seen {
			order = append(order, spec.symbol)
		}
		balances[spec.symbol] += h.Balance
	}

	assets := make([]model.PortfolioAsset, 0, len(order))
	for _, sym := range order {
		balance := balances[sym]
		if balance == 0 {
			continue
		}
		spec, _ := a.lookup(sym)
		price := spec.price(in.Prices)
		assets = append(assets, model.PortfolioAsset{
			Symbol:         spec.symbol,
			Balance:        balance,
			UnitPrice:      price,
			ValueUSD:       balance * price,
			APY:            spec.apy(in.Yields),
			RiskScore:      spec.risk(in),
			LiquidityScore: spec.liquidity(in),
		})
	}

	return Analysis{
		Assets:  assets,
		Metrics: a.metrics(assets, in),
	}, nil
}

func (a *Analyzer) metrics(assets []model.PortfolioAsset, in Inputs) model.PortfolioMetrics {
	m := model.PortfolioMetrics{
		TotalRestakedPct: in.Distribution.RestakedPct,
	}

	values := make([]float64, len(assets))
	apys := make([]float64, len(assets))
	risks := make([]float64, len(assets))
	liquidity := make([]float64, len(assets))
	for i, asset := range assets {
		values[i] = asset.ValueUSD
		apys[i] = asset.APY
		risks[i] = float64(asset.RiskScore)
		liquidity[i] = float64(asset.LiquidityScore)
		if spec, _ := a.lookup(asset.Symbol); spec.staked {
			m.TotalStakedETH += asset.Balance
		}
	}

	m.TotalValueUSD = floats.Sum(values)
	if m.TotalValueUSD <= 0 {
		return m
	}

	m.BlendedAPY = stat.Mean(apys, values)
	m.OverallRiskScore = int(math.Round(stat.Mean(risks, values)))
	m.LiquidityHealth = int(math.Round(stat.Mean(liquidity, values)))

	if len(assets) == 1 {
		m.DiversificationScore = concentration.SingleShareFloor
		return m
	}
	allocations := make([]float64, len(values))
	floats.ScaleTo(allocations, 100/m.TotalValueUSD, values)
	m.DiversificationScore = concentration.DiversificationScore(allocations)
	return m
}
