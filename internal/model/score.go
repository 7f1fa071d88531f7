package model

// Grade buckets a composite risk score.
type Grade string

// Risk grades
const (
	GradeSafe     Grade = "Safe"
	GradeModerate Grade = "Moderate"
	GradeHigh     Grade = "High"
)

// RiskScore is the composite 0-100 risk value with its explanation.
type RiskScore struct {
	Value      int      `json:"score"`
	Grade      Grade    `json:"grade"`
	TopReasons []string `json:"top_reasons"`
}

// Holding is one caller-supplied position.
type Holding struct {
	Symbol  string  `json:"symbol"`
	Balance float64 `json:"balance"`
}

// PortfolioAsset is a holding annotated with price, yield, risk and liquidity.
type PortfolioAsset struct {
	Symbol         string  `json:"symbol"`
	Balance        float64 `json:"balance"`
	UnitPrice      float64 `json:"current_price"`
	ValueUSD       float64 `json:"value_usd"`
	APY            float64 `json:"apy"`
	RiskScore      int     `json:"risk_score"`
	LiquidityScore int     `json:"liquidity_score"`
}

// PortfolioMetrics are the aggregates derived from the current asset set.
type PortfolioMetrics struct {
	TotalValueUSD        float64 `json:"total_value_usd"`
	TotalStakedETH       float64 `json:"total_staked_eth"`
	TotalRestakedPct     float64 `json:"total_restaked_pct"`
	BlendedAPY           float64 `json:"blended_apy"`
	OverallRiskScore     int     `json:"overall_risk_score"`
	LiquidityHealth      int     `json:"liquidity_health"`
	DiversificationScore int     `json:"diversification_score"`
}

// Recommendation is one rule-based strategy suggestion.
type Recommendation struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ExpectedAPY float64  `json:"expected_apy"`
	RiskLevel   string   `json:"risk_level"`
	Steps       []string `json:"steps"`
	Pros        []string `json:"pros"`
	Cons        []string `json:"cons"`
	DataSources []string `json:"data_sources"`
}
