// Package validation provides shape checks for upstream payloads and
// caller-supplied holdings.
package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/restake-risk-ea/internal/model"
)

// ErrMalformedPayload marks upstream data that failed a shape check. Sources
// treat it exactly like an unavailable upstream.
var ErrMalformedPayload = errors.New("malformed upstream payload")

// ErrInvalidHolding marks caller-supplied holdings that cannot be analyzed.
var ErrInvalidHolding = errors.New("invalid holding")

// Options holds configuration for the payload checks
type Options struct {
	// ShareSumTolerance is how far concentration shares may sum from 100
	ShareSumTolerance float64

	// MaxAPY is the highest plausible APY, in percent
	MaxAPY float64

	// MaxSlippageBps caps a single venue quote
	MaxSlippageBps int
}

// DefaultOptions returns sensible defaults for validation
func DefaultOptions() Options {
	return Options{
		ShareSumTolerance: 1.0,
		MaxAPY:            100.0,
		MaxSlippageBps:    10000,
	}
}

func malformed(format string, args ...any) error {
	err := fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
	logrus.WithError(err).Debug("Rejected upstream payload")
	return err
}

func badNumber(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

func inPct(v float64) bool {
	return !badNumber(v) && v >= 0 && v <= 100
}

// CheckUptime validates an operator uptime payload.
func CheckUptime(u model.OperatorUptime) error {
	if !inPct(u.UptimePct) {
		return malformed("uptime %v outside [0,100]", u.UptimePct)
	}
	if u.MissedAttestations < 0 || u.TotalAttestations < 0 {
		return malformed("negative attestation counts")
	}
	if u.MissedAttestations > u.TotalAttestations {
		return malformed("missed attestations %d exceed total %d", u.MissedAttestations, u.TotalAttestations)
	}
	return nil
}

// CheckConcentration validates an AVS concentration profile with default options.
func CheckConcentration(c model.ConcentrationProfile) error {
	return CheckConcentrationWithOptions(c, DefaultOptions())
}

// CheckConcentrationWithOptions validates shares, their sum and the derived HHI.
func CheckConcentrationWithOptions(c model.ConcentrationProfile, opts Options) error {
	if len(c.Shares) == 0 {
		return malformed("no concentration shares")
	}
	var sum float64
	for _, s := range c.Shares {
		if s.Name == "" {
			return malformed("unnamed share")
		}
		if !inPct(s.Pct) {
			return malformed("share %s pct %v outside [0,100]", s.Name, s.Pct)
		}
		sum += s.Pct
	}
	if math.Abs(sum-100) > opts.ShareSumTolerance {
		return malformed("shares sum to %.2f", sum)
	}
	if badNumber(c.HHI) || c.HHI < 0 || c.HHI > 1 {
		return malformed("hhi %v outside [0,1]", c.HHI)
	}
	return nil
}

// CheckLiquidity validates a liquidity profile with default options.
func CheckLiquidity(l model.LiquidityProfile) error {
	return CheckLiquidityWithOptions(l, DefaultOptions())
}

// CheckLiquidityWithOptions requires at least one venue with sane depth and quote.
func CheckLiquidityWithOptions(l model.LiquidityProfile, opts Options) error {
	if len(l.Venues) == 0 {
		return malformed("no liquidity venues")
	}
	if l.ReferenceTradeUSD <= 0 {
		return malformed("reference trade %d not positive", l.ReferenceTradeUSD)
	}
	for _, v := range l.Venues {
		if v.Chain == "" {
			return malformed("venue without chain")
		}
		if badNumber(v.DepthUSD) || v.DepthUSD < 0 {
			return malformed("venue %s/%s depth %v", v.Chain, v.Pool, v.DepthUSD)
		}
		if v.SlippageBps < 0 || v.SlippageBps > opts.MaxSlippageBps {
			return malformed("venue %s/%s slippage %d bps", v.Chain, v.Pool, v.SlippageBps)
		}
	}
	return nil
}

// CheckDistribution validates that base and restaked shares split the stake.
func CheckDistribution(d model.DistributionProfile) error {
	if badNumber(d.TotalStakedETH) || d.TotalStakedETH <= 0 {
		return malformed("total staked %v not positive", d.TotalStakedETH)
	}
	if badNumber(d.RestakedETH) || d.RestakedETH < 0 || d.RestakedETH > d.TotalStakedETH {
		return malformed("restaked %v outside [0,%v]", d.RestakedETH, d.TotalStakedETH)
	}
	if !inPct(d.BaseStakePct) || !inPct(d.RestakedPct) {
		return malformed("distribution pct outside [0,100]")
	}
	if math.Abs(d.BaseStakePct+d.RestakedPct-100) > DefaultOptions().ShareSumTolerance {
		return malformed("distribution sums to %.2f", d.BaseStakePct+d.RestakedPct)
	}
	return nil
}

// CheckPrices requires a positive finite price for every listed symbol.
func CheckPrices(p model.PriceBook, required ...string) error {
	if len(p) == 0 {
		return malformed("empty price book")
	}
	for sym, price := range p {
		if badNumber(price) || price <= 0 {
			return malformed("price for %s is %v", sym, price)
		}
	}
	for _, sym := range required {
		if _, ok := p[sym]; !ok {
			return malformed("missing price for %s", sym)
		}
	}
	return nil
}

// CheckYields validates a yield book with default options.
func CheckYields(y model.YieldBook) error {
	return CheckYieldsWithOptions(y, DefaultOptions())
}

// CheckYieldsWithOptions rejects negative or implausible APYs and bad TVL.
func CheckYieldsWithOptions(y model.YieldBook, opts Options) error {
	if len(y) == 0 {
		return malformed("empty yield book")
	}
	for sym, q := range y {
		if badNumber(q.TotalAPY) || q.TotalAPY < 0 || q.TotalAPY > opts.MaxAPY {
			return malformed("apy for %s is %v", sym, q.TotalAPY)
		}
		if badNumber(q.TVLUSD) || q.TVLUSD < 0 {
			return malformed("tvl for %s is %v", sym, q.TVLUSD)
		}
	}
	return nil
}

// CheckHoldings rejects unknown symbols and negative or non-finite balances.
// known reports whether a symbol is supported.
func CheckHoldings(holdings []model.Holding, known func(symbol string) bool) error {
	for i, h := range holdings {
		sym := strings.TrimSpace(h.Symbol)
		if sym == "" {
			return fmt.Errorf("%w: holding %d has no symbol", ErrInvalidHolding, i)
		}
		if !known(sym) {
			return fmt.Errorf("%w: unknown symbol %q", ErrInvalidHolding, h.Symbol)
		}
		if badNumber(h.Balance) {
			return fmt.Errorf("%w: balance for %s is not a number", ErrInvalidHolding, h.Symbol)
		}
		if h.Balance < 0 {
			return fmt.Errorf("%w: negative balance %v for %s", ErrInvalidHolding, h.Balance, h.Symbol)
		}
	}
	return nil
}
