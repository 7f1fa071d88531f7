package source

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/restake-risk-ea/internal/circuitbreaker"
	"github.com/yourorg/restake-risk-ea/internal/config"
	"github.com/yourorg/restake-risk-ea/internal/fetch"
	"github.com/yourorg/restake-risk-ea/internal/model"
	"github.com/yourorg/restake-risk-ea/internal/validation"
)

// Source names
const (
	NameUptime        = "beaconchain"
	NameLiquidity     = "uniswap-subgraph"
	NameConcentration = "eigenlayer-avs"
	NameDistribution  = "eigenlayer-restaking"
	NamePrices        = "defillama-prices"
	NameYields        = "defillama-yields"
)

// Options are shared by the domain constructors
type Options struct {
	Timeout time.Duration
	Metrics *Metrics

	// Now overrides the clock; nil means time.Now
	Now func() time.Time
}

// Set holds one source per domain
type Set struct {
	Uptime        Source
	Liquidity     Source
	Concentration Source
	Distribution  Source
	Prices        Source
	Yields        Source
}

// All returns the sources in a fixed order
func (s Set) All() []Source {
	return []Source{s.Uptime, s.Liquidity, s.Concentration, s.Distribution, s.Prices, s.Yields}
}

// NewSet builds the six domain sources from config. Providers missing
// settings or credentials get a Static source and never touch the network.
func NewSet(cfg config.Config, fetchOpts fetch.Options, breaker *circuitbreaker.CircuitBreaker, opts Options) Set {
	if opts.Timeout <= 0 {
		opts.Timeout = cfg.SourceTimeout
	}
	eigen := fetch.NewEigenLayerClient(cfg, fetchOpts)
	llama := fetch.NewDefiLlamaClient(cfg, fetchOpts)

	return Set{
		Uptime:        NewUptime(fetch.NewBeaconchainClient(cfg, fetchOpts), FallbackUptime(cfg), opts),
		Liquidity:     NewLiquidity(fetch.NewSubgraphClient(cfg, fetchOpts), FallbackLiquidity(cfg.ReferenceTradeUSD), opts),
		Concentration: NewConcentration(eigen, opts),
		Distribution:  NewDistribution(eigen, opts),
		Prices:        NewPrices(llama, opts),
		Yields:        NewYields(llama, breaker, opts),
	}
}

// NewUptime creates the validator telemetry source
func NewUptime(c *fetch.BeaconchainClient, fallback model.OperatorUptime, opts Options) Source {
	return build(NameUptime, model.DomainUptime, c.Configured(),
		typed(c.FetchUptime), checked(validation.CheckUptime), fallback, opts)
}

// NewLiquidity creates the multi-chain liquidity source
func NewLiquidity(c *fetch.SubgraphClient, fallback model.LiquidityProfile, opts Options) Source {
	return build(NameLiquidity, model.DomainLiquidity, c.Configured(),
		typed(c.FetchLiquidity), checked(validation.CheckLiquidity), fallback, opts)
}

// NewConcentration creates the AVS allocation source
func NewConcentration(c *fetch.EigenLayerClient, opts Options) Source {
	return build(NameConcentration, model.DomainConcentration, c.Configured(),
		typed(c.FetchConcentration), checked(validation.CheckConcentration), FallbackConcentration(), opts)
}

// NewDistribution creates the base/restaked split source
func NewDistribution(c *fetch.EigenLayerClient, opts Options) Source {
	return build(NameDistribution, model.DomainDistribution, c.Configured(),
		typed(c.FetchDistribution), checked(validation.CheckDistribution), FallbackDistribution(), opts)
}

// NewPrices creates the spot price source. A live book must at least price ETH.
func NewPrices(c *fetch.DefiLlamaClient, opts Options) Source {
	check := func(p model.PriceBook) error { return validation.CheckPrices(p, "ETH") }
	return build(NamePrices, model.DomainPrice, c.Configured(),
		typed(c.FetchPrices), checked(check), FallbackPrices(), opts)
}

// NewYields creates the yield source. Batches pass the anomaly breaker, when
// given, after shape validation.
func NewYields(c *fetch.DefiLlamaClient, breaker *circuitbreaker.CircuitBreaker, opts Options) Source {
	check := func(y model.YieldBook) error {
		if err := validation.CheckYields(y); err != nil {
			return err
		}
		if breaker != nil {
			return breaker.Check(y)
		}
		return nil
	}
	return build(NameYields, model.DomainYield, c.Configured(),
		typed(c.FetchYields), checked(check), FallbackYields(), opts)
}

func build(name string, domain model.Domain, configErr error, fn FetchFunc, check CheckFunc, fallback any, opts Options) Source {
	if configErr != nil {
		logrus.WithFields(logrus.Fields{
			"source": name,
			"reason": configErr,
		}).Info("Provider not configured, using static source")
		s := NewStatic(name, domain, fallback, configErr.Error()).WithMetrics(opts.Metrics)
		if opts.Now != nil {
			s.WithClock(opts.Now)
		}
		return s
	}

	l := NewLive(name, domain, fn, fallback).
		WithTimeout(opts.Timeout).
		WithCheck(check).
		WithMetrics(opts.Metrics)
	if opts.Now != nil {
		l.WithClock(opts.Now)
	}
	return l
}

// typed adapts a client method to a FetchFunc
func typed[T any](fn func(context.Context) (T, error)) FetchFunc {
	return func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// checked adapts a typed validator to a CheckFunc
func checked[T any](fn func(T) error) CheckFunc {
	return func(v any) error {
		t, ok := v.(T)
		if !ok {
			return fmt.Errorf("%w: unexpected payload %T", validation.ErrMalformedPayload, v)
		}
		return fn(t)
	}
}
