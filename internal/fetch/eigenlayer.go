package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/restake-risk-ea/internal/concentration"
	"github.com/yourorg/restake-risk-ea/internal/config"
	"github.com/yourorg/restake-risk-ea/internal/model"
	"github.com/yourorg/restake-risk-ea/internal/security"
)

// EigenLayerClient reads AVS allocations and restaking totals for one operator
type EigenLayerClient struct {
	baseURL  string
	apiKey   string
	operator string
	req      requester
}

// NewEigenLayerClient creates a new EigenLayer API client
func NewEigenLayerClient(cfg config.Config, opts Options) *EigenLayerClient {
	return &EigenLayerClient{
		baseURL:  strings.TrimRight(cfg.EigenLayerURL, "/"),
		apiKey:   cfg.EigenLayerAPIKey,
		operator: cfg.OperatorAddress,
		req:      newRequester("eigenlayer", opts),
	}
}

// Configured reports ErrMissingCredential without an API key and
// ErrNotConfigured without a valid operator address.
func (c *EigenLayerClient) Configured() error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: EIGENLAYER_API_KEY", ErrMissingCredential)
	}
	if c.operator == "" {
		return fmt.Errorf("%w: no operator address", ErrNotConfigured)
	}
	if _, err := security.NormalizeAddress(c.operator); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	return nil
}

// FetchConcentration returns the operator's allocation across active AVSs
func (c *EigenLayerClient) FetchConcentration(ctx context.Context) (model.ConcentrationProfile, error) {
	var response struct {
		ActiveAVS []struct {
			Name          string  `json:"name"`
			Type          string  `json:"type"`
			AllocationPct float64 `json:"allocation_pct"`
			AuditStatus   string  `json:"audit_status"`
		} `json:"active_avs"`
		HistoricalSlashes int `json:"historical_slashes"`
	}
	if err := c.get(ctx, "avs", &response); err != nil {
		return model.ConcentrationProfile{}, err
	}

	if len(response.ActiveAVS) == 0 {
		return model.ConcentrationProfile{}, fmt.Errorf("no active AVS returned from EigenLayer")
	}

	shares := make([]model.Share, 0, len(response.ActiveAVS))
	for _, avs := range response.ActiveAVS {
		shares = append(shares, model.Share{
			Name:        avs.Name,
			Pct:         avs.AllocationPct,
			Type:        avs.Type,
			AuditStatus: avs.AuditStatus,
		})
	}

	profile := concentration.NewProfile(shares)
	profile.HistoricalSlashes = response.HistoricalSlashes

	logrus.WithFields(logrus.Fields{
		"avs_count": len(shares),
		"hhi":       profile.HHI,
	}).Debug("Fetched AVS concentration")
	return profile, nil
}

// FetchDistribution returns the operator's base versus restaked stake split
func (c *EigenLayerClient) FetchDistribution(ctx context.Context) (model.DistributionProfile, error) {
	var response struct {
		TotalStakedETH float64 `json:"total_staked_eth"`
		RestakedETH    float64 `json:"restaked_eth"`
	}
	if err := c.get(ctx, "restaking", &response); err != nil {
		return model.DistributionProfile{}, err
	}

	if response.TotalStakedETH <= 0 {
		return model.DistributionProfile{}, fmt.Errorf("EigenLayer returned no staked ETH")
	}

	restakedPct := round2(response.RestakedETH / response.TotalStakedETH * 100)
	return model.DistributionProfile{
		TotalStakedETH: response.TotalStakedETH,
		RestakedETH:    response.RestakedETH,
		RestakedPct:    restakedPct,
		BaseStakePct:   round2(100 - restakedPct),
	}, nil
}

// get decodes GET {base}/operators/{operator}/{resource} into out
func (c *EigenLayerClient) get(ctx context.Context, resource string, out any) error {
	if err := c.Configured(); err != nil {
		return err
	}
	operator, _ := security.NormalizeAddress(c.operator)

	url := fmt.Sprintf("%s/operators/%s/%s", c.baseURL, operator, resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := c.req.do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
