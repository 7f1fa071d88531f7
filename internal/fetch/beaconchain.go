package fetch

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/yourorg/restake-risk-ea/internal/config"
	"github.com/yourorg/restake-risk-ea/internal/model"
)

// BeaconchainClient reads validator attestation performance from beaconcha.in
type BeaconchainClient struct {
	baseURL   string
	apiKey    string
	indices   []int
	dvt       bool
	diversity config.ClientDiversity
	req       requester
}

// NewBeaconchainClient creates a new beaconcha.in API client
func NewBeaconchainClient(cfg config.Config, opts Options) *BeaconchainClient {
	return &BeaconchainClient{
		baseURL:   strings.TrimRight(cfg.BeaconchainURL, "/"),
		apiKey:    cfg.BeaconchainAPIKey,
		indices:   cfg.ValidatorIndices,
		dvt:       cfg.DVTProtected,
		diversity: cfg.ClientDiversity,
		req:       newRequester("beaconchain", opts),
	}
}

// Configured reports ErrNotConfigured when there are no validators to query
func (c *BeaconchainClient) Configured() error {
	if len(c.indices) == 0 {
		return fmt.Errorf("%w: no validator indices", ErrNotConfigured)
	}
	return nil
}

// FetchUptime sums attestations over the configured validators.
func (c *BeaconchainClient) FetchUptime(ctx context.Context) (model.OperatorUptime, error) {
	if err := c.Configured(); err != nil {
		return model.OperatorUptime{}, err
	}

	ids := make([]string, len(c.indices))
	for i, idx := range c.indices {
		ids[i] = strconv.Itoa(idx)
	}
	url := fmt.Sprintf("%s/validator/%s/performance", c.baseURL, strings.Join(ids, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.OperatorUptime{}, fmt.Errorf("error creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	body, err := c.req.do(ctx, req)
	if err != nil {
		return model.OperatorUptime{}, err
	}

	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return model.OperatorUptime{}, fmt.Errorf("beaconchain response has no data")
	}

	// A single validator is returned as an object, several as an array.
	rows := []gjson.Result{data}
	if data.IsArray() {
		rows = data.Array()
	}

	var total, missed int
	for _, row := range rows {
		total += int(row.Get("attestations").Int())
		missed += int(row.Get("missed_attestations").Int())
	}

	uptime := 100.0
	if total > 0 {
		uptime = math.Round(float64(total-missed)/float64(total)*10000) / 100
	}

	return model.OperatorUptime{
		UptimePct:            uptime,
		MissedAttestations:   missed,
		TotalAttestations:    total,
		ValidatorCount:       len(c.indices),
		DVTProtected:         c.dvt,
		ClientDiversityNote:  c.diversity.Note,
		ClientDiversityScore: c.diversity.Score,
	}, nil
}
