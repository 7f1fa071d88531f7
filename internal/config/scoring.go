package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Scoring holds the heuristic constants that operators may tune without a
// rebuild. Concentration bands and risk weights are fixed in code.
type Scoring struct {
	Distribution DistributionScoring `yaml:"distribution"`
}

// DistributionScoring configures the base/restaked balance score.
type DistributionScoring struct {
	// IdealRestakedPct is the restaked share that earns the top score
	IdealRestakedPct float64 `yaml:"ideal_restaked_pct"`

	// Bands map a maximum deviation from the ideal to a score, checked in
	// ascending order of MaxDeviation
	Bands []DeviationBand `yaml:"bands"`

	// FloorScore applies when the deviation exceeds every band
	FloorScore int `yaml:"floor_score"`

	// Grade cutoffs on the balance score
	GradeA int `yaml:"grade_a"`
	GradeB int `yaml:"grade_b"`
}

// DeviationBand scores deviations strictly below MaxDeviation.
type DeviationBand struct {
	MaxDeviation float64 `yaml:"max_deviation"`
	Score        int     `yaml:"score"`
}

// DefaultScoring returns the stock heuristic constants
func DefaultScoring() Scoring {
	return Scoring{
		Distribution: DistributionScoring{
			IdealRestakedPct: 65,
			Bands: []DeviationBand{
				{MaxDeviation: 5, Score: 100},
				{MaxDeviation: 10, Score: 90},
				{MaxDeviation: 15, Score: 80},
				{MaxDeviation: 20, Score: 70},
			},
			FloorScore: 60,
			GradeA:     90,
			GradeB:     80,
		},
	}
}

// LoadScoring overlays a YAML file on top of the defaults. An empty path
// returns the defaults unchanged.
func LoadScoring(path string) (Scoring, error) {
	scoring := DefaultScoring()
	if path == "" {
		return scoring, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return scoring, fmt.Errorf("failed to read scoring config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &scoring); err != nil {
		return DefaultScoring(), fmt.Errorf("failed to parse scoring config: %w", err)
	}
	if err := scoring.Validate(); err != nil {
		return DefaultScoring(), err
	}

	sort.Slice(scoring.Distribution.Bands, func(i, j int) bool {
		return scoring.Distribution.Bands[i].MaxDeviation < scoring.Distribution.Bands[j].MaxDeviation
	})

	logrus.WithFields(logrus.Fields{
		"path":           path,
		"ideal_restaked": scoring.Distribution.IdealRestakedPct,
		"bands":          len(scoring.Distribution.Bands),
	}).Info("Loaded scoring overrides")
	return scoring, nil
}

// Validate rejects constants outside their meaningful ranges
func (s Scoring) Validate() error {
	d := s.Distribution
	if d.IdealRestakedPct < 0 || d.IdealRestakedPct > 100 {
		return fmt.Errorf("ideal_restaked_pct out of range: %v", d.IdealRestakedPct)
	}
	if d.FloorScore < 0 || d.FloorScore > 100 {
		return fmt.Errorf("floor_score out of range: %d", d.FloorScore)
	}
	for _, b := range d.Bands {
		if b.MaxDeviation <= 0 || b.Score < 0 || b.Score > 100 {
			return fmt.Errorf("invalid distribution band: %+v", b)
		}
	}
	return nil
}
