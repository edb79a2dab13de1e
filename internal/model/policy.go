package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// PolicyType is the carbon-pricing instrument being simulated.
type PolicyType string

const (
	PolicyCarbonTax PolicyType = "Carbon tax"
	PolicyETS       PolicyType = "ETS"
)

// RiskCategory buckets the modeled abolishment risk.
type RiskCategory string

const (
	RiskLow  RiskCategory = "Low Risk"
	RiskAt   RiskCategory = "At Risk"
	RiskHigh RiskCategory = "High Risk"
)

// SimulationInput holds the parameters of one policy simulation.
// Field names match the backend wire schema.
type SimulationInput struct {
	Country         string     `json:"country"`
	PolicyType      PolicyType `json:"policy_type"`
	CarbonPriceUSD  float64    `json:"carbon_price_usd"`
	CoveragePercent float64    `json:"coverage_percent"`
	Year            int        `json:"year"`
	ProjectionYears int        `json:"projection_years"`
}

// Validate checks the input against the ranges the backend enforces.
func (in SimulationInput) Validate() error {
	if in.Country == "" {
		return eris.New("model: country is required")
	}
	if in.PolicyType != PolicyCarbonTax && in.PolicyType != PolicyETS {
		return eris.Errorf("model: policy type must be %q or %q", PolicyCarbonTax, PolicyETS)
	}
	if in.CarbonPriceUSD <= 0 {
		return eris.New("model: carbon price must be positive")
	}
	if in.CoveragePercent < 10 || in.CoveragePercent > 90 {
		return eris.New("model: coverage must be between 10 and 90 percent")
	}
	if in.ProjectionYears < 1 || in.ProjectionYears > 20 {
		return eris.New("model: projection years must be between 1 and 20")
	}
	return nil
}

// YearProjection is one year of the prediction horizon.
type YearProjection struct {
	Year                     int          `json:"year"`
	RevenueMillion           float64      `json:"revenue_million"`
	CumulativeRevenueMillion float64      `json:"cumulative_revenue_million"`
	CO2ReducedMt             float64      `json:"co2_reduced_mt"`
	CO2ReducedCumulativeMt   float64      `json:"co2_reduced_cumulative_mt"`
	CO2AfterReductionMt      float64      `json:"co2_after_reduction_mt"`
	CO2ReducedFromBaseMt     float64      `json:"co2_reduced_from_base_mt"`
	AbolishmentRiskPercent   float64      `json:"abolishment_risk_percent"`
	RiskCategory             RiskCategory `json:"risk_category"`
	RiskAdjustedValueMillion float64      `json:"risk_adjusted_value_million"`
}

// PredictionResult is the backend's full model output for one input.
// It is read-only once produced.
type PredictionResult struct {
	RevenueMillion         float64      `json:"revenue_million"`
	AbolishmentRiskPercent float64      `json:"abolishment_risk_percent"`
	RiskCategory           RiskCategory `json:"risk_category"`

	TotalCountryCO2Mt        float64 `json:"total_country_co2_mt"`
	CO2CoveredMt             float64 `json:"co2_covered_mt"`
	CO2ReducedMt             float64 `json:"co2_reduced_mt"`
	CO2CoveredPerCapitaTonne float64 `json:"co2_covered_per_capita_tonnes"`

	CarsOffRoadEquivalent      int     `json:"cars_off_road_equivalent"`
	TreesPlantedEquivalent     int     `json:"trees_planted_equivalent"`
	CoalPlantsClosedEquivalent float64 `json:"coal_plants_closed_equivalent"`
	HomesPoweredEquivalent     int     `json:"homes_powered_equivalent"`
	EquivalenciesSource        string  `json:"equivalencies_source"`

	RiskAdjustedValueMillion float64 `json:"risk_adjusted_value_million"`

	Recommendation     string   `json:"recommendation"`
	SimilarPolicies    []string `json:"similar_policies"`
	KeyRisks           []string `json:"key_risks"`
	ContextExplanation string   `json:"context_explanation"`

	Projections []YearProjection `json:"projections"`
}

// CheckProjections verifies the ordering invariant chart and export code
// rely on: years strictly ascending, cumulative fields non-decreasing.
func CheckProjections(projs []YearProjection) error {
	for i := 1; i < len(projs); i++ {
		prev, cur := projs[i-1], projs[i]
		if cur.Year <= prev.Year {
			return eris.Errorf("model: projections out of order at index %d (%d after %d)", i, cur.Year, prev.Year)
		}
		if cur.CumulativeRevenueMillion < prev.CumulativeRevenueMillion {
			return eris.Errorf("model: cumulative revenue decreases at year %d", cur.Year)
		}
		if cur.CO2ReducedCumulativeMt < prev.CO2ReducedCumulativeMt {
			return eris.Errorf("model: cumulative CO2 reduction decreases at year %d", cur.Year)
		}
	}
	return nil
}

// SimulationSummary is the list-view shape returned by GET /simulations.
type SimulationSummary struct {
	ID              string       `json:"id"`
	PolicyName      string       `json:"policy_name"`
	CreatedAt       time.Time    `json:"created_at"`
	Country         string       `json:"country"`
	PolicyType      PolicyType   `json:"policy_type"`
	CarbonPriceUSD  float64      `json:"carbon_price_usd"`
	CoveragePercent float64      `json:"coverage_percent"`
	RevenueMillion  float64      `json:"revenue_million"`
	RiskCategory    RiskCategory `json:"risk_category"`
}

// SavedSimulation is a persisted simulation with its full results.
type SavedSimulation struct {
	ID          string            `json:"id"`
	PolicyName  string            `json:"policy_name"`
	InputParams SimulationInput   `json:"input_params"`
	Results     *PredictionResult `json:"results"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ComparisonRecord is a persisted pairing of two simulations. Selection
// order is user-visible: policy 1 always renders left of policy 2.
type ComparisonRecord struct {
	ID           string          `json:"id"`
	Policy1Name  string          `json:"policy1_name"`
	Policy2Name  string          `json:"policy2_name"`
	Policy1Input SimulationInput `json:"policy1_input"`
	Policy2Input SimulationInput `json:"policy2_input"`
	CreatedAt    time.Time       `json:"created_at"`
}
