package stub

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

// countryData holds the static country features the prediction model
// needs. Values are representative, not live statistics; the point of
// the stub is determinism.
type countryData struct {
	Region        string
	FossilFuelPct float64
	Population    float64 // people
	GDPMillion    float64
	TotalCO2Mt    float64
}

var countries = map[string]countryData{
	"Germany":        {Region: "Europe", FossilFuelPct: 77, Population: 83.2e6, GDPMillion: 4.26e6, TotalCO2Mt: 675},
	"France":         {Region: "Europe", FossilFuelPct: 48, Population: 67.8e6, GDPMillion: 2.96e6, TotalCO2Mt: 306},
	"United Kingdom": {Region: "Europe", FossilFuelPct: 75, Population: 67.3e6, GDPMillion: 3.12e6, TotalCO2Mt: 332},
	"Sweden":         {Region: "Europe", FossilFuelPct: 26, Population: 10.4e6, GDPMillion: 0.64e6, TotalCO2Mt: 38},
	"Norway":         {Region: "Europe", FossilFuelPct: 45, Population: 5.4e6, GDPMillion: 0.48e6, TotalCO2Mt: 41},
	"Poland":         {Region: "Europe", FossilFuelPct: 89, Population: 37.8e6, GDPMillion: 0.69e6, TotalCO2Mt: 303},
	"United States":  {Region: "North America", FossilFuelPct: 79, Population: 331.9e6, GDPMillion: 25.46e6, TotalCO2Mt: 4713},
	"Canada":         {Region: "North America", FossilFuelPct: 65, Population: 38.2e6, GDPMillion: 2.14e6, TotalCO2Mt: 548},
	"Mexico":         {Region: "North America", FossilFuelPct: 88, Population: 126.7e6, GDPMillion: 1.41e6, TotalCO2Mt: 407},
	"Brazil":         {Region: "South America", FossilFuelPct: 52, Population: 214.3e6, GDPMillion: 1.92e6, TotalCO2Mt: 434},
	"Chile":          {Region: "South America", FossilFuelPct: 72, Population: 19.5e6, GDPMillion: 0.30e6, TotalCO2Mt: 85},
	"Japan":          {Region: "Asia", FossilFuelPct: 85, Population: 125.7e6, GDPMillion: 4.23e6, TotalCO2Mt: 1067},
	"China":          {Region: "Asia", FossilFuelPct: 83, Population: 1412.4e6, GDPMillion: 17.96e6, TotalCO2Mt: 11397},
	"India":          {Region: "Asia", FossilFuelPct: 89, Population: 1407.6e6, GDPMillion: 3.39e6, TotalCO2Mt: 2830},
	"South Korea":    {Region: "Asia", FossilFuelPct: 84, Population: 51.7e6, GDPMillion: 1.67e6, TotalCO2Mt: 616},
	"Australia":      {Region: "Oceania", FossilFuelPct: 91, Population: 25.7e6, GDPMillion: 1.68e6, TotalCO2Mt: 392},
	"South Africa":   {Region: "Africa", FossilFuelPct: 92, Population: 59.4e6, GDPMillion: 0.41e6, TotalCO2Mt: 436},
}

// CountryNames returns the supported countries sorted alphabetically.
func CountryNames() []string {
	names := make([]string, 0, len(countries))
	for name := range countries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// inputError marks a rejected prediction input. The server maps it to
// a 400 with a structured error detail.
type inputError struct {
	Message string
	Field   string
}

func (e *inputError) Error() string { return e.Message }

func rejectInput(field, message string) error {
	return &inputError{Message: message, Field: field}
}

// reductionRate maps a carbon price to the modeled annual emission
// reduction rate within the covered sectors.
func reductionRate(priceUSD float64) float64 {
	switch {
	case priceUSD < 30:
		return 0.03
	case priceUSD < 60:
		return 0.05
	case priceUSD < 100:
		return 0.08
	default:
		return 0.12
	}
}

func riskFor(in model.SimulationInput, c countryData, yearOffset int) float64 {
	risk := 10.0
	risk += in.CarbonPriceUSD * 0.18
	risk += (in.CoveragePercent - 40) * 0.25
	risk += (c.FossilFuelPct - 60) * 0.20
	if in.PolicyType == model.PolicyETS {
		risk -= 5
	}
	// Political risk compounds slowly over the projection horizon.
	risk += 0.5 * float64(yearOffset)
	return clamp(risk, 1, 99)
}

func categoryFor(risk float64) model.RiskCategory {
	switch {
	case risk < 35:
		return model.RiskLow
	case risk > 65:
		return model.RiskHigh
	default:
		return model.RiskAt
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Predict runs the deterministic policy model for one input. It
// mirrors the production model's output shape, including the
// projection ordering guarantees.
func Predict(in model.SimulationInput) (*model.PredictionResult, error) {
	if strings.TrimSpace(in.Country) == "" {
		return nil, rejectInput("country", "Please select a country")
	}
	if strings.TrimSpace(string(in.PolicyType)) == "" {
		return nil, rejectInput("policy_type", "Please select a policy type")
	}
	if in.CarbonPriceUSD <= 0 {
		return nil, rejectInput("carbon_price_usd", "Carbon price must be greater than 0")
	}
	if in.CarbonPriceUSD > 1000 {
		return nil, rejectInput("carbon_price_usd", "Carbon price cannot exceed $1,000 per tonne. Please enter a realistic value.")
	}
	if in.CoveragePercent < 10 || in.CoveragePercent > 90 {
		return nil, rejectInput("coverage_percent", "Coverage must be between 10% and 90%")
	}
	if in.Year < 2000 || in.Year > 2100 {
		return nil, rejectInput("year", "Year must be between 2000 and 2100")
	}
	if in.ProjectionYears < 1 || in.ProjectionYears > 50 {
		return nil, rejectInput("projection_years", "Projection duration must be between 1 and 50 years")
	}

	c, ok := countries[in.Country]
	if !ok {
		return nil, rejectInput("country", fmt.Sprintf(
			"Data is not available for %s for the year %d. Please try a different country or year.", in.Country, in.Year))
	}

	covered := in.CoveragePercent / 100 * c.TotalCO2Mt
	rate := reductionRate(in.CarbonPriceUSD)
	reduced := covered * rate

	// Mt * $/tonne = $M.
	revenue := in.CarbonPriceUSD * covered

	risk := riskFor(in, c, 0)
	category := categoryFor(risk)
	riskAdjusted := revenue
	if category != model.RiskLow {
		riskAdjusted = math.Max(0, revenue*(1-risk/100))
	}

	reducedTonnes := reduced * 1e6
	perCapita := 0.0
	if c.Population > 0 {
		perCapita = covered * 1e6 / c.Population
	}

	horizon := in.ProjectionYears
	if horizon > 20 {
		horizon = 20
	}
	projections := make([]model.YearProjection, 0, horizon)
	var cumulativeRevenue, cumulativeReduced float64
	previousRevenue := revenue
	for offset := 0; offset < horizon; offset++ {
		yearRevenue := revenue
		if offset > 0 {
			// Covered emissions shrink as reductions bite; revenue
			// still drifts up with economic growth, floored at 1.5%/yr.
			grown := previousRevenue * (1 + 0.03 - rate/4)
			floor := previousRevenue * 1.015
			yearRevenue = math.Max(grown, floor)
		}
		previousRevenue = yearRevenue

		yearRisk := riskFor(in, c, offset)
		yearCategory := categoryFor(yearRisk)
		yearAdjusted := yearRevenue
		if yearCategory != model.RiskLow {
			yearAdjusted = math.Max(0, yearRevenue*(1-yearRisk/100))
		}

		cumulativeRevenue += yearRevenue
		cumulativeReduced += reduced

		projections = append(projections, model.YearProjection{
			Year:                     in.Year + offset,
			RevenueMillion:           round(yearRevenue, 2),
			CumulativeRevenueMillion: round(cumulativeRevenue, 2),
			CO2ReducedMt:             round(reduced, 3),
			CO2ReducedCumulativeMt:   round(cumulativeReduced, 3),
			CO2AfterReductionMt:      round(math.Max(0, c.TotalCO2Mt-reduced), 2),
			CO2ReducedFromBaseMt:     round(cumulativeReduced, 3),
			AbolishmentRiskPercent:   round(yearRisk, 1),
			RiskCategory:             yearCategory,
			RiskAdjustedValueMillion: round(yearAdjusted, 2),
		})
	}

	return &model.PredictionResult{
		RevenueMillion:           round(revenue, 2),
		AbolishmentRiskPercent:   round(risk, 1),
		RiskCategory:             category,
		TotalCountryCO2Mt:        round(c.TotalCO2Mt, 2),
		CO2CoveredMt:             round(covered, 2),
		CO2ReducedMt:             round(reduced, 3),
		CO2CoveredPerCapitaTonne: round(perCapita, 3),

		CarsOffRoadEquivalent:      int(reducedTonnes / 4.6),
		TreesPlantedEquivalent:     int(reducedTonnes / 0.06),
		CoalPlantsClosedEquivalent: round(reduced/3.5, 2),
		HomesPoweredEquivalent:     int(reducedTonnes / 8.3),
		EquivalenciesSource:        "EPA greenhouse gas equivalencies",

		RiskAdjustedValueMillion: round(riskAdjusted, 2),

		Recommendation: recommendationFor(category, in),
		SimilarPolicies: []string{
			fmt.Sprintf("%s programs in the %s region", in.PolicyType, c.Region),
		},
		KeyRisks:           keyRisksFor(category),
		ContextExplanation: fmt.Sprintf("Risk assessment for %s based on regional patterns and economic factors.", in.Country),
		Projections:        projections,
	}, nil
}

func recommendationFor(category model.RiskCategory, in model.SimulationInput) string {
	switch category {
	case model.RiskLow:
		return fmt.Sprintf("A %s at $%.0f/tonne with %.0f%% coverage is well within the range of durable policies.",
			strings.ToLower(string(in.PolicyType)), in.CarbonPriceUSD, in.CoveragePercent)
	case model.RiskHigh:
		return "Consider a lower initial price or narrower coverage with a published escalation schedule."
	default:
		return "Policy assessment available."
	}
}

func keyRisksFor(category model.RiskCategory) []string {
	risks := []string{"Standard implementation considerations apply."}
	if category != model.RiskLow {
		risks = append(risks, "Price level may face political pressure during economic downturns.")
	}
	return risks
}
