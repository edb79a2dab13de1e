// Package export serializes simulations and comparisons into portable
// artifacts: CSV, XLSX and PDF. All generation is deterministic and
// happens entirely from already-fetched data; nothing here touches the
// network.
package export

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

// ErrNoResults is returned when a simulation is exported before its
// prediction completed. The message is shown to the user as-is.
var ErrNoResults = eris.New("export: no simulation results found; run the simulation to completion before exporting")

// ErrInvalidComparison is returned when either comparison side lacks
// results.
var ErrInvalidComparison = eris.New("export: invalid comparison data; both simulations must have results")

const timeLayout = "2006-01-02 15:04:05"

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func orPolicy(s string, n int) string {
	if s == "" {
		return fmt.Sprintf("Policy %d", n)
	}
	return s
}

// simulationRows builds the [label, value] sections shared by the CSV
// and XLSX exporters.
func simulationRows(sim model.SavedSimulation) [][]string {
	in := sim.InputParams
	res := sim.Results

	rows := [][]string{
		{"Simulation Details", ""},
		{"Policy Name", orNA(sim.PolicyName)},
		{"Country", orNA(in.Country)},
		{"Policy Type", orNA(string(in.PolicyType))},
		{"Carbon Price (USD/tonne)", num(in.CarbonPriceUSD)},
		{"Coverage (%)", num(in.CoveragePercent)},
		{"Year", strconv.Itoa(in.Year)},
		{"Projection Years", strconv.Itoa(in.ProjectionYears)},
		{"Created At", sim.CreatedAt.Format(timeLayout)},
		{"", ""},

		{"Prediction Results", ""},
		{"Revenue (Million USD)", num(res.RevenueMillion)},
		{"Risk Adjusted Value (Million USD)", num(res.RiskAdjustedValueMillion)},
		{"Abolishment Risk (%)", num(res.AbolishmentRiskPercent)},
		{"Risk Category", orNA(string(res.RiskCategory))},
		{"Total Country CO2 (Million tonnes)", num(res.TotalCountryCO2Mt)},
		{"CO2 Covered (Million tonnes)", num(res.CO2CoveredMt)},
		{"CO2 Reduced (Million tonnes)", num(res.CO2ReducedMt)},
		{"CO2 Covered Per Capita (tonnes)", num(res.CO2CoveredPerCapitaTonne)},
		{"", ""},

		{"Environmental Equivalencies", ""},
		{"Cars Off Road (1 year)", strconv.Itoa(res.CarsOffRoadEquivalent)},
		{"Trees Planted (1 year)", strconv.Itoa(res.TreesPlantedEquivalent)},
		{"Coal Plants Closed (1GW)", num(res.CoalPlantsClosedEquivalent)},
		{"Homes Powered Clean (1 year)", strconv.Itoa(res.HomesPoweredEquivalent)},
		{"", ""},

		{"Recommendations", ""},
		{"Recommendation", orNA(res.Recommendation)},
		{"Context Explanation", orNA(res.ContextExplanation)},
		{"", ""},

		{"Similar Policies", ""},
	}
	for i, policy := range res.SimilarPolicies {
		rows = append(rows, []string{fmt.Sprintf("Policy %d", i+1), policy})
	}
	rows = append(rows, []string{"", ""}, []string{"Key Risks", ""})
	for i, risk := range res.KeyRisks {
		rows = append(rows, []string{fmt.Sprintf("Risk %d", i+1), risk})
	}
	rows = append(rows, []string{"", ""})

	rows = append(rows, []string{"Year-by-Year Projections", ""})
	rows = append(rows, projectionHeader())
	for _, p := range res.Projections {
		rows = append(rows, projectionRow(p))
	}
	return rows
}

func projectionHeader() []string {
	return []string{
		"Year",
		"Revenue (Million USD)",
		"CO2 Reduced (MT)",
		"Cumulative CO2 Reduced (MT)",
		"Abolishment Risk (%)",
		"Risk Category",
		"Risk Adjusted Value (Million USD)",
	}
}

func projectionRow(p model.YearProjection) []string {
	return []string{
		strconv.Itoa(p.Year),
		num(p.RevenueMillion),
		num(p.CO2ReducedMt),
		num(p.CO2ReducedCumulativeMt),
		num(p.AbolishmentRiskPercent),
		string(p.RiskCategory),
		num(p.RiskAdjustedValueMillion),
	}
}

// comparisonRows builds the per-policy sections plus the final
// difference table.
func comparisonRows(sim1, sim2 model.SavedSimulation) [][]string {
	rows := [][]string{
		{"Policy Comparison Report", ""},
		{"Generated", time.Now().Format(timeLayout)},
		{"", ""},
	}
	rows = append(rows, policySection(sim1, 1)...)
	rows = append(rows, policySection(sim2, 2)...)

	r1, r2 := sim1.Results, sim2.Results
	rows = append(rows,
		[]string{"=== COMPARISON ===", ""},
		[]string{"Metric", "Policy 1", "Policy 2", "Difference"},
		[]string{"Revenue (Million USD)", num(r1.RevenueMillion), num(r2.RevenueMillion),
			fmt.Sprintf("%.2f", r1.RevenueMillion-r2.RevenueMillion)},
		[]string{"Risk Adjusted Value (Million USD)", num(r1.RiskAdjustedValueMillion), num(r2.RiskAdjustedValueMillion),
			fmt.Sprintf("%.2f", r1.RiskAdjustedValueMillion-r2.RiskAdjustedValueMillion)},
		[]string{"Abolishment Risk (%)", num(r1.AbolishmentRiskPercent), num(r2.AbolishmentRiskPercent),
			fmt.Sprintf("%.1f", r1.AbolishmentRiskPercent-r2.AbolishmentRiskPercent)},
		[]string{"CO2 Reduced (Million tonnes)", num(r1.CO2ReducedMt), num(r2.CO2ReducedMt),
			fmt.Sprintf("%.2f", r1.CO2ReducedMt-r2.CO2ReducedMt)},
	)
	return rows
}

func policySection(sim model.SavedSimulation, n int) [][]string {
	in := sim.InputParams
	res := sim.Results
	return [][]string{
		{fmt.Sprintf("=== POLICY %d ===", n), ""},
		{"Policy Name", orPolicy(sim.PolicyName, n)},
		{"Country", orNA(in.Country)},
		{"Policy Type", orNA(string(in.PolicyType))},
		{"Carbon Price (USD/tonne)", num(in.CarbonPriceUSD)},
		{"Coverage (%)", num(in.CoveragePercent)},
		{"Revenue (Million USD)", num(res.RevenueMillion)},
		{"Risk Adjusted Value (Million USD)", num(res.RiskAdjustedValueMillion)},
		{"Abolishment Risk (%)", num(res.AbolishmentRiskPercent)},
		{"Risk Category", orNA(string(res.RiskCategory))},
		{"CO2 Reduced (Million tonnes)", num(res.CO2ReducedMt)},
		{"", ""},
	}
}

func writeCSV(rows [][]string) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", eris.Wrap(err, "export: write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", eris.Wrap(err, "export: flush csv")
	}
	return sb.String(), nil
}

// SimulationCSV serializes one simulation into CSV text.
func SimulationCSV(sim model.SavedSimulation) (string, error) {
	if sim.Results == nil {
		return "", ErrNoResults
	}
	return writeCSV(simulationRows(sim))
}

// ComparisonCSV serializes a pair of simulations plus their difference
// table into CSV text. Policy 1 is always the first argument.
func ComparisonCSV(sim1, sim2 model.SavedSimulation) (string, error) {
	if sim1.Results == nil || sim2.Results == nil {
		return "", ErrInvalidComparison
	}
	return writeCSV(comparisonRows(sim1, sim2))
}
