package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

func sampleSimulation() model.SavedSimulation {
	projections := make([]model.YearProjection, 0, 5)
	cumRevenue, cumCO2 := 0.0, 0.0
	for i := 0; i < 5; i++ {
		cumRevenue += 1000 + float64(i)*15
		cumCO2 += 8
		projections = append(projections, model.YearProjection{
			Year:                     2025 + i,
			RevenueMillion:           1000 + float64(i)*15,
			CumulativeRevenueMillion: cumRevenue,
			CO2ReducedMt:             8,
			CO2ReducedCumulativeMt:   cumCO2,
			AbolishmentRiskPercent:   30 + float64(i)*0.5,
			RiskCategory:             model.RiskAt,
			RiskAdjustedValueMillion: 700 + float64(i)*10,
		})
	}
	return model.SavedSimulation{
		ID:         "sim-1",
		PolicyName: `My Policy, "Phase 1"`,
		InputParams: model.SimulationInput{
			Country:         "Germany",
			PolicyType:      model.PolicyCarbonTax,
			CarbonPriceUSD:  50,
			CoveragePercent: 40,
			Year:            2025,
			ProjectionYears: 5,
		},
		Results: &model.PredictionResult{
			RevenueMillion:             1000,
			AbolishmentRiskPercent:     32.5,
			RiskCategory:               model.RiskAt,
			TotalCountryCO2Mt:          50,
			CO2CoveredMt:               20,
			CO2ReducedMt:               1.5,
			CO2CoveredPerCapitaTonne:   0.24,
			CarsOffRoadEquivalent:      326086,
			TreesPlantedEquivalent:     25000000,
			CoalPlantsClosedEquivalent: 0.43,
			HomesPoweredEquivalent:     180722,
			RiskAdjustedValueMillion:   675,
			Recommendation:             "Proceed with phased rollout.",
			SimilarPolicies:            []string{"EU ETS", "UK Carbon Price Support"},
			KeyRisks:                   []string{"Industry lobbying", "Price volatility"},
			ContextExplanation:         "Germany has strong institutional capacity.",
			Projections:                projections,
		},
		CreatedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestSimulationCSV(t *testing.T) {
	t.Parallel()

	sim := sampleSimulation()
	out, err := SimulationCSV(sim)
	require.NoError(t, err)

	// Commas and quotes in the policy name must be quoted, not split.
	assert.Contains(t, out, `"My Policy, ""Phase 1"""`)
	assert.Contains(t, out, "Carbon Price (USD/tonne),50")
	assert.Contains(t, out, "Created At,2026-03-10 12:00:00")
	assert.Contains(t, out, "Policy 1,EU ETS")
	assert.Contains(t, out, "Risk 2,Price volatility")

	// The whole document must reparse as CSV with a 2025-2029 projection
	// row per year.
	r := csv.NewReader(strings.NewReader(out))
	r.FieldsPerRecord = -1 // sections have different widths
	records, err := r.ReadAll()
	require.NoError(t, err)
	var projRows int
	for _, rec := range records {
		if len(rec) == 7 && rec[0] != "Year" {
			projRows++
		}
	}
	assert.Equal(t, 5, projRows)
	assert.Contains(t, out, "2029,1060,8,40,32,At Risk,740")
}

func TestSimulationCSVNoResults(t *testing.T) {
	t.Parallel()

	sim := sampleSimulation()
	sim.Results = nil
	_, err := SimulationCSV(sim)
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestComparisonCSV(t *testing.T) {
	t.Parallel()

	sim1 := sampleSimulation()
	sim2 := sampleSimulation()
	sim2.PolicyName = ""
	sim2.Results.RevenueMillion = 800
	sim2.Results.AbolishmentRiskPercent = 45

	out, err := ComparisonCSV(sim1, sim2)
	require.NoError(t, err)
	assert.Contains(t, out, "=== POLICY 1 ===")
	assert.Contains(t, out, "=== POLICY 2 ===")
	assert.Contains(t, out, "Policy Name,Policy 2") // unnamed side gets a placeholder
	assert.Contains(t, out, "=== COMPARISON ===")
	assert.Contains(t, out, "Revenue (Million USD),1000,800,200.00")
	assert.Contains(t, out, "Abolishment Risk (%),32.5,45,-12.5")

	t.Run("either side missing results fails", func(t *testing.T) {
		t.Parallel()
		broken := sampleSimulation()
		broken.Results = nil
		_, err := ComparisonCSV(sim1, broken)
		assert.ErrorIs(t, err, ErrInvalidComparison)
		_, err = ComparisonCSV(broken, sim1)
		assert.ErrorIs(t, err, ErrInvalidComparison)
	})
}

func TestValueRange(t *testing.T) {
	t.Parallel()

	min, max := ValueRange([]float64{10, 50, 30})
	assert.Equal(t, 0.0, min) // floor pulled to zero
	assert.Equal(t, 50.0, max)

	min, max = ValueRange([]float64{-5, 0.2})
	assert.Equal(t, -5.0, min)
	assert.Equal(t, 1.0, max) // ceiling pulled to one

	min, max = ValueRange(nil)
	assert.Equal(t, 0.0, min)
	assert.Equal(t, 1.0, max)
}

func TestGridValues(t *testing.T) {
	t.Parallel()

	got := GridValues(0, 100)
	assert.Equal(t, []float64{0, 20, 40, 60, 80, 100}, got)

	// Degenerate span still yields distinct gridlines.
	flat := GridValues(5, 5)
	assert.Len(t, flat, 6)
	assert.Equal(t, 5.0, flat[0])
	assert.Equal(t, 6.0, flat[5])
}

func TestYearTicks(t *testing.T) {
	t.Parallel()

	years := []int{2025, 2026, 2027, 2028, 2029, 2030, 2031, 2032, 2033, 2034, 2035, 2036}
	ticks := YearTicks(years, 6)
	assert.Equal(t, []int{2025, 2027, 2029, 2031, 2033, 2035}, ticks)

	short := YearTicks([]int{2025, 2026, 2027}, 6)
	assert.Equal(t, []int{2025, 2026, 2027}, short)

	assert.Nil(t, YearTicks(nil, 6))
	assert.Equal(t, []int{2025}, YearTicks([]int{2025}, 0))
}

func TestRenderTrendPNG(t *testing.T) {
	t.Parallel()

	sim := sampleSimulation()
	pngSig := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

	for _, trend := range []Trend{TrendRevenue, TrendCO2, TrendRisk} {
		data, err := RenderTrendPNG(sim.Results.Projections, trend)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, pngSig), "trend %d is not a PNG", trend)
	}

	t.Run("single-year horizon", func(t *testing.T) {
		t.Parallel()
		data, err := RenderTrendPNG(sim.Results.Projections[:1], TrendRevenue)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, pngSig))
	})

	t.Run("empty projections", func(t *testing.T) {
		t.Parallel()
		_, err := RenderTrendPNG(nil, TrendRevenue)
		assert.Error(t, err)
	})
}

func TestSimulationPDF(t *testing.T) {
	t.Parallel()

	data, err := SimulationPDF(sampleSimulation())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	sim := sampleSimulation()
	sim.Results = nil
	_, err = SimulationPDF(sim)
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestComparisonPDF(t *testing.T) {
	t.Parallel()

	data, err := ComparisonPDF(sampleSimulation(), sampleSimulation())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	broken := sampleSimulation()
	broken.Results = nil
	_, err = ComparisonPDF(sampleSimulation(), broken)
	assert.ErrorIs(t, err, ErrInvalidComparison)
}

func TestSimulationXLSX(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, SimulationXLSX(sampleSimulation(), &buf))
	// XLSX is a zip archive.
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PK")))

	sim := sampleSimulation()
	sim.Results = nil
	assert.ErrorIs(t, SimulationXLSX(sim, &bytes.Buffer{}), ErrNoResults)
}

func TestComparisonXLSX(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, ComparisonXLSX(sampleSimulation(), sampleSimulation(), &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PK")))
}

func TestFileName(t *testing.T) {
	t.Parallel()

	name := FileName("EU Tax: Phase 1 (draft)", "csv")
	assert.True(t, strings.HasPrefix(name, "EU_Tax__Phase_1__draft__"))
	assert.True(t, strings.HasSuffix(name, ".csv"))

	fallback := FileName("", "pdf")
	assert.True(t, strings.HasPrefix(fallback, "simulation_"))
	assert.True(t, strings.HasSuffix(fallback, ".pdf"))

	cmp := ComparisonFileName("xlsx")
	assert.True(t, strings.HasPrefix(cmp, "comparison_"))
	assert.True(t, strings.HasSuffix(cmp, ".xlsx"))
}
