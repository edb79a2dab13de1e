package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() SimulationInput {
	return SimulationInput{
		Country:         "Germany",
		PolicyType:      PolicyCarbonTax,
		CarbonPriceUSD:  50,
		CoveragePercent: 40,
		Year:            2025,
		ProjectionYears: 10,
	}
}

func TestSimulationInputValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, validInput().Validate())
	})

	cases := []struct {
		name    string
		mutate  func(*SimulationInput)
		wantErr string
	}{
		{"missing country", func(in *SimulationInput) { in.Country = "" }, "country is required"},
		{"unknown policy type", func(in *SimulationInput) { in.PolicyType = "Cap and dividend" }, "policy type"},
		{"zero price", func(in *SimulationInput) { in.CarbonPriceUSD = 0 }, "carbon price must be positive"},
		{"negative price", func(in *SimulationInput) { in.CarbonPriceUSD = -5 }, "carbon price must be positive"},
		{"coverage too low", func(in *SimulationInput) { in.CoveragePercent = 5 }, "coverage must be between"},
		{"coverage too high", func(in *SimulationInput) { in.CoveragePercent = 95 }, "coverage must be between"},
		{"no projection years", func(in *SimulationInput) { in.ProjectionYears = 0 }, "projection years"},
		{"too many projection years", func(in *SimulationInput) { in.ProjectionYears = 21 }, "projection years"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			in := validInput()
			tc.mutate(&in)
			err := in.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("coverage boundaries are inclusive", func(t *testing.T) {
		t.Parallel()
		in := validInput()
		in.CoveragePercent = 10
		assert.NoError(t, in.Validate())
		in.CoveragePercent = 90
		assert.NoError(t, in.Validate())
	})
}

func TestCheckProjections(t *testing.T) {
	t.Parallel()

	good := []YearProjection{
		{Year: 2025, CumulativeRevenueMillion: 100, CO2ReducedCumulativeMt: 5},
		{Year: 2026, CumulativeRevenueMillion: 205, CO2ReducedCumulativeMt: 10},
		{Year: 2027, CumulativeRevenueMillion: 315, CO2ReducedCumulativeMt: 15},
	}
	assert.NoError(t, CheckProjections(good))
	assert.NoError(t, CheckProjections(nil))
	assert.NoError(t, CheckProjections(good[:1]))

	t.Run("years out of order", func(t *testing.T) {
		t.Parallel()
		bad := []YearProjection{{Year: 2026}, {Year: 2025}}
		err := CheckProjections(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of order")
	})

	t.Run("duplicate year", func(t *testing.T) {
		t.Parallel()
		bad := []YearProjection{{Year: 2025}, {Year: 2025}}
		assert.Error(t, CheckProjections(bad))
	})

	t.Run("cumulative revenue decreases", func(t *testing.T) {
		t.Parallel()
		bad := []YearProjection{
			{Year: 2025, CumulativeRevenueMillion: 200},
			{Year: 2026, CumulativeRevenueMillion: 150},
		}
		err := CheckProjections(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cumulative revenue")
	})

	t.Run("cumulative reduction decreases", func(t *testing.T) {
		t.Parallel()
		bad := []YearProjection{
			{Year: 2025, CumulativeRevenueMillion: 100, CO2ReducedCumulativeMt: 10},
			{Year: 2026, CumulativeRevenueMillion: 200, CO2ReducedCumulativeMt: 4},
		}
		err := CheckProjections(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CO2 reduction")
	})
}
