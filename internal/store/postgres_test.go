package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

func TestPostgresStore_PutSimulation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newPostgresWithPool(mock)

	mock.ExpectExec(`INSERT INTO simulations`).
		WithArgs("sim-1", "Test Policy", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.PutSimulation(context.Background(), model.SavedSimulation{
		ID:         "sim-1",
		PolicyName: "Test Policy",
		InputParams: model.SimulationInput{
			Country: "Germany", PolicyType: model.PolicyCarbonTax,
			CarbonPriceUSD: 50, CoveragePercent: 40, Year: 2025, ProjectionYears: 10,
		},
		Results:   &model.PredictionResult{RevenueMillion: 1000},
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutSimulationAssignsID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newPostgresWithPool(mock)

	// A blank ID becomes a fresh UUID; the zero CreatedAt becomes now.
	mock.ExpectExec(`INSERT INTO simulations`).
		WithArgs(pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.PutSimulation(context.Background(), model.SavedSimulation{
		InputParams: model.SimulationInput{Country: "Germany"},
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSimulation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newPostgresWithPool(mock)

	name := "Saved Policy"
	input, err := json.Marshal(model.SimulationInput{
		Country: "France", PolicyType: model.PolicyETS,
		CarbonPriceUSD: 80, CoveragePercent: 60, Year: 2026, ProjectionYears: 5,
	})
	require.NoError(t, err)
	results, err := json.Marshal(model.PredictionResult{RevenueMillion: 2000, RiskCategory: model.RiskLow})
	require.NoError(t, err)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, policy_name, input_params, results, created_at FROM simulations`).
		WithArgs("sim-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "policy_name", "input_params", "results", "created_at"}).
			AddRow("sim-1", &name, input, results, created))

	got, err := s.GetSimulation(context.Background(), "sim-1")

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Saved Policy", got.PolicyName)
	assert.Equal(t, "France", got.InputParams.Country)
	require.NotNil(t, got.Results)
	assert.Equal(t, 2000.0, got.Results.RevenueMillion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSimulationAbsent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newPostgresWithPool(mock)

	mock.ExpectQuery(`SELECT id, policy_name, input_params, results, created_at FROM simulations`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetSimulation(context.Background(), "nope")

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSimulationsCountryFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newPostgresWithPool(mock)

	input, err := json.Marshal(model.SimulationInput{Country: "Germany"})
	require.NoError(t, err)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE input_params->>'country'`).
		WithArgs("Germany").
		WillReturnRows(pgxmock.NewRows([]string{"id", "policy_name", "input_params", "results", "created_at"}).
			AddRow("sim-1", (*string)(nil), input, []byte(nil), created))

	sims, err := s.ListSimulations(context.Background(), Filter{Country: "Germany"})

	require.NoError(t, err)
	require.Len(t, sims, 1)
	assert.Equal(t, "sim-1", sims[0].ID)
	assert.Equal(t, "", sims[0].PolicyName)
	assert.Nil(t, sims[0].Results)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteSimulation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newPostgresWithPool(mock)

	mock.ExpectExec(`DELETE FROM simulations WHERE id = \$1`).
		WithArgs("sim-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	assert.NoError(t, s.DeleteSimulation(context.Background(), "sim-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ComparisonRoundTrip(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newPostgresWithPool(mock)

	mock.ExpectExec(`INSERT INTO comparisons`).
		WithArgs("cmp-1", "Tax A", "ETS B", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.PutComparison(context.Background(), model.ComparisonRecord{
		ID:          "cmp-1",
		Policy1Name: "Tax A",
		Policy2Name: "ETS B",
		Policy1Input: model.SimulationInput{Country: "Germany", PolicyType: model.PolicyCarbonTax},
		Policy2Input: model.SimulationInput{Country: "Germany", PolicyType: model.PolicyETS},
		CreatedAt:    time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	n1, n2 := "Tax A", "ETS B"
	in1, err := json.Marshal(model.SimulationInput{Country: "Germany", PolicyType: model.PolicyCarbonTax})
	require.NoError(t, err)
	in2, err := json.Marshal(model.SimulationInput{Country: "Germany", PolicyType: model.PolicyETS})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, policy1_name, policy2_name, policy1_input, policy2_input, created_at FROM comparisons`).
		WithArgs("cmp-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "policy1_name", "policy2_name", "policy1_input", "policy2_input", "created_at"}).
			AddRow("cmp-1", &n1, &n2, in1, in2, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)))

	got, err := s.GetComparison(context.Background(), "cmp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Tax A", got.Policy1Name)
	assert.Equal(t, model.PolicyETS, got.Policy2Input.PolicyType)
	assert.NoError(t, mock.ExpectationsWereMet())
}
