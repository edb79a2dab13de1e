package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

// pgPool is the subset of pgxpool.Pool the store uses; pgxmock
// implements it for tests.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool pgPool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// newPostgresWithPool wires an arbitrary pool; used by tests.
func newPostgresWithPool(pool pgPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS simulations (
	id           TEXT PRIMARY KEY,
	policy_name  TEXT,
	input_params JSONB NOT NULL,
	results      JSONB,
	created_at   TIMESTAMPTZ NOT NULL,
	synced_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS comparisons (
	id            TEXT PRIMARY KEY,
	policy1_name  TEXT,
	policy2_name  TEXT,
	policy1_input JSONB NOT NULL,
	policy2_input JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_simulations_created_at ON simulations(created_at);
CREATE INDEX IF NOT EXISTS idx_comparisons_created_at ON comparisons(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) PutSimulation(ctx context.Context, sim model.SavedSimulation) error {
	if sim.ID == "" {
		sim.ID = uuid.New().String()
	}
	if sim.CreatedAt.IsZero() {
		sim.CreatedAt = time.Now().UTC()
	}

	inputJSON, err := json.Marshal(sim.InputParams)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal input params")
	}
	var resultsJSON []byte
	if sim.Results != nil {
		resultsJSON, err = json.Marshal(sim.Results)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal results")
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO simulations (id, policy_name, input_params, results, created_at, synced_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			policy_name = EXCLUDED.policy_name,
			input_params = EXCLUDED.input_params,
			results = EXCLUDED.results,
			synced_at = now()`,
		sim.ID, sim.PolicyName, inputJSON, resultsJSON, sim.CreatedAt,
	)
	return eris.Wrap(err, "postgres: upsert simulation")
}

func (s *PostgresStore) GetSimulation(ctx context.Context, id string) (*model.SavedSimulation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, policy_name, input_params, results, created_at FROM simulations WHERE id = $1`, id)
	sim, err := scanPgSimulation(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get simulation")
	}
	return sim, nil
}

func scanPgSimulation(scan func(...any) error) (*model.SavedSimulation, error) {
	var (
		sim         model.SavedSimulation
		policyName  *string
		inputJSON   []byte
		resultsJSON []byte
	)
	if err := scan(&sim.ID, &policyName, &inputJSON, &resultsJSON, &sim.CreatedAt); err != nil {
		return nil, err
	}
	if policyName != nil {
		sim.PolicyName = *policyName
	}
	if err := json.Unmarshal(inputJSON, &sim.InputParams); err != nil {
		return nil, eris.Wrap(err, "store: decode input params")
	}
	if len(resultsJSON) > 0 {
		sim.Results = &model.PredictionResult{}
		if err := json.Unmarshal(resultsJSON, sim.Results); err != nil {
			return nil, eris.Wrap(err, "store: decode results")
		}
	}
	return &sim, nil
}

func (s *PostgresStore) ListSimulations(ctx context.Context, filter Filter) ([]model.SavedSimulation, error) {
	query := `SELECT id, policy_name, input_params, results, created_at FROM simulations`
	args := []any{}
	if filter.Country != "" {
		query += ` WHERE input_params->>'country' = $1`
		args = append(args, filter.Country)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list simulations")
	}
	defer rows.Close()

	var sims []model.SavedSimulation
	for rows.Next() {
		sim, err := scanPgSimulation(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan simulation")
		}
		sims = append(sims, *sim)
	}
	if filter.Offset > 0 && filter.Offset < len(sims) {
		sims = sims[filter.Offset:]
	} else if filter.Offset >= len(sims) {
		sims = nil
	}
	if filter.Limit > 0 && filter.Limit < len(sims) {
		sims = sims[:filter.Limit]
	}
	return sims, eris.Wrap(rows.Err(), "postgres: iterate simulations")
}

func (s *PostgresStore) DeleteSimulation(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM simulations WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: delete simulation")
}

func (s *PostgresStore) PutComparison(ctx context.Context, rec model.ComparisonRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	in1, err := json.Marshal(rec.Policy1Input)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal policy1 input")
	}
	in2, err := json.Marshal(rec.Policy2Input)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal policy2 input")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO comparisons (id, policy1_name, policy2_name, policy1_input, policy2_input, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			policy1_name = EXCLUDED.policy1_name,
			policy2_name = EXCLUDED.policy2_name,
			policy1_input = EXCLUDED.policy1_input,
			policy2_input = EXCLUDED.policy2_input`,
		rec.ID, rec.Policy1Name, rec.Policy2Name, in1, in2, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: upsert comparison")
}

func (s *PostgresStore) GetComparison(ctx context.Context, id string) (*model.ComparisonRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, policy1_name, policy2_name, policy1_input, policy2_input, created_at FROM comparisons WHERE id = $1`, id)
	rec, err := scanPgComparison(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get comparison")
	}
	return rec, nil
}

func scanPgComparison(scan func(...any) error) (*model.ComparisonRecord, error) {
	var (
		rec      model.ComparisonRecord
		n1, n2   *string
		in1, in2 []byte
	)
	if err := scan(&rec.ID, &n1, &n2, &in1, &in2, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if n1 != nil {
		rec.Policy1Name = *n1
	}
	if n2 != nil {
		rec.Policy2Name = *n2
	}
	if err := json.Unmarshal(in1, &rec.Policy1Input); err != nil {
		return nil, eris.Wrap(err, "store: decode policy1 input")
	}
	if err := json.Unmarshal(in2, &rec.Policy2Input); err != nil {
		return nil, eris.Wrap(err, "store: decode policy2 input")
	}
	return &rec, nil
}

func (s *PostgresStore) ListComparisons(ctx context.Context) ([]model.ComparisonRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, policy1_name, policy2_name, policy1_input, policy2_input, created_at FROM comparisons ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list comparisons")
	}
	defer rows.Close()

	var recs []model.ComparisonRecord
	for rows.Next() {
		rec, err := scanPgComparison(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan comparison")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: iterate comparisons")
}

func (s *PostgresStore) DeleteComparison(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM comparisons WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: delete comparison")
}
