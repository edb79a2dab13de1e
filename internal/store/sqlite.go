package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS simulations (
	id           TEXT PRIMARY KEY,
	policy_name  TEXT,
	input_params TEXT NOT NULL,
	results      TEXT,
	created_at   DATETIME NOT NULL,
	synced_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS comparisons (
	id            TEXT PRIMARY KEY,
	policy1_name  TEXT,
	policy2_name  TEXT,
	policy1_input TEXT NOT NULL,
	policy2_input TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_simulations_created_at ON simulations(created_at);
CREATE INDEX IF NOT EXISTS idx_comparisons_created_at ON comparisons(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutSimulation(ctx context.Context, sim model.SavedSimulation) error {
	if sim.ID == "" {
		sim.ID = uuid.New().String()
	}
	if sim.CreatedAt.IsZero() {
		sim.CreatedAt = time.Now().UTC()
	}

	inputJSON, err := json.Marshal(sim.InputParams)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal input params")
	}
	var resultsJSON []byte
	if sim.Results != nil {
		resultsJSON, err = json.Marshal(sim.Results)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal results")
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO simulations (id, policy_name, input_params, results, created_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			policy_name = excluded.policy_name,
			input_params = excluded.input_params,
			results = excluded.results,
			synced_at = excluded.synced_at`,
		sim.ID, sim.PolicyName, string(inputJSON), nullableString(resultsJSON), sim.CreatedAt, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: upsert simulation")
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func (s *SQLiteStore) GetSimulation(ctx context.Context, id string) (*model.SavedSimulation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, policy_name, input_params, results, created_at FROM simulations WHERE id = ?`, id)
	sim, err := scanSimulation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get simulation")
	}
	return sim, nil
}

func scanSimulation(scan func(...any) error) (*model.SavedSimulation, error) {
	var (
		sim         model.SavedSimulation
		policyName  sql.NullString
		inputJSON   string
		resultsJSON sql.NullString
	)
	if err := scan(&sim.ID, &policyName, &inputJSON, &resultsJSON, &sim.CreatedAt); err != nil {
		return nil, err
	}
	sim.PolicyName = policyName.String
	if err := json.Unmarshal([]byte(inputJSON), &sim.InputParams); err != nil {
		return nil, eris.Wrap(err, "store: decode input params")
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		sim.Results = &model.PredictionResult{}
		if err := json.Unmarshal([]byte(resultsJSON.String), sim.Results); err != nil {
			return nil, eris.Wrap(err, "store: decode results")
		}
	}
	return &sim, nil
}

func (s *SQLiteStore) ListSimulations(ctx context.Context, filter Filter) ([]model.SavedSimulation, error) {
	query := `SELECT id, policy_name, input_params, results, created_at FROM simulations`
	args := []any{}
	if filter.Country != "" {
		query += ` WHERE json_extract(input_params, '$.country') = ?`
		args = append(args, filter.Country)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list simulations")
	}
	defer rows.Close()

	var sims []model.SavedSimulation
	for rows.Next() {
		sim, err := scanSimulation(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan simulation")
		}
		sims = append(sims, *sim)
	}
	return sims, eris.Wrap(rows.Err(), "sqlite: iterate simulations")
}

func (s *SQLiteStore) DeleteSimulation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM simulations WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: delete simulation")
}

func (s *SQLiteStore) PutComparison(ctx context.Context, rec model.ComparisonRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	in1, err := json.Marshal(rec.Policy1Input)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal policy1 input")
	}
	in2, err := json.Marshal(rec.Policy2Input)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal policy2 input")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO comparisons (id, policy1_name, policy2_name, policy1_input, policy2_input, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			policy1_name = excluded.policy1_name,
			policy2_name = excluded.policy2_name,
			policy1_input = excluded.policy1_input,
			policy2_input = excluded.policy2_input`,
		rec.ID, rec.Policy1Name, rec.Policy2Name, string(in1), string(in2), rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: upsert comparison")
}

func scanComparison(scan func(...any) error) (*model.ComparisonRecord, error) {
	var (
		rec      model.ComparisonRecord
		n1, n2   sql.NullString
		in1, in2 string
	)
	if err := scan(&rec.ID, &n1, &n2, &in1, &in2, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Policy1Name = n1.String
	rec.Policy2Name = n2.String
	if err := json.Unmarshal([]byte(in1), &rec.Policy1Input); err != nil {
		return nil, eris.Wrap(err, "store: decode policy1 input")
	}
	if err := json.Unmarshal([]byte(in2), &rec.Policy2Input); err != nil {
		return nil, eris.Wrap(err, "store: decode policy2 input")
	}
	return &rec, nil
}

func (s *SQLiteStore) GetComparison(ctx context.Context, id string) (*model.ComparisonRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, policy1_name, policy2_name, policy1_input, policy2_input, created_at FROM comparisons WHERE id = ?`, id)
	rec, err := scanComparison(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get comparison")
	}
	return rec, nil
}

func (s *SQLiteStore) ListComparisons(ctx context.Context) ([]model.ComparisonRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, policy1_name, policy2_name, policy1_input, policy2_input, created_at FROM comparisons ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list comparisons")
	}
	defer rows.Close()

	var recs []model.ComparisonRecord
	for rows.Next() {
		rec, err := scanComparison(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan comparison")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: iterate comparisons")
}

func (s *SQLiteStore) DeleteComparison(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM comparisons WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: delete comparison")
}
