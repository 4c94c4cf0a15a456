package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/voxsentry/voxsentry/internal/decision"
	"github.com/voxsentry/voxsentry/internal/fusion"
	"github.com/voxsentry/voxsentry/pkg/sensor"
)

// Schema is the SQL DDL for the verdict_audit table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS verdict_audit (
    run_id            TEXT PRIMARY KEY,
    verdict           TEXT NOT NULL,
    state             TEXT NOT NULL,
    risk_level        TEXT NOT NULL,
    reason            TEXT NOT NULL DEFAULT '',
    global_risk_score DOUBLE PRECISION NOT NULL,
    confidence        DOUBLE PRECISION NOT NULL,
    factors           JSONB NOT NULL DEFAULT '[]',
    evidence          JSONB NOT NULL DEFAULT '{}',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_verdict_audit_created ON verdict_audit(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_verdict_audit_verdict ON verdict_audit(verdict);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Factor and
// evidence sub-documents are serialised as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// verdict_audit table and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// Record inserts one verdict record.
func (s *PostgresStore) Record(ctx context.Context, rec *Record) error {
	if rec.RunID == "" {
		return errors.New("audit: record with empty run id")
	}

	factorsJSON, err := json.Marshal(emptyFactors(rec.Factors))
	if err != nil {
		return fmt.Errorf("audit: marshal factors: %w", err)
	}
	evidenceJSON, err := json.Marshal(rec.Evidence)
	if err != nil {
		return fmt.Errorf("audit: marshal evidence: %w", err)
	}

	const query = `
		INSERT INTO verdict_audit (
			run_id, verdict, state, risk_level, reason,
			global_risk_score, confidence, factors, evidence, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err = s.db.Exec(ctx, query,
		rec.RunID, string(rec.Verdict), string(rec.State), string(rec.RiskLevel), rec.Reason,
		rec.GlobalRiskScore, rec.Confidence, factorsJSON, evidenceJSON, rec.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("audit: record for run %q already exists", rec.RunID)
		}
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// Get retrieves a record by run id. Returns (nil, nil) when the run is
// unknown.
func (s *PostgresStore) Get(ctx context.Context, runID string) (*Record, error) {
	const query = `
		SELECT run_id, verdict, state, risk_level, reason,
		       global_risk_score, confidence, factors, evidence, created_at
		FROM verdict_audit WHERE run_id = $1`

	rec, err := scanRecord(s.db.QueryRow(ctx, query, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: get %q: %w", runID, err)
	}
	return rec, nil
}

// Recent returns up to limit records ordered newest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT run_id, verdict, state, risk_level, reason,
		       global_risk_score, confidence, factors, evidence, created_at
		FROM verdict_audit ORDER BY created_at DESC LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("audit: recent scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: recent rows: %w", err)
	}
	return out, nil
}

// scanRecord scans one row into a Record, decoding the JSONB sub-documents.
func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec          Record
		verdict      string
		state        string
		riskLevel    string
		factorsJSON  []byte
		evidenceJSON []byte
	)
	err := row.Scan(
		&rec.RunID, &verdict, &state, &riskLevel, &rec.Reason,
		&rec.GlobalRiskScore, &rec.Confidence, &factorsJSON, &evidenceJSON, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Verdict = decision.Verdict(verdict)
	rec.State = decision.State(state)
	rec.RiskLevel = decision.RiskLevel(riskLevel)

	if err := json.Unmarshal(factorsJSON, &rec.Factors); err != nil {
		return nil, fmt.Errorf("decode factors: %w", err)
	}
	rec.Evidence = &sensor.ResultSet{}
	if err := json.Unmarshal(evidenceJSON, rec.Evidence); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	return &rec, nil
}

// emptyFactors normalises nil to an empty slice so JSONB stores [] not null.
func emptyFactors(fs []fusion.Factor) []fusion.Factor {
	if fs == nil {
		return []fusion.Factor{}
	}
	return fs
}

// isDuplicateKeyError reports whether err is a PostgreSQL unique-violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
