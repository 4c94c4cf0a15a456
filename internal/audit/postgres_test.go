package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/voxsentry/voxsentry/internal/decision"
	"github.com/voxsentry/voxsentry/internal/fusion"
	"github.com/voxsentry/voxsentry/pkg/sensor"
)

// ---------------------------------------------------------------------------
// Test helpers — mock DB types
// ---------------------------------------------------------------------------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows for testing.
type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *float64:
			*d = v.(float64)
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func testRecord() *Record {
	rs, _ := sensor.NewResultSet(
		sensor.Result{SensorID: "breath", Outcome: sensor.OutcomeFailed, Value: sensor.Float(0.8), Threshold: sensor.Float(0.5)},
	)
	return &Record{
		RunID:           "run-1",
		Verdict:         decision.VerdictSynthetic,
		State:           decision.StateBlock,
		RiskLevel:       decision.RiskCritical,
		Reason:          "high_risk",
		GlobalRiskScore: 0.8,
		Confidence:      1.0,
		Factors: []fusion.Factor{
			{SensorID: "breath", Weight: 1.0, NormalizedScore: 0.8, Contribution: 0.8},
		},
		Evidence:  rs,
		CreatedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

// ---------------------------------------------------------------------------
// PostgresStore tests
// ---------------------------------------------------------------------------

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
				if !strings.Contains(sql, "CREATE TABLE") {
					t.Errorf("Migrate SQL should contain CREATE TABLE, got: %s", sql)
				}
				return pgconn.CommandTag{}, nil
			},
		}
		if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate() unexpected error: %v", err)
		}
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
				return pgconn.CommandTag{}, errors.New("connection refused")
			},
		}
		err := NewPostgresStore(db).Migrate(context.Background())
		if err == nil {
			t.Fatal("Migrate() expected error, got nil")
		}
		if !strings.Contains(err.Error(), "audit: migrate:") {
			t.Errorf("error = %q, want prefix 'audit: migrate:'", err.Error())
		}
	})
}

func TestPostgresStore_Record(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		var capturedSQL string
		var capturedArgs []any
		db := &mockDB{
			execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
				capturedSQL = sql
				capturedArgs = args
				return pgconn.CommandTag{}, nil
			},
		}

		if err := NewPostgresStore(db).Record(context.Background(), testRecord()); err != nil {
			t.Fatalf("Record() unexpected error: %v", err)
		}
		if !strings.Contains(capturedSQL, "INSERT INTO verdict_audit") {
			t.Errorf("SQL should contain INSERT, got: %s", capturedSQL)
		}
		if len(capturedArgs) != 10 {
			t.Fatalf("expected 10 args, got %d", len(capturedArgs))
		}
		if capturedArgs[0] != "run-1" {
			t.Errorf("first arg = %v, want 'run-1'", capturedArgs[0])
		}
		if capturedArgs[1] != "SYNTHETIC" {
			t.Errorf("verdict arg = %v, want 'SYNTHETIC'", capturedArgs[1])
		}
		factorsJSON := capturedArgs[7].([]byte)
		if !strings.Contains(string(factorsJSON), "breath") {
			t.Errorf("factors JSON missing sensor: %s", factorsJSON)
		}
	})

	t.Run("empty run id", func(t *testing.T) {
		t.Parallel()
		rec := testRecord()
		rec.RunID = ""
		if err := NewPostgresStore(&mockDB{}).Record(context.Background(), rec); err == nil {
			t.Fatal("Record() expected error for empty run id")
		}
	})

	t.Run("nil factors stored as empty array", func(t *testing.T) {
		t.Parallel()
		var capturedArgs []any
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
				capturedArgs = args
				return pgconn.CommandTag{}, nil
			},
		}
		rec := testRecord()
		rec.Factors = nil
		if err := NewPostgresStore(db).Record(context.Background(), rec); err != nil {
			t.Fatalf("Record() unexpected error: %v", err)
		}
		if got := string(capturedArgs[7].([]byte)); got != "[]" {
			t.Errorf("factors JSON = %s, want []", got)
		}
	})

	t.Run("duplicate key", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
				return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
			},
		}
		err := NewPostgresStore(db).Record(context.Background(), testRecord())
		if err == nil {
			t.Fatal("Record() expected duplicate error, got nil")
		}
		if !strings.Contains(err.Error(), "already exists") {
			t.Errorf("error = %q, want 'already exists'", err.Error())
		}
	})

	t.Run("db error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
				return pgconn.CommandTag{}, errors.New("connection lost")
			},
		}
		err := NewPostgresStore(db).Record(context.Background(), testRecord())
		if err == nil || !strings.Contains(err.Error(), "audit: record:") {
			t.Errorf("error = %v, want prefix 'audit: record:'", err)
		}
	})
}

func TestPostgresStore_Get(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
				if args[0] != "run-1" {
					t.Errorf("Get() id = %v, want 'run-1'", args[0])
				}
				return &mockRow{
					scanFunc: func(dest ...any) error {
						*(dest[0].(*string)) = "run-1"
						*(dest[1].(*string)) = "SYNTHETIC"
						*(dest[2].(*string)) = "BLOCK"
						*(dest[3].(*string)) = "CRITICAL"
						*(dest[4].(*string)) = "high_risk"
						*(dest[5].(*float64)) = 0.8
						*(dest[6].(*float64)) = 1.0
						*(dest[7].(*[]byte)) = []byte(`[{"sensor_id":"breath","weight":1,"normalized_score":0.8,"contribution":0.8}]`)
						*(dest[8].(*[]byte)) = []byte(`{"breath":{"sensor_id":"breath","outcome":"failed"}}`)
						*(dest[9].(*time.Time)) = fixedTime
						return nil
					},
				}
			},
		}

		rec, err := NewPostgresStore(db).Get(context.Background(), "run-1")
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}
		if rec == nil {
			t.Fatal("Get() returned nil, want record")
		}
		if rec.Verdict != decision.VerdictSynthetic || rec.State != decision.StateBlock {
			t.Errorf("verdict/state = %s/%s", rec.Verdict, rec.State)
		}
		if len(rec.Factors) != 1 || rec.Factors[0].SensorID != "breath" {
			t.Errorf("Factors = %+v", rec.Factors)
		}
		if res, ok := rec.Evidence.Get("breath"); !ok || res.Outcome != sensor.OutcomeFailed {
			t.Errorf("evidence not restored: %+v", rec.Evidence)
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		rec, err := NewPostgresStore(&mockDB{}).Get(context.Background(), "missing")
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}
		if rec != nil {
			t.Errorf("Get() = %v, want nil for unknown run", rec)
		}
	})

	t.Run("db error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{scanFunc: func(_ ...any) error { return errors.New("timeout") }}
			},
		}
		_, err := NewPostgresStore(db).Get(context.Background(), "run-1")
		if err == nil || !strings.Contains(err.Error(), "audit: get") {
			t.Errorf("error = %v, want prefix 'audit: get'", err)
		}
	})
}

func TestPostgresStore_Recent(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	makeRow := func(id string) []any {
		return []any{
			id, "REAL", "APPROVE", "LOW", "low_risk",
			0.1, 1.0, []byte(`[]`), []byte(`{}`), fixedTime,
		}
	}

	t.Run("default limit", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryFunc: func(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
				if args[0] != 50 {
					t.Errorf("limit arg = %v, want default 50", args[0])
				}
				return &mockRows{data: [][]any{makeRow("run-1"), makeRow("run-2")}}, nil
			},
		}
		recs, err := NewPostgresStore(db).Recent(context.Background(), 0)
		if err != nil {
			t.Fatalf("Recent() unexpected error: %v", err)
		}
		if len(recs) != 2 || recs[0].RunID != "run-1" {
			t.Errorf("Recent() = %d records", len(recs))
		}
	})

	t.Run("rows error after iteration", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryFunc: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
				return &mockRows{err: errors.New("stream interrupted")}, nil
			},
		}
		_, err := NewPostgresStore(db).Recent(context.Background(), 10)
		if err == nil || !strings.Contains(err.Error(), "audit: recent rows:") {
			t.Errorf("error = %v, want prefix 'audit: recent rows:'", err)
		}
	})
}
