// Package audit persists verdict reports for after-the-fact review.
//
// A record holds the verdict, the fused score, and the full per-sensor
// evidence — everything needed to reconstruct why a decision was made — but
// never the source audio. Persistence is best-effort from the engine's point
// of view: a failing audit store degrades to a logged warning, it never
// blocks or fails an analysis run.
package audit

import (
	"context"
	"time"

	"github.com/voxsentry/voxsentry/internal/decision"
	"github.com/voxsentry/voxsentry/internal/fusion"
	"github.com/voxsentry/voxsentry/pkg/sensor"
)

// Record is one persisted verdict, fully reconstructable from its factors
// and evidence alone.
type Record struct {
	// RunID is the unique analysis run identifier.
	RunID string

	// Verdict is the caller-facing classification.
	Verdict decision.Verdict

	// State is the classifier's terminal state.
	State decision.State

	// RiskLevel bands the score for display.
	RiskLevel decision.RiskLevel

	// Reason is the classifier's decision reason.
	Reason string

	// GlobalRiskScore and Confidence mirror the fused score.
	GlobalRiskScore float64
	Confidence      float64

	// Factors is the ranked contribution breakdown.
	Factors []fusion.Factor

	// Evidence holds every sensor's result for the run.
	Evidence *sensor.ResultSet

	// CreatedAt is when the verdict was produced.
	CreatedAt time.Time
}

// Store persists verdict records.
type Store interface {
	// Record inserts one verdict record.
	Record(ctx context.Context, rec *Record) error

	// Get retrieves a record by run id. Returns a nil record (no error) when
	// the run is unknown.
	Get(ctx context.Context, runID string) (*Record, error)

	// Recent returns up to limit records ordered newest first.
	Recent(ctx context.Context, limit int) ([]*Record, error)
}
