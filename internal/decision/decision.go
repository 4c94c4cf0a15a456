// Package decision maps a fused risk score onto a discrete verdict.
//
// The classifier is a finite state machine with exactly three terminal
// states — APPROVE, ESCALATE, BLOCK — and a single transition per run; no
// state persists across runs. Threshold monotonicity is validated at config
// load, and boundary ties resolve toward the more cautious state.
package decision

import (
	"fmt"

	"github.com/voxsentry/voxsentry/internal/config"
	"github.com/voxsentry/voxsentry/internal/fusion"
)

// State is a terminal state of the classifier.
type State string

const (
	// StateApprove admits the sample as authentic.
	StateApprove State = "APPROVE"

	// StateEscalate defers to human or secondary review.
	StateEscalate State = "ESCALATE"

	// StateBlock rejects the sample as synthetic.
	StateBlock State = "BLOCK"
)

// Verdict is the caller-facing classification surfaced for a run.
type Verdict string

const (
	VerdictReal      Verdict = "REAL"
	VerdictSynthetic Verdict = "SYNTHETIC"
	VerdictUnknown   Verdict = "UNKNOWN"
)

// Tier subdivides ESCALATE into a review-urgency band for UI purposes only.
// It is never a fourth terminal state.
type Tier string

const (
	TierLow  Tier = "low"
	TierHigh Tier = "high"
)

// RiskLevel bands the composite score for operator display.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// ReasonInsufficientEvidence is reported when too few sensors produced a
// determinate result for a scored verdict.
const ReasonInsufficientEvidence = "insufficient_evidence"

// Thresholds holds the validated decision boundaries for one classification.
type Thresholds struct {
	// Approve, Escalate, and Block satisfy Approve < Escalate < Block.
	Approve  float64
	Escalate float64
	Block    float64

	// MinDeterminate is the minimum number of contributing sensors required
	// for a scored verdict.
	MinDeterminate int
}

// ThresholdsFromConfig extracts the decision thresholds from a validated
// config.
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		Approve:        cfg.TApprove,
		Escalate:       cfg.TEscalate,
		Block:          cfg.TBlock,
		MinDeterminate: cfg.MinDeterminateSensors,
	}
}

// Validate checks threshold monotonicity. Configs loaded through the config
// package are already validated; this guards programmatically built values
// (calibration candidates).
func (t Thresholds) Validate() error {
	if !(t.Approve < t.Escalate && t.Escalate < t.Block) {
		return fmt.Errorf("%w: got t_approve=%.3f t_escalate=%.3f t_block=%.3f",
			config.ErrInvalidThresholdOrder, t.Approve, t.Escalate, t.Block)
	}
	return nil
}

// Outcome is the classifier's decision for one run.
type Outcome struct {
	// State is the terminal FSM state.
	State State `json:"state"`

	// Verdict is the caller-facing classification.
	Verdict Verdict `json:"verdict"`

	// RiskLevel bands the score for display.
	RiskLevel RiskLevel `json:"risk_level"`

	// Tier is set only when State is ESCALATE.
	Tier Tier `json:"escalation_tier,omitempty"`

	// Reason is a short machine-greppable explanation of the decision.
	Reason string `json:"reason"`
}

// Classify maps a fused score onto a verdict. t must already be validated.
//
// The insufficiency override comes first: with fewer than MinDeterminate
// contributing sensors the verdict is UNKNOWN regardless of the computed
// score — a score built from too little evidence must never approve or
// block. Otherwise:
//
//	score <  Approve            → APPROVE  / REAL
//	Approve ≤ score < Block     → ESCALATE / UNKNOWN
//	score ≥  Block              → BLOCK    / SYNTHETIC
//
// A score exactly at a boundary resolves to the more cautious state:
// escalation is inclusive at its lower bound.
func Classify(t Thresholds, s fusion.Score) Outcome {
	level := riskLevel(t, s.GlobalRiskScore)

	if s.Contributing < t.MinDeterminate || s.Contributing == 0 {
		return Outcome{
			State:     StateEscalate,
			Verdict:   VerdictUnknown,
			RiskLevel: level,
			Tier:      TierLow,
			Reason:    ReasonInsufficientEvidence,
		}
	}

	score := s.GlobalRiskScore
	switch {
	case score < t.Approve:
		return Outcome{
			State:     StateApprove,
			Verdict:   VerdictReal,
			RiskLevel: level,
			Reason:    "low_risk",
		}
	case score < t.Block:
		tier := TierLow
		if score >= t.Escalate {
			tier = TierHigh
		}
		return Outcome{
			State:     StateEscalate,
			Verdict:   VerdictUnknown,
			RiskLevel: level,
			Tier:      tier,
			Reason:    "requires_review",
		}
	default:
		return Outcome{
			State:     StateBlock,
			Verdict:   VerdictSynthetic,
			RiskLevel: level,
			Reason:    "high_risk",
		}
	}
}

// riskLevel bands score using the same thresholds that drive the FSM.
func riskLevel(t Thresholds, score float64) RiskLevel {
	switch {
	case score < t.Approve:
		return RiskLow
	case score < t.Escalate:
		return RiskMedium
	case score < t.Block:
		return RiskHigh
	default:
		return RiskCritical
	}
}
