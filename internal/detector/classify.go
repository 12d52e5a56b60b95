package detector

import (
	"fmt"

	"hydra-waf/internal/models"
)

// Decision is the outcome of scoring one request against the threshold ladder.
type Decision struct {
	Verdict string
	Band    string // very high | high | medium | low | safe
	Reason  string
	Detail  string // 403 response detail for blocked verdicts
	Deny    bool
	Report  bool // forward the event to the control plane
}

// Classify places a score on the (very_high, high, medium, low, safe) ladder.
// Boundary scores belong to the band they equal: score == very_high blocks,
// score == low logs.
func Classify(score float64, v SettingsValues) Decision {
	switch {
	case score >= v.VeryHighRisk:
		return Decision{
			Verdict: models.VerdictBlocked,
			Band:    "very high",
			Reason:  mlReason(score, "very high"),
			Detail:  "Blocked and reported",
			Deny:    true,
			Report:  true,
		}
	case score >= v.HighRisk:
		return Decision{
			Verdict: models.VerdictBlocked,
			Band:    "high",
			Reason:  mlReason(score, "high"),
			Detail:  "Blocked by ML",
			Deny:    true,
			Report:  true,
		}
	case score >= v.MediumRisk:
		return Decision{
			Verdict: models.VerdictAlert,
			Band:    "medium",
			Reason:  mlReason(score, "medium"),
			Report:  true,
		}
	case score >= v.LowRisk:
		return Decision{
			Verdict: models.VerdictLogged,
			Band:    "low",
			Reason:  mlReason(score, "low"),
		}
	default:
		return Decision{
			Verdict: models.VerdictSafe,
			Band:    "safe",
			Reason:  mlReason(score, "safe"),
		}
	}
}

// Severity maps a score to the alert severity reported at ingest. These are
// fixed cutoffs, independent of the live thresholds.
func Severity(score float64) string {
	switch {
	case score >= 0.85:
		return "Critical"
	case score >= 0.70:
		return "High"
	default:
		return "Medium"
	}
}

func mlReason(score float64, band string) string {
	return fmt.Sprintf("ML:%.2f (%s)", score, band)
}
