package analysis

import (
	"fmt"
	"log"
	"slices"

	"github.com/yourorg/skill-scanner/internal/model"
)

// Tier maps a risk score to the recommendation and trust status it implies.
func Tier(score float64) (recommendation, trust string) {
	switch {
	case score < 4:
		return model.RecommendSafe, model.TrustVerified
	case score < 7:
		return model.RecommendCaution, model.TrustCaution
	default:
		return model.RecommendDanger, model.TrustFailed
	}
}

// Enforce makes intent, score, recommendation and trust status agree. The
// score is authoritative except that malicious intent floors it at 7.
// Every change is logged and returned; a second call returns nothing.
func Enforce(out *model.ScanOutput) []string {
	var fixes []string
	note := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		log.Printf("warning: %s", msg)
		fixes = append(fixes, msg)
	}

	if out.RiskScore < 0 || out.RiskScore > 10 {
		clamped := min(max(out.RiskScore, 0), 10)
		note("risk_score %.1f out of range, clamping to %.1f", out.RiskScore, clamped)
		out.RiskScore = clamped
	}
	if out.Confidence < 0 || out.Confidence > 100 {
		clamped := min(max(out.Confidence, 0), 100)
		note("confidence %.0f out of range, clamping to %.0f", out.Confidence, clamped)
		out.Confidence = clamped
	}

	if out.Intent == model.IntentMalicious && out.RiskScore < 7 {
		note("intent %q but risk_score %.1f, raising to 7", out.Intent, out.RiskScore)
		out.RiskScore = 7
	}

	rec, trust := Tier(out.RiskScore)
	if out.Recommendation != rec {
		note("risk_score %.1f but recommendation %q, overriding to %q", out.RiskScore, out.Recommendation, rec)
		out.Recommendation = rec
	}
	if out.TrustStatus != trust {
		note("risk_score %.1f but trust_status %q, overriding to %q", out.RiskScore, out.TrustStatus, trust)
		out.TrustStatus = trust
	}

	if out.Details == nil {
		out.Details = map[string]model.Evidence{}
	}
	for _, c := range model.ThreatCategories {
		ev, ok := out.Details[c]
		if !ok {
			note("details missing category %s", c)
		}
		if ev.Evidence == nil {
			ev.Evidence = []string{}
		}
		out.Details[c] = ev
	}

	if !slices.Contains(model.SkillCategories, out.Category) {
		if out.Category != "" {
			note("unknown category %q, using other", out.Category)
		}
		out.Category = "other"
	}
	return fixes
}
