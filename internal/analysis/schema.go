package analysis

import "github.com/yourorg/skill-scanner/internal/model"

// SchemaName is the name the scan result is requested under.
const SchemaName = "scan_result"

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func strList(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}

func enum(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values, "description": desc}
}

func object(props map[string]any, required []string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// ScanSchema is the JSON schema every skill verdict must satisfy.
func ScanSchema() map[string]any {
	details := map[string]any{}
	for _, c := range model.ThreatCategories {
		details[c] = object(map[string]any{
			"detected": map[string]any{"type": "boolean"},
			"evidence": strList("Concrete evidence: file path, line, snippet"),
		}, []string{"detected", "evidence"})
	}
	detailsSchema := object(details, append([]string(nil), model.ThreatCategories...))
	detailsSchema["description"] = "Per-category threat analysis with evidence"

	about := object(map[string]any{
		"purpose":              str("What the skill actually does, in one or two sentences"),
		"capabilities":         strList("Concrete actions the skill can perform"),
		"use_cases":            strList("Practical scenarios where the skill is useful"),
		"permissions_required": strList("Access the skill needs and the reason for each"),
		"security_notes":       str("Plain-language considerations for someone deciding whether to install"),
	}, []string{"purpose", "capabilities", "use_cases", "permissions_required", "security_notes"})
	about["description"] = "Factual summary based on SKILL.md and source code, not the README"

	props := map[string]any{
		"trust_status": enum("verified = score 0.0-3.9, caution = 4.0-6.9, failed = 7.0-10.0",
			model.TrustVerified, model.TrustCaution, model.TrustFailed),
		"intent": enum("Classify intent before scoring: benign, risky (legitimate but broad), malicious (deceptive or harmful)",
			model.IntentBenign, model.IntentRisky, model.IntentMalicious),
		"recommendation": enum("safe = 0.0-3.9, caution = 4.0-6.9, danger = 7.0-10.0",
			model.RecommendSafe, model.RecommendCaution, model.RecommendDanger),
		"risk_score": map[string]any{
			"type": "number", "minimum": 0, "maximum": 10,
			"description": "Overall risk from 0 to 10 with one decimal place",
		},
		"summary":     str("One to three sentence summary of the assessment"),
		"details":     detailsSchema,
		"skill_about": about,
		"confidence": map[string]any{
			"type": "number", "minimum": 0, "maximum": 100,
			"description": "Certainty in the assessment from 0 to 100",
		},
		"static_findings_assessment": str("Which pre-scan findings are genuine concerns and which are false positives for this skill"),
		"category":                   enum("Primary functional category", model.SkillCategories...),
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required": []string{
			"trust_status", "intent", "recommendation", "risk_score", "summary",
			"details", "skill_about", "confidence", "static_findings_assessment", "category",
		},
		"additionalProperties": false,
	}
}
