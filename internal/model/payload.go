package model

import "encoding/json"

// ResultPayload is the body submitted to the result sink for one scanned skill.
type ResultPayload struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Repo        string `json:"repo,omitempty"`
	CommitHash  string `json:"commit_hash"`
	Version     string `json:"version,omitempty"`

	TrustStatus              string             `json:"trust_status"`
	Recommendation           string             `json:"recommendation"`
	RiskScore                float64            `json:"risk_score"`
	Summary                  string             `json:"summary"`
	Details                  ResultDetails      `json:"details"`
	SkillAbout               *SkillAbout        `json:"skill_about,omitempty"`
	Model                    string             `json:"model,omitempty"`
	Confidence               float64            `json:"confidence"`
	DependencyVulns          []DepVulnerability `json:"dependency_vulnerabilities,omitempty"`
	WasTruncated             bool               `json:"was_truncated"`
	PreScanFlags             []StaticFinding    `json:"pre_scan_flags,omitempty"`
	StaticFindingsAssessment string             `json:"static_findings_assessment,omitempty"`
	Intent                   string             `json:"intent,omitempty"`
	Category                 string             `json:"category,omitempty"`
	Source                   string             `json:"source,omitempty"`

	ClawHubSlug        string `json:"clawhub_slug,omitempty"`
	ClawHubVersion     string `json:"clawhub_version,omitempty"`
	ClawHubContentHash string `json:"clawhub_content_hash,omitempty"`
	ClawHubDownloads   *int   `json:"clawhub_downloads,omitempty"`
	ClawHubStars       *int   `json:"clawhub_stars,omitempty"`
	ClawHubURL         string `json:"clawhub_url,omitempty"`

	GitHubStars     *int  `json:"github_stars,omitempty"`
	GitHubForks     *int  `json:"github_forks,omitempty"`
	GitHubIsPrivate *bool `json:"github_is_private,omitempty"`

	// EnforcementNotes are kept in the archive only; the sink never sees them.
	EnforcementNotes []string `json:"-"`
}

// ArchivedReport is the archived form of a payload.
type ArchivedReport struct {
	*ResultPayload
	EnforcementNotes []string `json:"enforcement_notes,omitempty"`
}

// ResultDetails carries the per-category evidence together with the
// deterministic pre-scan output and any registry-reported scans.
type ResultDetails struct {
	Categories     map[string]Evidence `json:"-"`
	StaticFindings []StaticFinding     `json:"static_findings,omitempty"`
	StaticSummary  *StaticSummary      `json:"static_summary,omitempty"`
	Assessment     string              `json:"static_findings_assessment,omitempty"`
	ExternalScans  *ExternalScans      `json:"external_scans,omitempty"`
}

// MarshalJSON flattens the category evidence next to the pre-scan keys.
func (d ResultDetails) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Categories)+4)
	for k, v := range d.Categories {
		out[k] = v
	}
	if len(d.StaticFindings) > 0 {
		out["static_findings"] = d.StaticFindings
	}
	if d.StaticSummary != nil {
		out["static_summary"] = d.StaticSummary
	}
	if d.Assessment != "" {
		out["static_findings_assessment"] = d.Assessment
	}
	if d.ExternalScans != nil {
		out["external_scans"] = d.ExternalScans
	}
	return json.Marshal(out)
}

func (d *ResultDetails) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d.Categories = map[string]Evidence{}
	for k, v := range raw {
		var err error
		switch k {
		case "static_findings":
			err = json.Unmarshal(v, &d.StaticFindings)
		case "static_summary":
			d.StaticSummary = &StaticSummary{}
			err = json.Unmarshal(v, d.StaticSummary)
		case "static_findings_assessment":
			err = json.Unmarshal(v, &d.Assessment)
		case "external_scans":
			d.ExternalScans = &ExternalScans{}
			err = json.Unmarshal(v, d.ExternalScans)
		default:
			var ev Evidence
			if json.Unmarshal(v, &ev) == nil {
				d.Categories[k] = ev
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}
