package clawhub

import (
	"time"

	"github.com/yourorg/skill-scanner/internal/model"
)

type rawStats struct {
	Downloads int `json:"downloads"`
	Stars     int `json:"stars"`
}

type rawVersion struct {
	Version   string `json:"version"`
	CreatedAt int64  `json:"createdAt"`
}

type rawListItem struct {
	Slug          string     `json:"slug"`
	DisplayName   string     `json:"displayName"`
	Summary       string     `json:"summary"`
	Stats         rawStats   `json:"stats"`
	LatestVersion rawVersion `json:"latestVersion"`
	UpdatedAt     int64      `json:"updatedAt"`
}

func (it rawListItem) summary() Summary {
	return Summary{
		Slug:          it.Slug,
		Name:          it.Slug,
		Description:   it.Summary,
		Downloads:     it.Stats.Downloads,
		Stars:         it.Stats.Stars,
		LatestVersion: it.LatestVersion.Version,
		UpdatedAt:     time.UnixMilli(it.UpdatedAt).UTC(),
	}
}

type rawList struct {
	Items      []rawListItem `json:"items"`
	Total      int           `json:"total"`
	NextCursor *string       `json:"nextCursor"`
}

type rawDetail struct {
	Skill struct {
		Slug        string   `json:"slug"`
		DisplayName string   `json:"displayName"`
		Summary     string   `json:"summary"`
		Stats       rawStats `json:"stats"`
		UpdatedAt   int64    `json:"updatedAt"`
	} `json:"skill"`
	LatestVersion rawVersion `json:"latestVersion"`
	Owner         struct {
		Handle      string `json:"handle"`
		DisplayName string `json:"displayName"`
	} `json:"owner"`
	Moderation *Moderation `json:"moderation"`
}

func (r rawDetail) detail() *Detail {
	return &Detail{
		Summary: Summary{
			Slug:          r.Skill.Slug,
			Name:          r.Skill.Slug,
			Description:   r.Skill.Summary,
			Downloads:     r.Skill.Stats.Downloads,
			Stars:         r.Skill.Stats.Stars,
			LatestVersion: r.LatestVersion.Version,
			UpdatedAt:     time.UnixMilli(r.Skill.UpdatedAt).UTC(),
		},
		Owner:      Owner{Handle: r.Owner.Handle, Name: r.Owner.DisplayName},
		Moderation: r.Moderation,
	}
}

// Summary is a registry listing entry. Name is the slug.
type Summary struct {
	Slug          string
	Name          string
	Description   string
	Downloads     int
	Stars         int
	LatestVersion string
	UpdatedAt     time.Time
}

type Owner struct {
	Handle string
	Name   string
}

type Moderation struct {
	IsSuspicious     bool `json:"isSuspicious"`
	IsMalwareBlocked bool `json:"isMalwareBlocked"`
}

type VTAnalysis struct {
	Status    string `json:"status"`
	Verdict   string `json:"verdict"`
	Analysis  string `json:"analysis"`
	CheckedAt int64  `json:"checkedAt"`
	Source    string `json:"source"`
}

type LLMAnalysis struct {
	Status     string `json:"status"`
	Verdict    string `json:"verdict"`
	Confidence string `json:"confidence"`
	Summary    string `json:"summary"`
	Guidance   string `json:"guidance"`
	CheckedAt  int64  `json:"checkedAt"`
}

type Security struct {
	SHA256 string
	VT     *VTAnalysis
	LLM    *LLMAnalysis
}

type Detail struct {
	Summary
	Owner      Owner
	Moderation *Moderation
	Security   *Security
}

// URL is the skill's public registry page.
func (d *Detail) URL() string { return SiteURL + d.Slug }

func scanStatus(s string) string {
	switch s {
	case "clean":
		return model.ScanClean
	case "suspicious":
		return model.ScanSuspicious
	case "malicious":
		return model.ScanMalware
	default:
		return model.ScanUnknown
	}
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stamp(ms int64, now time.Time) *string {
	t := now
	if ms > 0 {
		t = time.UnixMilli(ms)
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

// ExternalScans maps registry security and moderation data onto the
// VirusTotal and OpenClaw provider entries stored with a result. It returns
// nil when the registry has neither.
func ExternalScans(d *Detail, now time.Time) *model.ExternalScans {
	sec := d.Security
	if sec == nil && d.Moderation == nil {
		return nil
	}
	site := d.URL()

	vt := model.ExternalScanProvider{Provider: "VirusTotal", ReportURL: &site, CheckedAt: stamp(0, now)}
	switch {
	case sec != nil && sec.VT != nil:
		vt.Status = scanStatus(sec.VT.Status)
		vt.Verdict = ptr(sec.VT.Analysis)
		if vt.Verdict == nil {
			vt.Verdict = ptr(sec.VT.Verdict)
		}
		vt.CheckedAt = stamp(sec.VT.CheckedAt, now)
		if sec.SHA256 != "" {
			vt.ReportURL = ptr("https://www.virustotal.com/gui/file/" + sec.SHA256)
		}
	case d.Moderation != nil:
		switch {
		case d.Moderation.IsMalwareBlocked:
			vt.Status, vt.Verdict = model.ScanMalware, ptr("Malware blocked")
		case d.Moderation.IsSuspicious:
			vt.Status, vt.Verdict = model.ScanSuspicious, ptr("Suspicious activity flagged")
		default:
			vt.Status, vt.Verdict = model.ScanClean, ptr("No threats detected")
		}
	default:
		vt.Status = model.ScanNotAvailable
	}
	switch vt.Status {
	case model.ScanMalware, model.ScanClean:
		vt.Confidence = ptr("high")
	case model.ScanSuspicious:
		vt.Confidence = ptr("medium")
	}

	oc := model.ExternalScanProvider{Provider: "OpenClaw", Status: model.ScanNotAvailable, ReportURL: &site}
	if sec != nil && sec.LLM != nil {
		oc.Status = scanStatus(sec.LLM.Status)
		oc.Verdict = ptr(sec.LLM.Summary)
		if oc.Verdict == nil {
			oc.Verdict = ptr(sec.LLM.Verdict)
		}
		oc.Confidence = ptr(sec.LLM.Confidence)
		oc.CheckedAt = stamp(sec.LLM.CheckedAt, now)
	}

	return &model.ExternalScans{
		Providers: []model.ExternalScanProvider{vt, oc},
		FetchedAt: now.UTC().Format(time.RFC3339Nano),
	}
}
