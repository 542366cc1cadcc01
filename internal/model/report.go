package model

// Threat categories evaluated for every skill, in report order.
const (
	CategoryDataExfiltration     = "data_exfiltration"
	CategoryDestructiveCommands  = "destructive_commands"
	CategorySecretAccess         = "secret_access"
	CategoryObfuscation          = "obfuscation"
	CategoryPromptInjection      = "prompt_injection"
	CategorySocialEngineering    = "social_engineering"
	CategoryExcessivePermissions = "excessive_permissions"
)

var ThreatCategories = []string{
	CategoryDataExfiltration,
	CategoryDestructiveCommands,
	CategorySecretAccess,
	CategoryObfuscation,
	CategoryPromptInjection,
	CategorySocialEngineering,
	CategoryExcessivePermissions,
}

// Skill categories a verdict may place a skill in.
var SkillCategories = []string{
	"developer-tools",
	"version-control",
	"web-browser",
	"data-files",
	"cloud-infra",
	"communication",
	"search-research",
	"productivity",
	"other",
}

const (
	TrustVerified = "verified"
	TrustCaution  = "caution"
	TrustFailed   = "failed"

	IntentBenign    = "benign"
	IntentRisky     = "risky"
	IntentMalicious = "malicious"

	RecommendSafe    = "safe"
	RecommendCaution = "caution"
	RecommendDanger  = "danger"
)

type Evidence struct {
	Detected bool     `json:"detected"`
	Evidence []string `json:"evidence"`
}

type SkillAbout struct {
	Purpose             string   `json:"purpose"`
	Capabilities        []string `json:"capabilities"`
	UseCases            []string `json:"use_cases"`
	PermissionsRequired []string `json:"permissions_required"`
	SecurityNotes       string   `json:"security_notes"`
}

// ScanOutput is the structured verdict returned by the analysis engine for a
// single skill, after consistency enforcement.
type ScanOutput struct {
	TrustStatus              string              `json:"trust_status"`
	Intent                   string              `json:"intent"`
	Recommendation           string              `json:"recommendation"`
	RiskScore                float64             `json:"risk_score"`
	Confidence               float64             `json:"confidence"`
	Summary                  string              `json:"summary"`
	Details                  map[string]Evidence `json:"details"`
	SkillAbout               SkillAbout          `json:"skill_about"`
	StaticFindingsAssessment string              `json:"static_findings_assessment,omitempty"`
	Category                 string              `json:"category"`

	// Corrections lists what consistency enforcement changed.
	Corrections []string `json:"-"`
}

// StaticFinding is one regex rule hit on one line of one file.
type StaticFinding struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Category string `json:"category"`
	Message  string `json:"message"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Match    string `json:"match"`
}

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// StaticSummary counts static findings per severity tier.
type StaticSummary struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

// DepVulnerability is one advisory affecting one declared dependency.
type DepVulnerability struct {
	ID               string  `json:"id"`
	PackageName      string  `json:"package_name"`
	InstalledVersion string  `json:"installed_version"`
	Severity         string  `json:"severity"`
	Summary          string  `json:"summary"`
	FixedVersion     *string `json:"fixed_version"`
	ReferenceURL     string  `json:"reference_url"`
}

const (
	VulnCritical = "CRITICAL"
	VulnHigh     = "HIGH"
	VulnModerate = "MODERATE"
	VulnLow      = "LOW"
)

// ExternalScanProvider is one third-party scanner's verdict as reported by
// the registry.
type ExternalScanProvider struct {
	Provider   string  `json:"provider"`
	Status     string  `json:"status"`
	Verdict    *string `json:"verdict"`
	Confidence *string `json:"confidence"`
	ReportURL  *string `json:"report_url"`
	CheckedAt  *string `json:"checked_at"`
}

const (
	ScanClean        = "clean"
	ScanSuspicious   = "suspicious"
	ScanMalware      = "malware"
	ScanUnknown      = "unknown"
	ScanNotAvailable = "not_available"
)

type ExternalScans struct {
	Providers []ExternalScanProvider `json:"providers"`
	FetchedAt string                 `json:"fetched_at"`
}
