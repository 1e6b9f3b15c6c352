package types

import "time"

// Severity is a coarse-grained risk level for a detected secret.
type Severity string

const (
	SevCritical Severity = "CRITICAL"
	SevHigh     Severity = "HIGH"
	SevMedium   Severity = "MEDIUM"
	SevLow      Severity = "LOW"
)

// Status classifies how much corroboration a secret has received.
type Status string

const (
	StatusConfirmed  Status = "CONFIRMED"  // live API call accepted the credential
	StatusLikely     Status = "LIKELY"     // high AI confidence
	StatusPossible   Status = "POSSIBLE"   // moderate AI confidence
	StatusUnverified Status = "UNVERIFIED" // pattern + entropy only
)

// Validity is the tri-state result of a live verification attempt.
// Unknown means the check did not run or could not complete (transport
// failure, timeout) and must never be reported as proof the secret is
// inactive.
type Validity string

const (
	ValidityUnknown Validity = "unknown"
	ValidityActive  Validity = "active"
	ValidityRevoked Validity = "revoked"
)

// Secret describes a single candidate credential found in scanned input,
// including where it was found, how random it looks, and whatever the
// AI and live validation stages added.
type Secret struct {
	Type       string            `json:"type"`
	Value      string            `json:"value"`
	Location   string            `json:"location"`
	Line       int               `json:"line"`
	Offset     int               `json:"offset"`
	Context    string            `json:"context,omitempty"`
	Entropy    float64           `json:"entropy"`
	Severity   Severity          `json:"severity"`
	Status     Status            `json:"status"`
	AIScored   bool              `json:"ai_scored"`
	AIConf     float64           `json:"ai_confidence,omitempty"`
	AIReason   string            `json:"ai_reasoning,omitempty"`
	APIValid   Validity          `json:"api_valid"`
	APIDetails map[string]string `json:"api_details,omitempty"`
}

// Warning records a non-fatal problem encountered during a scan: an
// unreadable input unit, a signature that blew its time budget, a failed
// AI batch, an indeterminate live check.
type Warning struct {
	Stage  string `json:"stage"`
	Source string `json:"source,omitempty"`
	Msg    string `json:"msg"`
}

// ScanResult is the aggregate outcome handed to the reporting layer.
type ScanResult struct {
	ScanID       string           `json:"scan_id"`
	Target       string           `json:"target"`
	Secrets      []Secret         `json:"secrets"`
	UnitsScanned int              `json:"units_scanned"`
	Duration     time.Duration    `json:"duration"`
	Warnings     []Warning        `json:"warnings,omitempty"`
	Incomplete   bool             `json:"incomplete"` // cancelled before all stages ran
	BySeverity   map[Severity]int `json:"by_severity"`
	ByStatus     map[Status]int   `json:"by_status"`
}

// Count recomputes the severity and status tallies from Secrets.
func (r *ScanResult) Count() {
	r.BySeverity = map[Severity]int{}
	r.ByStatus = map[Status]int{}
	for _, s := range r.Secrets {
		r.BySeverity[s.Severity]++
		r.ByStatus[s.Status]++
	}
}

// Mask truncates a secret value for display. Anything the user sees
// outside the JSON export goes through here.
func Mask(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "…" + s[len(s)-4:]
}

// Truncate caps a value for serialized output.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
