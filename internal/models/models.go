package models

import "time"

// --- VERDICTS ---

const (
	VerdictSafe    = "safe"
	VerdictLogged  = "logged"
	VerdictAlert   = "alert"
	VerdictBlocked = "blocked"
)

// --- JOURNAL MODELS ---

// Record is one journal line: a single inspected request and its verdict.
// Once appended it is never rewritten.
type Record struct {
	TS      float64           `json:"ts"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
	Verdict string            `json:"verdict"`
	Reason  string            `json:"reason"`
	Score   *float64          `json:"score,omitempty"` // absent on pure signature blocks
}

// IngestEvent is the payload the pipeline POSTs to the control plane
// for blocked/alerted traffic.
type IngestEvent struct {
	Record
	Severity        string `json:"severity"`
	DetectionSource string `json:"detection_source"`
}

// --- EVENT STORE ENTITIES ---

type User struct {
	UserID       int64  `db:"user_id" json:"user_id"`
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"`
	Email        string `db:"email" json:"email"`
	Role         string `db:"role" json:"role"` // admin | user | analyst
}

type WAFLog struct {
	WlogID          int64     `db:"wlog_id" json:"wlog_id"`
	InterceptedReq  string    `db:"intercepted_req" json:"intercepted_req"`
	WlogType        string    `db:"wlog_type" json:"wlog_type"`
	WlogTimestamp   time.Time `db:"wlog_timestamp" json:"wlog_timestamp"`
	Severity        string    `db:"severity" json:"severity"`
	DetectionSource string    `db:"detection_source" json:"detection_source"`
}

type Alert struct {
	AlertID    int64      `db:"alert_id" json:"alert_id"`
	AlertType  string     `db:"alert_type" json:"alert_type"`
	Status     string     `db:"status" json:"status"` // open | checked
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at"`
	WlogID     *int64     `db:"wlog_id" json:"wlog_id"`

	// Joined from waf_log when present
	Severity    string `db:"severity" json:"severity"`
	Source      string `db:"source" json:"source"`
	Description string `db:"description" json:"description"`
}

type Restriction struct {
	RestrictionID int64     `db:"restriction_id" json:"id"`
	Type          string    `db:"restriction_type" json:"type"` // ip | hash | domain
	Value         string    `db:"restriction_description" json:"value"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

type StoredSignature struct {
	SignatureID int64  `db:"signature_id" json:"signature_id"`
	Type        string `db:"signature_type" json:"signature_type"`
	Content     string `db:"signature_content" json:"signature_content"`
}

type MLModel struct {
	ModelID     int64   `db:"model_id" json:"model_id"`
	Type        string  `db:"model_type" json:"model_name"`
	Description *string `db:"model_description" json:"description"`
	Threshold   float64 `db:"model_threshold" json:"-"`
	Weight      float64 `db:"-" json:"weight"` // threshold as a percentage
}

type PatchingReport struct {
	ReportID  int64     `db:"report_id" json:"report_id"`
	Details   string    `db:"report_details" json:"recommendation_text"`
	Timestamp time.Time `db:"report_timestamp" json:"created_at"`
	WlogID    *int64    `db:"wlog_id" json:"wlog_id"`

	// Joined from waf_log when present
	Vulnerability string `db:"vulnerability" json:"related_vulnerability"`
	Severity      string `db:"severity" json:"-"`
}

type SuspiciousUserProfile struct {
	SusUserID      int64     `db:"sus_user_id" json:"sus_user_id"`
	SusUsername    string    `db:"sus_username" json:"sus_username"`
	PCNumber       *string   `db:"pc_number" json:"pc_number"`
	IPAddress      *string   `db:"ip_address" json:"ip_address"`
	MACAddress     *string   `db:"mac_address" json:"mac_address"`
	SessionCookie  *string   `db:"session_cookie" json:"session_cookie"`
	SuspicionLevel string    `db:"suspicion_level" json:"suspicion_level"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type WhitelistedRequest struct {
	WlID   int64     `db:"wl_id" json:"wl_id"`
	WlogID *int64    `db:"wlog_id" json:"wlog_id"`
	Reason string    `db:"reason" json:"reason"`
	UserID *int64    `db:"user_id" json:"user_id"`
	MadeAt time.Time `db:"made_at" json:"made_at"`
}

// SysLog references at most one other entity through its nullable FKs.
// Source() derives the activity label from whichever FK is populated.
type SysLog struct {
	SlogID        int64     `db:"slog_id" json:"log_id"`
	Message       string    `db:"message" json:"message"`
	SlogTimestamp time.Time `db:"slog_timestamp" json:"timestamp"`

	RestrictionID *int64 `db:"restriction_id" json:"-"`
	ModelID       *int64 `db:"model_id" json:"-"`
	SignatureID   *int64 `db:"signature_id" json:"-"`
	UserID        *int64 `db:"user_id" json:"-"`
	SusUserID     *int64 `db:"sus_user_id" json:"-"`
	ReportID      *int64 `db:"report_id" json:"-"`
	WlID          *int64 `db:"wl_id" json:"-"`
}

// Source resolves the FK priority order: Restriction > Model > Signature >
// User > SuspiciousUser > Report > Whitelist > System.
func (s *SysLog) Source() string {
	switch {
	case s.RestrictionID != nil:
		return "Restriction"
	case s.ModelID != nil:
		return "Model"
	case s.SignatureID != nil:
		return "Signature"
	case s.UserID != nil:
		return "User"
	case s.SusUserID != nil:
		return "SuspiciousUser"
	case s.ReportID != nil:
		return "Report"
	case s.WlID != nil:
		return "Whitelist"
	}
	return "System"
}

// --- THREAT INTEL ---

type TIResult struct {
	Provider string      `json:"provider"`
	Type     string      `json:"type"`
	Value    string      `json:"value"`
	Risk     string      `json:"risk"` // clean | low | medium | high | unknown
	Summary  string      `json:"summary"`
	Raw      interface{} `json:"raw,omitempty"`
}

// --- ANALYSIS ---

type Mitigation struct {
	Category    string `json:"category"` // code | config | waf
	Description string `json:"description"`
}

type VirtualPatch struct {
	Target string `json:"target"` // WAF | Nginx | App
	Rule   string `json:"rule"`
}

type Reference struct {
	Standard string `json:"standard"` // OWASP | CWE | NIST
	ID       string `json:"id"`
	Title    string `json:"title"`
}

type AnalysisReport struct {
	AttackType     string         `json:"attack_type"`
	RootCause      string         `json:"root_cause"`
	RiskLevel      string         `json:"risk_level"` // low | medium | high | critical
	Mitigations    []Mitigation   `json:"mitigations"`
	VirtualPatches []VirtualPatch `json:"virtual_patches"`
	References     []Reference    `json:"references"`
	Error          string         `json:"error,omitempty"`
}
