// Package domain contains the core entities of the ECG interval guardrail:
// interval sets, reference ranges, corrected-QT results, traffic-light
// assessments, risk categories, audit events and narrative outputs.
//
// None of these types carry patient identity. Values are de-identified
// measurements grouped only by coarse age band and sex.
package domain

import (
	"errors"
	"strings"
	"time"
)

// Disclaimers attached to every externally visible output.
const (
	ScoreDisclaimer     = "DEMONSTRATION ONLY — SYNTHETIC DATA — NOT FOR CLINICAL USE."
	NarrativeDisclaimer = "DEMONSTRATION ONLY — NOT FOR CLINICAL USE."
)

// Metric names used as reference-pack keys.
const (
	MetricHR  = "HR_bpm"
	MetricPR  = "PR_ms"
	MetricQRS = "QRS_ms"
	MetricQT  = "QT_ms"
	MetricRR  = "RR_ms"
	MetricQTc = "QTc_ms"
)

// Sex selects sex-specific reference rows and threshold tables.
type Sex string

const (
	Male   Sex = "male"
	Female Sex = "female"
)

// ParseSex normalises a free-form sex string. Anything that does not start
// with "m" or "f" (case-insensitive) is returned unchanged and maps to the
// generic threshold table.
func ParseSex(s string) Sex {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(lower, "m"):
		return Male
	case strings.HasPrefix(lower, "f"):
		return Female
	default:
		return Sex(lower)
	}
}

// IsValid reports whether the sex is one of the two reference-pack sexes.
func (s Sex) IsValid() bool {
	return s == Male || s == Female
}

// String returns the string representation of the sex.
func (s Sex) String() string {
	return string(s)
}

// IntervalSet is a single de-identified set of ECG interval measurements.
// When both HR and RR are present, RR is authoritative for rate.
type IntervalSet struct {
	HRBpm Value `json:"HR_bpm"`
	PRMs  Value `json:"PR_ms"`
	QRSMs Value `json:"QRS_ms"`
	QTMs  Value `json:"QT_ms"`
	RRMs  Value `json:"RR_ms"`
}

// RateRR returns the authoritative RR interval in milliseconds.
func (s IntervalSet) RateRR() Value {
	if s.RRMs.Positive() {
		return s.RRMs
	}
	if hr, ok := s.HRBpm.Get(); ok && hr > 0 {
		return Some(60000.0 / hr)
	}
	return None()
}

// Metric returns the named raw metric of the set.
func (s IntervalSet) Metric(name string) Value {
	switch name {
	case MetricHR:
		return s.HRBpm
	case MetricPR:
		return s.PRMs
	case MetricQRS:
		return s.QRSMs
	case MetricQT:
		return s.QTMs
	case MetricRR:
		return s.RRMs
	default:
		return None()
	}
}

// ReferenceRange is one row of a reference pack.
type ReferenceRange struct {
	Low         Value            `json:"low"`
	High        Value            `json:"high"`
	Percentiles map[string]Value `json:"percentiles,omitempty"`
}

// Percentile returns the named percentile ("50", "90", "99").
func (r ReferenceRange) Percentile(p string) Value {
	return r.Percentiles[p]
}

// QTcFormula names a heart-rate correction formula.
type QTcFormula string

const (
	Bazett     QTcFormula = "bazett"
	Fridericia QTcFormula = "fridericia"
	Framingham QTcFormula = "framingham"
)

// QTcResult holds corrected QT values for every supported formula plus the
// primary selection. All values are absent when QT or rate is unusable.
type QTcResult struct {
	BazettMs       Value      `json:"bazett_ms"`
	FridericiaMs   Value      `json:"fridericia_ms"`
	FraminghamMs   Value      `json:"framingham_ms"`
	HeartRateBpm   Value      `json:"heart_rate_bpm"`
	PrimaryFormula QTcFormula `json:"primary_formula,omitempty"`
	PrimaryQTcMs   Value      `json:"primary_qtc_ms"`
	RateWarning    string     `json:"rate_warning,omitempty"`
}

// Status is the traffic-light outcome of an assessment.
type Status string

const (
	Green Status = "GREEN"
	Amber Status = "AMBER"
	Red   Status = "RED"
)

// Assessment is the traffic-light verdict for one metric.
type Assessment struct {
	Metric    string `json:"metric"`
	Status    Status `json:"status"`
	Rationale string `json:"rationale"`
}

// RiskCategory is an ordered categorical bucket for a corrected QT value.
type RiskCategory string

const (
	CategoryUnknown             RiskCategory = "unknown"
	CategoryShortQT             RiskCategory = "short_qt"
	CategoryNormal              RiskCategory = "normal"
	CategoryBorderlineProlonged RiskCategory = "borderline_prolonged"
	CategoryProlonged           RiskCategory = "prolonged"
	CategoryHighRisk            RiskCategory = "high_risk"
)

// IsValid reports whether the category is one of the defined buckets.
func (c RiskCategory) IsValid() bool {
	switch c {
	case CategoryUnknown, CategoryShortQT, CategoryNormal,
		CategoryBorderlineProlonged, CategoryProlonged, CategoryHighRisk:
		return true
	default:
		return false
	}
}

// String returns the string representation of the category.
func (c RiskCategory) String() string {
	return string(c)
}

// Thresholds are the cut points, in ms, of one sex-specific table.
type Thresholds struct {
	ShortQTCutoff   float64 `json:"short_qt_cutoff"`
	NormalUpper     float64 `json:"normal_upper"`
	BorderlineUpper float64 `json:"borderline_upper"`
	HighRisk        float64 `json:"high_risk"`
}

// Classification is a categorical bucket plus the thresholds that produced it.
type Classification struct {
	Category       RiskCategory `json:"category"`
	ShortQT        bool         `json:"short_qt"`
	ThresholdsUsed Thresholds   `json:"thresholds_used"`
}

// GenesisHash is the prev_hash of the first event in a ledger.
const GenesisHash = "GENESIS"

// AuditEvent is one line of the hash-chained ledger.
type AuditEvent struct {
	EventID     string `json:"event_id"`
	TS          string `json:"ts"`
	UserID      string `json:"user_id"`
	Action      string `json:"action"`
	PayloadHash string `json:"payload_hash"`
	PrevHash    string `json:"prev_hash"`
}

// NarrativeSource records which path produced a narrative.
type NarrativeSource string

const (
	SourceGenerator NarrativeSource = "generator"
	SourceFallback  NarrativeSource = "fallback"
	SourceCache     NarrativeSource = "cache"
)

// NarrativeOutput is the user-facing summary. Disclaimer is never empty.
type NarrativeOutput struct {
	Narrative    string          `json:"narrative"`
	KeyPoints    []string        `json:"key_points"`
	CautionFlags []string        `json:"caution_flags"`
	Disclaimer   string          `json:"disclaimer"`
	Source       NarrativeSource `json:"source,omitempty"`
}

// Role is the caller role resolved from an access token.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleClinician Role = "clinician"
	RoleObserver  Role = "observer"
)

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleClinician || r == RoleObserver
}

// In reports whether r is one of roles.
func (r Role) In(roles ...Role) bool {
	for _, allowed := range roles {
		if r == allowed {
			return true
		}
	}
	return false
}

// Caller identifies who triggered an action. UserID is what the ledger records.
type Caller struct {
	UserID string
	Role   Role
}

// Reading is a single timestamped interval set from a trend or import.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	QTMs      Value     `json:"QT_ms"`
	RRMs      Value     `json:"RR_ms"`
	HRBpm     Value     `json:"HR_bpm"`
	PRMs      Value     `json:"PR_ms"`
	QRSMs     Value     `json:"QRS_ms"`
}

// Intervals returns the reading as an interval set.
func (r Reading) Intervals() IntervalSet {
	return IntervalSet{HRBpm: r.HRBpm, PRMs: r.PRMs, QRSMs: r.QRSMs, QTMs: r.QTMs, RRMs: r.RRMs}
}

// Sentinel errors shared across packages.
var (
	ErrNotFound             = errors.New("not found")
	ErrLedgerClosed         = errors.New("audit ledger closed")
	ErrChainBroken          = errors.New("audit chain broken")
	ErrGeneratorUnavailable = errors.New("narrative generator unavailable")
	ErrInsufficientRole     = errors.New("insufficient role")
)
