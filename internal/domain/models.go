package domain

import (
	"time"
)

// Request/Response Models

// ScoreRequest represents an incoming interval assessment request
type ScoreRequest struct {
	AgeBand    string      `json:"age_band"`
	Sex        string      `json:"sex"`
	QTcMethod  string      `json:"qtc_method,omitempty"` // accepted for compatibility; selection is rate-aware
	RefVersion string      `json:"ref_version,omitempty"`
	Intervals  IntervalSet `json:"intervals"`
}

// ScoreResponse represents the response from an interval assessment
type ScoreResponse struct {
	Computed    ScoreComputed `json:"computed"`
	Assessments []Assessment  `json:"assessments"`
	RedFlags    []string      `json:"red_flags"`
	Disclaimer  string        `json:"disclaimer"`
}

// ScoreComputed holds the derived values of an assessment
type ScoreComputed struct {
	QTcMs      Value      `json:"QTc_ms"`
	Percentile string     `json:"percentile,omitempty"`
	RefVersion string     `json:"ref_version"`
	QTcDetail  *QTcDetail `json:"qtc_detail,omitempty"`
}

// QTcDetail is the full corrected-QT context returned alongside a score
type QTcDetail struct {
	Input          QTcInput           `json:"input"`
	QTc            QTcResult          `json:"qtc"`
	Reference      *QTcReference      `json:"reference,omitempty"`
	Classification *QTcClassification `json:"classification,omitempty"`
}

// QTcInput echoes the values the engine was given
type QTcInput struct {
	QTMs  Value `json:"qt_ms"`
	RRMs  Value `json:"rr_ms"`
	HRBpm Value `json:"hr_bpm"`
}

// QTcReference describes where the corrected value sits against the pack
type QTcReference struct {
	Range      QTcRange            `json:"range"`
	Percentile QTcPercentileDetail `json:"percentile"`
}

// QTcRange is the QTc reference interval
type QTcRange struct {
	LowMs  Value `json:"low_ms"`
	HighMs Value `json:"high_ms"`
}

// QTcPercentileDetail is the percentile label and the cut points behind it
type QTcPercentileDetail struct {
	Label string `json:"label,omitempty"`
	P50Ms Value  `json:"p50_ms"`
	P90Ms Value  `json:"p90_ms"`
	P99Ms Value  `json:"p99_ms"`
}

// QTcClassification is the categorical bucket with auditable thresholds
type QTcClassification struct {
	Category       RiskCategory `json:"category"`
	ShortQT        bool         `json:"short_qt"`
	RiskFlag       bool         `json:"risk_flag"`
	ThresholdsUsed Thresholds   `json:"thresholds_used"`
	Notes          []string     `json:"notes"`
}

// TrendSeriesRequest represents a request to plot a QTc trend
type TrendSeriesRequest struct {
	AgeBand    string    `json:"age_band"`
	Sex        string    `json:"sex"`
	QTcMethod  string    `json:"qtc_method,omitempty"`
	RefVersion string    `json:"ref_version,omitempty"`
	Readings   []Reading `json:"readings"`
}

// TrendPoint is one corrected reading in a trend
type TrendPoint struct {
	Timestamp  time.Time    `json:"timestamp"`
	QTcMs      Value        `json:"QTc_ms"`
	Percentile string       `json:"percentile,omitempty"`
	Category   RiskCategory `json:"category"`
}

// BandPoint is a flat reference line drawn by the client
type BandPoint struct {
	Y float64 `json:"y"`
}

// TrendSeriesResponse represents a sorted QTc trend with percentile bands
type TrendSeriesResponse struct {
	Series     []TrendPoint           `json:"series"`
	Bands      map[string][]BandPoint `json:"bands"`
	Disclaimer string                 `json:"disclaimer"`
}

// NarrativeRequest is the de-identified input to the narrative path
type NarrativeRequest struct {
	AgeBand        string      `json:"age_band"`
	Sex            string      `json:"sex"`
	Intervals      IntervalSet `json:"intervals"`
	QTcMs          Value       `json:"qtc_ms"`
	PercentileBand string      `json:"percentile_band,omitempty"`
	RedFlags       []string    `json:"red_flags,omitempty"`
	TrendComment   string      `json:"trend_comment,omitempty"`
}

// ReferencesResponse is the reference pack for one version
type ReferencesResponse struct {
	Version  string                    `json:"version"`
	Ranges   map[string]ReferenceRange `json:"ranges"`
	Metadata map[string]any            `json:"metadata"`
}

// Import Models

// ImportFormat is the source file format of an import
type ImportFormat string

const (
	FormatCSV  ImportFormat = "CSV"
	FormatJSON ImportFormat = "JSON"
)

// ImportStatus is the lifecycle state of an import job
type ImportStatus string

const (
	ImportPending   ImportStatus = "PENDING"
	ImportCompleted ImportStatus = "COMPLETED"
	ImportFailed    ImportStatus = "FAILED"
)

// ImportResult holds the readings parsed from a file plus per-row errors
type ImportResult struct {
	Readings []Reading `json:"readings"`
	Errors   []string  `json:"errors"`
}

// ImportJob records the outcome of one file import
type ImportJob struct {
	JobID     string       `json:"job_id"`
	Format    ImportFormat `json:"format"`
	Status    ImportStatus `json:"status"`
	Rows      int          `json:"rows"`
	Errors    []string     `json:"errors"`
	CreatedAt time.Time    `json:"created_at"`
}

// ImportResponse is returned by the import endpoints
type ImportResponse struct {
	Job      ImportJob `json:"job"`
	Readings []Reading `json:"readings"`
	Errors   []string  `json:"errors"`
}
