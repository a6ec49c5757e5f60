package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ecg-guardrail-server/internal/domain"
)

// Ledger actions written by the decision path.
const (
	ActionScore     = "guardrail_score"
	ActionTrend     = "trend_series"
	ActionNarrative = "narrative_qtc"
)

const noteQTcUnavailable = "QTc unavailable: QT or rate input missing"

// Narrator produces a safety-filtered narrative. It never fails.
type Narrator interface {
	Summarize(ctx context.Context, req domain.NarrativeRequest) domain.NarrativeOutput
}

// GuardrailService runs the interval decision path and records every
// decision in the audit ledger
type GuardrailService struct {
	logger     *logrus.Logger
	references domain.ReferenceStore
	ledger     domain.AuditLedger
	metrics    domain.MetricsRecorder
	narrator   Narrator
	redFlags   *RedFlagEngine
}

// NewGuardrailService creates a new guardrail service
func NewGuardrailService(
	logger *logrus.Logger,
	references domain.ReferenceStore,
	ledger domain.AuditLedger,
	metrics domain.MetricsRecorder,
	narrator Narrator,
) *GuardrailService {
	return &GuardrailService{
		logger:     logger,
		references: references,
		ledger:     ledger,
		metrics:    metrics,
		narrator:   narrator,
		redFlags:   NewRedFlagEngine(),
	}
}

// Score assesses one interval set
func (s *GuardrailService) Score(ctx context.Context, caller domain.Caller, req domain.ScoreRequest) (*domain.ScoreResponse, error) {
	startTime := time.Now()

	if err := authorize(caller, domain.RoleAdmin, domain.RoleClinician, domain.RoleObserver); err != nil {
		return nil, err
	}
	if err := validateDemographics(req.AgeBand, req.Sex); err != nil {
		return nil, err
	}

	sex := domain.ParseSex(req.Sex)
	version := s.references.ActiveVersion(req.RefVersion)
	intervals := req.Intervals

	// Step 1: Rate-aware correction
	qtc := ComputeQTc(intervals.QTMs, intervals.HRBpm, intervals.RRMs)
	primary := qtc.PrimaryQTcMs

	// Step 2: Traffic-light assessments against the reference pack
	assessments := make([]domain.Assessment, 0, 4)
	for _, metric := range []string{domain.MetricHR, domain.MetricPR, domain.MetricQRS} {
		row, _ := s.references.Lookup(version, req.AgeBand, sex, metric)
		assessments = append(assessments, Assess(metric, intervals.Metric(metric), row.Low, row.High))
	}
	qtcRow, hasQTcRow := s.references.Lookup(version, req.AgeBand, sex, domain.MetricQTc)
	assessments = append(assessments, Assess(domain.MetricQTc, primary, qtcRow.Low, qtcRow.High))

	// Step 3: Percentile, category and advisory flags
	percentile := ""
	if hasQTcRow {
		percentile = PercentileLabel(primary, qtcRow.Percentile("50"), qtcRow.Percentile("90"), qtcRow.Percentile("99"))
	}
	classification := Classify(primary, string(sex))
	flags := s.redFlags.Evaluate(RedFlagInput{QTcMs: primary, PRMs: intervals.PRMs, QRSMs: intervals.QRSMs})

	response := &domain.ScoreResponse{
		Computed: domain.ScoreComputed{
			QTcMs:      primary,
			Percentile: percentile,
			RefVersion: version,
			QTcDetail:  buildQTcDetail(intervals, qtc, qtcRow, hasQTcRow, percentile, classification),
		},
		Assessments: assessments,
		RedFlags:    flags,
		Disclaimer:  domain.ScoreDisclaimer,
	}

	// Step 4: Record the decision
	payload := map[string]any{
		"age_band":    req.AgeBand,
		"sex":         string(sex),
		"ref_version": version,
		"qtc_ms":      primary,
		"category":    classification.Category,
		"red_flags":   flags,
	}
	if err := s.record(ctx, caller, ActionScore, payload); err != nil {
		return nil, err
	}

	s.increment("score_requests")
	s.duration("score_ms", time.Since(startTime))

	s.logger.WithFields(logrus.Fields{
		"user_id":     caller.UserID,
		"ref_version": version,
		"formula":     qtc.PrimaryFormula,
		"category":    classification.Category,
		"red_flags":   len(flags),
	}).Info("Interval assessment completed")

	return response, nil
}

func buildQTcDetail(
	intervals domain.IntervalSet,
	qtc domain.QTcResult,
	row domain.ReferenceRange,
	hasRow bool,
	percentile string,
	classification domain.Classification,
) *domain.QTcDetail {
	detail := &domain.QTcDetail{
		Input: domain.QTcInput{
			QTMs:  intervals.QTMs,
			RRMs:  intervals.RRMs,
			HRBpm: intervals.HRBpm,
		},
		QTc: qtc,
	}

	if hasRow {
		detail.Reference = &domain.QTcReference{
			Range: domain.QTcRange{LowMs: row.Low, HighMs: row.High},
			Percentile: domain.QTcPercentileDetail{
				Label: percentile,
				P50Ms: row.Percentile("50"),
				P90Ms: row.Percentile("90"),
				P99Ms: row.Percentile("99"),
			},
		}
	}

	notes := make([]string, 0, 2)
	if qtc.RateWarning != "" {
		notes = append(notes, qtc.RateWarning)
	}
	if classification.Category == domain.CategoryUnknown {
		notes = append(notes, noteQTcUnavailable)
	}
	detail.Classification = &domain.QTcClassification{
		Category:       classification.Category,
		ShortQT:        classification.ShortQT,
		RiskFlag:       classification.Category == domain.CategoryHighRisk,
		ThresholdsUsed: classification.ThresholdsUsed,
		Notes:          notes,
	}

	return detail
}

// TrendSeries corrects and classifies a time series of readings
func (s *GuardrailService) TrendSeries(ctx context.Context, caller domain.Caller, req domain.TrendSeriesRequest) (*domain.TrendSeriesResponse, error) {
	startTime := time.Now()

	if err := authorize(caller, domain.RoleAdmin, domain.RoleClinician, domain.RoleObserver); err != nil {
		return nil, err
	}
	if err := validateDemographics(req.AgeBand, req.Sex); err != nil {
		return nil, err
	}

	sex := domain.ParseSex(req.Sex)
	version := s.references.ActiveVersion(req.RefVersion)
	row, hasRow := s.references.Lookup(version, req.AgeBand, sex, domain.MetricQTc)

	readings := make([]domain.Reading, len(req.Readings))
	copy(readings, req.Readings)
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})

	series := make([]domain.TrendPoint, 0, len(readings))
	for _, r := range readings {
		primary := ComputeQTc(r.QTMs, r.HRBpm, r.RRMs).PrimaryQTcMs
		point := domain.TrendPoint{
			Timestamp: r.Timestamp,
			QTcMs:     primary,
			Category:  Classify(primary, string(sex)).Category,
		}
		if hasRow {
			point.Percentile = PercentileLabel(primary, row.Percentile("50"), row.Percentile("90"), row.Percentile("99"))
		}
		series = append(series, point)
	}

	bands := map[string][]domain.BandPoint{"p50": {}, "p90": {}, "p99": {}}
	if hasRow {
		for _, p := range []string{"50", "90", "99"} {
			if v, ok := row.Percentile(p).Get(); ok {
				bands["p"+p] = []domain.BandPoint{{Y: v}}
			}
		}
	}

	if err := s.record(ctx, caller, ActionTrend, map[string]any{"n": len(series)}); err != nil {
		return nil, err
	}

	s.increment("trend_requests")
	s.duration("trend_ms", time.Since(startTime))

	return &domain.TrendSeriesResponse{
		Series:     series,
		Bands:      bands,
		Disclaimer: domain.ScoreDisclaimer,
	}, nil
}

// Narrate returns a safety-filtered narrative. Missing QTc and red flags
// are derived from the intervals. The generator call completes before the
// ledger append.
func (s *GuardrailService) Narrate(ctx context.Context, caller domain.Caller, req domain.NarrativeRequest) (*domain.NarrativeOutput, error) {
	startTime := time.Now()

	if err := authorize(caller, domain.RoleAdmin, domain.RoleClinician, domain.RoleObserver); err != nil {
		return nil, err
	}

	if !req.QTcMs.Valid() {
		req.QTcMs = ComputeQTc(req.Intervals.QTMs, req.Intervals.HRBpm, req.Intervals.RRMs).PrimaryQTcMs
	}
	if req.RedFlags == nil {
		req.RedFlags = s.redFlags.Evaluate(RedFlagInput{QTcMs: req.QTcMs, PRMs: req.Intervals.PRMs, QRSMs: req.Intervals.QRSMs})
	}

	out := s.narrator.Summarize(ctx, req)

	payload := map[string]any{
		"age_band": req.AgeBand,
		"sex":      req.Sex,
		"source":   out.Source,
		"qtc_ms":   req.QTcMs,
	}
	if err := s.record(ctx, caller, ActionNarrative, payload); err != nil {
		return nil, err
	}

	s.increment("narrative_requests")
	s.duration("narrative_ms", time.Since(startTime))

	return &out, nil
}

// References returns the reference pack for a version, filtered to one
// age band and sex when both are given
func (s *GuardrailService) References(version, ageBand, sex string) (*domain.ReferencesResponse, error) {
	active := s.references.ActiveVersion(version)

	var (
		ranges map[string]domain.ReferenceRange
		err    error
	)
	if ageBand != "" && sex != "" {
		ranges, err = s.references.Filter(active, ageBand, domain.ParseSex(sex))
	} else {
		ranges, err = s.references.Ranges(active)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reference ranges: %w", err)
	}

	metadata, err := s.references.Metadata(active)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference metadata: %w", err)
	}

	s.increment("reference_requests")
	return &domain.ReferencesResponse{Version: active, Ranges: ranges, Metadata: metadata}, nil
}

// Versions lists the reference pack versions on disk
func (s *GuardrailService) Versions() ([]string, error) {
	versions, err := s.references.Versions()
	if err != nil {
		return nil, fmt.Errorf("failed to list reference versions: %w", err)
	}
	return versions, nil
}

func (s *GuardrailService) record(ctx context.Context, caller domain.Caller, action string, payload any) error {
	return recordEvent(ctx, s.ledger, s.logger, caller, action, payload)
}

func (s *GuardrailService) increment(name string) {
	if s.metrics != nil {
		s.metrics.Increment(name)
	}
}

func (s *GuardrailService) duration(name string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordDuration(name, d)
	}
}

func recordEvent(ctx context.Context, ledger domain.AuditLedger, logger *logrus.Logger, caller domain.Caller, action string, payload any) error {
	if _, err := ledger.Append(ctx, caller.UserID, action, payload); err != nil {
		logger.WithError(err).WithField("action", action).Error("Audit ledger append failed")
		return &domain.AuditWriteError{Action: action, Err: err}
	}
	return nil
}

func authorize(caller domain.Caller, roles ...domain.Role) error {
	if !caller.Role.In(roles...) {
		return fmt.Errorf("role %q: %w", caller.Role, domain.ErrInsufficientRole)
	}
	return nil
}

func validateDemographics(ageBand, sex string) error {
	if strings.TrimSpace(ageBand) == "" {
		return domain.NewValidationError("age_band", "must not be empty", ageBand)
	}
	if strings.TrimSpace(sex) == "" {
		return domain.NewValidationError("sex", "must not be empty", sex)
	}
	return nil
}
