package service

import (
	"strings"

	"github.com/ecg-guardrail-server/internal/domain"
)

// Threshold tables in ms. Each row is strictly increasing.
var (
	MaleThresholds = domain.Thresholds{
		ShortQTCutoff:   350,
		NormalUpper:     440,
		BorderlineUpper: 449,
		HighRisk:        500,
	}
	FemaleThresholds = domain.Thresholds{
		ShortQTCutoff:   360,
		NormalUpper:     460,
		BorderlineUpper: 469,
		HighRisk:        500,
	}
	GenericThresholds = domain.Thresholds{
		ShortQTCutoff:   350,
		NormalUpper:     450,
		BorderlineUpper: 479,
		HighRisk:        500,
	}
)

// ThresholdsFor picks the table by the lower-cased two-letter prefix of sex.
func ThresholdsFor(sex string) domain.Thresholds {
	prefix := strings.ToLower(strings.TrimSpace(sex))
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}

	switch {
	case strings.HasPrefix(prefix, "m"):
		return MaleThresholds
	case strings.HasPrefix(prefix, "f"):
		return FemaleThresholds
	default:
		return GenericThresholds
	}
}

// Classify buckets a corrected QT value. Boundaries: v <= short is short_qt,
// v < normal_upper is normal, v <= borderline_upper is borderline_prolonged,
// v < high_risk is prolonged, anything else is high_risk.
func Classify(qtc domain.Value, sex string) domain.Classification {
	t := ThresholdsFor(sex)

	v, ok := qtc.Get()
	if !ok {
		return domain.Classification{Category: domain.CategoryUnknown, ThresholdsUsed: t}
	}

	var category domain.RiskCategory
	switch {
	case v <= t.ShortQTCutoff:
		category = domain.CategoryShortQT
	case v < t.NormalUpper:
		category = domain.CategoryNormal
	case v <= t.BorderlineUpper:
		category = domain.CategoryBorderlineProlonged
	case v < t.HighRisk:
		category = domain.CategoryProlonged
	default:
		category = domain.CategoryHighRisk
	}

	return domain.Classification{
		Category:       category,
		ShortQT:        category == domain.CategoryShortQT,
		ThresholdsUsed: t,
	}
}
