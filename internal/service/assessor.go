package service

import (
	"fmt"

	"github.com/ecg-guardrail-server/internal/domain"
)

// RationaleMissing is the rationale of every assessment made without a
// usable value or reference row.
const RationaleMissing = "reference-range placeholder or missing"

// Percentile labels, highest first.
const (
	Percentile99    = ">=99th"
	Percentile95    = "~95th+"
	Percentile50    = "~50th+"
	PercentileBelow = "<50th"
)

// Assess maps a value against a reference interval. Unknown is AMBER,
// never silently GREEN.
func Assess(metric string, value, low, high domain.Value) domain.Assessment {
	v, okV := value.Get()
	lo, okL := low.Get()
	hi, okH := high.Get()
	if !okV || !okL || !okH {
		return domain.Assessment{Metric: metric, Status: domain.Amber, Rationale: RationaleMissing}
	}

	switch {
	case v < lo:
		return domain.Assessment{
			Metric:    metric,
			Status:    domain.Amber,
			Rationale: fmt.Sprintf("%s below %s", metric, low),
		}
	case v > hi:
		return domain.Assessment{
			Metric:    metric,
			Status:    domain.Red,
			Rationale: fmt.Sprintf("%s out of range (%s outside %s–%s)", metric, value, low, high),
		}
	default:
		return domain.Assessment{
			Metric:    metric,
			Status:    domain.Green,
			Rationale: fmt.Sprintf("%s within %s–%s", metric, low, high),
		}
	}
}

// PercentileLabel places a value against the 50th/90th/99th percentiles,
// checking the highest first. Missing percentiles never match. An absent
// value has no label.
func PercentileLabel(value, p50, p90, p99 domain.Value) string {
	v, ok := value.Get()
	if !ok {
		return ""
	}

	bands := []struct {
		cut   domain.Value
		label string
	}{
		{p99, Percentile99},
		{p90, Percentile95},
		{p50, Percentile50},
	}
	for _, b := range bands {
		if c, ok := b.cut.Get(); ok && v >= c {
			return b.label
		}
	}
	return PercentileBelow
}
