package narrative

import (
	"fmt"
	"strings"

	"github.com/ecg-guardrail-server/internal/domain"
)

const (
	templateSentence = "Intervals and QTc are summarised numerically using a deterministic template."
	demoOnly         = "This output is for demonstration use only and makes no clinical interpretation."
)

// Fallback builds the deterministic summary. It never fails and never
// contains banned language: caller-supplied labels and flags that match a
// banned term are replaced or dropped.
func Fallback(req domain.NarrativeRequest) domain.NarrativeOutput {
	band := safeLabel(req.PercentileBand, "—")
	ageBand := safeLabel(req.AgeBand, "this age band")
	sex := safeLabel(req.Sex, "this patient")

	var parts []string
	if v, ok := req.Intervals.HRBpm.Get(); ok {
		parts = append(parts, fmt.Sprintf("Heart rate recorded at %.1f bpm.", v))
	}
	if v, ok := req.Intervals.PRMs.Get(); ok {
		parts = append(parts, fmt.Sprintf("PR interval measured at %.1f ms.", v))
	}
	if v, ok := req.Intervals.QRSMs.Get(); ok {
		parts = append(parts, fmt.Sprintf("QRS duration measured at %.1f ms.", v))
	}
	if v, ok := req.Intervals.QTMs.Get(); ok {
		parts = append(parts, fmt.Sprintf("QT interval (uncorrected) measured at %.1f ms.", v))
	}
	if v, ok := req.QTcMs.Get(); ok {
		parts = append(parts, fmt.Sprintf("QTc approximately %.1f ms in %s %s (percentile band %s).", v, ageBand, sex, band))
	}

	narrative := templateSentence
	if len(parts) > 0 {
		narrative = strings.Join(parts, " ")
	}

	flags := make([]string, 0, len(req.RedFlags))
	for _, flag := range req.RedFlags {
		if _, banned := FindBanned(flag); !banned {
			flags = append(flags, flag)
		}
	}

	return domain.NarrativeOutput{
		Narrative:    narrative,
		KeyPoints:    []string{templateSentence, demoOnly},
		CautionFlags: flags,
		Disclaimer:   domain.NarrativeDisclaimer,
		Source:       domain.SourceFallback,
	}
}

func safeLabel(v, placeholder string) string {
	if v == "" {
		return placeholder
	}
	if _, banned := FindBanned(v); banned {
		return placeholder
	}
	return v
}
