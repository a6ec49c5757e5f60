package service

import (
	"sort"

	"github.com/ecg-guardrail-server/internal/domain"
)

// Advisory tags. These are internal identifiers, not diagnoses.
const (
	FlagProlongation470 = "prolongation-threshold-470"
	FlagHighRisk500     = "high-risk-threshold-500"
	FlagShortPRWideQRS  = "short-PR-wide-QRS-pattern"
)

// RedFlagInput is the metric set the rules read.
type RedFlagInput struct {
	QTcMs domain.Value
	PRMs  domain.Value
	QRSMs domain.Value
}

// RedFlagRule is one heuristic. A rule whose inputs are absent does not fire.
type RedFlagRule struct {
	Tag         string
	Description string
	Evaluator   func(in RedFlagInput) bool
}

// RedFlagEngine evaluates a fixed rule table. It holds no per-call state.
type RedFlagEngine struct {
	rules []RedFlagRule
}

// NewRedFlagEngine creates an engine with the standard rule table.
func NewRedFlagEngine() *RedFlagEngine {
	return &RedFlagEngine{rules: []RedFlagRule{
		{
			Tag:         FlagProlongation470,
			Description: "Corrected QT at or above 470 ms",
			Evaluator: func(in RedFlagInput) bool {
				v, ok := in.QTcMs.Get()
				return ok && v >= 470
			},
		},
		{
			Tag:         FlagHighRisk500,
			Description: "Corrected QT at or above 500 ms",
			Evaluator: func(in RedFlagInput) bool {
				v, ok := in.QTcMs.Get()
				return ok && v >= 500
			},
		},
		{
			Tag:         FlagShortPRWideQRS,
			Description: "PR below 120 ms with QRS at or above 120 ms; unconfirmed without waveform data",
			Evaluator: func(in RedFlagInput) bool {
				pr, okPR := in.PRMs.Get()
				qrs, okQRS := in.QRSMs.Get()
				return okPR && okQRS && pr < 120 && qrs >= 120
			},
		},
	}}
}

// Rules returns the rule table.
func (e *RedFlagEngine) Rules() []RedFlagRule {
	return e.rules
}

// Evaluate returns the sorted, de-duplicated tags of every rule that fires.
func (e *RedFlagEngine) Evaluate(in RedFlagInput) []string {
	seen := make(map[string]bool)
	flags := make([]string, 0, len(e.rules))
	for _, rule := range e.rules {
		if rule.Evaluator(in) && !seen[rule.Tag] {
			seen[rule.Tag] = true
			flags = append(flags, rule.Tag)
		}
	}
	sort.Strings(flags)
	return flags
}
