package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ecg-guardrail-server/internal/domain"
)

func TestRedFlagEngine_Evaluate(t *testing.T) {
	engine := NewRedFlagEngine()

	tests := []struct {
		name     string
		input    RedFlagInput
		expected []string
	}{
		{
			name:     "Nothing fires",
			input:    RedFlagInput{QTcMs: domain.Some(421), PRMs: domain.Some(160), QRSMs: domain.Some(90)},
			expected: []string{},
		},
		{
			name:     "Prolongation only",
			input:    RedFlagInput{QTcMs: domain.Some(470)},
			expected: []string{FlagProlongation470},
		},
		{
			name:     "Both QTc thresholds",
			input:    RedFlagInput{QTcMs: domain.Some(500)},
			expected: []string{FlagHighRisk500, FlagProlongation470},
		},
		{
			name:  "All rules",
			input: RedFlagInput{QTcMs: domain.Some(505), PRMs: domain.Some(90), QRSMs: domain.Some(130)},
			expected: []string{
				FlagHighRisk500,
				FlagProlongation470,
				FlagShortPRWideQRS,
			},
		},
		{
			name:     "PR at 120 does not fire",
			input:    RedFlagInput{PRMs: domain.Some(120), QRSMs: domain.Some(130)},
			expected: []string{},
		},
		{
			name:     "QRS at 120 fires",
			input:    RedFlagInput{PRMs: domain.Some(100), QRSMs: domain.Some(120)},
			expected: []string{FlagShortPRWideQRS},
		},
		{
			name:     "Missing QRS suppresses pattern",
			input:    RedFlagInput{PRMs: domain.Some(90)},
			expected: []string{},
		},
		{
			name:     "All absent",
			input:    RedFlagInput{},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Evaluate(tt.input)
			assert.NotNil(t, got)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRedFlagEngine_Rules(t *testing.T) {
	rules := NewRedFlagEngine().Rules()
	assert.Len(t, rules, 3)
	for _, rule := range rules {
		assert.NotEmpty(t, rule.Tag)
		assert.NotEmpty(t, rule.Description)
		assert.NotNil(t, rule.Evaluator)
	}
}
