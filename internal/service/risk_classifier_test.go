package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ecg-guardrail-server/internal/domain"
)

func TestThresholdsFor(t *testing.T) {
	tests := []struct {
		sex      string
		expected domain.Thresholds
	}{
		{"male", MaleThresholds},
		{"M", MaleThresholds},
		{" Male ", MaleThresholds},
		{"female", FemaleThresholds},
		{"F", FemaleThresholds},
		{"unspecified", GenericThresholds},
		{"", GenericThresholds},
		{"x", GenericThresholds},
	}

	for _, tt := range tests {
		t.Run(tt.sex, func(t *testing.T) {
			assert.Equal(t, tt.expected, ThresholdsFor(tt.sex))
		})
	}
}

func TestThresholdTablesStrictlyIncreasing(t *testing.T) {
	for name, table := range map[string]domain.Thresholds{
		"male":    MaleThresholds,
		"female":  FemaleThresholds,
		"generic": GenericThresholds,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Less(t, table.ShortQTCutoff, table.NormalUpper)
			assert.Less(t, table.NormalUpper, table.BorderlineUpper)
			assert.Less(t, table.BorderlineUpper, table.HighRisk)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		value    domain.Value
		sex      string
		expected domain.RiskCategory
	}{
		{"Absent", domain.None(), "male", domain.CategoryUnknown},
		{"Short at cutoff", domain.Some(350), "male", domain.CategoryShortQT},
		{"Just above short cutoff", domain.Some(351), "male", domain.CategoryNormal},
		{"Normal", domain.Some(421), "female", domain.CategoryNormal},
		{"Normal upper is borderline", domain.Some(440), "male", domain.CategoryBorderlineProlonged},
		{"Borderline upper inclusive", domain.Some(449), "male", domain.CategoryBorderlineProlonged},
		{"Prolonged", domain.Some(450), "male", domain.CategoryProlonged},
		{"Female normal upper is borderline", domain.Some(460), "female", domain.CategoryBorderlineProlonged},
		{"Female prolonged", domain.Some(470), "female", domain.CategoryProlonged},
		{"High risk inclusive", domain.Some(500), "female", domain.CategoryHighRisk},
		{"High risk", domain.Some(505), "unknown", domain.CategoryHighRisk},
		{"Generic borderline", domain.Some(479), "", domain.CategoryBorderlineProlonged},
		{"Generic prolonged", domain.Some(480), "", domain.CategoryProlonged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.value, tt.sex)
			assert.Equal(t, tt.expected, got.Category)
			assert.Equal(t, tt.expected == domain.CategoryShortQT, got.ShortQT)
			assert.Equal(t, ThresholdsFor(tt.sex), got.ThresholdsUsed)
		})
	}
}
