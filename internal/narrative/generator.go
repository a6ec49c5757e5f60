// Package narrative produces short, non-diagnostic text summaries of an
// interval assessment. An external text generator may draft the summary;
// every draft passes through a banned-language filter, and any failure
// falls back to a deterministic template.
package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ecg-guardrail-server/internal/domain"
)

// Prompt is one generator request.
type Prompt struct {
	System      string
	User        string
	Temperature float64
}

// Generator drafts a narrative. Implementations return the raw JSON object
// text produced by the model.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Configurable is implemented by generators that can report missing
// credentials without a network call.
type Configurable interface {
	Configured() bool
}

const systemPrompt = "You are assisting with an ECG INTERVAL INTERPRETATION DEMO. " +
	"You are NOT providing diagnosis. You are NOT screening. " +
	"You are NOT making treatment decisions or management suggestions. " +
	"You ONLY explain the interval and QT/QTc context using neutral, generic language. " +
	"You must never:\n" +
	"- name a specific diagnosis (e.g. bradycardia, long QT syndrome, AV block, myocardial infarction, heart failure, etc.),\n" +
	"- describe risk level (e.g. high risk, low risk, reassuring),\n" +
	"- give any advice about treatment, referral, admission, or emergency care.\n" +
	"You MAY:\n" +
	"- restate the measured values (HR, PR, QRS, QT, RR, QTc),\n" +
	"- state whether they fall within, below, or above the reference ranges used by this tool,\n" +
	"- mention the percentile band provided by the tool,\n" +
	"- use neutral phrases such as 'within the reference range used by this tool' or " +
	"'values outside the reference range are noted for awareness.'\n" +
	"All content must be non-diagnostic and non-directive, suitable for documentation and teaching only."

const outputSchema = "Required output JSON with this exact schema:\n" +
	"{\n" +
	"  \"narrative\": \"one or two sentences of plain English describing the intervals and QTc in relation to the reference ranges used by this tool\",\n" +
	"  \"key_points\": [\"short bullet point\", \"...\"],\n" +
	"  \"caution_flags\": [\"if any values lie outside the reference range, you may include a neutral note such as 'Values outside the reference range are noted for awareness.'\"],\n" +
	"  \"disclaimer\": \"must explicitly state: " + domain.NarrativeDisclaimer + "\"\n" +
	"}\n" +
	"Do NOT include any other top-level fields. " +
	"Do NOT mention diagnosis, prognosis, risk, or treatment.\n"

// structuredInput is the de-identified context sent to the generator.
type structuredInput struct {
	AgeBand        string             `json:"age_band_label,omitempty"`
	Sex            string             `json:"sex_label,omitempty"`
	Intervals      domain.IntervalSet `json:"intervals_ms"`
	QTcMs          domain.Value       `json:"qtc_ms"`
	PercentileBand string             `json:"percentile_band,omitempty"`
	RedFlags       []string           `json:"red_flags"`
	TrendComment   string             `json:"trend_comment,omitempty"`
}

func newStructuredInput(req domain.NarrativeRequest) structuredInput {
	flags := req.RedFlags
	if flags == nil {
		flags = []string{}
	}
	return structuredInput{
		AgeBand:        req.AgeBand,
		Sex:            req.Sex,
		Intervals:      req.Intervals,
		QTcMs:          req.QTcMs,
		PercentileBand: req.PercentileBand,
		RedFlags:       flags,
		TrendComment:   req.TrendComment,
	}
}

// BuildPrompt renders the system and user prompts for a request.
func BuildPrompt(req domain.NarrativeRequest, temperature float64) (Prompt, error) {
	data, err := json.Marshal(newStructuredInput(req))
	if err != nil {
		return Prompt{}, fmt.Errorf("failed to encode narrative input: %w", err)
	}

	var user strings.Builder
	user.WriteString("You are given de-identified ECG interval data and derived QTc metrics.\n")
	user.WriteString("Summarise this as a short, neutral narrative plus key bullet points.\n\n")
	user.WriteString("Input JSON:\n")
	user.Write(data)
	user.WriteString("\n\n")
	user.WriteString(outputSchema)

	return Prompt{System: systemPrompt, User: user.String(), Temperature: temperature}, nil
}

type candidate struct {
	Narrative    *string  `json:"narrative"`
	KeyPoints    []string `json:"key_points"`
	CautionFlags []string `json:"caution_flags"`
	Disclaimer   string   `json:"disclaimer"`
}

// ParseCandidate decodes a generator response. The response must be a JSON
// object with a non-empty narrative.
func ParseCandidate(raw string) (domain.NarrativeOutput, error) {
	var c candidate
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &c); err != nil {
		return domain.NarrativeOutput{}, fmt.Errorf("malformed generator response: %w", err)
	}
	if c.Narrative == nil || strings.TrimSpace(*c.Narrative) == "" {
		return domain.NarrativeOutput{}, fmt.Errorf("generator response has no narrative")
	}

	out := domain.NarrativeOutput{
		Narrative:    *c.Narrative,
		KeyPoints:    c.KeyPoints,
		CautionFlags: c.CautionFlags,
		Disclaimer:   c.Disclaimer,
	}
	if out.KeyPoints == nil {
		out.KeyPoints = []string{}
	}
	if out.CautionFlags == nil {
		out.CautionFlags = []string{}
	}
	return out, nil
}
