package narrative

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ecg-guardrail-server/internal/domain"
)

// bannedTerms imply diagnosis, risk or management. Matching is a
// case-insensitive substring test, so trailing spaces are significant.
var bannedTerms = []string{
	// Diagnoses and conditions
	"long qt syndrome",
	"lqts",
	"torsades",
	"torsade de pointes",
	"myocardial infarction",
	"heart failure",
	"ventricular tachycardia",
	"ventricular fibrillation",
	"vfib",
	"vt ",

	// Diagnostic framing
	"diagnosis",
	"diagnose",
	"diagnostic",
	"pathognomonic",

	// Management and advice
	"start ",
	"stop ",
	"commence",
	"discontinue",
	"increase dose",
	"reduce dose",
	"treat ",
	"treatment",
	"therapy",
	"admit ",
	"admission",
	"discharge ",
	"refer ",
	"referral",
	"urgent review",
	"call 999",
	"emergency department",
	"a&e",
	"accident and emergency",

	// Risk language
	"high risk",
	"low risk",
	"reassuring",
	"benign",
	"malignant",
}

// BannedTerms returns a copy of the banned substring list.
func BannedTerms() []string {
	out := make([]string, len(bannedTerms))
	copy(out, bannedTerms)
	return out
}

// FindBanned returns the first banned term contained in text, if any.
func FindBanned(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lowered := strings.ToLower(text)
	for _, term := range bannedTerms {
		if strings.Contains(lowered, term) {
			return term, true
		}
	}
	return "", false
}

// findBannedIn scans each free-text field of an output separately, so
// trailing-space terms never match across a field boundary.
func findBannedIn(out domain.NarrativeOutput) (string, bool) {
	fields := []string{out.Narrative, out.Disclaimer}
	fields = append(fields, out.KeyPoints...)
	fields = append(fields, out.CautionFlags...)
	for _, field := range fields {
		if term, found := FindBanned(field); found {
			return term, true
		}
	}
	return "", false
}

// Options tunes a SafetyFilter.
type Options struct {
	Timeout     time.Duration
	Temperature float64
	Cache       Cache
	CacheTTL    time.Duration
	Metrics     domain.MetricsRecorder
}

// SafetyFilter wraps a Generator with the banned-term scan and the
// deterministic fallback.
type SafetyFilter struct {
	generator Generator
	options   Options
	logger    *logrus.Logger
}

// NewSafetyFilter creates a filter. A nil generator always yields the fallback.
func NewSafetyFilter(generator Generator, options Options, logger *logrus.Logger) *SafetyFilter {
	if options.Timeout <= 0 {
		options.Timeout = 20 * time.Second
	}
	if options.Temperature == 0 {
		options.Temperature = 0.2
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &SafetyFilter{generator: generator, options: options, logger: logger}
}

// Enabled reports whether a configured generator is attached.
func (f *SafetyFilter) Enabled() bool {
	if f.generator == nil {
		return false
	}
	if c, ok := f.generator.(Configurable); ok {
		return c.Configured()
	}
	return true
}

// Summarize returns a narrative for req. It never fails; every problem on
// the generator path degrades to Fallback.
func (f *SafetyFilter) Summarize(ctx context.Context, req domain.NarrativeRequest) domain.NarrativeOutput {
	if !f.Enabled() {
		f.logger.Debug("Narrative generator not configured, using deterministic fallback")
		return f.fallback(req, "unconfigured")
	}

	key := CacheKey(req)
	if out, ok := f.cached(ctx, key); ok {
		f.increment("narrative_cache_hits")
		return out
	}

	prompt, err := BuildPrompt(req, f.options.Temperature)
	if err != nil {
		f.logger.WithError(err).Warn("Failed to build narrative prompt")
		return f.fallback(req, "prompt")
	}

	callCtx, cancel := context.WithTimeout(ctx, f.options.Timeout)
	defer cancel()

	started := time.Now()
	raw, err := f.generator.Generate(callCtx, prompt)
	if f.options.Metrics != nil {
		f.options.Metrics.RecordDuration("narrative_generator_ms", time.Since(started))
	}
	if err != nil {
		f.logger.WithError(err).Warn("Narrative generator call failed, using deterministic fallback")
		return f.fallback(req, "generator_error")
	}

	out, err := ParseCandidate(raw)
	if err != nil {
		f.logger.WithError(err).Warn("Narrative generator returned an unusable response")
		return f.fallback(req, "malformed")
	}

	if term, found := findBannedIn(out); found {
		f.logger.WithField("term", term).Info("Banned language in generated narrative, using deterministic fallback")
		return f.fallback(req, "blocked")
	}

	out.Disclaimer = domain.NarrativeDisclaimer
	out.Source = domain.SourceGenerator
	f.increment("narrative_generated")
	f.store(ctx, key, out)

	return out
}

func (f *SafetyFilter) fallback(req domain.NarrativeRequest, reason string) domain.NarrativeOutput {
	f.increment("narrative_fallback")
	f.increment("narrative_fallback_" + reason)
	return Fallback(req)
}

func (f *SafetyFilter) cached(ctx context.Context, key string) (domain.NarrativeOutput, bool) {
	if f.options.Cache == nil || key == "" {
		return domain.NarrativeOutput{}, false
	}
	out, found, err := f.options.Cache.Get(ctx, key)
	if err != nil {
		f.logger.WithError(err).Warn("Narrative cache lookup failed")
		return domain.NarrativeOutput{}, false
	}
	if !found {
		return domain.NarrativeOutput{}, false
	}
	// Entries are rescanned so a changed term list or a foreign writer
	// cannot bypass the filter.
	if term, banned := findBannedIn(out); banned {
		f.logger.WithField("term", term).Warn("Banned language in cached narrative, ignoring cache entry")
		f.increment("narrative_cache_rejected")
		return domain.NarrativeOutput{}, false
	}
	out.Disclaimer = domain.NarrativeDisclaimer
	out.Source = domain.SourceCache
	return out, true
}

func (f *SafetyFilter) store(ctx context.Context, key string, out domain.NarrativeOutput) {
	if f.options.Cache == nil || key == "" {
		return
	}
	if err := f.options.Cache.Set(ctx, key, out, f.options.CacheTTL); err != nil {
		f.logger.WithError(err).Warn("Narrative cache store failed")
	}
}

func (f *SafetyFilter) increment(name string) {
	if f.options.Metrics != nil {
		f.options.Metrics.Increment(name)
	}
}

// CacheKey is the hex SHA-256 of the structured generator input. It returns
// "" when the input cannot be encoded.
func CacheKey(req domain.NarrativeRequest) string {
	data, err := json.Marshal(newStructuredInput(req))
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
