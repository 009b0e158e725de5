/**
 * @description
 * AI response normalizer.
 * Maps the heterogeneous chat-completion responses returned by the AI provider onto the
 * fixed AnalysisRecord / ImageAnalysisRecord schemas.
 *
 * @notes
 * - Accepted shapes: a chat-completion envelope whose content is JSON (optionally fenced or
 *   surrounded by prose), a envelope whose content is plain text, or a flat object.
 * - Missing or mistyped fields degrade to defaults; only a body that is not JSON at all fails.
 * - Text analyses flatten recommendations/risks to strings. Image analyses keep the structure,
 *   compute a weighted health score and aggregate a risk level.
 */

package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vitalchain-project/backend/internal/models"
)

const (
	// PlaceholderSummary is used when the model response carried no usable summary.
	PlaceholderSummary = "Unable to parse the analysis response. Please try again."

	DefaultHealthScore = 75.0

	// Image path sub-score defaults and weights.
	defaultGeneralHealth = 70.0
	defaultRiskFactors   = 80.0
	defaultLifestyle     = 75.0
	weightGeneralHealth  = 0.4
	weightRiskFactors    = 0.35
	weightLifestyle      = 0.25
)

// ErrUnparseable is returned when the upstream body is not JSON at all.
var ErrUnparseable = errors.New("ai response is not valid JSON")

// fields is the flattened key/value view of whatever object the model produced.
type fields map[string]json.RawMessage

// NormalizeText maps a raw upstream response onto the text-path AnalysisRecord.
func NormalizeText(raw []byte, now time.Time) (*models.AnalysisRecord, error) {
	f, fallbackSummary, err := extract(raw)
	if err != nil {
		return nil, err
	}

	recs := decodeRecommendations(f["recommendations"])
	risks := decodeRisks(f.firstPresent("risks", "riskFactors"))

	record := &models.AnalysisRecord{
		Summary:         f.summary(fallbackSummary),
		Recommendations: make([]string, 0, len(recs)),
		RiskFactors:     make([]string, 0, len(risks)),
		Metrics:         f.metrics(),
		Timestamp:       now,
	}
	for _, r := range recs {
		record.Recommendations = append(record.Recommendations, r.Text)
	}
	for _, r := range risks {
		record.RiskFactors = append(record.RiskFactors, r.Description)
	}
	return record, nil
}

// NormalizeImage maps a raw upstream response onto the image-path ImageAnalysisRecord.
func NormalizeImage(raw []byte, now time.Time) (*models.ImageAnalysisRecord, error) {
	f, fallbackSummary, err := extract(raw)
	if err != nil {
		return nil, err
	}

	recs := decodeRecommendations(f["recommendations"])
	risks := decodeRisks(f.firstPresent("risks", "riskFactors"))

	record := &models.ImageAnalysisRecord{
		Summary:         f.summary(fallbackSummary),
		Recommendations: make([]models.StructuredRecommendation, 0, len(recs)),
		Risks:           make([]models.StructuredRisk, 0, len(risks)),
		Metrics:         f.metrics(),
		Timestamp:       now,
	}
	for _, r := range recs {
		record.Recommendations = append(record.Recommendations, models.StructuredRecommendation{
			Text:     r.Text,
			Category: r.Category,
			Priority: r.Priority,
		})
	}
	for _, r := range risks {
		severity, ok := models.ParseLevel(r.Severity)
		if !ok {
			severity = models.LevelMedium
		}
		record.Risks = append(record.Risks, models.StructuredRisk{
			Description: r.Description,
			Severity:    severity,
			Type:        r.Type,
		})
	}

	record.Metrics.HealthScore = f.weightedHealthScore()
	record.RiskLevel = AggregateRiskLevel(record.Risks)
	return record, nil
}

// AggregateRiskLevel averages severities (low=1, medium=2, high=3).
// avg <= 1.5 is low, avg <= 2.5 is medium, anything above is high. No risks is low.
func AggregateRiskLevel(risks []models.StructuredRisk) models.Level {
	if len(risks) == 0 {
		return models.LevelLow
	}
	total := 0.0
	for _, r := range risks {
		switch r.Severity {
		case models.LevelLow:
			total += 1
		case models.LevelHigh:
			total += 3
		default:
			total += 2
		}
	}
	avg := total / float64(len(risks))
	switch {
	case avg <= 1.5:
		return models.LevelLow
	case avg <= 2.5:
		return models.LevelMedium
	default:
		return models.LevelHigh
	}
}

// extract unwraps the upstream body into its field map. When the model answered in prose
// rather than JSON the prose is returned as the fallback summary.
func extract(raw []byte) (fields, string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return nil, "", ErrUnparseable
	}

	var top fields
	if err := json.Unmarshal(raw, &top); err != nil {
		// Valid JSON that is not an object (array, string, number): nothing to read.
		return fields{}, "", nil
	}

	if choices, ok := top["choices"]; ok {
		return fromEnvelope(choices)
	}
	return unwrapNested(top), "", nil
}

func fromEnvelope(choices json.RawMessage) (fields, string, error) {
	var env []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(choices, &env); err != nil || len(env) == 0 {
		return fields{}, "", nil
	}
	content := env[0].Message.Content

	// Some providers already return the content as an object.
	var obj fields
	if err := json.Unmarshal(content, &obj); err == nil {
		return unwrapNested(obj), "", nil
	}

	var text string
	if err := json.Unmarshal(content, &text); err != nil {
		return fields{}, "", nil
	}
	candidate := extractJSONObject(cleanJSONFence(text))
	if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
		return unwrapNested(obj), "", nil
	}
	return fields{}, strings.TrimSpace(text), nil
}

// unwrapNested handles {"analysis": {...}} wrappers that carry no top-level summary.
func unwrapNested(f fields) fields {
	if _, ok := f["summary"]; ok {
		return f
	}
	if inner, ok := f["analysis"]; ok {
		var nested fields
		if err := json.Unmarshal(inner, &nested); err == nil {
			return nested
		}
	}
	return f
}

func (f fields) firstPresent(keys ...string) json.RawMessage {
	for _, k := range keys {
		if raw, ok := f[k]; ok && !isNull(raw) {
			return raw
		}
	}
	return nil
}

func (f fields) summary(fallback string) string {
	if s := firstString(f, "summary"); s != "" {
		return s
	}
	if fallback != "" {
		return fallback
	}
	return PlaceholderSummary
}

func (f fields) metrics() models.HealthMetrics {
	var nested fields
	if raw, ok := f["metrics"]; ok {
		_ = json.Unmarshal(raw, &nested)
	}

	score, ok := f.number("generalHealthScore")
	if !ok {
		score, ok = nested.number("healthScore")
	}
	if !ok {
		score, ok = f.number("healthScore")
	}
	if !ok {
		score = DefaultHealthScore
	}

	return models.HealthMetrics{
		HealthScore:  clampScore(score),
		StressLevel:  levelOrMedium(nested, f, "stressLevel"),
		SleepQuality: levelOrMedium(nested, f, "sleepQuality"),
	}
}

func (f fields) weightedHealthScore() float64 {
	var scores fields
	for _, key := range []string{"scores", "healthScores"} {
		if raw, ok := f[key]; ok {
			if err := json.Unmarshal(raw, &scores); err == nil {
				break
			}
		}
	}
	if scores == nil {
		scores = f
	}

	general, ok := scores.number("generalHealth")
	if !ok {
		general = defaultGeneralHealth
	}
	riskScore, ok := scores.number("riskFactors")
	if !ok {
		riskScore = defaultRiskFactors
	}
	lifestyle, ok := scores.number("lifestyle")
	if !ok {
		lifestyle = defaultLifestyle
	}

	return clampScore(general*weightGeneralHealth + riskScore*weightRiskFactors + lifestyle*weightLifestyle)
}

// number reads key as a JSON number or a numeric string.
func (f fields) number(key string) (float64, bool) {
	raw, ok := f[key]
	if !ok {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, !math.IsNaN(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(n) {
			return n, true
		}
	}
	return 0, false
}

func levelOrMedium(primary, secondary fields, key string) models.Level {
	for _, f := range []fields{primary, secondary} {
		if level, ok := models.ParseLevel(strings.ToLower(firstString(f, key))); ok {
			return level
		}
	}
	return models.LevelMedium
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func cleanJSONFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSONObject returns the first balanced substring of s that decodes as a JSON
// object. Each '{' is tried in turn so stray braces in surrounding prose are skipped.
// Braces inside string literals do not count towards nesting.
func extractJSONObject(s string) string {
	for start := strings.IndexByte(s, '{'); start != -1; {
		if end := objectEnd(s, start); end != -1 {
			var obj fields
			if err := json.Unmarshal([]byte(s[start:end]), &obj); err == nil {
				return strings.TrimSpace(s[start:end])
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next == -1 {
			break
		}
		start += next + 1
	}
	return s
}

// objectEnd returns the index just past the brace closing the object opened at start,
// or -1 when it is never closed.
func objectEnd(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
