package analysis

import (
	"encoding/json"
	"strings"
)

// Recommendation is one suggestion from the model. Upstream sends either a bare
// string (Structured=false) or an object carrying text plus priority/category.
type Recommendation struct {
	Text       string
	Priority   string
	Category   string
	Structured bool
}

// UnmarshalJSON accepts "text" or {"text"|"suggestion"|"content", "priority", "category"}.
func (r *Recommendation) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = Recommendation{Text: strings.TrimSpace(s)}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*r = Recommendation{
		Text:       firstString(obj, "text", "suggestion", "content", "recommendation", "description"),
		Priority:   strings.ToLower(firstString(obj, "priority")),
		Category:   firstString(obj, "category", "type"),
		Structured: true,
	}
	return nil
}

// Risk is one risk factor from the model. Upstream sends either a bare string
// or an object carrying description plus severity/type.
type Risk struct {
	Description string
	Severity    string
	Type        string
	Structured  bool
}

// UnmarshalJSON accepts "text" or {"description"|"text"|"risk", "severity"|"level", "type"|"category"}.
func (r *Risk) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = Risk{Description: strings.TrimSpace(s)}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*r = Risk{
		Description: firstString(obj, "description", "text", "risk", "name"),
		Severity:    strings.ToLower(firstString(obj, "severity", "level")),
		Type:        firstString(obj, "type", "category"),
		Structured:  true,
	}
	return nil
}

// decodeList decodes each element independently and drops the ones that are neither
// a string nor an object, or that carry no text. A non-array yields nil.
func decodeList[T any, P interface {
	*T
	json.Unmarshaler
}](raw json.RawMessage, empty func(T) bool) []T {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := P(&v).UnmarshalJSON(item); err != nil {
			continue
		}
		if empty(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func decodeRecommendations(raw json.RawMessage) []Recommendation {
	return decodeList[Recommendation](raw, func(r Recommendation) bool { return r.Text == "" })
}

func decodeRisks(raw json.RawMessage) []Risk {
	return decodeList[Risk](raw, func(r Risk) bool { return r.Description == "" })
}

// firstString returns the first key in obj that holds a non-empty string.
func firstString(obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
