package uploads

import (
	"sort"
	"strings"
)

// Policy describes what one upload route accepts.
type Policy struct {
	Name         string
	FieldName    string          // multipart form field carrying the file
	AllowedTypes map[string]bool // lowercase MIME types without parameters
	MaxSize      int64           // bytes
}

// Allows reports whether mimeType is on the allow-list.
func (p Policy) Allows(mimeType string) bool {
	return p.AllowedTypes[strings.ToLower(mimeType)]
}

// AllowedList returns the allow-list for error messages, in a stable order.
func (p Policy) AllowedList() []string {
	out := make([]string, 0, len(p.AllowedTypes))
	for t := range p.AllowedTypes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

var (
	healthDataTypes = []string{
		"text/plain",
		"text/csv",
		"application/csv",
		"application/json",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}
	imageTypes = []string{
		"image/jpeg",
		"image/png",
		"image/gif",
	}
	legacyExtraTypes = []string{
		"application/pdf",
		"image/webp",
	}
)

// HealthDataPolicy accepts text, CSV, JSON and spreadsheet uploads in the "healthData" field.
func HealthDataPolicy(maxSize int64) Policy {
	return newPolicy("health-data", "healthData", maxSize, healthDataTypes)
}

// ImagePolicy accepts JPEG, PNG and GIF uploads in the "image" field.
func ImagePolicy(maxSize int64) Policy {
	return newPolicy("image", "image", maxSize, imageTypes)
}

// LegacyPolicy is the permissive list used by the older health-data upload route.
func LegacyPolicy(maxSize int64) Policy {
	types := append(append(append([]string{}, healthDataTypes...), imageTypes...), legacyExtraTypes...)
	return newPolicy("legacy", "healthData", maxSize, types)
}

func newPolicy(name, field string, maxSize int64, types []string) Policy {
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return Policy{Name: name, FieldName: field, AllowedTypes: allowed, MaxSize: maxSize}
}
