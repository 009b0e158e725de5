/**
 * @description
 * Normalized AI analysis models.
 * Maps to 'analysis_records' (text path) and 'image_analysis_records' (image path).
 *
 * @notes
 * - The two paths intentionally differ: text analyses flatten recommendations and risks to
 *   display strings, image analyses keep the structured priority/category/severity fields.
 * - Slices are stored as JSON columns via GORM's json serializer.
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Level is the low/medium/high scale used by metrics and risk aggregation.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// ParseLevel maps a free-form upstream value to a Level; ok is false when it is not recognized.
func ParseLevel(s string) (Level, bool) {
	switch Level(s) {
	case LevelLow, LevelMedium, LevelHigh:
		return Level(s), true
	}
	return "", false
}

// HealthMetrics is the fixed metric block attached to every analysis.
type HealthMetrics struct {
	HealthScore  float64 `json:"healthScore"`
	StressLevel  Level   `gorm:"size:16" json:"stressLevel"`
	SleepQuality Level   `gorm:"size:16" json:"sleepQuality"`
}

// AnalysisRecord is the normalized output of a text/health-data analysis.
type AnalysisRecord struct {
	ID              uuid.UUID     `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	UserID          uuid.UUID     `gorm:"type:uuid;not null;index" json:"-"`
	FileName        string        `json:"fileName,omitempty"`
	Summary         string        `gorm:"type:text" json:"summary"`
	Recommendations []string      `gorm:"type:jsonb;serializer:json" json:"recommendations"`
	RiskFactors     []string      `gorm:"type:jsonb;serializer:json" json:"riskFactors"`
	Metrics         HealthMetrics `gorm:"embedded;embeddedPrefix:metric_" json:"metrics"`
	Timestamp       time.Time     `gorm:"column:analyzed_at;index" json:"timestamp"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_records"
}

func (a *AnalysisRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return
}

// StructuredRecommendation keeps the category/priority an upstream model attached to a suggestion.
type StructuredRecommendation struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// StructuredRisk keeps the severity/type an upstream model attached to a risk.
type StructuredRisk struct {
	Description string `json:"description"`
	Severity    Level  `json:"severity"`
	Type        string `json:"type,omitempty"`
}

// ImageAnalysisRecord is the normalized output of a medical-image analysis.
type ImageAnalysisRecord struct {
	ID              uuid.UUID                  `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	UserID          uuid.UUID                  `gorm:"type:uuid;not null;index" json:"-"`
	FileName        string                     `json:"fileName,omitempty"`
	Summary         string                     `gorm:"type:text" json:"summary"`
	Recommendations []StructuredRecommendation `gorm:"type:jsonb;serializer:json" json:"recommendations"`
	Risks           []StructuredRisk           `gorm:"type:jsonb;serializer:json" json:"risks"`
	RiskLevel       Level                      `gorm:"size:16" json:"riskLevel"`
	Metrics         HealthMetrics              `gorm:"embedded;embeddedPrefix:metric_" json:"metrics"`
	Timestamp       time.Time                  `gorm:"column:analyzed_at;index" json:"timestamp"`
}

func (ImageAnalysisRecord) TableName() string {
	return "image_analysis_records"
}

func (a *ImageAnalysisRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return
}
