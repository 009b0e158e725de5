/**
 * @description
 * Task database model.
 * Maps to the 'tasks' table. Tracks analysis jobs submitted by a user.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/google/uuid
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskStatus defines the state of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// TaskFileType is the kind of file a task analyzes
type TaskFileType string

const (
	TaskFileDNA   TaskFileType = "dna"
	TaskFileImage TaskFileType = "image"
	TaskFileText  TaskFileType = "text"
)

// Valid reports whether t is one of the known file types.
func (t TaskFileType) Valid() bool {
	switch t {
	case TaskFileDNA, TaskFileImage, TaskFileText:
		return true
	}
	return false
}

// Task represents an analysis job record
type Task struct {
	ID             uuid.UUID              `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	UserID         uuid.UUID              `gorm:"type:uuid;not null;index" json:"userId"`
	FileName       string                 `gorm:"not null" json:"fileName"`
	FileType       TaskFileType           `gorm:"size:16;not null" json:"fileType"`
	Status         TaskStatus             `gorm:"size:16;not null;default:pending;index" json:"status"`
	AnalysisResult map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"analysisResult,omitempty"`
	Error          string                 `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Task) TableName() string {
	return "tasks"
}

func (t *Task) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TaskStatusPending
	}
	return
}
