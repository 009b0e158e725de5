/**
 * @description
 * User database model.
 * Maps to the 'users' table in PostgreSQL, keyed by wallet address.
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

// User represents a wallet that has logged in at least once.
// Uploaded files and analyses live in child tables so each append is a single atomic INSERT.
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	WalletAddress string    `gorm:"size:42;uniqueIndex;not null" json:"walletAddress"` // stored lowercase

	HealthData      []HealthFile          `gorm:"foreignKey:UserID" json:"healthData,omitempty"`
	AnalysisHistory []AnalysisRecord      `gorm:"foreignKey:UserID" json:"analysisHistory,omitempty"`
	ImageAnalysis   []ImageAnalysisRecord `gorm:"foreignKey:UserID" json:"imageAnalysis,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName overrides the table name used by User to `users`
func (User) TableName() string {
	return "users"
}

// BeforeCreate ensures UUID is generated if not present (though DB usually handles this)
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}

// HealthFile records a file a user uploaded through the generic upload route.
type HealthFile struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	FileName     string    `gorm:"not null" json:"fileName"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

func (HealthFile) TableName() string {
	return "health_files"
}

func (f *HealthFile) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now()
	}
	return
}
