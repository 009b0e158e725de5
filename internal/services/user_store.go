/**
 * @description
 * User persistence.
 * Users are keyed by lowercase wallet address. Uploaded files and analysis results are
 * rows in child tables, so appending is a single INSERT and concurrent analyses for one
 * user never overwrite each other.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/jackc/pgx/v5/pgconn: constraint violation codes
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vitalchain-project/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgForeignKeyViolation = "23503"
	defaultHistoryLimit   = 50
)

var ErrUserNotFound = errors.New("user not found")

// UserStore is the persistence surface the auth and analysis flows need.
type UserStore interface {
	FindByWallet(ctx context.Context, walletAddress string) (*models.User, error)
	FindOrCreate(ctx context.Context, walletAddress string) (*models.User, bool, error)
	ListHealthFiles(ctx context.Context, userID uuid.UUID) ([]models.HealthFile, error)
	ListAnalyses(ctx context.Context, userID uuid.UUID, limit int) ([]models.AnalysisRecord, error)
	ListImageAnalyses(ctx context.Context, userID uuid.UUID, limit int) ([]models.ImageAnalysisRecord, error)
	AppendHealthFile(ctx context.Context, userID uuid.UUID, file *models.HealthFile) error
	AppendAnalysis(ctx context.Context, userID uuid.UUID, record *models.AnalysisRecord) error
	AppendImageAnalysis(ctx context.Context, userID uuid.UUID, record *models.ImageAnalysisRecord) error
}

type GormUserStore struct {
	db *gorm.DB
}

func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

func (s *GormUserStore) FindByWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("wallet_address = ?", strings.ToLower(walletAddress)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

// FindOrCreate returns the user for walletAddress, inserting it on first login.
// The boolean reports whether a row was created.
func (s *GormUserStore) FindOrCreate(ctx context.Context, walletAddress string) (*models.User, bool, error) {
	user := models.User{WalletAddress: strings.ToLower(walletAddress)}

	// ON CONFLICT DO NOTHING keeps two simultaneous first logins from failing on the unique index.
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "wallet_address"}}, DoNothing: true}).
		Create(&user)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return &user, true, nil
	}

	existing, err := s.FindByWallet(ctx, walletAddress)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *GormUserStore) ListHealthFiles(ctx context.Context, userID uuid.UUID) ([]models.HealthFile, error) {
	var files []models.HealthFile
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("uploaded_at DESC").
		Find(&files).Error
	return files, err
}

func (s *GormUserStore) ListAnalyses(ctx context.Context, userID uuid.UUID, limit int) ([]models.AnalysisRecord, error) {
	var records []models.AnalysisRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("analyzed_at DESC").
		Limit(clampLimit(limit)).
		Find(&records).Error
	return records, err
}

func (s *GormUserStore) ListImageAnalyses(ctx context.Context, userID uuid.UUID, limit int) ([]models.ImageAnalysisRecord, error) {
	var records []models.ImageAnalysisRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("analyzed_at DESC").
		Limit(clampLimit(limit)).
		Find(&records).Error
	return records, err
}

func (s *GormUserStore) AppendHealthFile(ctx context.Context, userID uuid.UUID, file *models.HealthFile) error {
	file.UserID = userID
	return translateAppendError(s.db.WithContext(ctx).Create(file).Error)
}

func (s *GormUserStore) AppendAnalysis(ctx context.Context, userID uuid.UUID, record *models.AnalysisRecord) error {
	record.UserID = userID
	return translateAppendError(s.db.WithContext(ctx).Create(record).Error)
}

func (s *GormUserStore) AppendImageAnalysis(ctx context.Context, userID uuid.UUID, record *models.ImageAnalysisRecord) error {
	record.UserID = userID
	return translateAppendError(s.db.WithContext(ctx).Create(record).Error)
}

// translateAppendError maps a dangling user_id onto ErrUserNotFound.
func translateAppendError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return ErrUserNotFound
	}
	return err
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > defaultHistoryLimit {
		return defaultHistoryLimit
	}
	return limit
}
