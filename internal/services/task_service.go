/**
 * @description
 * Task Service.
 * CRUD for analysis job records, scoped to the owning user.
 *
 * @dependencies
 * - gorm.io/gorm
 * - backend/internal/models
 *
 * @notes
 * - pending -> completed when a result is attached, pending -> failed explicitly or
 *   when the worker expires tasks stuck in pending. completed and failed are terminal.
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vitalchain-project/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const staleTaskError = "task expired before a result was attached"

var (
	ErrTaskNotFound          = errors.New("task not found")
	ErrInvalidTask           = errors.New("invalid task")
	ErrInvalidTaskTransition = errors.New("invalid task status transition")
)

// CreateTaskInput is the body of POST /tasks.
type CreateTaskInput struct {
	FileName string              `json:"fileName"`
	FileType models.TaskFileType `json:"fileType"`
}

// TaskUpdate is the body of PATCH /tasks/:id. Nil fields are left unchanged.
type TaskUpdate struct {
	Status         *models.TaskStatus     `json:"status"`
	AnalysisResult map[string]interface{} `json:"analysisResult"`
	Error          *string                `json:"error"`
}

type TaskService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTaskService(db *gorm.DB) *TaskService {
	return &TaskService{db: db, now: time.Now}
}

func (s *TaskService) Create(ctx context.Context, userID uuid.UUID, in CreateTaskInput) (*models.Task, error) {
	in.FileName = strings.TrimSpace(in.FileName)
	if in.FileName == "" {
		return nil, fmt.Errorf("%w: fileName is required", ErrInvalidTask)
	}
	if !in.FileType.Valid() {
		return nil, fmt.Errorf("%w: fileType must be one of dna, image, text", ErrInvalidTask)
	}

	task := &models.Task{
		UserID:   userID,
		FileName: in.FileName,
		FileType: in.FileType,
		Status:   models.TaskStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, translateAppendError(err)
	}
	return task, nil
}

func (s *TaskService) List(ctx context.Context, userID uuid.UUID) ([]models.Task, error) {
	var tasks []models.Task
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&tasks).Error
	return tasks, err
}

func (s *TaskService) Get(ctx context.Context, userID, taskID uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", taskID, userID).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

// Update applies upd inside a row-locked transaction so concurrent PATCHes serialize.
func (s *TaskService) Update(ctx context.Context, userID, taskID uuid.UUID, upd TaskUpdate) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", taskID, userID).
			First(&task).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return err
		}

		if err := ApplyTaskUpdate(&task, upd); err != nil {
			return err
		}
		task.UpdatedAt = s.now()
		return tx.Save(&task).Error
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ExpireStale marks tasks pending for longer than maxAge as failed.
func (s *TaskService) ExpireStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("status = ? AND created_at < ?", models.TaskStatusPending, now.Add(-maxAge)).
		Updates(map[string]interface{}{
			"status":     models.TaskStatusFailed,
			"error":      staleTaskError,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ApplyTaskUpdate validates and applies upd to task in memory.
// Attaching a result completes the task; a failed status requires the task to be pending.
func ApplyTaskUpdate(task *models.Task, upd TaskUpdate) error {
	if task.Status != models.TaskStatusPending {
		return fmt.Errorf("%w: task is already %s", ErrInvalidTaskTransition, task.Status)
	}

	target := task.Status
	if upd.Status != nil {
		target = *upd.Status
	}
	if upd.AnalysisResult != nil {
		if upd.Status != nil && target != models.TaskStatusCompleted {
			return fmt.Errorf("%w: a result can only be attached when completing", ErrInvalidTaskTransition)
		}
		target = models.TaskStatusCompleted
	}

	switch target {
	case models.TaskStatusCompleted:
		if upd.AnalysisResult == nil {
			return fmt.Errorf("%w: analysisResult is required to complete a task", ErrInvalidTask)
		}
		task.AnalysisResult = upd.AnalysisResult
		task.Error = ""
	case models.TaskStatusFailed:
		task.Error = "analysis failed"
		if upd.Error != nil && strings.TrimSpace(*upd.Error) != "" {
			task.Error = strings.TrimSpace(*upd.Error)
		}
	case models.TaskStatusPending:
		if upd.Error != nil {
			return fmt.Errorf("%w: error can only be set when failing a task", ErrInvalidTask)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTask, target)
	}

	task.Status = target
	return nil
}
