/**
 * @description
 * Task API Handlers.
 * Create, list, fetch and update analysis job records for the current user.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/vitalchain-project/backend/internal/api/middleware"
	"github.com/vitalchain-project/backend/internal/logger"
	"github.com/vitalchain-project/backend/internal/models"
	"github.com/vitalchain-project/backend/internal/services"
)

// TaskStore is the task persistence used by TaskHandler.
type TaskStore interface {
	Create(ctx context.Context, userID uuid.UUID, in services.CreateTaskInput) (*models.Task, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Task, error)
	Get(ctx context.Context, userID, taskID uuid.UUID) (*models.Task, error)
	Update(ctx context.Context, userID, taskID uuid.UUID, upd services.TaskUpdate) (*models.Task, error)
}

type TaskHandler struct {
	tasks TaskStore
}

func NewTaskHandler(tasks TaskStore) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// CreateTask registers a pending task
// POST /api/tasks
func (h *TaskHandler) CreateTask(c *fiber.Ctx) error {
	user, err := middleware.GetUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "Unauthorized"})
	}

	var in services.CreateTaskInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}

	task, err := h.tasks.Create(c.UserContext(), user.ID, in)
	if err != nil {
		return taskError(c, "CreateTask", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": task})
}

// ListTasks returns the user's tasks, newest first
// GET /api/tasks
func (h *TaskHandler) ListTasks(c *fiber.Ctx) error {
	user, err := middleware.GetUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "Unauthorized"})
	}

	tasks, err := h.tasks.List(c.UserContext(), user.ID)
	if err != nil {
		return taskError(c, "ListTasks", err)
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return c.JSON(fiber.Map{"success": true, "data": tasks})
}

// GetTask returns one task
// GET /api/tasks/:id
func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	user, err := middleware.GetUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "Unauthorized"})
	}

	taskID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return taskError(c, "GetTask", services.ErrTaskNotFound)
	}

	task, err := h.tasks.Get(c.UserContext(), user.ID, taskID)
	if err != nil {
		return taskError(c, "GetTask", err)
	}
	return c.JSON(fiber.Map{"success": true, "data": task})
}

// UpdateTask attaches a result or marks a task failed
// PATCH /api/tasks/:id
func (h *TaskHandler) UpdateTask(c *fiber.Ctx) error {
	user, err := middleware.GetUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "Unauthorized"})
	}

	taskID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return taskError(c, "UpdateTask", services.ErrTaskNotFound)
	}

	var upd services.TaskUpdate
	if err := c.BodyParser(&upd); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}

	task, err := h.tasks.Update(c.UserContext(), user.ID, taskID, upd)
	if err != nil {
		return taskError(c, "UpdateTask", err)
	}
	return c.JSON(fiber.Map{"success": true, "data": task})
}

func taskError(c *fiber.Ctx, op string, err error) error {
	switch {
	case errors.Is(err, services.ErrTaskNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "Task not found"})
	case errors.Is(err, services.ErrInvalidTask), errors.Is(err, services.ErrInvalidTaskTransition):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "User not found"})
	default:
		logger.Error("%s: %v", op, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "Task operation failed"})
	}
}
