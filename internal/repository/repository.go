package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/taskm/internal/models"
)

type CreateUserParams struct {
	Name           string
	Email          string
	HashedPassword string
	Role           models.Role
}

// User repository interface (the Credential Store)
type UserRepo interface {
	// Create user
	// Email uniqueness is enforced by the store itself: if a user with the
	// same email exists must return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by its id or unique email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

type CreateTaskParams struct {
	OwnerID     uuid.UUID
	Title       string
	Description string
	Status      models.TaskStatus
}

type UpdateTaskParams struct {
	Title       *string
	Description *string
	Status      *models.TaskStatus
}

// Filtering and pagination for task listing
// Zero OwnerID means "any owner" (admin listing)
type TaskFilter struct {
	OwnerID uuid.UUID
	Status  models.TaskStatus
	Search  string
	Limit   int
	Offset  int
}

// Task repository interface (the Resource Store)
type TaskRepo interface {
	CreateTask(ctx context.Context, params CreateTaskParams) (models.Task, error)

	// If task not found must return apperrors.ErrTaskNotFound
	GetTask(ctx context.Context, taskID uuid.UUID) (models.Task, error)

	// List tasks ordered by creation time, newest first
	// Returns the page and the total count matching the filter
	ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error)

	UpdateTask(ctx context.Context, taskID uuid.UUID, params UpdateTaskParams) (models.Task, error)
	DeleteTask(ctx context.Context, taskID uuid.UUID) error
}

// Storage aggregates all repositories over one connection or transaction
type Storage interface {
	User() UserRepo
	Task() TaskRepo

	// Run fn within a database transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}
