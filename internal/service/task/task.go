package task

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/taskm/internal/apperrors"
	"github.com/nkiryanov/taskm/internal/models"
	"github.com/nkiryanov/taskm/internal/repository"
)

// Task listing options as they come from the query string
type ListOptions struct {
	Status models.TaskStatus
	Search string
	Page   int
	Limit  int
}

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// Listing result with pagination info
type TaskPage struct {
	Tasks []models.Task
	Total int64
	Page  int
	Pages int64
}

// TaskService is owner-scoped resource plumbing: every operation takes the
// acting user and admins see past the owner boundary
type TaskService struct {
	taskRepo repository.TaskRepo
}

func NewService(taskRepo repository.TaskRepo) *TaskService {
	return &TaskService{
		taskRepo: taskRepo,
	}
}

func (s *TaskService) CreateTask(ctx context.Context, user models.User, title string, description string, status models.TaskStatus) (models.Task, error) {
	if status == "" {
		status = models.TaskPending
	}

	return s.taskRepo.CreateTask(ctx, repository.CreateTaskParams{
		OwnerID:     user.ID,
		Title:       title,
		Description: description,
		Status:      status,
	})
}

func (s *TaskService) ListTasks(ctx context.Context, user models.User, opts ListOptions) (TaskPage, error) {
	if opts.Page < 1 {
		opts.Page = defaultPage
	}
	if opts.Limit < 1 {
		opts.Limit = defaultLimit
	}
	if opts.Limit > maxLimit {
		opts.Limit = maxLimit
	}

	filter := repository.TaskFilter{
		Status: opts.Status,
		Search: opts.Search,
		Limit:  opts.Limit,
		Offset: (opts.Page - 1) * opts.Limit,
	}

	// Only admins may list across owners
	if user.Role != models.RoleAdmin {
		filter.OwnerID = user.ID
	}

	tasks, total, err := s.taskRepo.ListTasks(ctx, filter)
	if err != nil {
		return TaskPage{}, fmt.Errorf("can't list tasks. Err: %w", err)
	}

	pages := total / int64(opts.Limit)
	if total%int64(opts.Limit) != 0 {
		pages++
	}

	return TaskPage{
		Tasks: tasks,
		Total: total,
		Page:  opts.Page,
		Pages: pages,
	}, nil
}

// Get task by id if the user may see it
// Another owner's task yields apperrors.ErrForbidden for non-admins,
// never a raw lookup fault
func (s *TaskService) GetTask(ctx context.Context, user models.User, taskID uuid.UUID) (models.Task, error) {
	task, err := s.taskRepo.GetTask(ctx, taskID)
	if err != nil {
		return task, err
	}

	if task.OwnerID != user.ID && user.Role != models.RoleAdmin {
		return models.Task{}, apperrors.ErrForbidden
	}

	return task, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, user models.User, taskID uuid.UUID, params repository.UpdateTaskParams) (models.Task, error) {
	// Visibility check first, same rules as GetTask
	task, err := s.GetTask(ctx, user, taskID)
	if err != nil {
		return task, err
	}

	return s.taskRepo.UpdateTask(ctx, task.ID, params)
}

func (s *TaskService) DeleteTask(ctx context.Context, user models.User, taskID uuid.UUID) (models.Task, error) {
	task, err := s.GetTask(ctx, user, taskID)
	if err != nil {
		return task, err
	}

	if err := s.taskRepo.DeleteTask(ctx, task.ID); err != nil {
		return task, fmt.Errorf("can't delete task. Err: %w", err)
	}

	return task, nil
}
