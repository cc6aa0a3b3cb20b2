package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/taskm/internal/apperrors"
	"github.com/nkiryanov/taskm/internal/models"
	"github.com/nkiryanov/taskm/internal/repository"
)

type TaskRepo struct {
	DB DBTX
}

const createTask = `-- name: CreateTask
INSERT INTO tasks (id, created_at, updated_at, owner_id, title, description, status)
VALUES ($1, $2, $2, $3, $4, $5, $6)
RETURNING id, created_at, updated_at, owner_id, title, description, status
`

func (r *TaskRepo) CreateTask(ctx context.Context, params repository.CreateTaskParams) (models.Task, error) {
	rows, _ := r.DB.Query(ctx, createTask, uuid.New(), time.Now(), params.OwnerID, params.Title, params.Description, params.Status)
	task, err := pgx.CollectOneRow(rows, rowToTask)
	if err != nil {
		return task, fmt.Errorf("db error: %w", err)
	}

	return task, nil
}

const getTask = `-- name: GetTask
SELECT id, created_at, updated_at, owner_id, title, description, status FROM tasks
WHERE id = $1
`

func (r *TaskRepo) GetTask(ctx context.Context, taskID uuid.UUID) (models.Task, error) {
	rows, _ := r.DB.Query(ctx, getTask, taskID)
	task, err := pgx.CollectOneRow(rows, rowToTask)

	switch {
	case err == nil:
		return task, nil
	case errors.Is(err, pgx.ErrNoRows):
		return task, apperrors.ErrTaskNotFound
	default:
		return task, fmt.Errorf("db error: %w", err)
	}
}

// listTasks and countTasks must keep identical WHERE clauses, otherwise
// pagination totals drift from the page content

const listTasks = `-- name: ListTasks
SELECT id, created_at, updated_at, owner_id, title, description, status FROM tasks
WHERE ($1::uuid IS NULL OR owner_id = $1)
  AND ($2::text IS NULL OR status = $2)
  AND ($3::text IS NULL OR title ILIKE '%' || $3 || '%')
ORDER BY created_at DESC
LIMIT $4 OFFSET $5
`

const countTasks = `-- name: CountTasks
SELECT count(*) FROM tasks
WHERE ($1::uuid IS NULL OR owner_id = $1)
  AND ($2::text IS NULL OR status = $2)
  AND ($3::text IS NULL OR title ILIKE '%' || $3 || '%')
`

func (r *TaskRepo) ListTasks(ctx context.Context, filter repository.TaskFilter) ([]models.Task, int64, error) {
	var ownerID *uuid.UUID
	if filter.OwnerID != uuid.Nil {
		ownerID = &filter.OwnerID
	}

	var status *string
	if filter.Status != "" {
		s := string(filter.Status)
		status = &s
	}

	var search *string
	if filter.Search != "" {
		search = &filter.Search
	}

	rows, _ := r.DB.Query(ctx, listTasks, ownerID, status, search, filter.Limit, filter.Offset)
	tasks, err := pgx.CollectRows(rows, rowToTask)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	countRows, _ := r.DB.Query(ctx, countTasks, ownerID, status, search)
	total, err := pgx.CollectOneRow(countRows, pgx.RowTo[int64])
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	return tasks, total, nil
}

const updateTask = `-- name: UpdateTask
UPDATE tasks
SET title       = COALESCE($2, title),
    description = COALESCE($3, description),
    status      = COALESCE($4, status),
    updated_at  = $5
WHERE id = $1
RETURNING id, created_at, updated_at, owner_id, title, description, status
`

func (r *TaskRepo) UpdateTask(ctx context.Context, taskID uuid.UUID, params repository.UpdateTaskParams) (models.Task, error) {
	var status *string
	if params.Status != nil {
		s := string(*params.Status)
		status = &s
	}

	rows, _ := r.DB.Query(ctx, updateTask, taskID, params.Title, params.Description, status, time.Now())
	task, err := pgx.CollectOneRow(rows, rowToTask)

	switch {
	case err == nil:
		return task, nil
	case errors.Is(err, pgx.ErrNoRows):
		return task, apperrors.ErrTaskNotFound
	default:
		return task, fmt.Errorf("db error: %w", err)
	}
}

const deleteTask = `-- name: DeleteTask
DELETE FROM tasks
WHERE id = $1
`

func (r *TaskRepo) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, deleteTask, taskID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrTaskNotFound
	}

	return nil
}

func rowToTask(row pgx.CollectableRow) (models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.OwnerID, &t.Title, &t.Description, &t.Status)
	return t, err
}
