package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/taskm/internal/apperrors"
	"github.com/nkiryanov/taskm/internal/handlers/render"
	"github.com/nkiryanov/taskm/internal/handlers/userctx"
	"github.com/nkiryanov/taskm/internal/models"
	"github.com/nkiryanov/taskm/internal/repository"
	"github.com/nkiryanov/taskm/internal/service/task"
)

type taskService interface {
	CreateTask(ctx context.Context, user models.User, title string, description string, status models.TaskStatus) (models.Task, error)
	ListTasks(ctx context.Context, user models.User, opts task.ListOptions) (task.TaskPage, error)
	GetTask(ctx context.Context, user models.User, taskID uuid.UUID) (models.Task, error)
	UpdateTask(ctx context.Context, user models.User, taskID uuid.UUID, params repository.UpdateTaskParams) (models.Task, error)
	DeleteTask(ctx context.Context, user models.User, taskID uuid.UUID) (models.Task, error)
}

type TaskHandler struct {
	taskService taskService
}

func NewTask(taskService taskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// Handler routes task CRUD. Must run behind AuthMiddleware: every method
// resolves the acting user from the request context
func (h *TaskHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tasks", h.create)
	mux.HandleFunc("GET /tasks", h.list)
	mux.HandleFunc("GET /tasks/{id}", h.get)
	mux.HandleFunc("PUT /tasks/{id}", h.update)
	mux.HandleFunc("DELETE /tasks/{id}", h.delete)

	return mux
}

type TaskResponse struct {
	ID          uuid.UUID         `json:"id"`
	OwnerID     uuid.UUID         `json:"owner_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      models.TaskStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Pages int64          `json:"pages"`
}

func taskResponse(t models.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		OwnerID:     t.OwnerID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (h *TaskHandler) create(w http.ResponseWriter, r *http.Request) {
	type CreateTaskRequest struct {
		Title       string            `json:"title" validate:"required"`
		Description string            `json:"description"`
		Status      models.TaskStatus `json:"status" validate:"omitempty,oneof=pending in-progress completed"`
	}

	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data, err := render.BindAndValidate[CreateTaskRequest](w, r)
	if err != nil {
		return
	}

	created, err := h.taskService.CreateTask(r.Context(), user, data.Title, data.Description, data.Status)
	if err != nil {
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render.JSONWithStatus(w, taskResponse(created), http.StatusCreated)
}

func (h *TaskHandler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	opts := task.ListOptions{
		Status: models.TaskStatus(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("search"),
	}
	// Unparseable numbers fall back to service defaults
	opts.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	opts.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))

	if opts.Status != "" && !opts.Status.Valid() {
		render.ServiceError(w, "Unknown task status", http.StatusBadRequest)
		return
	}

	page, err := h.taskService.ListTasks(r.Context(), user, opts)
	if err != nil {
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	res := TaskListResponse{
		Tasks: make([]TaskResponse, 0, len(page.Tasks)),
		Total: page.Total,
		Page:  page.Page,
		Pages: page.Pages,
	}
	for _, t := range page.Tasks {
		res.Tasks = append(res.Tasks, taskResponse(t))
	}

	render.JSON(w, res)
}

func (h *TaskHandler) get(w http.ResponseWriter, r *http.Request) {
	user, taskID, ok := h.userAndTaskID(w, r)
	if !ok {
		return
	}

	found, err := h.taskService.GetTask(r.Context(), user, taskID)
	if err != nil {
		h.renderTaskError(w, err)
		return
	}

	render.JSON(w, taskResponse(found))
}

func (h *TaskHandler) update(w http.ResponseWriter, r *http.Request) {
	type UpdateTaskRequest struct {
		Title       *string            `json:"title" validate:"omitempty,min=1"`
		Description *string            `json:"description"`
		Status      *models.TaskStatus `json:"status" validate:"omitempty,oneof=pending in-progress completed"`
	}

	user, taskID, ok := h.userAndTaskID(w, r)
	if !ok {
		return
	}

	data, err := render.BindAndValidate[UpdateTaskRequest](w, r)
	if err != nil {
		return
	}

	updated, err := h.taskService.UpdateTask(r.Context(), user, taskID, repository.UpdateTaskParams{
		Title:       data.Title,
		Description: data.Description,
		Status:      data.Status,
	})
	if err != nil {
		h.renderTaskError(w, err)
		return
	}

	render.JSON(w, taskResponse(updated))
}

func (h *TaskHandler) delete(w http.ResponseWriter, r *http.Request) {
	type DeleteSuccessResponse struct {
		Message string `json:"message"`
	}

	user, taskID, ok := h.userAndTaskID(w, r)
	if !ok {
		return
	}

	_, err := h.taskService.DeleteTask(r.Context(), user, taskID)
	if err != nil {
		h.renderTaskError(w, err)
		return
	}

	render.JSON(w, DeleteSuccessResponse{Message: "Task removed"})
}

func (h *TaskHandler) userAndTaskID(w http.ResponseWriter, r *http.Request) (models.User, uuid.UUID, bool) {
	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return models.User{}, uuid.Nil, false
	}

	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, "Task not found", http.StatusNotFound)
		return models.User{}, uuid.Nil, false
	}

	return user, taskID, true
}

func (h *TaskHandler) renderTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrTaskNotFound):
		render.ServiceError(w, "Task not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrForbidden):
		render.ServiceError(w, "Task belongs to another user", http.StatusForbidden)
	default:
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
