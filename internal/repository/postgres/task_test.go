package postgres

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/taskm/internal/apperrors"
	"github.com/nkiryanov/taskm/internal/models"
	"github.com/nkiryanov/taskm/internal/repository"
	"github.com/nkiryanov/taskm/internal/testutil"
)

func createTestUser(t *testing.T, tx pgx.Tx, email string) models.User {
	t.Helper()

	repo := &UserRepo{DB: tx}
	user, err := repo.CreateUser(t.Context(), repository.CreateUserParams{
		Name:           "Test User",
		Email:          email,
		HashedPassword: "hashed",
		Role:           models.RoleUser,
	})
	require.NoError(t, err, "test user should be created")
	return user
}

func Test_TaskRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("CreateTask and GetTask", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := &TaskRepo{DB: tx}
			owner := createTestUser(t, tx, "owner@x.com")

			created, err := repo.CreateTask(t.Context(), repository.CreateTaskParams{
				OwnerID:     owner.ID,
				Title:       "Write report",
				Description: "quarterly report",
				Status:      models.TaskPending,
			})
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, created.ID)
			assert.Equal(t, owner.ID, created.OwnerID)

			got, err := repo.GetTask(t.Context(), created.ID)
			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
			assert.Equal(t, "Write report", got.Title)
			assert.Equal(t, models.TaskPending, got.Status)
		})
	})

	t.Run("GetTask not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := &TaskRepo{DB: tx}

			_, err := repo.GetTask(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrTaskNotFound)
		})
	})

	t.Run("ListTasks", func(t *testing.T) {
		seed := func(t *testing.T, tx pgx.Tx) (owner models.User, other models.User) {
			repo := &TaskRepo{DB: tx}
			owner = createTestUser(t, tx, "owner@x.com")
			other = createTestUser(t, tx, "other@x.com")

			for i := range 5 {
				status := models.TaskPending
				if i%2 == 1 {
					status = models.TaskCompleted
				}
				_, err := repo.CreateTask(t.Context(), repository.CreateTaskParams{
					OwnerID: owner.ID,
					Title:   fmt.Sprintf("own task %d", i),
					Status:  status,
				})
				require.NoError(t, err)
			}
			_, err := repo.CreateTask(t.Context(), repository.CreateTaskParams{
				OwnerID: other.ID,
				Title:   "foreign task",
				Status:  models.TaskPending,
			})
			require.NoError(t, err)
			return owner, other
		}

		t.Run("scoped by owner", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				repo := &TaskRepo{DB: tx}
				owner, _ := seed(t, tx)

				tasks, total, err := repo.ListTasks(t.Context(), repository.TaskFilter{
					OwnerID: owner.ID,
					Limit:   10,
				})

				require.NoError(t, err)
				assert.Equal(t, int64(5), total)
				assert.Len(t, tasks, 5)
				for _, task := range tasks {
					assert.Equal(t, owner.ID, task.OwnerID)
				}
			})
		})

		t.Run("all owners when unscoped", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				repo := &TaskRepo{DB: tx}
				seed(t, tx)

				_, total, err := repo.ListTasks(t.Context(), repository.TaskFilter{Limit: 10})

				require.NoError(t, err)
				assert.Equal(t, int64(6), total)
			})
		})

		t.Run("filter by status", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				repo := &TaskRepo{DB: tx}
				owner, _ := seed(t, tx)

				tasks, total, err := repo.ListTasks(t.Context(), repository.TaskFilter{
					OwnerID: owner.ID,
					Status:  models.TaskCompleted,
					Limit:   10,
				})

				require.NoError(t, err)
				assert.Equal(t, int64(2), total)
				for _, task := range tasks {
					assert.Equal(t, models.TaskCompleted, task.Status)
				}
			})
		})

		t.Run("search by title", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				repo := &TaskRepo{DB: tx}
				seed(t, tx)

				_, total, err := repo.ListTasks(t.Context(), repository.TaskFilter{
					Search: "FOREIGN",
					Limit:  10,
				})

				require.NoError(t, err)
				assert.Equal(t, int64(1), total, "search should be case insensitive")
			})
		})

		t.Run("pagination", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				repo := &TaskRepo{DB: tx}
				owner, _ := seed(t, tx)

				page1, total, err := repo.ListTasks(t.Context(), repository.TaskFilter{
					OwnerID: owner.ID,
					Limit:   2,
				})
				require.NoError(t, err)
				assert.Equal(t, int64(5), total, "total should count all matches, not the page")
				assert.Len(t, page1, 2)

				page3, _, err := repo.ListTasks(t.Context(), repository.TaskFilter{
					OwnerID: owner.ID,
					Limit:   2,
					Offset:  4,
				})
				require.NoError(t, err)
				assert.Len(t, page3, 1, "last page should hold the remainder")
			})
		})
	})

	t.Run("UpdateTask", func(t *testing.T) {
		t.Run("partial update", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				repo := &TaskRepo{DB: tx}
				owner := createTestUser(t, tx, "owner@x.com")

				created, err := repo.CreateTask(t.Context(), repository.CreateTaskParams{
					OwnerID:     owner.ID,
					Title:       "initial",
					Description: "keep me",
					Status:      models.TaskPending,
				})
				require.NoError(t, err)

				status := models.TaskInProgress
				updated, err := repo.UpdateTask(t.Context(), created.ID, repository.UpdateTaskParams{
					Status: &status,
				})

				require.NoError(t, err)
				assert.Equal(t, models.TaskInProgress, updated.Status)
				assert.Equal(t, "initial", updated.Title, "unset fields should stay untouched")
				assert.Equal(t, "keep me", updated.Description)
			})
		})

		t.Run("not found", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				repo := &TaskRepo{DB: tx}

				title := "anything"
				_, err := repo.UpdateTask(t.Context(), uuid.New(), repository.UpdateTaskParams{Title: &title})

				require.ErrorIs(t, err, apperrors.ErrTaskNotFound)
			})
		})
	})

	t.Run("DeleteTask", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := &TaskRepo{DB: tx}
			owner := createTestUser(t, tx, "owner@x.com")

			created, err := repo.CreateTask(t.Context(), repository.CreateTaskParams{
				OwnerID: owner.ID,
				Title:   "to delete",
				Status:  models.TaskPending,
			})
			require.NoError(t, err)

			require.NoError(t, repo.DeleteTask(t.Context(), created.ID))

			_, err = repo.GetTask(t.Context(), created.ID)
			require.ErrorIs(t, err, apperrors.ErrTaskNotFound)

			err = repo.DeleteTask(t.Context(), created.ID)
			require.ErrorIs(t, err, apperrors.ErrTaskNotFound, "second delete should report absence")
		})
	})
}
