package integration

import (
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/taskm/internal/handlers"
	"github.com/nkiryanov/taskm/internal/logger"
	"github.com/nkiryanov/taskm/internal/repository"
	"github.com/nkiryanov/taskm/internal/repository/postgres"
	"github.com/nkiryanov/taskm/internal/service/auth"
	"github.com/nkiryanov/taskm/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/taskm/internal/service/task"
	"github.com/nkiryanov/taskm/internal/testutil"
)

type Services struct {
	AuthService  *auth.AuthService
	TaskService  *task.TaskService
	TokenManager *tokenmanager.TokenManager
	UserRepo     repository.UserRepo
}

// RunTx runs the complete router on one db transaction and rolls it back at
// test end, so the database stays clean between tests
func RunTx(dbpool *pgxpool.Pool, t *testing.T, fn func(srvURL string, s Services)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		userRepo := &postgres.UserRepo{DB: tx}
		taskRepo := &postgres.TaskRepo{DB: tx}

		tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"})
		require.NoError(t, err, "token manager should be created without errors")

		as, err := auth.NewService(auth.Config{}, tokenManager, userRepo)
		require.NoError(t, err, "auth service starting error", err)

		ts := task.NewService(taskRepo)

		router := handlers.NewRouter(as, ts, logger.NewNoOpLogger())

		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(srv.URL, Services{
			AuthService:  as,
			TaskService:  ts,
			TokenManager: tokenManager,
			UserRepo:     userRepo,
		})
	})
}
