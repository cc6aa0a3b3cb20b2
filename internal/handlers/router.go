package handlers

import (
	"net/http"

	"github.com/nkiryanov/taskm/internal/handlers/middleware"
	"github.com/nkiryanov/taskm/internal/logger"
	"github.com/nkiryanov/taskm/internal/models"
	"github.com/nkiryanov/taskm/internal/service/auth"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService *auth.AuthService,
	taskService taskService,
	l logger.Logger,
) http.Handler {
	root := http.NewServeMux()

	root.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("API is running..."))
	})

	root.Handle("/api/v1/auth/", http.StripPrefix("/api/v1/auth", NewAuth(authService).Handler()))

	// Tasks need an authenticated user with a known role
	tasks := http.StripPrefix("/api/v1", chain(NewTask(taskService).Handler(),
		middleware.AuthMiddleware(authService, l),
		middleware.AuthorizeMiddleware(models.RoleUser, models.RoleAdmin),
	))
	root.Handle("/api/v1/tasks", tasks)
	root.Handle("/api/v1/tasks/", tasks)

	return chain(root,
		middleware.LoggerMiddleware(l),
	)
}
