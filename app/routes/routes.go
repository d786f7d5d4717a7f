package routes

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"taskd/app/controllers"
)

// Controllers groups the handlers mounted by RegisterRoutes.
type Controllers struct {
	Tasks  *controllers.TaskController
	Auth   *controllers.AuthController
	Health *controllers.HealthController
}

// RegisterRoutes sets up all routes for the application.
func RegisterRoutes(router *mux.Router, c Controllers, authn controllers.Authenticator) {
	router.HandleFunc("/healthz", c.Health.Health).Methods(http.MethodGet)
	router.HandleFunc("/setup", c.Health.Setup).Methods(http.MethodGet)

	router.HandleFunc("/auth/signup", c.Auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/auth/signin", c.Auth.SignIn).Methods(http.MethodPost)
	router.HandleFunc("/auth/recovery", c.Auth.RequestRecovery).Methods(http.MethodPost)
	router.HandleFunc("/auth/recovery", c.Auth.CompleteRecovery).Methods(http.MethodPut)

	private := router.NewRoute().Subrouter()
	private.Use(RequireAuth(authn))
	private.HandleFunc("/auth/signout", c.Auth.SignOut).Methods(http.MethodPost)
	private.HandleFunc("/auth/me", c.Auth.Me).Methods(http.MethodGet)

	private.HandleFunc("/tasks", c.Tasks.GetTasks).Methods(http.MethodGet)
	private.HandleFunc("/tasks", c.Tasks.CreateTask).Methods(http.MethodPost)
	private.HandleFunc("/tasks/refresh", c.Tasks.RefreshTasks).Methods(http.MethodPost)
	private.HandleFunc("/tasks/{taskID}", c.Tasks.GetTaskByID).Methods(http.MethodGet)
	private.HandleFunc("/tasks/{taskID}", c.Tasks.UpdateTask).Methods(http.MethodPatch)
	private.HandleFunc("/tasks/{taskID}", c.Tasks.DeleteTask).Methods(http.MethodDelete)
	private.HandleFunc("/tasks/{taskID}/status", c.Tasks.ToggleStatus).Methods(http.MethodPut)
}

// HandlerOptions configures the middleware wrapped around the router.
type HandlerOptions struct {
	AllowedOrigins []string
	// AccessLog receives one Combined Log Format line per request. Nil
	// disables access logging.
	AccessLog io.Writer
	Logger    *slog.Logger
}

// NewHandler wraps the router with CORS, panic recovery and access logging.
func NewHandler(router http.Handler, opts HandlerOptions) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
		},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	h := c.Handler(router)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(opts.Logger.Handler(), slog.LevelError)),
		handlers.PrintRecoveryStack(false),
	)(h)
	if opts.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(opts.AccessLog, h)
	}
	return h
}
