package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskd/app/auth"
	"taskd/app/controllers"
	"taskd/app/models"
	"taskd/app/services"
	"taskd/app/store"
)

const password = "Secr3tPass"

// flakyStore counts calls and can be told to fail.
type flakyStore struct {
	*store.MemoryStore
	mu      sync.Mutex
	fail    error
	creates int
	updates int
	deletes int
}

func (s *flakyStore) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail
}

func (s *flakyStore) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *flakyStore) Create(ctx context.Context, collection string, fields store.Fields) (*store.Document, error) {
	s.mu.Lock()
	s.creates++
	s.mu.Unlock()
	if err := s.err(); err != nil {
		return nil, err
	}
	return s.MemoryStore.Create(ctx, collection, fields)
}

func (s *flakyStore) Update(ctx context.Context, collection, id string, fields store.Fields) (*store.Document, error) {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
	if err := s.err(); err != nil {
		return nil, err
	}
	return s.MemoryStore.Update(ctx, collection, id, fields)
}

func (s *flakyStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	if err := s.err(); err != nil {
		return err
	}
	return s.MemoryStore.Delete(ctx, collection, id)
}

type testServer struct {
	handler http.Handler
	store   *flakyStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	users := auth.NewUserRepository(db)
	require.NoError(t, users.Migrate(context.Background()))
	authService := auth.NewService(
		users,
		auth.NewPasswordHasher(bcrypt.MinCost),
		auth.NewTokenManager(auth.TokenConfig{Secret: "test", TTL: time.Hour}),
		auth.NewMemoryTokenStore(),
		auth.NewLogMailer(log),
		auth.ServiceConfig{},
		log,
	)

	fs := &flakyStore{MemoryStore: store.NewMemoryStore()}
	repo := services.NewTaskRepository(fs, "", log)
	sessions := services.NewSessions(repo, nil, log)

	router := mux.NewRouter()
	RegisterRoutes(router, Controllers{
		Tasks: controllers.NewTaskController(sessions, log),
		Auth:  controllers.NewAuthController(authService, sessions, log),
		Health: &controllers.HealthController{
			Checks:     map[string]controllers.HealthCheck{"users": users.Ping},
			Prober:     repo,
			Collection: repo.Collection(),
			Logger:     log,
		},
	}, authService)

	return &testServer{
		handler: NewHandler(router, HandlerOptions{AllowedOrigins: []string{"*"}, Logger: log}),
		store:   fs,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) signUp(t *testing.T, email string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": email, "password": password, "name": "Tester",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	return session.Token
}

func (s *testServer) createTask(t *testing.T, token string, body map[string]any) models.Task {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/tasks", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var task models.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	return task
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func titles(tasks []models.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Title)
	}
	return out
}

func TestTasksRequireToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/tasks", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, decode[controllers.ErrorResponse](t, rec).Error)
}

func TestCreateAndListTasks(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp(t, "ada@example.com")

	yesterday := time.Now().Add(-24 * time.Hour).UTC().Format(time.DateOnly)
	s.createTask(t, token, map[string]any{"title": "Buy milk", "priority": "low", "tags": "shop, food"})
	created := s.createTask(t, token, map[string]any{"title": "File taxes", "priority": "high", "dueDate": yesterday})
	assert.Equal(t, models.StatusPending, created.Status)
	require.NotNil(t, created.DueDate)

	rec := s.do(t, http.MethodGet, "/tasks?sortBy=priority&sortOrder=desc", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[controllers.TaskListResponse](t, rec)
	assert.Equal(t, []string{"File taxes", "Buy milk"}, titles(view.Tasks))
	assert.Equal(t, models.TaskStats{Total: 2, Pending: 2, Overdue: 1}, view.Stats)
	assert.False(t, view.Loading)
	assert.Empty(t, view.Error)

	rec = s.do(t, http.MethodGet, "/tasks?search=FOOD", token, nil)
	view = decode[controllers.TaskListResponse](t, rec)
	assert.Equal(t, []string{"Buy milk"}, titles(view.Tasks))
	assert.Equal(t, 2, view.Stats.Total)

	rec = s.do(t, http.MethodGet, "/tasks?sortBy=owner", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRejectsBlankTitleBeforeStore(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/tasks", token, map[string]any{"title": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "title is required", decode[controllers.ErrorResponse](t, rec).Error)
	assert.Zero(t, s.store.creates)

	rec = s.do(t, http.MethodPost, "/tasks", token, map[string]any{"title": "x", "priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/tasks", token, map[string]any{"title": "x", "dueDate": "next week"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, s.store.creates)
}

func TestPatchIsPartial(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp(t, "ada@example.com")
	task := s.createTask(t, token, map[string]any{
		"title": "Buy milk", "description": "2 litres", "dueDate": "2030-01-02", "tags": []string{"shop"},
	})

	rec := s.do(t, http.MethodPatch, "/tasks/"+task.ID, token, map[string]any{"priority": "high"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.Task](t, rec)
	assert.Equal(t, models.PriorityHigh, updated.Priority)
	assert.Equal(t, "Buy milk", updated.Title)
	assert.Equal(t, "2 litres", updated.Description)
	assert.Equal(t, []string{"shop"}, updated.Tags)
	require.NotNil(t, updated.DueDate)

	rec = s.do(t, http.MethodPatch, "/tasks/"+task.ID, token, map[string]any{"dueDate": ""})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[models.Task](t, rec).DueDate)

	rec = s.do(t, http.MethodPatch, "/tasks/"+task.ID, token, map[string]any{"title": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToggleStatusAndDelete(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp(t, "ada@example.com")
	task := s.createTask(t, token, map[string]any{"title": "Pay rent"})

	rec := s.do(t, http.MethodPut, "/tasks/"+task.ID+"/status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusCompleted, decode[models.Task](t, rec).Status)

	rec = s.do(t, http.MethodPut, "/tasks/"+task.ID+"/status", token, nil)
	assert.Equal(t, models.StatusPending, decode[models.Task](t, rec).Status)

	rec = s.do(t, http.MethodDelete, "/tasks/"+task.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/tasks/"+task.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOtherUsersTasksAreInvisible(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp(t, "alice@example.com")
	bob := s.signUp(t, "bob@example.com")
	task := s.createTask(t, alice, map[string]any{"title": "Alice's secret"})

	view := decode[controllers.TaskListResponse](t, s.do(t, http.MethodGet, "/tasks", bob, nil))
	assert.Empty(t, view.Tasks)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/tasks/"+task.ID, bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPatch, "/tasks/"+task.ID, bob, map[string]any{"title": "mine"}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/tasks/"+task.ID, bob, nil).Code)
	assert.Zero(t, s.store.updates)
	assert.Zero(t, s.store.deletes)

	view = decode[controllers.TaskListResponse](t, s.do(t, http.MethodGet, "/tasks", alice, nil))
	assert.Equal(t, []string{"Alice's secret"}, titles(view.Tasks))
}

func TestStoreFailureKeepsTasks(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp(t, "ada@example.com")
	task := s.createTask(t, token, map[string]any{"title": "Buy milk"})

	s.store.setFail(errors.New("network unreachable"))
	rec := s.do(t, http.MethodPatch, "/tasks/"+task.ID, token, map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "network unreachable", decode[controllers.ErrorResponse](t, rec).Error)

	view := decode[controllers.TaskListResponse](t, s.do(t, http.MethodGet, "/tasks", token, nil))
	require.Len(t, view.Tasks, 1)
	assert.Equal(t, models.StatusPending, view.Tasks[0].Status)
	assert.Equal(t, "network unreachable", view.Error)

	s.store.setFail(nil)
	view = decode[controllers.TaskListResponse](t, s.do(t, http.MethodPost, "/tasks/refresh", token, nil))
	assert.Empty(t, view.Error)
	assert.Len(t, view.Tasks, 1)
}

func TestSignOutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp(t, "ada@example.com")

	rec := s.do(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.com", decode[models.User](t, rec).Email)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/auth/signout", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/tasks", token, nil).Code)

	rec = s.do(t, http.MethodPost, "/auth/signin", "", map[string]string{"email": "ada@example.com", "password": password})
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := decode[auth.Session](t, rec).Token
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/tasks", fresh, nil).Code)
}

func TestAuthErrors(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "ada@example.com", "password": password, "name": "Ada",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "bob@example.com", "password": "short", "name": "Bob",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/signin", "", map[string]string{"email": "ada@example.com", "password": "Wr0ngPass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/recovery", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, controllers.RecoverySentMessage, decode[controllers.MessageResponse](t, rec).Message)

	rec = s.do(t, http.MethodPut, "/auth/recovery", "", map[string]string{
		"userId": "someone", "secret": "guess", "password": "N3wPassword",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndSetup(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[controllers.HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.Checks["users"])

	rec = s.do(t, http.MethodGet, "/setup", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[services.SetupReport](t, rec)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Issues)
}
