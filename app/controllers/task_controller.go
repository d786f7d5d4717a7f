package controllers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"taskd/app/models"
	"taskd/app/query"
	"taskd/app/services"
)

// TaskListResponse is the derived task view of the caller's collection.
type TaskListResponse struct {
	Tasks   []models.Task    `json:"tasks"`
	Stats   models.TaskStats `json:"stats"`
	Filters query.Filters    `json:"filters"`
	Loading bool             `json:"loading"`
	Error   string           `json:"error,omitempty"`
}

// TaskController handles HTTP requests for tasks.
type TaskController struct {
	Sessions *services.Sessions
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewTaskController creates a new TaskController.
func NewTaskController(sessions *services.Sessions, logger *slog.Logger) *TaskController {
	return &TaskController{Sessions: sessions, Logger: logger, Now: time.Now}
}

func (c *TaskController) collection(w http.ResponseWriter, r *http.Request) (*services.TaskCollection, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return c.Sessions.Get(r.Context(), p.User.ID), true
}

// GetTasks handles GET /tasks.
func (c *TaskController) GetTasks(w http.ResponseWriter, r *http.Request) {
	filters, err := query.FromValues(r.URL.Query())
	if err != nil {
		respondErr(w, r, c.Logger, err)
		return
	}
	col, ok := c.collection(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.view(col, filters))
}

// RefreshTasks handles POST /tasks/refresh.
func (c *TaskController) RefreshTasks(w http.ResponseWriter, r *http.Request) {
	filters, err := query.FromValues(r.URL.Query())
	if err != nil {
		respondErr(w, r, c.Logger, err)
		return
	}
	col, ok := c.collection(w, r)
	if !ok {
		return
	}
	col.Refresh(r.Context())
	writeJSON(w, http.StatusOK, c.view(col, filters))
}

func (c *TaskController) view(col *services.TaskCollection, filters query.Filters) TaskListResponse {
	snap := col.Snapshot()
	return TaskListResponse{
		Tasks:   query.Apply(snap.Tasks, filters),
		Stats:   query.Stats(snap.Tasks, c.Now()),
		Filters: filters,
		Loading: snap.Loading,
		Error:   snap.Error,
	}
}

// CreateTask handles POST /tasks.
func (c *TaskController) CreateTask(w http.ResponseWriter, r *http.Request) {
	var form models.TaskForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	// The form is validated before the collection sees it.
	in, err := form.Input()
	if err != nil {
		respondErr(w, r, c.Logger, err)
		return
	}

	col, ok := c.collection(w, r)
	if !ok {
		return
	}
	task, err := col.Create(r.Context(), in)
	if err != nil {
		respondErr(w, r, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// GetTaskByID handles GET /tasks/{taskID}.
func (c *TaskController) GetTaskByID(w http.ResponseWriter, r *http.Request) {
	col, ok := c.collection(w, r)
	if !ok {
		return
	}
	task, found := col.Get(mux.Vars(r)["taskID"])
	if !found {
		respondErr(w, r, c.Logger, services.ErrTaskNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// UpdateTask handles PATCH /tasks/{taskID}. Omitted fields are left alone.
func (c *TaskController) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var form models.TaskForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	u, err := form.Update()
	if err != nil {
		respondErr(w, r, c.Logger, err)
		return
	}

	col, ok := c.collection(w, r)
	if !ok {
		return
	}
	task, err := col.Update(r.Context(), mux.Vars(r)["taskID"], u)
	if err != nil {
		respondErr(w, r, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ToggleStatus handles PUT /tasks/{taskID}/status.
func (c *TaskController) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	col, ok := c.collection(w, r)
	if !ok {
		return
	}
	taskID := mux.Vars(r)["taskID"]
	current, found := col.Get(taskID)
	if !found {
		respondErr(w, r, c.Logger, services.ErrTaskNotFound)
		return
	}

	next := models.StatusCompleted
	if current.Status == models.StatusCompleted {
		next = models.StatusPending
	}
	task, err := col.Update(r.Context(), taskID, models.TaskUpdate{Status: &next})
	if err != nil {
		respondErr(w, r, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /tasks/{taskID}.
func (c *TaskController) DeleteTask(w http.ResponseWriter, r *http.Request) {
	col, ok := c.collection(w, r)
	if !ok {
		return
	}
	if err := col.Delete(r.Context(), mux.Vars(r)["taskID"]); err != nil {
		respondErr(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
