package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/pathwise/tasksync/comms"
	"github.com/pathwise/tasksync/reconcile"
	"github.com/pathwise/tasksync/roadmap"
	"github.com/pathwise/tasksync/task"
)

// Handlers bundles all REST API handler dependencies. Every handler acts on
// the task set of the user found in the request context.
type Handlers struct {
	Store      *task.Store
	Importer   *roadmap.Importer
	Reconciler *reconcile.Reconciler
	Bus        *comms.Bus
	Logger     *slog.Logger
	Version    string
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("DELETE /api/tasks", h.clearTasks)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", h.updateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.deleteTask)

	mux.HandleFunc("POST /api/roadmaps/import", h.importRoadmap)
	mux.HandleFunc("GET /api/roadmaps/{id}/tasks", h.roadmapTasks)
	mux.HandleFunc("POST /api/milestones/status", h.milestoneStatus)

	mux.HandleFunc("GET /api/events", h.listEvents)
	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Task handlers ---

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.Store.GetTasks(UserFromContext(r.Context()))

	if s := r.URL.Query().Get("status"); s != "" {
		st, err := task.ParseStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tasks = filter(tasks, func(t task.Task) bool { return t.Status == st })
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var t task.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(t.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := enumsOf(t).Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, ok := h.Store.AddTask(r.Context(), UserFromContext(r.Context()), t)
	if !ok {
		writeError(w, http.StatusInternalServerError, "task not saved")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// enumsOf returns the enum fields t sets, as a patch for validation.
func enumsOf(t task.Task) task.Patch {
	var p task.Patch
	if t.Status != "" {
		p.Status = &t.Status
	}
	if t.Priority != "" {
		p.Priority = &t.Priority
	}
	if t.Type != "" {
		p.Type = &t.Type
	}
	return p
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, t := range h.Store.GetTasks(UserFromContext(r.Context())) {
		if t.ID == id {
			writeJSON(w, http.StatusOK, t)
			return
		}
	}
	writeError(w, http.StatusNotFound, "task not found")
}

func (h *Handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	var p task.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.Empty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	updated, ok := h.Store.UpdateTask(r.Context(), UserFromContext(r.Context()), r.PathValue("id"), p)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	if !h.Store.DeleteTask(r.Context(), UserFromContext(r.Context()), r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) clearTasks(w http.ResponseWriter, r *http.Request) {
	h.Store.ClearAll(r.Context(), UserFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// --- Roadmap handlers ---

// importConflict is returned with 409 when the roadmap was imported before
// and the request did not confirm a re-import.
type importConflict struct {
	Error    string `json:"error"`
	Existing int    `json:"existing"`
}

func (h *Handlers) importRoadmap(w http.ResponseWriter, r *http.Request) {
	rm, err := roadmap.Load(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	res, err := h.Importer.Import(r.Context(), UserFromContext(r.Context()), rm, func(int) bool { return confirmed })
	switch {
	case errors.Is(err, roadmap.ErrNoID):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.Declined {
		writeJSON(w, http.StatusConflict, importConflict{
			Error:    "roadmap already imported; re-import with confirm=true to create duplicates",
			Existing: res.Existing,
		})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handlers) roadmapTasks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tasks := filter(h.Store.GetTasks(UserFromContext(r.Context())), func(t task.Task) bool {
		return t.RoadmapID == id
	})
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) milestoneStatus(w http.ResponseWriter, r *http.Request) {
	var u reconcile.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !u.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid milestone status "+strconv.Quote(string(u.Status)))
		return
	}

	updated, ok := h.Reconciler.UpdateTaskStatus(r.Context(), UserFromContext(r.Context()), u)
	if !ok {
		writeError(w, http.StatusNotFound, "no task matches milestone")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// --- Events / status / version ---

func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}
	events := h.Bus.History(UserFromContext(r.Context()), limit)
	if events == nil {
		events = []comms.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
	})
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}

func filter(tasks []task.Task, keep func(task.Task) bool) []task.Task {
	out := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
