package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tasklist-io/tasklist/internal/todo"
)

func (s *Server) listTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := s.repo.List(r.Context())
	if err != nil {
		s.logger.Error("unable to list todos", "error", err)
		internalError(w, r)
		return
	}
	render.JSON(w, r, todos)
}

func (s *Server) createTodo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "text is required")
		return
	}
	created, err := s.repo.Create(r.Context(), req.Text)
	if err != nil {
		s.todoError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

func (s *Server) updateTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := todoID(w, r)
	if !ok {
		return
	}
	var patch todo.Patch
	if err := render.DecodeJSON(r.Body, &patch); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}
	updated, err := s.repo.Update(r.Context(), id, patch)
	if err != nil {
		s.todoError(w, r, err)
		return
	}
	render.JSON(w, r, updated)
}

func (s *Server) deleteTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := todoID(w, r)
	if !ok {
		return
	}
	if err := s.repo.Delete(r.Context(), id); err != nil {
		s.todoError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]int64{"id": id})
}

// todoID parses the id route parameter.  A non-numeric id can't name any
// todo, so it gets the same 404 an unknown one does.
func todoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "not found"})
		return 0, false
	}
	return id, true
}

// todoError maps repository errors to the API's fixed response bodies.
func (s *Server) todoError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, todo.ErrEmptyText):
		badRequest(w, r, "text is required")
	case errors.Is(err, todo.ErrEmptyPatch):
		badRequest(w, r, "update requires at least one field")
	case errors.Is(err, todo.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "not found"})
	default:
		s.logger.Error("todo operation failed", "error", err)
		internalError(w, r)
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, map[string]string{"error": msg})
}
