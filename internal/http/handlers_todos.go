package httpx

import (
	"net/http"

	"github.com/splax/todos/internal/service/todo"
	"github.com/splax/todos/internal/validation"
)

func (r *Router) handleListTodos(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.identity(w, req)
	if !ok {
		return
	}
	todos, err := r.todos.GetAllTodos(req.Context(), info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

func (r *Router) handleAddTodo(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.identity(w, req)
	if !ok {
		return
	}
	var payload validation.CreateTodo
	if err := validation.DecodeJSON(req.Body, &payload); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	created, err := r.todos.AddTodo(req.Context(), todo.Input{Name: &payload.Name, IsDone: payload.IsDone}, info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (r *Router) handleUpdateTodo(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.identity(w, req)
	if !ok {
		return
	}
	id, err := validation.ID(req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	var payload validation.UpdateTodo
	if err := validation.DecodeJSON(req.Body, &payload); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	updated, err := r.todos.UpdateTodo(req.Context(), id, todo.Input{Name: payload.Name, IsDone: payload.IsDone}, info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (r *Router) handleDeleteTodo(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.identity(w, req)
	if !ok {
		return
	}
	id, err := validation.ID(req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	msg, err := r.todos.DeleteTodo(req.Context(), id, info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}
