package httpx

import (
	"net/http"

	"github.com/splax/todos/internal/service/user"
	"github.com/splax/todos/internal/validation"
)

func (r *Router) handleUsers(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		query, err := validation.ParseUserQuery(req.URL.Query())
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		users, err := r.users.GetUsers(req.Context(), user.Filter{Query: query.Q, Page: query.Page, Size: query.Size})
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	case http.MethodPost:
		var payload validation.CreateUser
		if err := validation.DecodeJSON(req.Body, &payload); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		created, err := r.users.CreateUser(req.Context(), payload.Name, payload.Password, payload.Email)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleUser(w http.ResponseWriter, req *http.Request) {
	id, err := validation.ID(req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	switch req.Method {
	case http.MethodGet:
		found, err := r.users.FindUserByID(req.Context(), id)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, found)
	case http.MethodPut:
		var payload validation.UpdateUser
		if err := validation.DecodeJSON(req.Body, &payload); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		updated, err := r.users.UpdateUser(req.Context(), deref(payload.Email), deref(payload.Password), id)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		msg, err := r.users.DeleteUser(req.Context(), id)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeMessage(w, http.StatusOK, msg)
	default:
		r.methodNotAllowed(w)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
