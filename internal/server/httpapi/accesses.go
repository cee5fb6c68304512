package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) grantAccess(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, _ := UserFromContext(r.Context())
	if err := s.services.Accesses.Grant(r.Context(), user.ID, req.NoteID, req.UserID, req.Permission); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) setPermission(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, _ := UserFromContext(r.Context())
	if err := s.services.Accesses.SetPermission(r.Context(), user.ID, req.NoteID, req.UserID, req.Permission); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) revokeAccess(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, _ := UserFromContext(r.Context())
	if err := s.services.Accesses.Revoke(r.Context(), user.ID, req.NoteID, req.UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) adminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Admin.DeleteUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) adminDeleteAllUsers(w http.ResponseWriter, r *http.Request) {
	n, err := s.services.Admin.DeleteAllUsers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{Deleted: n})
}

func (s *HTTPServer) adminDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Admin.DeleteNote(r.Context(), chi.URLParam(r, "noteID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
