package httpapi

import (
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) createNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, _ := UserFromContext(r.Context())
	view, err := s.services.Notes.Create(r.Context(), user.ID, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newNoteResponse(view))
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, common.ErrorInvalidArgument
	}
	return n, nil
}

func (s *HTTPServer) listNotes(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	user, _ := UserFromContext(r.Context())
	views, err := s.services.Notes.List(r.Context(), user.ID, services.ListOptions{
		Page:  page,
		Limit: limit,
		Tag:   r.URL.Query().Get("tag"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]noteResponse, 0, len(views))
	for _, v := range views {
		out = append(out, newNoteResponse(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) getNote(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	view, err := s.services.Notes.Get(r.Context(), user.ID, chi.URLParam(r, "noteID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newNoteResponse(view))
}

func (s *HTTPServer) updateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, _ := UserFromContext(r.Context())
	view, err := s.services.Notes.Update(r.Context(), user.ID, chi.URLParam(r, "noteID"), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newNoteResponse(view))
}

func (s *HTTPServer) deleteNote(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	if err := s.services.Notes.Delete(r.Context(), user.ID, chi.URLParam(r, "noteID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) createShareLink(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	link, err := s.services.Shares.CreateLink(r.Context(), user.ID, chi.URLParam(r, "noteID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, shareLinkResponse{URL: link.URL, Token: link.Token})
}

func (s *HTTPServer) deleteShareLink(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	if err := s.services.Shares.DeleteLink(r.Context(), user.ID, chi.URLParam(r, "noteID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readShared needs no session: the token is the credential.
func (s *HTTPServer) readShared(w http.ResponseWriter, r *http.Request) {
	view, err := s.services.Shares.ReadShared(r.Context(), chi.URLParam(r, "noteID"), chi.URLParam(r, "token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newNoteResponse(view))
}
