package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.services.Users.SignUp(r.Context(), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "Registered", "username", user.UserName)
	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

func (s *HTTPServer) createAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.services.Users.CreateAdmin(r.Context(), req.AdminKey, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

func (s *HTTPServer) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, tokens, err := s.services.Sessions.Login(r.Context(), req.UserName, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.setCSRFCookie(w); err != nil {
		s.fail(w, r, err)
		return
	}
	s.setTokenCookies(w, tokens.AccessToken, tokens.RefreshToken)
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (s *HTTPServer) logout(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	if err := s.services.Sessions.Logout(r.Context(), user.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.clearCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, _ := UserFromContext(r.Context())
	if err := s.services.Users.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) requestRecovery(w http.ResponseWriter, r *http.Request) {
	var req recoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.services.Users.RequestRecovery(r.Context(), req.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *HTTPServer) confirmRecovery(w http.ResponseWriter, r *http.Request) {
	var req confirmRecoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	err := s.services.Users.ConfirmRecovery(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "code"), req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) statistics(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	st, err := s.services.Users.Statistics(r.Context(), user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *HTTPServer) deleteAccount(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	if err := s.services.Users.DeleteAccount(r.Context(), user.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.clearCookies(w)
	w.WriteHeader(http.StatusNoContent)
}
