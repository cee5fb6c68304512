package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/server/models"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const userKey ctxKey = "user"

// UserFromContext returns the user resolved by the auth middleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userKey).(*models.User)
	return u, ok
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// authenticate resolves the session cookies. When only the refresh token is
// still good, the rotated pair is written back as cookies on the response.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access := cookieValue(r, common.AccessTokenCookieName)
		refresh := cookieValue(r, common.RefreshTokenCookieName)
		if access == "" && refresh == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		user, rotated, err := s.services.Sessions.Resolve(r.Context(), access, refresh)
		if err != nil {
			s.logger.Debug(r.Context(), "session rejected", "error", err)
			if status := statusFor(err); status == http.StatusInternalServerError {
				writeError(w, status, "internal error")
			} else {
				writeError(w, http.StatusUnauthorized, "unauthorized")
			}
			return
		}
		if rotated != nil {
			s.setTokenCookies(w, rotated.AccessToken, rotated.RefreshToken)
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func isSafeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

// checkCSRF requires the CSRF header to repeat the CSRF cookie on every
// state-changing request.
func (s *HTTPServer) checkCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isSafeMethod(r.Method) {
			cookie := cookieValue(r, common.CSRFTokenCookieName)
			header := r.Header.Get(common.CSRFTokenHeaderName)
			if cookie == "" || subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
				writeError(w, http.StatusForbidden, "csrf check failed")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || !user.IsAdmin {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) newCookie(name, value string, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.cookieTTL / time.Second),
		HttpOnly: httpOnly,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *HTTPServer) setTokenCookies(w http.ResponseWriter, access, refresh string) {
	http.SetCookie(w, s.newCookie(common.AccessTokenCookieName, access, true))
	http.SetCookie(w, s.newCookie(common.RefreshTokenCookieName, refresh, true))
}

// setCSRFCookie issues a fresh CSRF token readable by client script.
func (s *HTTPServer) setCSRFCookie(w http.ResponseWriter) error {
	token, err := common.MakeRandHexString(32)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.newCookie(common.CSRFTokenCookieName, token, false))
	return nil
}

func (s *HTTPServer) clearCookies(w http.ResponseWriter) {
	for _, name := range []string{common.AccessTokenCookieName, common.RefreshTokenCookieName, common.CSRFTokenCookieName} {
		c := s.newCookie(name, "", name != common.CSRFTokenCookieName)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}
