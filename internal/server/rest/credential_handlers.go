package rest

import (
	"net/http"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
	"github.com/dmitrijs2005/pwkeeper/internal/server/models"
	"github.com/dmitrijs2005/pwkeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
)

func scopeOf(r *http.Request, admin bool) services.Scope {
	return services.Scope{UserID: currentUser(r.Context()).ID, Admin: admin}
}

func (s *HTTPServer) listCredentials(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, scopeOf(r, false), "")
}

func (s *HTTPServer) adminListCredentials(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, scopeOf(r, true), r.URL.Query().Get("user_id"))
}

func (s *HTTPServer) list(w http.ResponseWriter, r *http.Request, scope services.Scope, owner string) {
	skip, limit, err := pagination(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	list, count, err := s.creds.List(r.Context(), scope, owner, skip, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(list, count, func(c *models.Credential) credentialView {
		return toCredentialView(c, scope.Admin)
	}))
}

func (s *HTTPServer) createCredential(w http.ResponseWriter, r *http.Request) {
	s.create(w, r, currentUser(r.Context()).ID, false)
}

// adminCreateCredential stores a credential for the user named by ?user_id=.
func (s *HTTPServer) adminCreateCredential(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("user_id")
	if owner == "" {
		s.writeError(w, r, common.WithDetail(common.ErrorValidation, "user_id is required"))
		return
	}
	s.create(w, r, owner, true)
}

func (s *HTTPServer) create(w http.ResponseWriter, r *http.Request, owner string, admin bool) {
	var req credentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.creds.Create(r.Context(), owner, services.CredentialInput{
		Title:    req.Title,
		URL:      req.URL,
		Notes:    req.Notes,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdCredentialView{
		credentialView: toCredentialView(c, admin),
		Password:       req.Password,
	})
}

func (s *HTTPServer) readCredential(w http.ResponseWriter, r *http.Request) {
	s.read(w, r, scopeOf(r, false))
}

func (s *HTTPServer) adminReadCredential(w http.ResponseWriter, r *http.Request) {
	s.read(w, r, scopeOf(r, true))
}

func (s *HTTPServer) read(w http.ResponseWriter, r *http.Request, scope services.Scope) {
	c, err := s.creds.Get(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCredentialView(c, scope.Admin))
}

func (s *HTTPServer) updateCredential(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, scopeOf(r, false))
}

func (s *HTTPServer) adminUpdateCredential(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, scopeOf(r, true))
}

func (s *HTTPServer) update(w http.ResponseWriter, r *http.Request, scope services.Scope) {
	var req updateCredentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.creds.Update(r.Context(), scope, chi.URLParam(r, "id"), services.CredentialPatch{
		Title:    req.Title,
		URL:      req.URL,
		Notes:    req.Notes,
		Username: req.Username,
		Password: req.Password,
		UserID:   req.UserID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCredentialView(c, scope.Admin))
}

func (s *HTTPServer) deleteCredential(w http.ResponseWriter, r *http.Request) {
	s.delete(w, r, scopeOf(r, false))
}

func (s *HTTPServer) adminDeleteCredential(w http.ResponseWriter, r *http.Request) {
	s.delete(w, r, scopeOf(r, true))
}

func (s *HTTPServer) delete(w http.ResponseWriter, r *http.Request, scope services.Scope) {
	if err := s.creds.Delete(r.Context(), scope, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "Credential deleted successfully")
}

func (s *HTTPServer) showPassword(w http.ResponseWriter, r *http.Request) {
	s.reveal(w, r, scopeOf(r, false))
}

func (s *HTTPServer) adminShowPassword(w http.ResponseWriter, r *http.Request) {
	s.reveal(w, r, scopeOf(r, true))
}

func (s *HTTPServer) reveal(w http.ResponseWriter, r *http.Request, scope services.Scope) {
	pw, err := s.creds.Reveal(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, passwordResponse{Password: pw})
}
