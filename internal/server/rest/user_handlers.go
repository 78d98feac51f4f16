package rest

import (
	"net/http"

	"github.com/dmitrijs2005/pwkeeper/internal/server/models"
	"github.com/dmitrijs2005/pwkeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) readMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserView(currentUser(r.Context())))
}

func (s *HTTPServer) updateMe(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.users.UpdateSelf(r.Context(), currentUser(r.Context()).ID, services.UserPatch{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func (s *HTTPServer) deleteMe(w http.ResponseWriter, r *http.Request) {
	if err := s.users.DeleteSelf(r.Context(), currentUser(r.Context()).ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "User deleted successfully")
}

func (s *HTTPServer) changeMyPassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.users.ChangePassword(r.Context(), currentUser(r.Context()).ID, req.OldPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "Password changed successfully")
}

func (s *HTTPServer) enableMyOTP(w http.ResponseWriter, r *http.Request) {
	s.enableOTP(w, r, currentUser(r.Context()).ID)
}

func (s *HTTPServer) disableMyOTP(w http.ResponseWriter, r *http.Request) {
	s.disableOTP(w, r, currentUser(r.Context()).ID)
}

func (s *HTTPServer) enableOTP(w http.ResponseWriter, r *http.Request, id string) {
	png, err := s.users.EnableOTP(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *HTTPServer) disableOTP(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.users.DisableOTP(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "Multi-factor authentication is disabled.")
}

// admin

func (s *HTTPServer) adminListUsers(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pagination(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	list, count, err := s.users.List(r.Context(), skip, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(list, count, func(u *models.User) userView { return toUserView(u) }))
}

func (s *HTTPServer) adminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.users.Create(r.Context(), services.CreateUserInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		IsActive:    req.IsActive,
		IsSuperuser: req.IsSuperuser,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserView(u))
}

func (s *HTTPServer) adminReadUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func (s *HTTPServer) adminUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.users.UpdateByAdmin(r.Context(), chi.URLParam(r, "id"), services.UserPatch{
		Username:    req.Username,
		Email:       req.Email,
		IsActive:    req.IsActive,
		IsSuperuser: req.IsSuperuser,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func (s *HTTPServer) adminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.DeleteByAdmin(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "User deleted successfully")
}

func (s *HTTPServer) adminChangePassword(w http.ResponseWriter, r *http.Request) {
	var req setPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	err := s.users.SetPasswordByAdmin(r.Context(), currentUser(r.Context()).ID, chi.URLParam(r, "id"), req.NewPassword)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "User password successfully changed.")
}

func (s *HTTPServer) adminEnableOTP(w http.ResponseWriter, r *http.Request) {
	s.enableOTP(w, r, chi.URLParam(r, "id"))
}

func (s *HTTPServer) adminDisableOTP(w http.ResponseWriter, r *http.Request) {
	s.disableOTP(w, r, chi.URLParam(r, "id"))
}
