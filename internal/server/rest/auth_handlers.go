package rest

import (
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
	"github.com/dmitrijs2005/pwkeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// login is OAuth2 password-flow compatible: form fields username (the
// email), password and an optional otp.
func (s *HTTPServer) login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, errBadBody)
		return
	}
	email, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if email == "" || password == "" {
		s.writeError(w, r, common.WithDetail(common.ErrorValidation, "username and password are required"))
		return
	}

	token, err := s.auth.Login(r.Context(), email, password, r.PostForm.Get("otp"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: common.TokenTypeBearer})
}

func (s *HTTPServer) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.users.Signup(r.Context(), services.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserView(u))
}

func (s *HTTPServer) activate(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.writeError(w, r, common.WithDetail(common.ErrorValidation, "token is required"))
		return
	}

	u, err := s.auth.Activate(r.Context(), token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func (s *HTTPServer) recoverPassword(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		s.writeError(w, r, common.WithDetail(common.ErrorValidation, "value is not a valid email address"))
		return
	}
	if err := s.auth.RecoverPassword(r.Context(), email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "If this email is registered, a password recovery link has been sent.")
}

func (s *HTTPServer) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "Password updated successfully.")
}
