package rest

import (
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/server/models"
)

// Response shapes. Password hashes, OTP secrets and sealed credential
// passwords never leave through these.

type userView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	IsActive    bool       `json:"is_active"`
	IsSuperuser bool       `json:"is_superuser"`
	OTPEnabled  bool       `json:"is_otp"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLogin   *time.Time `json:"last_login"`
}

func toUserView(u *models.User) userView {
	return userView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		OTPEnabled:  u.OTPEnabled,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		LastLogin:   u.LastLogin,
	}
}

type credentialView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	URL       *string   `json:"url"`
	Notes     *string   `json:"notes"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// toCredentialView omits the owner unless admin is set.
func toCredentialView(c *models.Credential, admin bool) credentialView {
	v := credentialView{
		ID:        c.ID,
		Title:     c.Title,
		URL:       c.URL,
		Notes:     c.Notes,
		Username:  c.Username,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if admin {
		v.UserID = c.UserID
	}
	return v
}

// createdCredentialView is returned once, on create, with the plaintext
// the caller just submitted.
type createdCredentialView struct {
	credentialView
	Password string `json:"password"`
}

type page[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

func toPage[M, V any](items []M, count int, conv func(M) V) page[V] {
	out := make([]V, 0, len(items))
	for _, it := range items {
		out = append(out, conv(it))
	}
	return page[V]{Data: out, Count: count}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type passwordResponse struct {
	Password string `json:"password"`
}
