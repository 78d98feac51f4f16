package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
)

const (
	maxBodyBytes = 1 << 20

	defaultLimit = 100
	maxLimit     = 1000
)

var errBadBody = common.WithDetail(common.ErrorValidation, "invalid request body")

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBadBody
		}
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

// pagination reads skip and limit. limit defaults to 100 and is capped at 1000.
func pagination(r *http.Request) (skip, limit int, err error) {
	q := r.URL.Query()
	skip, limit = 0, defaultLimit

	if v := q.Get("skip"); v != "" {
		if skip, err = strconv.Atoi(v); err != nil || skip < 0 {
			return 0, 0, common.WithDetail(common.ErrorValidation, "skip must be a non-negative integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, common.WithDetail(common.ErrorValidation, "limit must be a non-negative integer")
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return skip, limit, nil
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	IsActive    bool   `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
}

type updateUserRequest struct {
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type setPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type credentialRequest struct {
	Title    string  `json:"title"`
	URL      *string `json:"url"`
	Notes    *string `json:"notes"`
	Username string  `json:"username"`
	Password string  `json:"password"`
}

type updateCredentialRequest struct {
	Title    *string `json:"title"`
	URL      *string `json:"url"`
	Notes    *string `json:"notes"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	UserID   *string `json:"user_id"`
}
