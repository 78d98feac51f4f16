package services

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 40
	maxFieldLen    = 255
	maxNotesLen    = 1000
	maxURLLen      = 2048
)

// normalizeEmail lower-cases and trims an address so lookups and the unique
// index agree.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || utf8.RuneCountInString(email) > maxFieldLen {
		return common.WithDetail(common.ErrorValidation, "value is not a valid email address")
	}
	return nil
}

func validatePassword(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < minPasswordLen || n > maxPasswordLen {
		return common.WithDetail(common.ErrorValidation, "password must be between 8 and 40 characters")
	}
	return nil
}

func validateRequired(field, v string, max int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(v))
	if n == 0 {
		return common.WithDetail(common.ErrorValidation, field+" is required")
	}
	if utf8.RuneCountInString(v) > max {
		return common.WithDetail(common.ErrorValidation, field+" is too long")
	}
	return nil
}

func validateOptional(field string, v *string, max int) error {
	if v != nil && utf8.RuneCountInString(*v) > max {
		return common.WithDetail(common.ErrorValidation, field+" is too long")
	}
	return nil
}
