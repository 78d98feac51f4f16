// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account row. PasswordHash is a bcrypt hash; OTPSecret is the
// base32 TOTP secret and is kept when OTP is switched off.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	IsSuperuser  bool
	OTPSecret    string
	OTPEnabled   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLogin    *time.Time
}
