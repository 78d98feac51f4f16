package models

import "time"

// Credential is a stored third-party login. PasswordCipher holds the sealed
// secret produced by cryptox.SecretBox and is never returned as is.
type Credential struct {
	ID             string
	UserID         string
	Title          string
	URL            *string
	Notes          *string
	Username       string
	PasswordCipher string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
