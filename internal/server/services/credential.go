package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
	"github.com/dmitrijs2005/pwkeeper/internal/cryptox"
	"github.com/dmitrijs2005/pwkeeper/internal/dbx"
	"github.com/dmitrijs2005/pwkeeper/internal/logging"
	"github.com/dmitrijs2005/pwkeeper/internal/server/models"
)

var (
	errCredentialNotFound = common.WithDetail(common.ErrorNotFound, "Credential not found")
	errUndecryptable      = common.WithDetail(common.ErrorDecrypt, "Stored password cannot be decrypted")
	errReassignForbidden  = common.WithDetail(common.ErrorForbidden, "Only administrators can reassign credentials")
)

// Scope is who is asking. Admins see every credential; everyone else only
// their own, and a credential outside the scope is reported as not found.
type Scope struct {
	UserID string
	Admin  bool
}

// CredentialInput is the create payload. Password is the plaintext secret.
type CredentialInput struct {
	Title    string
	URL      *string
	Notes    *string
	Username string
	Password string
}

// CredentialPatch carries a partial update; nil fields stay unchanged.
// UserID reassigns ownership and is admin-only.
type CredentialPatch struct {
	Title    *string
	URL      *string
	Notes    *string
	Username *string
	Password *string
	UserID   *string
}

type CredentialService struct {
	Deps
	box    *cryptox.SecretBox
	logger logging.Logger
}

func NewCredentialService(d Deps, box *cryptox.SecretBox) *CredentialService {
	return &CredentialService{Deps: d, box: box, logger: d.Logger.With("module", "credentials")}
}

func validateCredentialInput(in CredentialInput) error {
	if err := validateRequired("title", in.Title, maxFieldLen); err != nil {
		return err
	}
	if err := validateRequired("username", in.Username, maxFieldLen); err != nil {
		return err
	}
	if err := validateRequired("password", in.Password, maxFieldLen); err != nil {
		return err
	}
	if err := validateOptional("url", in.URL, maxURLLen); err != nil {
		return err
	}
	return validateOptional("notes", in.Notes, maxNotesLen)
}

// Create stores a credential for ownerID with its secret sealed.
func (s *CredentialService) Create(ctx context.Context, ownerID string, in CredentialInput) (*models.Credential, error) {
	if err := validateCredentialInput(in); err != nil {
		return nil, err
	}

	sealed, err := s.box.Encrypt(in.Password)
	if err != nil {
		return nil, err
	}

	var out *models.Credential
	err = s.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.Repos.Users(tx).GetByID(ctx, ownerID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errUserNotFound
			}
			return err
		}
		out, err = s.Repos.Credentials(tx).Create(ctx, &models.Credential{
			UserID:         ownerID,
			Title:          in.Title,
			URL:            in.URL,
			Notes:          in.Notes,
			Username:       in.Username,
			PasswordCipher: sealed,
		})
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		var d *common.DetailError
		if !errors.As(err, &d) {
			return nil, errUserNotFound
		}
	}
	return out, err
}

// List returns one page visible to scope plus the total count. ownerFilter
// narrows an admin listing to one owner; it is ignored for everyone else.
func (s *CredentialService) List(ctx context.Context, scope Scope, ownerFilter string, skip, limit int) ([]*models.Credential, int, error) {
	owner := scope.UserID
	if scope.Admin {
		owner = ownerFilter
	}

	repo := s.Repos.Credentials(s.Tx.Conn())
	count, err := repo.Count(ctx, owner)
	if err != nil {
		return nil, 0, err
	}
	list, err := repo.List(ctx, owner, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	return list, count, nil
}

func (s *CredentialService) get(ctx context.Context, db dbx.DBTX, scope Scope, id string) (*models.Credential, error) {
	repo := s.Repos.Credentials(db)

	var (
		c   *models.Credential
		err error
	)
	if scope.Admin {
		c, err = repo.GetByID(ctx, id)
	} else {
		c, err = repo.GetForUser(ctx, id, scope.UserID)
	}
	if errors.Is(err, common.ErrorNotFound) {
		return nil, errCredentialNotFound
	}
	return c, err
}

func (s *CredentialService) Get(ctx context.Context, scope Scope, id string) (*models.Credential, error) {
	return s.get(ctx, s.Tx.Conn(), scope, id)
}

// Reveal decrypts the stored secret of a credential visible to scope.
func (s *CredentialService) Reveal(ctx context.Context, scope Scope, id string) (string, error) {
	c, err := s.get(ctx, s.Tx.Conn(), scope, id)
	if err != nil {
		return "", err
	}

	pw, err := s.box.Decrypt(c.PasswordCipher)
	if err != nil {
		s.logger.Error(ctx, "credential decrypt", "credential_id", c.ID, "error", err)
		return "", errUndecryptable
	}
	return pw, nil
}

// Update applies a partial change. A new password is sealed again; a new
// owner must exist.
func (s *CredentialService) Update(ctx context.Context, scope Scope, id string, p CredentialPatch) (*models.Credential, error) {
	if p.UserID != nil && !scope.Admin {
		return nil, errReassignForbidden
	}
	for _, f := range []struct {
		name string
		v    *string
	}{{"title", p.Title}, {"username", p.Username}, {"password", p.Password}} {
		if f.v != nil {
			if err := validateRequired(f.name, *f.v, maxFieldLen); err != nil {
				return nil, err
			}
		}
	}
	if err := validateOptional("url", p.URL, maxURLLen); err != nil {
		return nil, err
	}
	if err := validateOptional("notes", p.Notes, maxNotesLen); err != nil {
		return nil, err
	}

	var sealed string
	if p.Password != nil {
		var err error
		if sealed, err = s.box.Encrypt(*p.Password); err != nil {
			return nil, err
		}
	}

	var out *models.Credential
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		c, err := s.get(ctx, tx, scope, id)
		if err != nil {
			return err
		}

		if p.UserID != nil && *p.UserID != c.UserID {
			if _, err := s.Repos.Users(tx).GetByID(ctx, *p.UserID); err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return errUserNotFound
				}
				return err
			}
			c.UserID = *p.UserID
		}
		if p.Title != nil {
			c.Title = *p.Title
		}
		if p.URL != nil {
			c.URL = p.URL
		}
		if p.Notes != nil {
			c.Notes = p.Notes
		}
		if p.Username != nil {
			c.Username = *p.Username
		}
		if p.Password != nil {
			c.PasswordCipher = sealed
		}

		out, err = s.Repos.Credentials(tx).Update(ctx, c)
		return err
	})
	if err != nil {
		var d *common.DetailError
		if errors.Is(err, common.ErrorNotFound) && !errors.As(err, &d) {
			return nil, errCredentialNotFound
		}
		return nil, err
	}
	return out, nil
}

func (s *CredentialService) Delete(ctx context.Context, scope Scope, id string) error {
	return s.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		c, err := s.get(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if err := s.Repos.Credentials(tx).Delete(ctx, c.ID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errCredentialNotFound
			}
			return err
		}
		return nil
	})
}
