// Package services contains server-side business logic. UserService manages
// accounts, AuthService drives login and the emailed-token flows, and
// CredentialService handles the encrypted credential records.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
	"github.com/dmitrijs2005/pwkeeper/internal/dbx"
	"github.com/dmitrijs2005/pwkeeper/internal/logging"
	"github.com/dmitrijs2005/pwkeeper/internal/server/auth"
	"github.com/dmitrijs2005/pwkeeper/internal/server/models"
	"github.com/dmitrijs2005/pwkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pwkeeper/internal/server/repositories/users"
)

var (
	errUserNotFound  = common.WithDetail(common.ErrorNotFound, "User not found")
	errEmailTaken    = common.WithDetail(common.ErrorAlreadyExists, "The user with this email already exists in the system")
	errUsernameTaken = common.WithDetail(common.ErrorAlreadyExists, "The user with this username already exists in the system")
	errUserExists    = common.WithDetail(common.ErrorAlreadyExists, "The user already exists in the system")
	errSuperuserDel  = common.WithDetail(common.ErrorForbidden, "Super users are not allowed to delete themselves")
	errSelfViaAdmin  = common.WithDetail(common.ErrorForbidden, "Use the self-service endpoint to change your own password")
	errWrongPassword = common.WithDetail(common.ErrorWrongPassword, "Incorrect password")
	errSamePassword  = common.WithDetail(common.ErrorSamePassword, "New password cannot be the same as the current one")
)

// Deps groups the collaborators shared by every service.
type Deps struct {
	Tx       dbx.Transactor
	Repos    repomanager.RepositoryManager
	Hasher   *auth.PasswordHasher
	Tokens   *auth.TokenManager
	OTP      *auth.OTP
	Notifier Notifier
	Logger   logging.Logger

	EmailTokenTTL  time.Duration
	AccessTokenTTL time.Duration
}

// SignupInput is the public registration payload.
type SignupInput struct {
	Username string
	Email    string
	Password string
}

// CreateUserInput is the admin creation payload.
type CreateUserInput struct {
	Username    string
	Email       string
	Password    string
	IsActive    bool
	IsSuperuser bool
}

// UserPatch carries a partial update; nil fields stay unchanged.
// IsActive and IsSuperuser are honoured only for admin updates.
type UserPatch struct {
	Username    *string
	Email       *string
	IsActive    *bool
	IsSuperuser *bool
}

type UserService struct {
	Deps
	logger logging.Logger
}

func NewUserService(d Deps) *UserService {
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}
	return &UserService{Deps: d, logger: d.Logger.With("module", "users")}
}

func (s *UserService) users(db dbx.DBTX) users.Repository { return s.Repos.Users(db) }

// Signup registers an inactive account and emails an activation link.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	u, err := s.create(ctx, CreateUserInput{Username: in.Username, Email: in.Email, Password: in.Password})
	if err != nil {
		return nil, err
	}
	s.sendActivation(ctx, u)
	s.logger.Info(ctx, "user signed up", "user_id", u.ID)
	return u, nil
}

// Create is the admin path. Accounts created inactive get an activation link.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	u, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		s.sendActivation(ctx, u)
	}
	s.logger.Info(ctx, "user created", "user_id", u.ID, "superuser", u.IsSuperuser)
	return u, nil
}

func (s *UserService) create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateRequired("username", in.Username, maxFieldLen); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	var created *models.User
	err = s.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.users(tx)
		if err := s.checkUnique(ctx, repo, "", email, in.Username); err != nil {
			return err
		}
		created, err = repo.Create(ctx, &models.User{
			Username:     in.Username,
			Email:        email,
			PasswordHash: hash,
			IsActive:     in.IsActive,
			IsSuperuser:  in.IsSuperuser,
		})
		return err
	})
	if errors.Is(err, common.ErrorAlreadyExists) {
		var d *common.DetailError
		if !errors.As(err, &d) {
			// lost a race against a concurrent signup
			return nil, errUserExists
		}
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

// checkUnique rejects an email or username held by an account other than selfID.
func (s *UserService) checkUnique(ctx context.Context, repo users.Repository, selfID, email, username string) error {
	if email != "" {
		u, err := repo.GetByEmail(ctx, email)
		if err == nil && u.ID != selfID {
			return errEmailTaken
		}
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
	}
	if username != "" {
		u, err := repo.GetByUsername(ctx, username)
		if err == nil && u.ID != selfID {
			return errUsernameTaken
		}
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
	}
	return nil
}

func (s *UserService) sendActivation(ctx context.Context, u *models.User) {
	token, err := s.Tokens.IssuePurposeToken(auth.TokenTypeActivation, u.Email, s.EmailTokenTTL)
	if err != nil {
		s.logger.Error(ctx, "activation token", "user_id", u.ID, "error", err)
		return
	}
	s.Notifier.NotifyActivation(ctx, u.Email, u.Username, token)
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	u, err := s.users(s.Tx.Conn()).GetByID(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, errUserNotFound
	}
	return u, err
}

// List returns one page of accounts and the total count.
func (s *UserService) List(ctx context.Context, skip, limit int) ([]*models.User, int, error) {
	repo := s.users(s.Tx.Conn())
	count, err := repo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	list, err := repo.List(ctx, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	return list, count, nil
}

// UpdateSelf applies a username/email change requested by the account owner.
func (s *UserService) UpdateSelf(ctx context.Context, id string, p UserPatch) (*models.User, error) {
	p.IsActive, p.IsSuperuser = nil, nil
	return s.update(ctx, id, p)
}

// UpdateByAdmin may additionally toggle the active and superuser flags.
func (s *UserService) UpdateByAdmin(ctx context.Context, id string, p UserPatch) (*models.User, error) {
	return s.update(ctx, id, p)
}

func (s *UserService) update(ctx context.Context, id string, p UserPatch) (*models.User, error) {
	if p.Email != nil {
		e := normalizeEmail(*p.Email)
		if err := validateEmail(e); err != nil {
			return nil, err
		}
		p.Email = &e
	}
	if p.Username != nil {
		if err := validateRequired("username", *p.Username, maxFieldLen); err != nil {
			return nil, err
		}
	}

	var out *models.User
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.users(tx)
		u, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		var email, username string
		if p.Email != nil && *p.Email != u.Email {
			email = *p.Email
		}
		if p.Username != nil && *p.Username != u.Username {
			username = *p.Username
		}
		if err := s.checkUnique(ctx, repo, u.ID, email, username); err != nil {
			return err
		}

		if p.Email != nil {
			u.Email = *p.Email
		}
		if p.Username != nil {
			u.Username = *p.Username
		}
		if p.IsActive != nil {
			u.IsActive = *p.IsActive
		}
		if p.IsSuperuser != nil {
			u.IsSuperuser = *p.IsSuperuser
		}

		out, err = repo.Update(ctx, u)
		return err
	})
	return out, s.mapUserErr(err)
}

// ChangePassword requires the current password and a different new one.
// A wrong current password is reported before any other complaint.
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.users(tx)
		u, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !s.Hasher.Verify(current, u.PasswordHash) {
			return errWrongPassword
		}
		if current == next {
			return errSamePassword
		}
		if err := validatePassword(next); err != nil {
			return err
		}
		return s.setPassword(ctx, repo, u.ID, next)
	})
	return s.mapUserErr(err)
}

// SetPasswordByAdmin overwrites another account's password without the
// current one. Admins change their own through ChangePassword.
func (s *UserService) SetPasswordByAdmin(ctx context.Context, adminID, targetID, next string) error {
	if adminID == targetID {
		return errSelfViaAdmin
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.users(tx)
		if _, err := repo.GetByIDForUpdate(ctx, targetID); err != nil {
			return err
		}
		return s.setPassword(ctx, repo, targetID, next)
	})
	return s.mapUserErr(err)
}

func (s *UserService) setPassword(ctx context.Context, repo users.Repository, id, next string) error {
	hash, err := s.Hasher.Hash(next)
	if err != nil {
		return err
	}
	return repo.SetPassword(ctx, id, hash)
}

// DeleteSelf removes the caller's account. Superusers cannot delete themselves.
func (s *UserService) DeleteSelf(ctx context.Context, id string) error {
	return s.delete(ctx, id)
}

// DeleteByAdmin removes another account. Superuser accounts are refused.
func (s *UserService) DeleteByAdmin(ctx context.Context, id string) error {
	return s.delete(ctx, id)
}

func (s *UserService) delete(ctx context.Context, id string) error {
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.users(tx)
		u, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if u.IsSuperuser {
			return errSuperuserDel
		}
		return repo.Delete(ctx, id)
	})
	if err == nil {
		s.logger.Info(ctx, "user deleted", "user_id", id)
	}
	return s.mapUserErr(err)
}

// EnableOTP switches on two-factor login and returns the enrollment QR code
// as PNG. An existing secret is reused.
func (s *UserService) EnableOTP(ctx context.Context, id string) ([]byte, error) {
	var u *models.User
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.users(tx)
		var err error
		u, err = repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if u.OTPSecret == "" {
			u.OTPSecret, err = s.OTP.GenerateSecret(u.Email)
			if err != nil {
				return err
			}
		}
		u.OTPEnabled = true
		return repo.SetOTP(ctx, u.ID, u.OTPSecret, true)
	})
	if err != nil {
		return nil, s.mapUserErr(err)
	}

	uri, err := s.OTP.ProvisioningURI(u.OTPSecret, u.Email)
	if err != nil {
		return nil, err
	}
	return s.OTP.QRCodePNG(uri)
}

// DisableOTP switches off two-factor login and keeps the secret.
func (s *UserService) DisableOTP(ctx context.Context, id string) (*models.User, error) {
	var out *models.User
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.users(tx)
		u, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.SetOTP(ctx, u.ID, u.OTPSecret, false); err != nil {
			return err
		}
		u.OTPEnabled = false
		out = u
		return nil
	})
	return out, s.mapUserErr(err)
}

// EnsureSuperuser creates an active superuser with the given email unless an
// account with that email already exists.
func (s *UserService) EnsureSuperuser(ctx context.Context, username, email, password string) (bool, error) {
	_, err := s.users(s.Tx.Conn()).GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return false, err
	}

	if username == "" {
		username = normalizeEmail(email)
	}
	if _, err := s.create(ctx, CreateUserInput{
		Username:    username,
		Email:       email,
		Password:    password,
		IsActive:    true,
		IsSuperuser: true,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// mapUserErr gives a bare not-found from the repository the user message.
func (s *UserService) mapUserErr(err error) error {
	var d *common.DetailError
	if errors.Is(err, common.ErrorNotFound) && !errors.As(err, &d) {
		return errUserNotFound
	}
	if errors.Is(err, common.ErrorAlreadyExists) && !errors.As(err, &d) {
		return errUserExists
	}
	return err
}
