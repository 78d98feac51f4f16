package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
	"github.com/dmitrijs2005/pwkeeper/internal/dbx"
	"github.com/dmitrijs2005/pwkeeper/internal/logging"
	"github.com/dmitrijs2005/pwkeeper/internal/server/auth"
	"github.com/dmitrijs2005/pwkeeper/internal/server/models"
)

var (
	errBadCredentials = common.WithDetail(common.ErrorUnauthorized, "Incorrect email or password")
	errInactive       = common.WithDetail(common.ErrorInactiveUser, "Inactive user")
	errOTP            = common.WithDetail(common.ErrorInvalidOTP, "Invalid or missing OTP code")
	errBearer         = common.WithDetail(common.ErrInvalidToken, "Could not validate credentials")
	errPurposeToken   = common.WithDetail(common.ErrInvalidToken, "Invalid token")
	errExpiredToken   = common.WithDetail(common.ErrTokenExpired, "Token has expired")
	errNoSuchEmail    = common.WithDetail(common.ErrorNotFound, "The user with this email does not exist in the system")
	errTooManyLogins  = common.WithDetail(common.ErrorRateLimited, "Too many failed login attempts, try again later")
)

// LoginOutcome labels a finished login attempt for metrics.
type LoginOutcome string

const (
	LoginSuccess     LoginOutcome = "success"
	LoginBadPassword LoginOutcome = "bad_credentials"
	LoginBadOTP      LoginOutcome = "bad_otp"
	LoginInactive    LoginOutcome = "inactive"
	LoginThrottled   LoginOutcome = "throttled"
	LoginError       LoginOutcome = "error"
)

type nopLimiter struct{}

func (nopLimiter) Allow(context.Context, string) error { return nil }
func (nopLimiter) Fail(context.Context, string) error  { return nil }
func (nopLimiter) Reset(context.Context, string) error { return nil }

// AuthService runs the login state machine and the emailed-token flows.
type AuthService struct {
	Deps
	limiter LoginLimiter
	observe func(LoginOutcome)
	now     func() time.Time
	logger  logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService builds the service. limiter and observe may be nil.
func NewAuthService(d Deps, limiter LoginLimiter, observe func(LoginOutcome)) *AuthService {
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}
	if limiter == nil {
		limiter = nopLimiter{}
	}
	if observe == nil {
		observe = func(LoginOutcome) {}
	}
	return &AuthService{
		Deps:    d,
		limiter: limiter,
		observe: observe,
		now:     time.Now,
		logger:  d.Logger.With("module", "auth"),
	}
}

// Login authenticates by email and password, then the OTP code when the
// account has two-factor enabled, then the active flag. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password, otpCode string) (string, error) {
	token, outcome, err := s.login(ctx, normalizeEmail(email), password, otpCode)
	s.observe(outcome)
	return token, err
}

func (s *AuthService) login(ctx context.Context, email, password, otpCode string) (string, LoginOutcome, error) {
	if err := s.limiter.Allow(ctx, email); err != nil {
		if errors.Is(err, common.ErrorRateLimited) {
			return "", LoginThrottled, errTooManyLogins
		}
		// limiter backend down: log and carry on unthrottled
		s.logger.Warn(ctx, "login limiter", "error", err)
	}

	repo := s.Repos.Users(s.Tx.Conn())
	u, err := repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return "", LoginError, err
	}

	if u == nil {
		// keep the timing of a real comparison
		s.Hasher.Verify(password, s.dummy())
		s.fail(ctx, email)
		return "", LoginBadPassword, errBadCredentials
	}
	if !s.Hasher.Verify(password, u.PasswordHash) {
		s.fail(ctx, email)
		return "", LoginBadPassword, errBadCredentials
	}

	if u.OTPEnabled && !s.OTP.Verify(u.OTPSecret, otpCode, s.now()) {
		s.fail(ctx, email)
		return "", LoginBadOTP, errOTP
	}

	if !u.IsActive {
		return "", LoginInactive, errInactive
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		s.logger.Warn(ctx, "login limiter reset", "error", err)
	}

	if err := repo.TouchLastLogin(ctx, u.ID, s.now().UTC()); err != nil {
		return "", LoginError, err
	}

	token, err := s.Tokens.IssueAccessToken(u.ID, s.AccessTokenTTL)
	if err != nil {
		return "", LoginError, err
	}
	s.logger.Info(ctx, "user logged in", "user_id", u.ID)
	return token, LoginSuccess, nil
}

func (s *AuthService) fail(ctx context.Context, email string) {
	if err := s.limiter.Fail(ctx, email); err != nil {
		s.logger.Warn(ctx, "login limiter fail", "error", err)
	}
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash("not-a-real-password")
	})
	return s.dummyHash
}

// Authenticate resolves a bearer access token to an active account.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	id, err := s.Tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, errBearer
	}

	u, err := s.Repos.Users(s.Tx.Conn()).GetByID(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, errBearer
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, errInactive
	}
	return u, nil
}

// Activate marks the account named by an activation token as active.
// Activating an already active account is a no-op.
func (s *AuthService) Activate(ctx context.Context, token string) (*models.User, error) {
	email, err := s.verifyPurpose(auth.TokenTypeActivation, token)
	if err != nil {
		return nil, err
	}

	var out *models.User
	err = s.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.Repos.Users(tx)
		u, err := repo.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if u, err = repo.GetByIDForUpdate(ctx, u.ID); err != nil {
			return err
		}
		if u.IsActive {
			out = u
			return nil
		}
		u.IsActive = true
		out, err = repo.Update(ctx, u)
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		return nil, errNoSuchEmail
	}
	if err == nil {
		s.logger.Info(ctx, "user activated", "user_id", out.ID)
	}
	return out, err
}

// RecoverPassword emails a reset link when the address belongs to an
// account. The outcome is the same whether or not it does.
func (s *AuthService) RecoverPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	u, err := s.Repos.Users(s.Tx.Conn()).GetByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		s.logger.Debug(ctx, "password recovery for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	token, err := s.Tokens.IssuePurposeToken(auth.TokenTypePasswordReset, u.Email, s.EmailTokenTTL)
	if err != nil {
		return err
	}
	s.Notifier.NotifyPasswordReset(ctx, u.Email, u.Username, token)
	return nil
}

// ResetPassword overwrites the password of the active account named by a
// reset token. The token stays usable until it expires.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	email, err := s.verifyPurpose(auth.TokenTypePasswordReset, token)
	if err != nil {
		return err
	}

	hash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.Repos.Users(tx)
		u, err := repo.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if u, err = repo.GetByIDForUpdate(ctx, u.ID); err != nil {
			return err
		}
		if !u.IsActive {
			return errInactive
		}
		return repo.SetPassword(ctx, u.ID, hash)
	})
	if errors.Is(err, common.ErrorNotFound) {
		return errNoSuchEmail
	}
	return err
}

func (s *AuthService) verifyPurpose(purpose auth.TokenType, token string) (string, error) {
	email, err := s.Tokens.VerifyPurposeToken(purpose, token)
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		return "", errExpiredToken
	case err != nil:
		return "", errPurposeToken
	}
	return email, nil
}
