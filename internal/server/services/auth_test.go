package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
	"github.com/dmitrijs2005/pwkeeper/internal/server/auth"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_InactiveThenActivated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.Signup(ctx, SignupInput{Username: "alice", Email: "alice@example.com", Password: "pw12345678"})
	require.NoError(t, err)

	_, err = f.auth.Login(ctx, "alice@example.com", "pw12345678", "")
	require.ErrorIs(t, err, common.ErrorInactiveUser)

	u, err := f.auth.Activate(ctx, f.notifier.last(t, "activation").token)
	require.NoError(t, err)
	assert.True(t, u.IsActive)

	tok, err := f.auth.Login(ctx, "alice@example.com", "pw12345678", "")
	require.NoError(t, err)

	me, err := f.auth.Authenticate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)
	require.NotNil(t, me.LastLogin)
}

func TestLogin_UniformFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeUser(t, "alice")

	_, errUnknown := f.auth.Login(ctx, "nobody@example.com", "pw12345678", "")
	_, errWrong := f.auth.Login(ctx, "alice@example.com", "wrong-password", "")

	require.ErrorIs(t, errUnknown, common.ErrorUnauthorized)
	require.ErrorIs(t, errWrong, common.ErrorUnauthorized)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestLogin_OTPRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.activeUser(t, "alice")

	_, err := f.users.EnableOTP(ctx, alice)
	require.NoError(t, err)
	u, err := f.users.Get(ctx, alice)
	require.NoError(t, err)

	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	f.auth.now = func() time.Time { return now }

	tok, err := f.auth.Login(ctx, "alice@example.com", "pw12345678", "")
	require.ErrorIs(t, err, common.ErrorInvalidOTP)
	assert.Empty(t, tok)

	_, err = f.auth.Login(ctx, "alice@example.com", "pw12345678", "000000x")
	require.ErrorIs(t, err, common.ErrorInvalidOTP)

	code, err := totp.GenerateCodeCustom(u.OTPSecret, now, totp.ValidateOpts{Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1})
	require.NoError(t, err)

	tok, err = f.auth.Login(ctx, "alice@example.com", "pw12345678", code)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
}

func TestLogin_OTPCheckedBeforeActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.activeUser(t, "alice")

	_, err := f.users.EnableOTP(ctx, alice)
	require.NoError(t, err)
	_, err = f.users.UpdateByAdmin(ctx, alice, UserPatch{IsActive: ptr(false)})
	require.NoError(t, err)

	_, err = f.auth.Login(ctx, "alice@example.com", "pw12345678", "")
	assert.ErrorIs(t, err, common.ErrorInvalidOTP)
}

type countingLimiter struct {
	budget int
	fails  map[string]int
	resets int
}

func (l *countingLimiter) Allow(_ context.Context, key string) error {
	if l.fails[key] >= l.budget {
		return common.ErrorRateLimited
	}
	return nil
}

func (l *countingLimiter) Fail(_ context.Context, key string) error {
	l.fails[key]++
	return nil
}

func (l *countingLimiter) Reset(_ context.Context, key string) error {
	l.resets++
	delete(l.fails, key)
	return nil
}

func TestLogin_Throttled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeUser(t, "alice")

	var outcomes []LoginOutcome
	lim := &countingLimiter{budget: 2, fails: map[string]int{}}
	svc := NewAuthService(f.deps, lim, func(o LoginOutcome) { outcomes = append(outcomes, o) })

	_, _ = svc.Login(ctx, "alice@example.com", "bad-password", "")
	_, _ = svc.Login(ctx, "alice@example.com", "bad-password", "")

	_, err := svc.Login(ctx, "alice@example.com", "pw12345678", "")
	require.ErrorIs(t, err, common.ErrorRateLimited)

	assert.Equal(t, []LoginOutcome{LoginBadPassword, LoginBadPassword, LoginThrottled}, outcomes)

	delete(lim.fails, "alice@example.com")
	_, err = svc.Login(ctx, "ALICE@example.com", "pw12345678", "")
	require.NoError(t, err)
	assert.Equal(t, 1, lim.resets)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) error { return errors.New("redis down") }
func (brokenLimiter) Fail(context.Context, string) error  { return errors.New("redis down") }
func (brokenLimiter) Reset(context.Context, string) error { return errors.New("redis down") }

func TestLogin_LimiterOutageFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.activeUser(t, "alice")

	svc := NewAuthService(f.deps, brokenLimiter{}, nil)
	_, err := svc.Login(context.Background(), "alice@example.com", "pw12345678", "")
	require.NoError(t, err)
}

func TestAuthenticate_RejectsPurposeTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeUser(t, "alice")

	reset, err := f.deps.Tokens.IssuePurposeToken(auth.TokenTypePasswordReset, "alice@example.com", time.Hour)
	require.NoError(t, err)

	_, err = f.auth.Authenticate(ctx, reset)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = f.auth.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestAuthenticate_DeletedOrInactiveUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.activeUser(t, "alice")
	bob := f.activeUser(t, "bob")

	tokA, err := f.auth.Login(ctx, "alice@example.com", "pw12345678", "")
	require.NoError(t, err)
	tokB, err := f.auth.Login(ctx, "bob@example.com", "pw12345678", "")
	require.NoError(t, err)

	require.NoError(t, f.users.DeleteSelf(ctx, alice))
	_, err = f.auth.Authenticate(ctx, tokA)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = f.users.UpdateByAdmin(ctx, bob, UserPatch{IsActive: ptr(false)})
	require.NoError(t, err)
	_, err = f.auth.Authenticate(ctx, tokB)
	assert.ErrorIs(t, err, common.ErrorInactiveUser)
}

func TestActivate_RejectsOtherTokenKinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.activeUser(t, "alice")

	access, err := f.deps.Tokens.IssueAccessToken(alice, time.Hour)
	require.NoError(t, err)
	reset, err := f.deps.Tokens.IssuePurposeToken(auth.TokenTypePasswordReset, "alice@example.com", time.Hour)
	require.NoError(t, err)

	_, err = f.auth.Activate(ctx, access)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	_, err = f.auth.Activate(ctx, reset)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestActivate_ExpiredAndUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired, err := f.deps.Tokens.IssuePurposeToken(auth.TokenTypeActivation, "ghost@example.com", -time.Minute)
	require.NoError(t, err)
	_, err = f.auth.Activate(ctx, expired)
	assert.ErrorIs(t, err, common.ErrTokenExpired)

	valid, err := f.deps.Tokens.IssuePurposeToken(auth.TokenTypeActivation, "ghost@example.com", time.Hour)
	require.NoError(t, err)
	_, err = f.auth.Activate(ctx, valid)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRecoverAndResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeUser(t, "alice")

	require.NoError(t, f.auth.RecoverPassword(ctx, "nobody@example.com"))
	assert.Zero(t, f.notifier.count(), "no mail for unknown address")

	require.NoError(t, f.auth.RecoverPassword(ctx, "alice@example.com"))
	token := f.notifier.last(t, "reset").token

	assert.ErrorIs(t, f.auth.ResetPassword(ctx, token, "short"), common.ErrorValidation)
	require.NoError(t, f.auth.ResetPassword(ctx, token, "brand-new-pw"))

	_, err := f.auth.Login(ctx, "alice@example.com", "brand-new-pw", "")
	require.NoError(t, err)

	// accepted limitation: the token can be replayed until it expires
	require.NoError(t, f.auth.ResetPassword(ctx, token, "another-pw-1"))
}

func TestResetPassword_InactiveAndBadTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.Signup(ctx, SignupInput{Username: "alice", Email: "alice@example.com", Password: "pw12345678"})
	require.NoError(t, err)
	require.NoError(t, f.auth.RecoverPassword(ctx, "alice@example.com"))
	token := f.notifier.last(t, "reset").token

	assert.ErrorIs(t, f.auth.ResetPassword(ctx, token, "brand-new-pw"), common.ErrorInactiveUser)

	activation := f.notifier.last(t, "activation").token
	assert.ErrorIs(t, f.auth.ResetPassword(ctx, activation, "brand-new-pw"), common.ErrInvalidToken)
	assert.ErrorIs(t, f.auth.ResetPassword(ctx, "nope", "brand-new-pw"), common.ErrInvalidToken)
}
