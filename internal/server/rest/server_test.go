package rest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
	"github.com/dmitrijs2005/pwkeeper/internal/logging"
	"github.com/dmitrijs2005/pwkeeper/internal/server/auth"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_RevealFollowsReassignment(t *testing.T) {
	e := newEnv(t)
	adminTok := func() string { e.activeUser("root", true); return e.token("root@example.com", testPassword) }()

	rec := e.do(http.MethodPost, "/api/v1/users/signup", "", signupRequest{
		Username: "alice", Email: "alice@example.com", Password: testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var alice userView
	decode(t, rec, &alice)
	assert.False(t, alice.IsActive)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = e.login("alice@example.com", testPassword, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Inactive user", detail(t, rec))

	rec = e.do(http.MethodPost, "/api/v1/users/activate?token="+e.mail.token(t, "activation", "alice@example.com"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	aliceTok := e.token("alice@example.com", testPassword)

	rec = e.do(http.MethodPost, "/api/v1/credentials", aliceTok, credentialRequest{
		Title: "github", Username: "alice", Password: "secretpw",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created createdCredentialView
	decode(t, rec, &created)
	assert.Equal(t, "secretpw", created.Password)
	assert.Empty(t, created.UserID)

	rec = e.do(http.MethodGet, "/api/v1/credentials/"+created.ID, aliceTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secretpw")

	rec = e.do(http.MethodGet, "/api/v1/credentials/"+created.ID+"/show-password", aliceTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pw passwordResponse
	decode(t, rec, &pw)
	assert.Equal(t, "secretpw", pw.Password)

	bobID := e.activeUser("bob", false)
	rec = e.do(http.MethodPatch, "/api/v1/admin/credentials/"+created.ID, adminTok, map[string]string{"user_id": bobID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var moved credentialView
	decode(t, rec, &moved)
	assert.Equal(t, bobID, moved.UserID)

	rec = e.do(http.MethodGet, "/api/v1/credentials/"+created.ID+"/show-password", aliceTok, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Credential not found", detail(t, rec))

	rec = e.do(http.MethodGet, "/api/v1/credentials/"+created.ID+"/show-password", e.token("bob@example.com", testPassword), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &pw)
	assert.Equal(t, "secretpw", pw.Password)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	e := newEnv(t)
	body := signupRequest{Username: "alice", Email: "alice@example.com", Password: testPassword}

	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/api/v1/users/signup", "", body).Code)

	body.Username = "alice2"
	rec := e.do(http.MethodPost, "/api/v1/users/signup", "", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "The user with this email already exists in the system", detail(t, rec))

	e.activeUser("root", true)
	rec = e.do(http.MethodGet, "/api/v1/admin/users", e.token("root@example.com", testPassword), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p page[userView]
	decode(t, rec, &p)
	assert.Equal(t, 2, p.Count)
}

func TestSignup_Validation(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPost, "/api/v1/users/signup", "", signupRequest{Username: "a", Email: "nope", Password: testPassword})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(http.MethodPost, "/api/v1/users/signup", "", signupRequest{Username: "a", Email: "a@example.com", Password: "short"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/signup", nil)
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid request body", detail(t, rec))
}

func TestDeleteMe_SuperuserForbidden(t *testing.T) {
	e := newEnv(t)
	e.activeUser("root", true)
	tok := e.token("root@example.com", testPassword)

	rec := e.do(http.MethodDelete, "/api/v1/users/me", tok, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Super users are not allowed to delete themselves", detail(t, rec))

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/v1/users/me", tok, nil).Code)
}

func TestDeleteMe_RegularUser(t *testing.T) {
	e := newEnv(t)
	e.activeUser("alice", false)
	tok := e.token("alice@example.com", testPassword)

	require.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/api/v1/users/me", tok, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/v1/users/me", tok, nil).Code)
}

func TestLogin_OTP(t *testing.T) {
	e := newEnv(t)
	id := e.activeUser("alice", false)
	tok := e.token("alice@example.com", testPassword)

	rec := e.do(http.MethodPost, "/api/v1/users/2fa/enable", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG", rec.Body.String()[:4])

	rec = e.login("alice@example.com", testPassword, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "access_token")

	u, err := e.users.Get(t.Context(), id)
	require.NoError(t, err)
	code, err := totp.GenerateCode(u.OTPSecret, time.Now())
	require.NoError(t, err)

	rec = e.login("alice@example.com", testPassword, code)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/api/v1/users/2fa/disable", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, e.login("alice@example.com", testPassword, "").Code)
}

func TestLogin_Uniform(t *testing.T) {
	e := newEnv(t)
	e.activeUser("alice", false)

	wrong := e.login("alice@example.com", "wrong-password", "")
	unknown := e.login("nobody@example.com", testPassword, "")

	assert.Equal(t, http.StatusBadRequest, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())

	assert.Equal(t, http.StatusUnprocessableEntity, e.login("", "", "").Code)
}

func TestAdminDeleteUser_Cascades(t *testing.T) {
	e := newEnv(t)
	e.activeUser("root", true)
	adminTok := e.token("root@example.com", testPassword)
	aliceID := e.activeUser("alice", false)

	for _, title := range []string{"github", "gitlab"} {
		rec := e.do(http.MethodPost, "/api/v1/admin/credentials?user_id="+aliceID, adminTok, credentialRequest{
			Title: title, Username: "alice", Password: "secretpw",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := e.do(http.MethodGet, "/api/v1/admin/credentials?user_id="+aliceID, adminTok, nil)
	var p page[credentialView]
	decode(t, rec, &p)
	require.Equal(t, 2, p.Count)

	require.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/api/v1/admin/users/"+aliceID, adminTok, nil).Code)

	rec = e.do(http.MethodGet, "/api/v1/admin/credentials?user_id="+aliceID, adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &p)
	assert.Zero(t, p.Count)
	assert.Empty(t, p.Data)
}

func TestAdminCreateCredential_UnknownOwner(t *testing.T) {
	e := newEnv(t)
	e.activeUser("root", true)
	adminTok := e.token("root@example.com", testPassword)

	body := credentialRequest{Title: "github", Username: "x", Password: "secretpw"}
	assert.Equal(t, http.StatusUnprocessableEntity, e.do(http.MethodPost, "/api/v1/admin/credentials", adminTok, body).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/api/v1/admin/credentials?user_id=missing", adminTok, body).Code)
}

func TestAdminChangePassword(t *testing.T) {
	e := newEnv(t)
	rootID := e.activeUser("root", true)
	adminTok := e.token("root@example.com", testPassword)
	aliceID := e.activeUser("alice", false)

	rec := e.do(http.MethodPost, "/api/v1/admin/users/"+rootID+"/change-password", adminTok, setPasswordRequest{NewPassword: "another-pass"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(http.MethodPost, "/api/v1/admin/users/"+aliceID+"/change-password", adminTok, setPasswordRequest{NewPassword: "another-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	e.token("alice@example.com", "another-pass")
}

func TestChangeMyPassword(t *testing.T) {
	e := newEnv(t)
	e.activeUser("alice", false)
	tok := e.token("alice@example.com", testPassword)

	rec := e.do(http.MethodPost, "/api/v1/users/me/change-password", tok, changePasswordRequest{OldPassword: "bad-password", NewPassword: "another-pass"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/v1/users/me/change-password", tok, changePasswordRequest{OldPassword: testPassword, NewPassword: testPassword})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/v1/users/me/change-password", tok, changePasswordRequest{OldPassword: testPassword, NewPassword: "another-pass"})
	require.Equal(t, http.StatusOK, rec.Code)
	e.token("alice@example.com", "another-pass")
}

func TestUpdateMe_CannotEscalate(t *testing.T) {
	e := newEnv(t)
	e.activeUser("alice", false)
	e.activeUser("bob", false)
	tok := e.token("alice@example.com", testPassword)

	rec := e.do(http.MethodPatch, "/api/v1/users/me", tok, map[string]any{"username": "alice2", "is_superuser": true})
	require.Equal(t, http.StatusOK, rec.Code)
	var u userView
	decode(t, rec, &u)
	assert.Equal(t, "alice2", u.Username)
	assert.False(t, u.IsSuperuser)

	rec = e.do(http.MethodPatch, "/api/v1/users/me", tok, map[string]any{"email": "bob@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCredentials_OwnerScope(t *testing.T) {
	e := newEnv(t)
	e.activeUser("alice", false)
	e.activeUser("bob", false)
	aliceTok := e.token("alice@example.com", testPassword)
	bobTok := e.token("bob@example.com", testPassword)

	rec := e.do(http.MethodPost, "/api/v1/credentials/", aliceTok, credentialRequest{Title: "github", Username: "alice", Password: "secretpw"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var c createdCredentialView
	decode(t, rec, &c)

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/api/v1/credentials/" + c.ID, nil},
		{http.MethodPatch, "/api/v1/credentials/" + c.ID, map[string]string{"title": "mine"}},
		{http.MethodDelete, "/api/v1/credentials/" + c.ID, nil},
		{http.MethodGet, "/api/v1/credentials/" + c.ID + "/show-password", nil},
	} {
		assert.Equal(t, http.StatusNotFound, e.do(tc.method, tc.path, bobTok, tc.body).Code, "%s %s", tc.method, tc.path)
	}

	rec = e.do(http.MethodGet, "/api/v1/credentials", bobTok, nil)
	var p page[credentialView]
	decode(t, rec, &p)
	assert.Zero(t, p.Count)

	rec = e.do(http.MethodPatch, "/api/v1/credentials/"+c.ID, aliceTok, map[string]any{"user_id": "someone"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(http.MethodPatch, "/api/v1/credentials/"+c.ID, aliceTok, map[string]any{"password": "rotated", "notes": "2fa on"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(http.MethodGet, "/api/v1/credentials/"+c.ID+"/show-password", aliceTok, nil)
	var pw passwordResponse
	decode(t, rec, &pw)
	assert.Equal(t, "rotated", pw.Password)

	require.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/api/v1/credentials/"+c.ID, aliceTok, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/v1/credentials/"+c.ID, aliceTok, nil).Code)
}

func TestBearer(t *testing.T) {
	e := newEnv(t)
	e.activeUser("alice", false)
	tok := e.token("alice@example.com", testPassword)

	rec := e.do(http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = e.do(http.MethodGet, "/api/v1/users/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Could not validate credentials", detail(t, rec))

	// a password reset token must not work as a session token
	e.do(http.MethodPost, "/api/v1/password-recovery/alice@example.com", "", nil)
	rec = e.do(http.MethodGet, "/api/v1/users/me", e.mail.token(t, "reset", "alice@example.com"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodGet, "/api/v1/admin/users", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(http.MethodGet, "/api/v1/users/me", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me userView
	decode(t, rec, &me)
	assert.Equal(t, "alice@example.com", me.Email)
}

func TestBearer_InactiveAccount(t *testing.T) {
	e := newEnv(t)
	e.activeUser("root", true)
	adminTok := e.token("root@example.com", testPassword)
	aliceID := e.activeUser("alice", false)
	aliceTok := e.token("alice@example.com", testPassword)

	rec := e.do(http.MethodPatch, "/api/v1/admin/users/"+aliceID, adminTok, map[string]any{"is_active": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodGet, "/api/v1/users/me", aliceTok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Inactive user", detail(t, rec))
}

func TestPasswordRecovery(t *testing.T) {
	e := newEnv(t)
	e.activeUser("alice", false)

	known := e.do(http.MethodPost, "/api/v1/password-recovery/alice@example.com", "", nil)
	unknown := e.do(http.MethodPost, "/api/v1/password-recovery/ghost@example.com", "", nil)
	require.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.False(t, e.mail.has("reset", "ghost@example.com"))

	tok := e.mail.token(t, "reset", "alice@example.com")

	rec := e.do(http.MethodPost, "/api/v1/reset-password", "", resetPasswordRequest{Token: "junk", NewPassword: "another-pass"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/v1/reset-password/", "", resetPasswordRequest{Token: tok, NewPassword: "another-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	e.token("alice@example.com", "another-pass")
}

func TestActivate_RejectsOtherTokens(t *testing.T) {
	e := newEnv(t)
	e.do(http.MethodPost, "/api/v1/users/signup", "", signupRequest{Username: "alice", Email: "alice@example.com", Password: testPassword})

	reset, err := e.tokens.IssuePurposeToken(auth.TokenTypePasswordReset, "alice@example.com", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/v1/users/activate?token="+reset, "", nil).Code)

	expired, err := e.tokens.IssuePurposeToken(auth.TokenTypeActivation, "alice@example.com", -time.Minute)
	require.NoError(t, err)
	rec := e.do(http.MethodPost, "/api/v1/users/activate?token="+expired, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusUnprocessableEntity, e.do(http.MethodPost, "/api/v1/users/activate", "", nil).Code)
}

func TestPagination(t *testing.T) {
	e := newEnv(t)
	e.activeUser("root", true)
	adminTok := e.token("root@example.com", testPassword)
	for _, n := range []string{"a1", "a2", "a3"} {
		e.activeUser(n, false)
	}

	rec := e.do(http.MethodGet, "/api/v1/admin/users?skip=1&limit=2", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p page[userView]
	decode(t, rec, &p)
	assert.Equal(t, 4, p.Count)
	assert.Len(t, p.Data, 2)

	assert.Equal(t, http.StatusUnprocessableEntity, e.do(http.MethodGet, "/api/v1/admin/users?skip=-1", adminTok, nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, e.do(http.MethodGet, "/api/v1/admin/users?limit=x", adminTok, nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pwkeeper_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		common.WithDetail(common.ErrorValidation, "x"):    http.StatusUnprocessableEntity,
		common.WithDetail(common.ErrorAlreadyExists, "x"): http.StatusConflict,
		common.ErrorNotFound:      http.StatusNotFound,
		common.ErrorForbidden:     http.StatusForbidden,
		common.ErrorUnauthorized:  http.StatusBadRequest,
		common.ErrorInactiveUser:  http.StatusBadRequest,
		common.ErrorInvalidOTP:    http.StatusUnauthorized,
		common.ErrTokenExpired:    http.StatusBadRequest,
		common.ErrInvalidToken:    http.StatusBadRequest,
		common.ErrorRateLimited:   http.StatusTooManyRequests,
		common.ErrorDecrypt:       http.StatusUnprocessableEntity,
		common.ErrorWrongPassword: http.StatusBadRequest,
		common.ErrorSamePassword:  http.StatusBadRequest,
		errors.New("db error"):    0,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestWriteError_HidesInternal(t *testing.T) {
	s := &HTTPServer{logger: logging.Nop{}}
	rec := httptest.NewRecorder()
	s.writeError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("db error: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"internal error"}`, rec.Body.String())
}

func TestWriteError_BareSentinel(t *testing.T) {
	s := &HTTPServer{logger: logging.Nop{}}
	rec := httptest.NewRecorder()
	s.writeError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), common.ErrorNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Not Found"}`, rec.Body.String())
}
