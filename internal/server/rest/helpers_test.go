package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/cryptox"
	"github.com/dmitrijs2005/pwkeeper/internal/dbx"
	"github.com/dmitrijs2005/pwkeeper/internal/logging"
	"github.com/dmitrijs2005/pwkeeper/internal/server/auth"
	"github.com/dmitrijs2005/pwkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/pwkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pwkeeper/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "pw12345678"

type mailbox struct {
	mu     sync.Mutex
	tokens map[string]string // kind+email -> last token
}

func (m *mailbox) put(kind, email, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = map[string]string{}
	}
	m.tokens[kind+":"+email] = token
}

func (m *mailbox) NotifyActivation(_ context.Context, email, _, token string) {
	m.put("activation", email, token)
}

func (m *mailbox) NotifyPasswordReset(_ context.Context, email, _, token string) {
	m.put("reset", email, token)
}

func (m *mailbox) token(t *testing.T, kind, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[kind+":"+email]
	require.True(t, ok, "no %s mail for %s", kind, email)
	return tok
}

func (m *mailbox) has(kind, email string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tokens[kind+":"+email]
	return ok
}

type env struct {
	t       *testing.T
	handler http.Handler
	mail    *mailbox
	users   *services.UserService
	tokens  *auth.TokenManager
}

func newEnv(t *testing.T) *env {
	t.Helper()

	key, err := cryptox.KeyFromConfig("test-encryption-key")
	require.NoError(t, err)
	box, err := cryptox.NewSecretBox(key)
	require.NoError(t, err)

	mail := &mailbox{}
	tokens := auth.NewTokenManager([]byte("test-secret"))
	d := services.Deps{
		Tx:             dbx.NopTransactor{},
		Repos:          repomanager.NewInMemoryRepositoryManager(),
		Hasher:         auth.NewPasswordHasher(bcrypt.MinCost),
		Tokens:         tokens,
		OTP:            auth.NewOTP("PW-Manager"),
		Notifier:       mail,
		Logger:         logging.Nop{},
		EmailTokenTTL:  48 * time.Hour,
		AccessTokenTTL: time.Hour,
	}

	us := services.NewUserService(d)
	srv := NewHTTPServer(Options{
		AllowedOrigins: []string{"http://localhost:5173"},
		Metrics:        metrics.NewWithRegistry(prometheus.NewRegistry()),
	}, logging.Nop{}, us, services.NewAuthService(d, nil, nil), services.NewCredentialService(d, box))

	return &env{t: t, handler: srv.Router(), mail: mail, users: us, tokens: tokens}
}

func (e *env) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) login(email, password, otp string) *httptest.ResponseRecorder {
	e.t.Helper()

	form := url.Values{"username": {email}, "password": {password}}
	if otp != "" {
		form.Set("otp", otp)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login/access-token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) token(email, password string) string {
	e.t.Helper()
	rec := e.login(email, password, "")
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	var out tokenResponse
	decode(e.t, rec, &out)
	require.Equal(e.t, "bearer", out.TokenType)
	return out.AccessToken
}

// activeUser creates an active account through the service and returns its id.
func (e *env) activeUser(name string, superuser bool) string {
	e.t.Helper()
	u, err := e.users.Create(context.Background(), services.CreateUserInput{
		Username:    name,
		Email:       name + "@example.com",
		Password:    testPassword,
		IsActive:    true,
		IsSuperuser: superuser,
	})
	require.NoError(e.t, err)
	return u.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var d detailResponse
	decode(t, rec, &d)
	return d.Detail
}
