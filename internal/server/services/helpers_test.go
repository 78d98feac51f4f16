package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/cryptox"
	"github.com/dmitrijs2005/pwkeeper/internal/dbx"
	"github.com/dmitrijs2005/pwkeeper/internal/logging"
	"github.com/dmitrijs2005/pwkeeper/internal/server/auth"
	"github.com/dmitrijs2005/pwkeeper/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type sentMail struct {
	kind     string
	email    string
	username string
	token    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *recordingNotifier) NotifyActivation(_ context.Context, email, username, token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{"activation", email, username, token})
}

func (n *recordingNotifier) NotifyPasswordReset(_ context.Context, email, username, token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{"reset", email, username, token})
}

func (n *recordingNotifier) last(t *testing.T, kind string) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i]
		}
	}
	t.Fatalf("no %s mail sent", kind)
	return sentMail{}
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fixture struct {
	deps     Deps
	notifier *recordingNotifier
	users    *UserService
	auth     *AuthService
	creds    *CredentialService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := cryptox.KeyFromConfig("test-encryption-key")
	require.NoError(t, err)
	box, err := cryptox.NewSecretBox(key)
	require.NoError(t, err)

	n := &recordingNotifier{}
	d := Deps{
		Tx:             dbx.NopTransactor{},
		Repos:          repomanager.NewInMemoryRepositoryManager(),
		Hasher:         auth.NewPasswordHasher(bcrypt.MinCost),
		Tokens:         auth.NewTokenManager([]byte("test-secret")),
		OTP:            auth.NewOTP("PW-Manager"),
		Notifier:       n,
		Logger:         logging.Nop{},
		EmailTokenTTL:  48 * time.Hour,
		AccessTokenTTL: time.Hour,
	}

	return &fixture{
		deps:     d,
		notifier: n,
		users:    NewUserService(d),
		auth:     NewAuthService(d, nil, nil),
		creds:    NewCredentialService(d, box),
	}
}

// activeUser creates an active account directly through the admin path.
func (f *fixture) activeUser(t *testing.T, name string) string {
	t.Helper()
	u, err := f.users.Create(context.Background(), CreateUserInput{
		Username: name,
		Email:    name + "@example.com",
		Password: "pw12345678",
		IsActive: true,
	})
	require.NoError(t, err)
	return u.ID
}

func ptr[T any](v T) *T { return &v }
