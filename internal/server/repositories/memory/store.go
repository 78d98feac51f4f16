// Package memory keeps users and credentials in process memory. It backs the
// "memory://" DSN for local runs and the service and REST tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
	"github.com/dmitrijs2005/pwkeeper/internal/server/models"
	"github.com/google/uuid"
)

// Store holds both tables behind one mutex so owner checks and cascades
// see a consistent view.
type Store struct {
	mu    sync.RWMutex
	seq   int64
	users map[string]*userRow
	creds map[string]*credRow
	now   func() time.Time
}

type userRow struct {
	seq  int64
	user models.User
}

type credRow struct {
	seq  int64
	cred models.Credential
}

func NewStore() *Store {
	return &Store{
		users: make(map[string]*userRow),
		creds: make(map[string]*credRow),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Users returns the user table view.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Credentials returns the credential table view.
func (s *Store) Credentials() *CredentialRepository { return &CredentialRepository{s: s} }

func page[T any](rows []T, skip, limit int) []T {
	if skip >= len(rows) {
		return nil
	}
	rows = rows[skip:]
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

type UserRepository struct {
	s *Store
}

// conflict reports a clash of email or username with any account other than id.
func (s *Store) conflict(id, email, username string) error {
	for _, r := range s.users {
		if r.user.ID == id {
			continue
		}
		if r.user.Email == email {
			return fmt.Errorf("%w: email", common.ErrorAlreadyExists)
		}
		if r.user.Username == username {
			return fmt.Errorf("%w: username", common.ErrorAlreadyExists)
		}
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.conflict("", user.Email, user.Username); err != nil {
		return nil, err
	}

	now := r.s.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	r.s.seq++
	r.s.users[user.ID] = &userRow{seq: r.s.seq, user: *user}
	return user, nil
}

func (r *UserRepository) find(match func(*models.User) bool) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, row := range r.s.users {
		if match(&row.user) {
			u := row.user
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

// GetByIDForUpdate is GetByID: the store has no transactions to lock within,
// and every write is applied field by field under the store mutex.
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Username == username })
}

func (r *UserRepository) List(ctx context.Context, skip, limit int) ([]*models.User, error) {
	r.s.mu.RLock()
	rows := make([]*userRow, 0, len(r.s.users))
	for _, row := range r.s.users {
		rows = append(rows, row)
	}
	r.s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	var out []*models.User
	for _, row := range page(rows, skip, limit) {
		u := row.user
		out = append(out, &u)
	}
	return out, nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users), nil
}

// Update writes the profile fields only.
func (r *UserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	var out models.User
	err := r.modify(user.ID, func(u *models.User) error {
		if err := r.s.conflict(user.ID, user.Email, user.Username); err != nil {
			return err
		}
		u.Username = user.Username
		u.Email = user.Email
		u.IsActive = user.IsActive
		u.IsSuperuser = user.IsSuperuser
		u.UpdatedAt = r.s.now()
		out = *u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *UserRepository) SetPassword(ctx context.Context, id, hash string) error {
	return r.modify(id, func(u *models.User) error {
		u.PasswordHash = hash
		u.UpdatedAt = r.s.now()
		return nil
	})
}

func (r *UserRepository) SetOTP(ctx context.Context, id, secret string, enabled bool) error {
	return r.modify(id, func(u *models.User) error {
		u.OTPSecret = secret
		u.OTPEnabled = enabled
		u.UpdatedAt = r.s.now()
		return nil
	})
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.modify(id, func(u *models.User) error {
		u.LastLogin = &at
		return nil
	})
}

// modify applies fn to the stored row under the write lock.
func (r *UserRepository) modify(id string, fn func(*models.User) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	return fn(&row.user)
}

// Delete removes the account and every credential it owns.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.users, id)
	for cid, c := range r.s.creds {
		if c.cred.UserID == id {
			delete(r.s.creds, cid)
		}
	}
	return nil
}

type CredentialRepository struct {
	s *Store
}

func (r *CredentialRepository) Create(ctx context.Context, c *models.Credential) (*models.Credential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[c.UserID]; !ok {
		return nil, common.ErrorNotFound
	}

	now := r.s.now()
	c.ID = uuid.NewString()
	c.CreatedAt = now
	c.UpdatedAt = now

	r.s.seq++
	r.s.creds[c.ID] = &credRow{seq: r.s.seq, cred: *c}
	return c, nil
}

func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	row, ok := r.s.creds[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := row.cred
	return &c, nil
}

func (r *CredentialRepository) GetForUser(ctx context.Context, id, userID string) (*models.Credential, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

func (r *CredentialRepository) owned(userID string) []*credRow {
	rows := make([]*credRow, 0, len(r.s.creds))
	for _, row := range r.s.creds {
		if userID == "" || row.cred.UserID == userID {
			rows = append(rows, row)
		}
	}
	return rows
}

func (r *CredentialRepository) List(ctx context.Context, userID string, skip, limit int) ([]*models.Credential, error) {
	r.s.mu.RLock()
	rows := r.owned(userID)
	r.s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	var out []*models.Credential
	for _, row := range page(rows, skip, limit) {
		c := row.cred
		out = append(out, &c)
	}
	return out, nil
}

func (r *CredentialRepository) Count(ctx context.Context, userID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.owned(userID)), nil
}

func (r *CredentialRepository) Update(ctx context.Context, c *models.Credential) (*models.Credential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.creds[c.ID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if _, ok := r.s.users[c.UserID]; !ok {
		return nil, common.ErrorNotFound
	}

	c.CreatedAt = row.cred.CreatedAt
	c.UpdatedAt = r.s.now()
	row.cred = *c
	return c, nil
}

func (r *CredentialRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.creds[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.creds, id)
	return nil
}
