package credentials

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/pwkeeper/internal/dbx"
	"github.com/dmitrijs2005/pwkeeper/internal/server/models"
	"github.com/dmitrijs2005/pwkeeper/internal/server/repositories/dberr"
)

const credentialColumns = `id, user_id, title, url, notes, username, password_cipher, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(s scanner) (*models.Credential, error) {
	c := &models.Credential{}
	var url, notes sql.NullString
	err := s.Scan(&c.ID, &c.UserID, &c.Title, &url, &notes, &c.Username, &c.PasswordCipher,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.URL = fromNull(url)
	c.Notes = fromNull(notes)
	return c, nil
}

func fromNull(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Create inserts c. A user_id with no matching account yields common.ErrorNotFound.
func (r *PostgresRepository) Create(ctx context.Context, c *models.Credential) (*models.Credential, error) {
	query :=
		`INSERT INTO credentials (user_id, title, url, notes, username, password_cipher)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		c.UserID, c.Title, toNull(c.URL), toNull(c.Notes), c.Username, c.PasswordCipher).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, dberr.Wrap(err)
	}

	return c, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`

	c, err := scanCredential(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, dberr.Wrap(err)
	}
	return c, nil
}

// GetForUser returns the credential only when userID owns it.
func (r *PostgresRepository) GetForUser(ctx context.Context, id, userID string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1 AND user_id = $2`

	c, err := scanCredential(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return nil, dberr.Wrap(err)
	}
	return c, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, skip, limit int) ([]*models.Credential, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if userID == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+credentialColumns+` FROM credentials ORDER BY created_at, id OFFSET $1 LIMIT $2`,
			skip, limit)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+credentialColumns+` FROM credentials WHERE user_id = $1 ORDER BY created_at, id OFFSET $2 LIMIT $3`,
			userID, skip, limit)
	}
	if err != nil {
		return nil, dberr.Wrap(err)
	}
	defer rows.Close()

	var out []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, dberr.Wrap(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err)
	}
	return out, nil
}

func (r *PostgresRepository) Count(ctx context.Context, userID string) (int, error) {
	var (
		n   int
		err error
	)
	if userID == "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&n)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials WHERE user_id = $1`, userID).Scan(&n)
	}
	if err != nil {
		return 0, dberr.Wrap(err)
	}
	return n, nil
}

// Update writes every mutable column, including the owner, and refreshes UpdatedAt.
func (r *PostgresRepository) Update(ctx context.Context, c *models.Credential) (*models.Credential, error) {
	query :=
		`UPDATE credentials SET user_id = $2, title = $3, url = $4, notes = $5, username = $6,
		 password_cipher = $7, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at
		 `

	err := r.db.QueryRowContext(ctx, query, c.ID, c.UserID, c.Title, toNull(c.URL), toNull(c.Notes),
		c.Username, c.PasswordCipher).Scan(&c.UpdatedAt)
	if err != nil {
		return nil, dberr.Wrap(err)
	}
	return c, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return dberr.Wrap(err)
	}
	return dberr.RequireAffected(res)
}
