// Package dberr maps driver errors to the sentinel errors in common.
package dberr

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

// Wrap classifies err. No rows, a malformed uuid and a dangling foreign key
// become common.ErrorNotFound; a unique violation becomes
// common.ErrorAlreadyExists. Everything else is wrapped as "db error".
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", common.ErrorAlreadyExists, pgErr.ConstraintName)
		case codeForeignKeyViolation, codeInvalidText:
			return common.ErrorNotFound
		}
	}

	return fmt.Errorf("db error: %w", err)
}

// RequireAffected turns a zero-row UPDATE/DELETE into common.ErrorNotFound.
func RequireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
