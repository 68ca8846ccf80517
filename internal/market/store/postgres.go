package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"reyu/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

func mapInsertErr(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return sentinel.ErrDuplicate
	}
	return fmt.Errorf("insert %s: %w", what, err)
}

func mapScanErr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	return fmt.Errorf("scan %s: %w", what, err)
}

// casResult turns a zero-row conditional UPDATE into ErrConflict.
func casResult(res sql.Result, err error, what string) error {
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func parseUUIDs(raws ...*string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(raws))
	for i, raw := range raws {
		u, err := uuid.Parse(*raw)
		if err != nil {
			return nil, fmt.Errorf("parse id %q: %w", *raw, err)
		}
		out[i] = u
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
