package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/tendant/workspace-authz/pkg/domain"
)

// Postgres SQLSTATE codes the repositories translate.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqSerializationFailed = "40001"
)

// translateError maps driver errors onto domain errors. A unique violation
// means a concurrent writer committed the same key first; a foreign key
// violation means the parent row is gone.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation, pqSerializationFailed:
			return fmt.Errorf("%w: %s", domain.ErrRaceLost, pqErr.Constraint)
		case pqForeignKeyViolation:
			return fmt.Errorf("%w: %s", domain.ErrNotFound, pqErr.Constraint)
		}
	}
	return err
}

// checkAffected turns a zero-row update or delete into domain.ErrNotFound.
func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
