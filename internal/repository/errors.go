package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pqUniqueViolation = "23505"

var (
	// ErrDuplicateUser はユーザーの一意項目が重複したことを示す。
	ErrDuplicateUser = errors.New("duplicate user")

	// ErrUsernameTaken はユーザー名が使用済みであることを示す。
	ErrUsernameTaken = fmt.Errorf("%w: username", ErrDuplicateUser)

	// ErrEmailTaken はメールアドレスが使用済みであることを示す。
	ErrEmailTaken = fmt.Errorf("%w: email", ErrDuplicateUser)

	// ErrActiveSessionExists は進行中のセッションが既に存在することを示す。
	ErrActiveSessionExists = errors.New("active study session already exists")
)

// uniqueViolation は一意制約違反であれば違反した制約名を返す。
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// affected はUPDATE/DELETEで1行以上変更されたかどうかを返す。
func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}
