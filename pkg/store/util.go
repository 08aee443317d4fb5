package store

import "github.com/jmoiron/sqlx"

// sqlxIn expands a `?` placeholder bound to a slice argument into the
// right number of positional placeholders (sqlx.In) and rebinds them to
// sqlite's `?` style, used by bulk operations like SoftDeleteJobs.
func sqlxIn(query string, args ...any) (string, []any, error) {
	q, expanded, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.QUESTION, q), expanded, nil
}
