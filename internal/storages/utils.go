package storage

import (
	"errors"
	"strings"

	"github.com/jackc/pgconn"
)

func GetPgxConstraintName(err error) string {
	if err == nil {
		return ""
	}
	var pgErr *pgconn.PgError

	if !errors.As(err, &pgErr) {
		return ""
	}

	return pgErr.ConstraintName
}

// PairKey is the normalized key of an unordered pair of user ids.
func PairKey(a, b string) string {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
