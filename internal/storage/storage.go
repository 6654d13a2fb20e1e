package storage

import (
	"context"
	"reflect"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"dinedesk/internal/infra/sqlite3"
)

type storageImpl struct {
	db  *sqlx.DB
	now func() time.Time
}

func New(db *sqlx.DB) *storageImpl {
	return &storageImpl{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *storageImpl) stmpBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// inTx runs fn inside a transaction on the same connection pool.
func (s *storageImpl) inTx(ctx context.Context, fn sqlite3.TxFunc) error {
	return sqlite3.WithTx(s.db, nil)(ctx, fn)
}

// fields returns the comma separated db columns of a row struct.
func fields(data any) string {
	var s string
	r := reflect.TypeOf(data)
	for i := 0; i < r.NumField(); i++ {
		tag := r.Field(i).Tag.Get("db")
		if tag != "" {
			s += tag + ","
		}
	}
	return s[:len(s)-1]
}

// isUniqueOn reports whether err is a UNIQUE failure that mentions column.
func isUniqueOn(err error, column string) bool {
	return sqlite3.IsUniqueViolation(err) && strings.Contains(err.Error(), column)
}
