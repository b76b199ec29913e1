// Package db provides shared Postgres helpers.
package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Copier is anything that speaks the COPY protocol: a pool, a connection, or
// a transaction.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// CopyFrom bulk-inserts rows into table using the PostgreSQL COPY protocol.
// A dotted table name is treated as schema-qualified.
func CopyFrom(ctx context.Context, c Copier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := c.CopyFrom(ctx, pgx.Identifier(strings.Split(table, ".")), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}

	return n, nil
}
