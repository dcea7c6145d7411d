package bdd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/consulta/advisor-service/internal/testutil/cucumber"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresTestDB implements cucumber.TestDB for Postgres.
type PostgresTestDB struct {
	DBURL string
}

var _ cucumber.TestDB = (*PostgresTestDB)(nil)

func (p *PostgresTestDB) conn(ctx context.Context) (*pgx.Conn, error) {
	return pgx.Connect(ctx, p.DBURL)
}

// ClearAll wipes mutable user data in FK-safe order. The trend catalog tables
// keep their migration seeds; analytics scenarios work against names they
// create themselves.
func (p *PostgresTestDB) ClearAll(ctx context.Context) error {
	conn, err := p.conn(ctx)
	if err != nil {
		return fmt.Errorf("cleanup: connect: %w", err)
	}
	defer conn.Close(ctx)

	tables := []string{
		"tasks",
		"file_blobs",
		"files",
		"conversation_context",
		"messages",
		"conversations",
		"sessions",
		"bot_accounts",
		"accounts",
	}
	for _, table := range tables {
		if _, err := conn.Exec(ctx, "DELETE FROM "+table); err != nil {
			if isUndefinedTable(err) {
				continue
			}
			return fmt.Errorf("cleanup %s: %w", table, err)
		}
	}
	return nil
}

// isUndefinedTable reports postgres error 42P01, so cleanup tolerates
// schemas from before a table was introduced.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

func (p *PostgresTestDB) ExecSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	conn, err := p.conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols := rows.FieldDescriptions()
	var out []map[string]interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		out = append(out, mapRow(cols, values))
	}
	return out, rows.Err()
}

// mapRow keys a result row by column name. Timestamps become RFC3339Nano
// strings so step tables can compare them against stored variables.
func mapRow(cols []pgconn.FieldDescription, values []interface{}) map[string]interface{} {
	row := make(map[string]interface{}, len(cols))
	for i, col := range cols {
		if t, ok := values[i].(time.Time); ok {
			row[col.Name] = t.Format(time.RFC3339Nano)
			continue
		}
		row[col.Name] = values[i]
	}
	return row
}
