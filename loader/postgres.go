package loader

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Querier is satisfied by *pgxpool.Pool and *pgx.Conn.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads every column of a snapshot table.
type PostgresSource struct {
	DB    Querier
	Table string
}

func (s *PostgresSource) Name() string {
	return "postgres:" + s.Table
}

func (s *PostgresSource) Read(ctx context.Context) (*RawTable, error) {
	query := fmt.Sprintf("SELECT * FROM %s", pgx.Identifier{s.Table}.Sanitize())
	rows, err := s.DB.Query(ctx, query)
	if err != nil {
		return nil, &LoadError{Kind: UnreadableSource, Source: s.Name(), Err: err}
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}

	var body [][]string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, &LoadError{Kind: UnreadableSource, Source: s.Name(), Err: err}
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = cellString(v)
		}
		body = append(body, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &LoadError{Kind: UnreadableSource, Source: s.Name(), Err: err}
	}
	return &RawTable{Header: header, Rows: body}, nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return ""
		}
		return strconv.FormatFloat(f.Float64, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
