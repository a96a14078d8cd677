package dataset

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"poetry_server/core/port/out"
	"poetry_server/pkg/apperr"

	"github.com/jmoiron/sqlx"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSource reads the corpus from a Postgres table.
type PostgresSource struct {
	db    *sqlx.DB
	table string
}

var _ out.DatasetSource = (*PostgresSource)(nil)

// NewPostgresSource creates a source for table, optionally schema-qualified.
func NewPostgresSource(db *sqlx.DB, table string) (*PostgresSource, error) {
	table = strings.TrimSpace(table)
	if !identifierPattern.MatchString(table) {
		return nil, apperr.ConfigErrorf("invalid poetry table name %q", table)
	}
	return &PostgresSource{db: db, table: table}, nil
}

// Name identifies the source in logs.
func (s *PostgresSource) Name() string {
	return "postgres:" + s.table
}

// Load selects every row in the table scan order.
func (s *PostgresSource) Load(ctx context.Context) (*out.Table, error) {
	query := fmt.Sprintf("SELECT * FROM %s", quoteIdentifier(s.table))
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, apperr.ConfigErrorf("query poetry table: %v", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, apperr.ConfigErrorf("read poetry table columns: %v", err)
	}

	table := &out.Table{Columns: columns}
	for rows.Next() {
		values := make(map[string]interface{}, len(columns))
		if err := rows.MapScan(values); err != nil {
			return nil, apperr.ConfigErrorf("scan poetry row: %v", err)
		}
		table.Rows = append(table.Rows, rowFromValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.ConfigErrorf("iterate poetry table: %v", err)
	}

	return table, nil
}

func quoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return strings.Join(parts, ".")
}

// rowFromValues keeps textual cells; NULL and non-text values are missing.
func rowFromValues(values map[string]interface{}) out.Row {
	row := make(out.Row, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			row[k] = val
		case []byte:
			row[k] = string(val)
		}
	}
	return row
}
