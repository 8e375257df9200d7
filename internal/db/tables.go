package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/weison-t/thereader/internal/metrics"
	"github.com/weison-t/thereader/internal/models"
)

const schemaName = "public"

// TableSpec describes a text-typed dataset table.
type TableSpec struct {
	Name    string
	Columns []models.ColumnDef

	// RowID adds a _row_id bigserial primary key used for in-place edits.
	RowID  bool
	Source string
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func qualified(name string) string {
	return pgx.Identifier{schemaName, name}.Sanitize()
}

// LockTables takes transaction-scoped advisory locks in sorted order so that
// overlapping lock sets never deadlock.
func LockTables(ctx context.Context, tx pgx.Tx, names ...string) error {
	uniq := map[string]struct{}{}
	for _, n := range names {
		uniq[n] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for n := range uniq {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)
	for _, n := range sorted {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, n); err != nil {
			return fmt.Errorf("lock %s: %w", n, err)
		}
	}
	return nil
}

func TableExists(ctx context.Context, q DBTX, name string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, schemaName+"."+name).Scan(&exists)
	return exists, err
}

func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	return TableExists(ctx, s.Pool, name)
}

// ReplaceTableTx drops and recreates spec.Name inside tx, bulk-loads rows and
// records the column list in dataset_schemas. Callers hold the table lock.
func ReplaceTableTx(ctx context.Context, tx pgx.Tx, spec TableSpec, rows [][]*string) (int64, error) {
	start := time.Now()
	defer func() {
		metrics.RebuildDuration.WithLabelValues(spec.Name).Observe(time.Since(start).Seconds())
	}()

	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS `+qualified(spec.Name)); err != nil {
		return 0, fmt.Errorf("drop %s: %w", spec.Name, err)
	}

	defs := make([]string, 0, len(spec.Columns)+1)
	registered := make([]models.ColumnDef, 0, len(spec.Columns)+1)
	if spec.RowID {
		defs = append(defs, ident(models.RowIDColumn)+" bigserial PRIMARY KEY")
		registered = append(registered, models.ColumnDef{Name: models.RowIDColumn, Type: "bigint"})
	}
	names := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		defs = append(defs, ident(c.Name)+" text")
		names = append(names, c.Name)
		c.Type = "text"
		registered = append(registered, c)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`CREATE TABLE %s (%s)`, qualified(spec.Name), strings.Join(defs, ", "))); err != nil {
		return 0, fmt.Errorf("create %s: %w", spec.Name, err)
	}

	var copied int64
	if len(rows) > 0 && len(names) > 0 {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{schemaName, spec.Name}, names, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			out := make([]any, len(names))
			for j := range names {
				if j < len(rows[i]) {
					out[j] = rows[i][j]
				}
			}
			return out, nil
		}))
		if err != nil {
			return 0, fmt.Errorf("copy into %s: %w", spec.Name, err)
		}
		copied = n
	}

	colsJSON, err := json.Marshal(registered)
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO dataset_schemas (dataset, columns, source_object, row_count, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NOW())
		ON CONFLICT (dataset) DO UPDATE SET
			columns = EXCLUDED.columns,
			source_object = EXCLUDED.source_object,
			row_count = EXCLUDED.row_count,
			updated_at = EXCLUDED.updated_at
	`, spec.Name, colsJSON, spec.Source, copied)
	if err != nil {
		return 0, fmt.Errorf("register %s: %w", spec.Name, err)
	}

	metrics.DatasetRows.WithLabelValues(spec.Name).Set(float64(copied))
	return copied, nil
}

// ReplaceTable runs ReplaceTableTx in its own locked transaction. Readers see
// either the previous table or the new one.
func (s *Store) ReplaceTable(ctx context.Context, spec TableSpec, rows [][]*string) (int64, error) {
	var n int64
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := LockTables(ctx, tx, spec.Name); err != nil {
			return err
		}
		var err error
		n, err = ReplaceTableTx(ctx, tx, spec, rows)
		return err
	})
	return n, err
}

func DropDatasetTx(ctx context.Context, q DBTX, name string) error {
	if _, err := q.Exec(ctx, `DROP TABLE IF EXISTS `+qualified(name)+` CASCADE`); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	if _, err := q.Exec(ctx, `DELETE FROM dataset_schemas WHERE dataset = $1`, name); err != nil {
		return fmt.Errorf("unregister %s: %w", name, err)
	}
	metrics.DatasetRows.WithLabelValues(name).Set(0)
	return nil
}

// DropDataset removes the tables and their registry rows in one transaction.
func (s *Store) DropDataset(ctx context.Context, names ...string) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := LockTables(ctx, tx, names...); err != nil {
			return err
		}
		for _, n := range names {
			if err := DropDatasetTx(ctx, tx, n); err != nil {
				return err
			}
		}
		return nil
	})
}

// Schema returns the registered columns of a dataset, falling back to the
// catalog for tables created outside the registry.
func Schema(ctx context.Context, q DBTX, name string) (models.DatasetSchema, bool, error) {
	out := models.DatasetSchema{Dataset: name}
	var raw []byte
	var source *string
	err := q.QueryRow(ctx, `
		SELECT columns, source_object, row_count, updated_at
		FROM dataset_schemas WHERE dataset = $1
	`, name).Scan(&raw, &source, &out.RowCount, &out.UpdatedAt)
	switch {
	case err == nil:
		if source != nil {
			out.SourceObject = *source
		}
		if err := json.Unmarshal(raw, &out.Columns); err != nil {
			return out, false, fmt.Errorf("decode schema %s: %w", name, err)
		}
		return out, true, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return out, false, err
	}

	rows, err := q.Query(ctx, `
		SELECT column_name, data_type FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, schemaName, name)
	if err != nil {
		return out, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var c models.ColumnDef
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return out, false, err
		}
		out.Columns = append(out.Columns, c)
	}
	if err := rows.Err(); err != nil {
		return out, false, err
	}
	return out, len(out.Columns) > 0, nil
}

type Order struct {
	Column string
	Desc   bool
}

// Select narrows LoadTable. Zero Limit means no limit.
type Select struct {
	// Columns projects the read onto these columns; absent ones are skipped.
	// Empty reads every column.
	Columns []string

	OrderBy []Order
	Limit   int
	Offset  int
}

// project keeps the schema columns named in want, in schema order.
func project(cols, want []string) []string {
	if len(want) == 0 {
		return cols
	}
	keep := make(map[string]bool, len(want))
	for _, c := range want {
		keep[c] = true
	}
	out := make([]string, 0, len(want))
	for _, c := range cols {
		if keep[c] {
			out = append(out, c)
		}
	}
	return out
}

// LoadTable reads a dataset with every column cast to text. A missing table
// returns ok=false and no error.
func LoadTable(ctx context.Context, q DBTX, name string, sel Select) (models.Table, bool, error) {
	schema, ok, err := Schema(ctx, q, name)
	if err != nil || !ok {
		return models.Table{}, false, err
	}
	exists, err := TableExists(ctx, q, name)
	if err != nil || !exists {
		return models.Table{}, false, err
	}

	all := schema.ColumnNames()
	present := make(map[string]bool, len(all))
	for _, c := range all {
		present[c] = true
	}
	cols := project(all, sel.Columns)
	exprs := make([]string, 0, len(cols))
	for _, c := range cols {
		exprs = append(exprs, ident(c)+"::text")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(exprs, ", "), qualified(name))

	var orders []string
	for _, o := range sel.OrderBy {
		if !present[o.Column] {
			continue
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		orders = append(orders, ident(o.Column)+" "+dir)
	}
	if len(orders) > 0 {
		query += " ORDER BY " + strings.Join(orders, ", ")
	}
	var args []any
	if sel.Limit > 0 {
		args = append(args, sel.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if sel.Offset > 0 {
		args = append(args, sel.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return models.Table{}, false, fmt.Errorf("load %s: %w", name, err)
	}
	defer rows.Close()

	t := models.Table{Columns: cols}
	for rows.Next() {
		vals := make([]*string, len(cols))
		dest := make([]any, len(cols))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return models.Table{}, false, err
		}
		t.Rows = append(t.Rows, vals)
	}
	return t, true, rows.Err()
}

func (s *Store) LoadTable(ctx context.Context, name string, sel Select) (models.Table, bool, error) {
	return LoadTable(ctx, s.Pool, name, sel)
}

func CountRows(ctx context.Context, q DBTX, name string) (int64, error) {
	var n int64
	err := q.QueryRow(ctx, `SELECT count(*) FROM `+qualified(name)).Scan(&n)
	return n, err
}

// Preview returns the first limit rows and the total row count.
func (s *Store) Preview(ctx context.Context, name string, limit int) (models.Preview, error) {
	out := models.Preview{Columns: []string{}, Rows: []map[string]*string{}}
	t, ok, err := s.LoadTable(ctx, name, Select{Limit: limit})
	if err != nil || !ok {
		return out, err
	}
	total, err := CountRows(ctx, s.Pool, name)
	if err != nil {
		return out, err
	}
	out.Exists = true
	out.Columns = t.Columns
	out.Rows = t.Records()
	out.Total = total
	return out, nil
}

// TableStats reports existence and row count for each named table.
func (s *Store) TableStats(ctx context.Context, names []string) (map[string]models.TableStat, error) {
	out := make(map[string]models.TableStat, len(names))
	for _, n := range names {
		exists, err := s.TableExists(ctx, n)
		if err != nil {
			return nil, err
		}
		stat := models.TableStat{Exists: exists}
		if exists {
			if stat.RowCount, err = CountRows(ctx, s.Pool, n); err != nil {
				return nil, err
			}
		}
		out[n] = stat
	}
	return out, nil
}
