package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/weison-t/thereader/internal/models"
)

const criteriaRowLimit = 1000

// ErrNoColumns is returned when an update names no known column.
var ErrNoColumns = errors.New("no updatable columns")

type CriteriaUpdate struct {
	ID      int64
	Updates map[string]*string
}

// Criteria loads criteria_scoring in _row_id order.
func (s *Store) Criteria(ctx context.Context) (models.Table, bool, error) {
	return s.LoadTable(ctx, models.DatasetCriteriaScoring, Select{
		OrderBy: []Order{{Column: models.RowIDColumn}},
		Limit:   criteriaRowLimit,
	})
}

// editableColumns returns the updatable columns and the full column list.
func editableColumns(ctx context.Context, q DBTX) (map[string]bool, []string, error) {
	schema, ok, err := Schema(ctx, q, models.DatasetCriteriaScoring)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, Missing(models.DatasetCriteriaScoring)
	}
	all := schema.ColumnNames()
	valid := map[string]bool{}
	for _, c := range all {
		if c != models.RowIDColumn {
			valid[c] = true
		}
	}
	return valid, all, nil
}

func updateCriteriaRow(ctx context.Context, q DBTX, valid map[string]bool, u CriteriaUpdate, returning []string) (map[string]*string, error) {
	keys := make([]string, 0, len(u.Updates))
	for k := range u.Updates {
		if valid[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoColumns
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, u.Updates[k])
		sets = append(sets, fmt.Sprintf("%s = $%d", ident(k), len(args)))
	}
	args = append(args, u.ID)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $%d`,
		qualified(models.DatasetCriteriaScoring), strings.Join(sets, ", "), ident(models.RowIDColumn), len(args))

	if len(returning) == 0 {
		tag, err := q.Exec(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			return nil, pgx.ErrNoRows
		}
		return nil, nil
	}

	exprs := make([]string, 0, len(returning))
	for _, c := range returning {
		exprs = append(exprs, ident(c)+"::text")
	}
	query += " RETURNING " + strings.Join(exprs, ", ")
	vals := make([]*string, len(returning))
	dest := make([]any, len(returning))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := q.QueryRow(ctx, query, args...).Scan(dest...); err != nil {
		return nil, err
	}
	row := make(map[string]*string, len(returning))
	for i, c := range returning {
		row[c] = vals[i]
	}
	return row, nil
}

// UpdateCriteria edits one row. Unknown columns and _row_id are ignored;
// pgx.ErrNoRows means the id does not exist.
func (s *Store) UpdateCriteria(ctx context.Context, u CriteriaUpdate) (map[string]*string, error) {
	valid, all, err := editableColumns(ctx, s.Pool)
	if err != nil {
		return nil, err
	}
	return updateCriteriaRow(ctx, s.Pool, valid, u, all)
}

// BatchUpdateCriteria applies all updates in one transaction and returns the
// number of rows changed. Entries without a known column are skipped.
func (s *Store) BatchUpdateCriteria(ctx context.Context, updates []CriteriaUpdate) (int64, error) {
	var affected int64
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := LockTables(ctx, tx, models.DatasetCriteriaScoring); err != nil {
			return err
		}
		valid, _, err := editableColumns(ctx, tx)
		if err != nil {
			return err
		}
		for _, u := range updates {
			_, err := updateCriteriaRow(ctx, tx, valid, u, nil)
			switch {
			case err == nil:
				affected++
			case errors.Is(err, ErrNoColumns), errors.Is(err, pgx.ErrNoRows):
			default:
				return fmt.Errorf("update row %d: %w", u.ID, err)
			}
		}
		return nil
	})
	return affected, err
}
