package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/weison-t/thereader/internal/cache"
	"github.com/weison-t/thereader/internal/columns"
	"github.com/weison-t/thereader/internal/db"
	"github.com/weison-t/thereader/internal/models"
	"github.com/weison-t/thereader/internal/storage"
)

var (
	ErrUnsupportedDataset = errors.New("unsupported dataset")
	ErrNoStoredFile       = errors.New("no stored file for dataset")
)

const presignExpiry = 15 * time.Minute

// insightsPrefix namespaces cached insights so a rebuild can drop them all.
const insightsPrefix = "insights:"

// Uploadable reports whether dataset accepts CSV uploads.
func Uploadable(dataset string) bool {
	switch dataset {
	case models.DatasetRawChat, models.DatasetAgentInfo, models.DatasetCriteriaScoring:
		return true
	}
	return false
}

// feedsSnapshot reports whether replacing dataset invalidates data_snapshot.
func feedsSnapshot(dataset string) bool {
	return dataset == models.DatasetRawChat || dataset == models.DatasetAgentInfo
}

// Ingestor stores uploaded CSVs and materializes them as tables.
type Ingestor struct {
	Store   *db.Store
	Objects storage.ObjectStore
	Cache   cache.Cache
	Logger  zerolog.Logger
	Now     func() time.Time
}

type UploadResult struct {
	Dataset  string          `json:"dataset"`
	Object   string          `json:"object"`
	Rows     int64           `json:"rows"`
	Columns  []string        `json:"columns"`
	Removed  int             `json:"removed_objects"`
	Snapshot *SnapshotResult `json:"snapshot,omitempty"`
}

type PresignResult struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

func (i *Ingestor) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

func checkUpload(dataset, filename string) error {
	if !Uploadable(dataset) {
		return fmt.Errorf("%w: %q", ErrUnsupportedDataset, dataset)
	}
	if !validateExt(filename) {
		return ErrNotCSV
	}
	return nil
}

// Upload parses data, keeps the original file in object storage and
// replaces the dataset table. Older stored files are removed only after
// the table swap commits.
func (i *Ingestor) Upload(ctx context.Context, dataset, filename string, data []byte) (UploadResult, error) {
	out := UploadResult{Dataset: dataset}
	if err := checkUpload(dataset, filename); err != nil {
		return out, err
	}
	headers, rows, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		return out, err
	}

	key := storage.ObjectKey(dataset, filename, i.now())
	if err := i.Objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "text/csv"); err != nil {
		return out, fmt.Errorf("store %s: %w", key, err)
	}
	out.Object = key

	if err := i.materialize(ctx, dataset, key, headers, rows, &out); err != nil {
		if delErr := i.Objects.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			i.Logger.Warn().Err(delErr).Str("object", key).Msg("failed to remove orphaned upload")
		}
		return out, err
	}

	removed, err := storage.KeepLatest(ctx, i.Objects, dataset, key)
	if err != nil {
		i.Logger.Warn().Err(err).Str("dataset", dataset).Msg("failed to prune stored uploads")
	}
	out.Removed = removed

	i.Logger.Info().
		Str("dataset", dataset).
		Str("object", key).
		Int64("rows", out.Rows).
		Int("removed_objects", removed).
		Msg("dataset uploaded")
	return out, nil
}

// ReloadFromStorage re-materializes dataset from its newest stored file.
func (i *Ingestor) ReloadFromStorage(ctx context.Context, dataset string) (UploadResult, error) {
	if !Uploadable(dataset) {
		return UploadResult{Dataset: dataset}, fmt.Errorf("%w: %q", ErrUnsupportedDataset, dataset)
	}
	latest, err := storage.Latest(ctx, i.Objects, dataset)
	if err != nil {
		return UploadResult{Dataset: dataset}, fmt.Errorf("list %s: %w", dataset, err)
	}
	if latest == nil {
		return UploadResult{Dataset: dataset}, ErrNoStoredFile
	}
	return i.fromObject(ctx, dataset, latest.Key)
}

// IngestObject materializes a file the client already PUT through a
// presigned URL, then prunes the older uploads.
func (i *Ingestor) IngestObject(ctx context.Context, dataset, key string) (UploadResult, error) {
	if err := checkUpload(dataset, key); err != nil {
		return UploadResult{Dataset: dataset}, err
	}
	if !strings.HasPrefix(key, storage.Prefix(dataset)) {
		return UploadResult{Dataset: dataset}, fmt.Errorf("%w: object %q is outside %s", ErrUnsupportedDataset, key, storage.Prefix(dataset))
	}
	out, err := i.fromObject(ctx, dataset, key)
	if err != nil {
		return out, err
	}
	if out.Removed, err = storage.KeepLatest(ctx, i.Objects, dataset, key); err != nil {
		i.Logger.Warn().Err(err).Str("dataset", dataset).Msg("failed to prune stored uploads")
	}
	return out, nil
}

func (i *Ingestor) fromObject(ctx context.Context, dataset, key string) (UploadResult, error) {
	out := UploadResult{Dataset: dataset, Object: key}
	rc, err := i.Objects.Get(ctx, key)
	if err != nil {
		return out, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer rc.Close()
	headers, rows, err := ParseCSV(rc)
	if err != nil {
		return out, err
	}
	if err := i.materialize(ctx, dataset, key, headers, rows, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (i *Ingestor) materialize(ctx context.Context, dataset, source string, headers []string, rows [][]*string, out *UploadResult) error {
	spec := tableSpec(dataset, source, headers)
	locks := []string{dataset}
	if feedsSnapshot(dataset) {
		locks = append(locks, models.DatasetAgentInfo, models.DatasetRawChat, models.DatasetSnapshot)
	}

	err := i.Store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := db.LockTables(ctx, tx, locks...); err != nil {
			return err
		}
		n, err := db.ReplaceTableTx(ctx, tx, spec, rows)
		if err != nil {
			return err
		}
		out.Rows = n
		if feedsSnapshot(dataset) {
			snap, err := rebuildSnapshot(ctx, tx)
			if err != nil {
				return err
			}
			out.Snapshot = &snap
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("materialize %s: %w", dataset, err)
	}

	out.Columns = make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		out.Columns = append(out.Columns, c.Name)
	}
	invalidateInsights(ctx, i.Cache, i.Logger)
	return nil
}

// tableSpec normalizes headers into column definitions. criteria_scoring
// reserves _row_id for its edit key.
func tableSpec(dataset, source string, headers []string) db.TableSpec {
	var reserved []string
	rowID := dataset == models.DatasetCriteriaScoring
	if rowID {
		reserved = append(reserved, models.RowIDColumn)
	}
	names := columns.Normalize(headers, reserved...)
	defs := make([]models.ColumnDef, len(names))
	for k, name := range names {
		defs[k] = models.ColumnDef{Name: name, Header: headers[k]}
	}
	return db.TableSpec{Name: dataset, Columns: defs, RowID: rowID, Source: source}
}

// Latest returns the newest stored file of dataset, nil when none.
func (i *Ingestor) Latest(ctx context.Context, dataset string) (*models.StoredObject, error) {
	if !Uploadable(dataset) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDataset, dataset)
	}
	return storage.Latest(ctx, i.Objects, dataset)
}

// Delete removes stored files and the table. Deleting a snapshot input
// also drops data_snapshot.
func (i *Ingestor) Delete(ctx context.Context, dataset string) (int, error) {
	if !Uploadable(dataset) {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDataset, dataset)
	}
	removed, err := storage.DeleteAll(ctx, i.Objects, dataset)
	if err != nil {
		return removed, fmt.Errorf("delete stored %s: %w", dataset, err)
	}

	tables := []string{dataset}
	if feedsSnapshot(dataset) {
		tables = append(tables, models.DatasetSnapshot)
	}
	if err := i.Store.DropDataset(ctx, tables...); err != nil {
		return removed, err
	}
	invalidateInsights(ctx, i.Cache, i.Logger)
	i.Logger.Info().Str("dataset", dataset).Int("removed_objects", removed).Msg("dataset deleted")
	return removed, nil
}

// PresignUpload returns a URL the browser can PUT the file to directly.
func (i *Ingestor) PresignUpload(ctx context.Context, dataset, filename string) (PresignResult, error) {
	if err := checkUpload(dataset, filename); err != nil {
		return PresignResult{}, err
	}
	key := storage.ObjectKey(dataset, filename, i.now())
	url, err := i.Objects.PresignPut(ctx, key, presignExpiry)
	if err != nil {
		return PresignResult{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return PresignResult{Key: key, URL: url, ExpiresIn: int(presignExpiry.Seconds())}, nil
}

func invalidateInsights(ctx context.Context, c cache.Cache, logger zerolog.Logger) {
	if c == nil {
		return
	}
	if err := c.Invalidate(ctx, insightsPrefix); err != nil {
		logger.Warn().Err(err).Msg("failed to invalidate insights cache")
	}
}
