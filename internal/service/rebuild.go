package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/weison-t/thereader/internal/cache"
	"github.com/weison-t/thereader/internal/db"
	"github.com/weison-t/thereader/internal/models"
	"github.com/weison-t/thereader/internal/sampling"
	"github.com/weison-t/thereader/internal/snapshot"
)

const (
	SamplingPreviewRows = 50
	DefaultPageSize     = 20
	MaxPageSize         = 200
)

type SnapshotResult struct {
	Built bool  `json:"built"`
	Rows  int64 `json:"rows"`
}

type SamplingResult struct {
	Params  sampling.Params `json:"params"`
	Stats   sampling.Stats  `json:"stats"`
	Preview models.Preview  `json:"preview"`
}

// Rebuilder maintains the derived tables data_snapshot and sampling_data.
type Rebuilder struct {
	Store  *db.Store
	Cache  cache.Cache
	Logger zerolog.Logger

	// NewRand returns the random source for one sampling draw.
	NewRand func() *rand.Rand
}

func (r *Rebuilder) rng() *rand.Rand {
	if r.NewRand != nil {
		return r.NewRand()
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// rebuildSnapshot replaces data_snapshot from raw_chat and agent_info inside
// tx. Without raw_chat the snapshot is dropped and Built is false.
func rebuildSnapshot(ctx context.Context, tx pgx.Tx) (SnapshotResult, error) {
	raw, ok, err := db.LoadTable(ctx, tx, models.DatasetRawChat, db.Select{})
	if err != nil {
		return SnapshotResult{}, err
	}
	if !ok {
		return SnapshotResult{}, db.DropDatasetTx(ctx, tx, models.DatasetSnapshot)
	}

	var roster *models.Table
	agents, ok, err := db.LoadTable(ctx, tx, models.DatasetAgentInfo, db.Select{})
	if err != nil {
		return SnapshotResult{}, err
	}
	if ok {
		roster = &agents
	}

	snap := snapshot.Build(raw, roster)
	n, err := db.ReplaceTableTx(ctx, tx, db.TableSpec{
		Name:    models.DatasetSnapshot,
		Columns: columnDefs(snap.Columns),
		Source:  models.DatasetRawChat,
	}, snap.Rows)
	if err != nil {
		return SnapshotResult{}, err
	}
	return SnapshotResult{Built: true, Rows: n}, nil
}

// Snapshot rebuilds data_snapshot under the locks of all three tables.
func (r *Rebuilder) Snapshot(ctx context.Context) (SnapshotResult, error) {
	var out SnapshotResult
	err := r.Store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := db.LockTables(ctx, tx, models.DatasetAgentInfo, models.DatasetRawChat, models.DatasetSnapshot); err != nil {
			return err
		}
		var err error
		out, err = rebuildSnapshot(ctx, tx)
		return err
	})
	if err != nil {
		return out, fmt.Errorf("rebuild snapshot: %w", err)
	}
	invalidateInsights(ctx, r.Cache, r.Logger)
	r.Logger.Info().Bool("built", out.Built).Int64("rows", out.Rows).Msg("snapshot rebuilt")
	return out, nil
}

// Sampling draws a sample of data_snapshot into sampling_data.
func (r *Rebuilder) Sampling(ctx context.Context, params sampling.Params) (SamplingResult, error) {
	out := SamplingResult{Params: params}
	err := r.Store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := db.LockTables(ctx, tx, models.DatasetSnapshot, models.DatasetSampling); err != nil {
			return err
		}
		snap, ok, err := db.LoadTable(ctx, tx, models.DatasetSnapshot, db.Select{})
		if err != nil {
			return err
		}
		if !ok {
			return db.Missing(models.DatasetSnapshot)
		}

		idx, stats := sampling.Select(snap, params, r.rng())
		out.Stats = stats
		_, err = db.ReplaceTableTx(ctx, tx, db.TableSpec{
			Name:    models.DatasetSampling,
			Columns: columnDefs(snap.Columns),
			Source:  models.DatasetSnapshot,
		}, sampling.Apply(snap, idx).Rows)
		return err
	})
	if err != nil {
		return out, fmt.Errorf("rebuild sampling: %w", err)
	}
	invalidateInsights(ctx, r.Cache, r.Logger)

	out.Preview, err = r.Store.Preview(ctx, models.DatasetSampling, SamplingPreviewRows)
	if err != nil {
		return out, err
	}
	r.Logger.Info().
		Int("agents", out.Stats.Agents).
		Int("agents_picked", out.Stats.AgentsPicked).
		Int("selected", out.Stats.Selected).
		Msg("sampling rebuilt")
	return out, nil
}

func (r *Rebuilder) SamplingPreview(ctx context.Context) (models.Preview, error) {
	return r.Store.Preview(ctx, models.DatasetSampling, SamplingPreviewRows)
}

func (r *Rebuilder) DeleteSampling(ctx context.Context) error {
	if err := r.Store.DropDataset(ctx, models.DatasetSampling); err != nil {
		return err
	}
	invalidateInsights(ctx, r.Cache, r.Logger)
	return nil
}

// RawChatPage is one page of snapshot-shaped rows keyed by display label.
type RawChatPage struct {
	TableMissing bool                 `json:"tableMissing"`
	Columns      []string             `json:"columns"`
	Mapping      map[string]string    `json:"mapping"`
	Rows         []map[string]*string `json:"rows"`
	Total        int64                `json:"total"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"pageSize"`
}

// ClampPage bounds page to >= 1 and pageSize to 1..MaxPageSize.
func ClampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// RawChatPage computes the snapshot shape on the fly for one page of raw_chat,
// newest chats first.
func (r *Rebuilder) RawChatPage(ctx context.Context, page, pageSize int) (RawChatPage, error) {
	page, pageSize = ClampPage(page, pageSize)
	out := RawChatPage{
		Columns:  []string{},
		Mapping:  map[string]string{},
		Rows:     []map[string]*string{},
		Page:     page,
		PageSize: pageSize,
	}

	raw, ok, err := r.Store.LoadTable(ctx, models.DatasetRawChat, db.Select{
		OrderBy: []db.Order{{Column: "start_time", Desc: true}, {Column: "id"}},
		Limit:   pageSize,
		Offset:  (page - 1) * pageSize,
	})
	if err != nil {
		return out, err
	}
	if !ok {
		out.TableMissing = true
		return out, nil
	}
	if out.Total, err = db.CountRows(ctx, r.Store.Pool, models.DatasetRawChat); err != nil {
		return out, err
	}

	var roster *models.Table
	agents, ok, err := r.Store.LoadTable(ctx, models.DatasetAgentInfo, db.Select{})
	if err != nil {
		return out, err
	}
	if ok {
		roster = &agents
	}

	snap := snapshot.Build(raw, roster)
	labels := make([]string, len(snap.Columns))
	for i, col := range snap.Columns {
		label, ok := snapshot.Labels[col]
		if !ok {
			label = col
		}
		labels[i] = label
		out.Mapping[label] = col
	}
	out.Columns = labels
	for _, row := range snap.Rows {
		rec := make(map[string]*string, len(labels))
		for i, label := range labels {
			rec[label] = row[i]
		}
		out.Rows = append(out.Rows, rec)
	}
	return out, nil
}

func columnDefs(names []string) []models.ColumnDef {
	out := make([]models.ColumnDef, len(names))
	for i, n := range names {
		out[i] = models.ColumnDef{Name: n}
	}
	return out
}
