package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/weison-t/thereader/internal/ai"
	"github.com/weison-t/thereader/internal/cache"
	"github.com/weison-t/thereader/internal/db"
	"github.com/weison-t/thereader/internal/insights"
	"github.com/weison-t/thereader/internal/models"
	"github.com/weison-t/thereader/internal/sampling"
	"github.com/weison-t/thereader/internal/scoring"
	"github.com/weison-t/thereader/internal/secret"
	"github.com/weison-t/thereader/internal/storage"
)

func s(v string) *string { return &v }

func TestParseCSV(t *testing.T) {
	in := "\ufeffID,Agent,Content\n1,ana,\"hello, there\"\n\n2,ben\n3,cy,hi,extra\n"
	headers, rows, err := ParseCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if strings.Join(headers, "|") != "ID|Agent|Content" {
		t.Fatalf("expected BOM-free headers, got %q", headers)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows with blank line skipped, got %d", len(rows))
	}
	if rows[0][2] == nil || *rows[0][2] != "hello, there" {
		t.Fatalf("expected quoted field to keep its comma, got %v", rows[0][2])
	}
	if rows[1][2] != nil {
		t.Fatalf("expected short row padded with NULL, got %q", *rows[1][2])
	}
	if len(rows[2]) != 3 {
		t.Fatalf("expected long row cut to header width, got %d cells", len(rows[2]))
	}
}

func TestParseCSVEmpty(t *testing.T) {
	if _, _, err := ParseCSV(strings.NewReader("")); !errors.Is(err, ErrEmptyCSV) {
		t.Fatalf("expected ErrEmptyCSV, got %v", err)
	}
}

func TestUploadRejectsBeforeStoring(t *testing.T) {
	objects := storage.NewMemoryStore()
	ing := &Ingestor{Objects: objects, Logger: zerolog.Nop()}
	ctx := context.Background()

	if _, err := ing.Upload(ctx, "sales", "a.csv", []byte("a\n1\n")); !errors.Is(err, ErrUnsupportedDataset) {
		t.Fatalf("expected ErrUnsupportedDataset, got %v", err)
	}
	if _, err := ing.Upload(ctx, models.DatasetRawChat, "a.xlsx", []byte("a\n1\n")); !errors.Is(err, ErrNotCSV) {
		t.Fatalf("expected ErrNotCSV, got %v", err)
	}
	if _, err := ing.Upload(ctx, models.DatasetRawChat, "a.csv", nil); !errors.Is(err, ErrEmptyCSV) {
		t.Fatalf("expected ErrEmptyCSV, got %v", err)
	}
	objs, _ := objects.List(ctx, "")
	if len(objs) != 0 {
		t.Fatalf("expected nothing stored, got %d objects", len(objs))
	}
}

func TestIngestObjectStaysUnderDatasetPrefix(t *testing.T) {
	objects := storage.NewMemoryStore()
	ing := &Ingestor{Objects: objects, Logger: zerolog.Nop()}
	ctx := context.Background()
	if err := objects.Put(ctx, "agent_info/1_roster.csv", strings.NewReader("a\n1\n"), 4, "text/csv"); err != nil {
		t.Fatalf("put: %v", err)
	}

	_, err := ing.IngestObject(ctx, models.DatasetRawChat, "agent_info/1_roster.csv")
	if !errors.Is(err, ErrUnsupportedDataset) {
		t.Fatalf("expected key outside raw_chat/ to be rejected, got %v", err)
	}
	objs, _ := objects.List(ctx, "")
	if len(objs) != 1 {
		t.Fatalf("expected the foreign object to survive, got %d objects", len(objs))
	}
}

func TestPresignUpload(t *testing.T) {
	ing := &Ingestor{
		Objects: storage.NewMemoryStore(),
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return time.UnixMilli(1700000000000) },
	}
	res, err := ing.PresignUpload(context.Background(), models.DatasetAgentInfo, "roster (v2).CSV")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Key != "agent_info/1700000000000_roster_v2_.CSV" {
		t.Fatalf("expected sanitized key, got %s", res.Key)
	}
	if !strings.HasPrefix(res.URL, "memory://agent_info/") || res.ExpiresIn != 900 {
		t.Fatalf("unexpected presign result %+v", res)
	}
}

func TestReloadWithoutStoredFile(t *testing.T) {
	ing := &Ingestor{Objects: storage.NewMemoryStore(), Logger: zerolog.Nop()}
	if _, err := ing.ReloadFromStorage(context.Background(), models.DatasetCriteriaScoring); !errors.Is(err, ErrNoStoredFile) {
		t.Fatalf("expected ErrNoStoredFile, got %v", err)
	}
	if _, err := ing.Latest(context.Background(), models.DatasetSnapshot); !errors.Is(err, ErrUnsupportedDataset) {
		t.Fatalf("expected derived tables to be rejected, got %v", err)
	}
}

func TestTableSpecReservesRowID(t *testing.T) {
	spec := tableSpec(models.DatasetCriteriaScoring, "criteria_scoring/1_c.csv", []string{"_row_id", "Customer Type", "Criteria"})
	if !spec.RowID {
		t.Fatalf("expected criteria_scoring to carry a row id")
	}
	got := []string{spec.Columns[0].Name, spec.Columns[1].Name, spec.Columns[2].Name}
	if strings.Join(got, ",") != "_row_id_2,customer_type,criteria" {
		t.Fatalf("expected reserved _row_id to be suffixed, got %v", got)
	}
	if spec.Columns[1].Header != "Customer Type" {
		t.Fatalf("expected original header kept, got %q", spec.Columns[1].Header)
	}

	raw := tableSpec(models.DatasetRawChat, "", []string{"_row_id"})
	if raw.RowID || raw.Columns[0].Name != "_row_id" {
		t.Fatalf("expected raw_chat to keep the plain name, got %+v", raw)
	}
}

type countingLoader struct {
	calls int
	last  db.Select
	table models.Table
	ok    bool
}

func (c *countingLoader) LoadTable(ctx context.Context, name string, sel db.Select) (models.Table, bool, error) {
	c.calls++
	c.last = sel
	return c.table, c.ok, nil
}

func TestInsightsCachedUntilInvalidated(t *testing.T) {
	loader := &countingLoader{ok: true, table: models.Table{
		Columns: []string{"agent", "vip_status", "start_time"},
		Rows: [][]*string{
			{s("ana"), s("vip"), s("2024-05-01 10:00:00")},
			{s("ben"), s("normal"), s("2024-05-02 10:00:00")},
		},
	}}
	c := cache.NewMemoryCache(time.Minute)
	svc := &InsightsService{Tables: loader, Cache: c, TTL: time.Minute, Logger: zerolog.Nop()}
	ctx := context.Background()

	first, err := svc.Get(ctx, insights.SourceProcessed, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, _ := svc.Get(ctx, insights.SourceProcessed, nil)
	if loader.calls != 1 {
		t.Fatalf("expected one load, got %d", loader.calls)
	}
	if first.Total != 2 || second.Total != 2 || second.KPIs.UniqueAgents != 2 {
		t.Fatalf("expected cached result to match, got %+v", second)
	}

	days := 7
	if _, err := svc.Get(ctx, insights.SourceProcessed, &days); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected a separate entry per window, got %d loads", loader.calls)
	}

	invalidateInsights(ctx, c, zerolog.Nop())
	if _, err := svc.Get(ctx, insights.SourceProcessed, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if loader.calls != 3 {
		t.Fatalf("expected reload after invalidation, got %d loads", loader.calls)
	}
}

func TestInsightsMissingTable(t *testing.T) {
	svc := &InsightsService{Tables: &countingLoader{}, Logger: zerolog.Nop()}
	res, err := svc.Get(context.Background(), insights.SourceSampling, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Exists || res.Source != insights.SourceSampling || res.Department == nil {
		t.Fatalf("expected empty sampling result, got %+v", res)
	}
}

func TestInsightsReadsOnlyAggregatedColumns(t *testing.T) {
	loader := &countingLoader{}
	svc := &InsightsService{Tables: loader, Logger: zerolog.Nop()}
	if _, err := svc.Get(context.Background(), insights.SourceProcessed, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(loader.last.Columns) == 0 {
		t.Fatalf("expected a column projection, got %+v", loader.last)
	}
	for _, c := range loader.last.Columns {
		if c == "content" {
			t.Fatalf("expected content not to be read, got %v", loader.last.Columns)
		}
	}
}

func TestSampleSelect(t *testing.T) {
	cases := []struct{ limit, want int }{
		{0, 0},
		{-1, 0},
		{5, 5},
		{MaxProcessLimit + 1, MaxProcessLimit},
	}
	for _, c := range cases {
		if got := sampleSelect(c.limit).Limit; got != c.want {
			t.Fatalf("sampleSelect(%d): expected limit %d, got %d", c.limit, c.want, got)
		}
	}
}

func TestInsightsKey(t *testing.T) {
	days := 0
	if got := InsightsKey(insights.SourceSampling, &days); got != "insights:sampling:0" {
		t.Fatalf("expected insights:sampling:0, got %s", got)
	}
	if got := InsightsKey(insights.SourceProcessed, nil); got != "insights:processed:all" {
		t.Fatalf("expected insights:processed:all, got %s", got)
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct{ page, size, wantPage, wantSize int }{
		{0, 0, 1, 20},
		{3, 500, 3, 200},
		{-2, 1, 1, 1},
	}
	for _, c := range cases {
		p, sz := ClampPage(c.page, c.size)
		if p != c.wantPage || sz != c.wantSize {
			t.Fatalf("ClampPage(%d, %d): expected %d/%d, got %d/%d", c.page, c.size, c.wantPage, c.wantSize, p, sz)
		}
	}
}

func TestDecryptKey(t *testing.T) {
	if _, err := decryptKey(nil, models.APIConfiguration{}); !errors.Is(err, scoring.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	box, err := secret.New("passphrase")
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	sealed, _ := box.Encrypt("sk-test")
	cfg := models.APIConfiguration{OpenAIKeyEncrypted: &sealed}
	if _, err := decryptKey(nil, cfg); !errors.Is(err, secret.ErrNoKey) {
		t.Fatalf("expected ErrNoKey without a box, got %v", err)
	}
	key, err := decryptKey(box, cfg)
	if err != nil || key != "sk-test" {
		t.Fatalf("expected sk-test, got %q (%v)", key, err)
	}
}

func TestSettingsValidation(t *testing.T) {
	svc := &SettingsService{Probe: ai.MockProber{}, Logger: zerolog.Nop()}
	ctx := context.Background()
	if err := svc.TestKey(ctx, "  "); !errors.Is(err, scoring.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if err := svc.TestKey(ctx, "sk-live"); err != nil {
		t.Fatalf("expected mock probe to accept key, got %v", err)
	}
	if err := svc.TestModel(ctx, "sk-live", "GPT-3"); !errors.Is(err, ErrInvalidModel) {
		t.Fatalf("expected ErrInvalidModel, got %v", err)
	}
	if err := svc.TestModel(ctx, "sk-live", "GPT-5 nano"); err != nil {
		t.Fatalf("expected model probe to pass, got %v", err)
	}
	if _, err := svc.SaveAPI(ctx, APISettingsUpdate{Model: "Claude"}); !errors.Is(err, ErrInvalidModel) {
		t.Fatalf("expected ErrInvalidModel, got %v", err)
	}
}

func TestUploadRebuildsSnapshotIntegration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := db.New(ctx, url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}

	objects := storage.NewMemoryStore()
	ing := &Ingestor{Store: store, Objects: objects, Cache: cache.NewMemoryCache(time.Minute), Logger: zerolog.Nop()}

	roster := "Specialist Name as per Schedule,Specialist Live Chat Name,Market\nAna Lopez,ana.l,MY\n"
	if _, err := ing.Upload(ctx, models.DatasetAgentInfo, "roster.csv", []byte(roster)); err != nil {
		t.Fatalf("upload roster: %v", err)
	}
	chats := "ID,Agent,Content,Custom Variables,Start Time\n1,Ana Lopez,hi,type:VIP,2024-05-01 10:00:00\n2,ghost,yo,,2024-05-02 10:00:00\n"
	res, err := ing.Upload(ctx, models.DatasetRawChat, "chats.csv", []byte(chats))
	if err != nil {
		t.Fatalf("upload chats: %v", err)
	}
	if res.Rows != 2 || res.Snapshot == nil || !res.Snapshot.Built || res.Snapshot.Rows != 2 {
		t.Fatalf("expected 2 rows and a built snapshot, got %+v", res)
	}

	if _, err := ing.Upload(ctx, models.DatasetRawChat, "chats2.csv", []byte(chats)); err != nil {
		t.Fatalf("second upload: %v", err)
	}
	objs, _ := objects.List(ctx, storage.Prefix(models.DatasetRawChat))
	if len(objs) != 1 {
		t.Fatalf("expected only the latest upload kept, got %d", len(objs))
	}

	reb := &Rebuilder{Store: store, Logger: zerolog.Nop()}
	page, err := reb.RawChatPage(ctx, 1, 20)
	if err != nil {
		t.Fatalf("raw chat page: %v", err)
	}
	if page.TableMissing || page.Total != 2 || page.Mapping["Actual Agent"] != "actual_agent" {
		t.Fatalf("unexpected raw chat page %+v", page)
	}
	if v := page.Rows[0]["ID"]; v == nil || *v != "2" {
		t.Fatalf("expected newest chat first, got %v", v)
	}

	samp, err := reb.Sampling(ctx, sampling.AllParams())
	if err != nil {
		t.Fatalf("sampling: %v", err)
	}
	if samp.Stats.Selected != 2 || samp.Stats.Agents != 2 || samp.Preview.Total != 2 {
		t.Fatalf("expected both chats sampled, got %+v", samp.Stats)
	}

	if _, err := ing.Delete(ctx, models.DatasetRawChat); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := store.TableExists(ctx, models.DatasetSnapshot); ok {
		t.Fatalf("expected snapshot dropped with raw_chat")
	}
	if _, err := reb.Sampling(ctx, sampling.AllParams()); !errors.Is(err, db.ErrTableMissing) {
		t.Fatalf("expected ErrTableMissing without a snapshot, got %v", err)
	}
}
