package insights

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/weison-t/thereader/internal/models"
)

func s(v string) *string { return &v }

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12", 12, true},
		{"7.5", 7.5, true},
		{"4:30", 4.5, true},
		{"1:02:30", 62.5, true},
		{"25:00:00", 1500, true},
		{"abc", 0, false},
		{"", 0, false},
		{"nan", 0, false},
		{"inf", 0, false},
		{"NaN:00", 0, false},
		{"1:Infinity", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseDuration(c.in)
		if ok != c.ok || math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("ParseDuration(%q): expected %v/%v, got %v/%v", c.in, c.want, c.ok, got, ok)
		}
	}
}

func TestBucket(t *testing.T) {
	cases := map[float64]string{0: "<5", 4.5: "<5", 5: "<10", 14.9: "<15", 19.99: "<20", 20: "20+", 1500: "20+"}
	for in, want := range cases {
		if got := Bucket(in); got != want {
			t.Fatalf("Bucket(%v): expected %s, got %s", in, want, got)
		}
	}
}

func TestParseSource(t *testing.T) {
	if ParseSource("Sampling").Table() != models.DatasetSampling {
		t.Fatalf("expected sampling table")
	}
	if ParseSource("anything").Table() != models.DatasetSnapshot {
		t.Fatalf("expected snapshot table by default")
	}
}

func TestEmptyResultShape(t *testing.T) {
	b, err := json.Marshal(Empty(SourceProcessed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["exists"] != false {
		t.Fatalf("expected exists false, got %v", m["exists"])
	}
	for _, k := range []string{"department", "agent", "duration_buckets", "timeseries", "vip_by_agent"} {
		arr, ok := m[k].([]any)
		if !ok || len(arr) != 0 {
			t.Fatalf("expected empty array for %s, got %v", k, m[k])
		}
	}
}

func sample() models.Table {
	return models.Table{
		Columns: []string{"id", "department", "agent", "actual_agent", "vip_status", "rating", "duration", "start_time"},
		Rows: [][]*string{
			{s("1"), s("sales"), s("ana"), s("Ana A"), s("vip"), s("5"), s("4:30"), s("2024-03-10 09:00:00")},
			{s("2"), s("sales"), s("ben"), nil, s("normal"), s("3"), s("12"), s("2024-03-10T10:00:00Z")},
			{s("3"), nil, s("ana"), s("Ana A"), s("normal"), s(""), s("oops"), s("2024-03-01")},
			{s("4"), s("support"), nil, nil, nil, nil, s("25:00:00"), s("not a date")},
		},
	}
}

func TestAggregate(t *testing.T) {
	now := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	res := Aggregate(SourceProcessed, sample(), nil, now)

	if !res.Exists || res.Total != 4 {
		t.Fatalf("expected 4 rows, got %+v", res)
	}
	if res.Department[0] != (Count{Key: "sales", Count: 2}) || len(res.Department) != 3 {
		t.Fatalf("unexpected department series: %+v", res.Department)
	}
	if res.Department[1].Key != blankKey {
		t.Fatalf("expected blank key second, got %+v", res.Department)
	}
	wantBuckets := []BucketCount{{"<5", 2}, {"<15", 1}, {"20+", 1}}
	if len(res.DurationBuckets) != len(wantBuckets) {
		t.Fatalf("expected buckets %v, got %v", wantBuckets, res.DurationBuckets)
	}
	for i := range wantBuckets {
		if res.DurationBuckets[i] != wantBuckets[i] {
			t.Fatalf("expected buckets %v, got %v", wantBuckets, res.DurationBuckets)
		}
	}
	if res.KPIs.UniqueAgents != 2 {
		t.Fatalf("expected 2 unique agents, got %d", res.KPIs.UniqueAgents)
	}
	if res.KPIs.VIPPercent != 25 {
		t.Fatalf("expected 25%% vip, got %v", res.KPIs.VIPPercent)
	}
	// (4.5 + 12 + 1500) / 3, "oops" excluded
	if res.KPIs.AvgDurationMinutes == nil || math.Abs(*res.KPIs.AvgDurationMinutes-505.5) > 1e-9 {
		t.Fatalf("unexpected avg duration: %v", res.KPIs.AvgDurationMinutes)
	}
	if res.KPIs.AvgRating == nil || *res.KPIs.AvgRating != 4 {
		t.Fatalf("unexpected avg rating: %v", res.KPIs.AvgRating)
	}
	if len(res.Timeseries) != 2 || res.Timeseries[0].Date != "2024-03-01" || res.Timeseries[1].Count != 2 {
		t.Fatalf("unexpected timeseries: %+v", res.Timeseries)
	}
	if res.VIPByAgent[0] != (AgentTiers{Agent: "Ana A", VIP: 1, Normal: 1}) {
		t.Fatalf("unexpected vip_by_agent: %+v", res.VIPByAgent)
	}
	if len(res.Market) != 0 {
		t.Fatalf("expected empty market series for absent column, got %+v", res.Market)
	}
}

func TestAggregateIgnoresNonFiniteCells(t *testing.T) {
	tbl := models.Table{
		Columns: []string{"id", "agent", "rating", "duration"},
		Rows: [][]*string{
			{s("1"), s("ana"), s("nan"), s("4:30")},
			{s("2"), s("ben"), s("5"), s("NaN:00")},
			{s("3"), s("cy"), s("Infinity"), s("inf")},
		},
	}
	res := Aggregate(SourceProcessed, tbl, nil, time.Now())

	if res.KPIs.AvgRating == nil || *res.KPIs.AvgRating != 5 {
		t.Fatalf("expected avg rating 5 from the only finite cell, got %v", res.KPIs.AvgRating)
	}
	if res.KPIs.AvgDurationMinutes == nil || *res.KPIs.AvgDurationMinutes != 4.5 {
		t.Fatalf("expected avg duration 4.5, got %v", res.KPIs.AvgDurationMinutes)
	}
	if len(res.DurationBuckets) != 1 || res.DurationBuckets[0] != (BucketCount{"<5", 3}) {
		t.Fatalf("expected all rows in <5, got %v", res.DurationBuckets)
	}
	if _, err := json.Marshal(res); err != nil {
		t.Fatalf("expected result to encode, got %v", err)
	}
}

func TestAggregateWindow(t *testing.T) {
	now := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	days := 3
	res := Aggregate(SourceSampling, sample(), &days, now)
	if res.Total != 2 {
		t.Fatalf("expected 2 rows in window, got %d", res.Total)
	}
	if res.Source != SourceSampling {
		t.Fatalf("expected sampling source, got %s", res.Source)
	}
}
