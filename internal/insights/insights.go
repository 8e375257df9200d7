// Package insights computes dashboard aggregates over the snapshot and
// sampling tables.
package insights

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/weison-t/thereader/internal/models"
)

type Source string

// Columns are the only columns Aggregate reads.
var Columns = []string{
	"department", "agent", "agent_caller_name", "actual_agent", "market", "vip_status",
	"rating", "category", "country_region", "duration", "start_time", "end_time",
}

const (
	SourceProcessed Source = "processed"
	SourceSampling  Source = "sampling"
)

const (
	seriesLimit = 50
	agentLimit  = 10
	blankKey    = "(blank)"
)

// ParseSource maps a query value onto a source, defaulting to processed.
func ParseSource(s string) Source {
	if strings.EqualFold(strings.TrimSpace(s), string(SourceSampling)) {
		return SourceSampling
	}
	return SourceProcessed
}

func (s Source) Table() string {
	if s == SourceSampling {
		return models.DatasetSampling
	}
	return models.DatasetSnapshot
}

type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type BucketCount struct {
	Bucket string `json:"bucket"`
	Count  int    `json:"count"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type AgentTiers struct {
	Agent  string `json:"agent"`
	VIP    int    `json:"vip"`
	Normal int    `json:"normal"`
}

type KPIs struct {
	UniqueAgents       int      `json:"unique_agents"`
	VIPPercent         float64  `json:"vip_percent"`
	AvgDurationMinutes *float64 `json:"avg_duration_minutes"`
	AvgRating          *float64 `json:"avg_rating"`
}

type Result struct {
	Source          Source        `json:"source"`
	Exists          bool          `json:"exists"`
	Total           int           `json:"total"`
	Department      []Count       `json:"department"`
	Agent           []Count       `json:"agent"`
	ActualAgent     []Count       `json:"actual_agent"`
	Market          []Count       `json:"market"`
	VIPStatus       []Count       `json:"vip_status"`
	Rating          []Count       `json:"rating"`
	Category        []Count       `json:"category"`
	DurationBuckets []BucketCount `json:"duration_buckets"`
	CountryRegion   []Count       `json:"country_region"`
	KPIs            KPIs          `json:"kpis"`
	Timeseries      []DayCount    `json:"timeseries"`
	VIPByAgent      []AgentTiers  `json:"vip_by_agent"`
}

// Empty is the well-formed result for a missing source table.
func Empty(source Source) Result {
	return Result{
		Source:          source,
		Department:      []Count{},
		Agent:           []Count{},
		ActualAgent:     []Count{},
		Market:          []Count{},
		VIPStatus:       []Count{},
		Rating:          []Count{},
		Category:        []Count{},
		DurationBuckets: []BucketCount{},
		CountryRegion:   []Count{},
		Timeseries:      []DayCount{},
		VIPByAgent:      []AgentTiers{},
	}
}

var (
	plainNumber = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
	datePrefix  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

// parseRating accepts finite numbers only; "nan" and "inf" would poison the average.
func parseRating(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseDuration reads minutes from "12", "12.5", "MM:SS" or "H:MM:SS".
func ParseDuration(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if plainNumber.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	parts := strings.Split(s, ":")
	nums := make([]float64, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" && i > 0 {
			continue
		}
		if !plainNumber.MatchString(p) {
			return 0, false
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, false
		}
		nums[i] = f
	}
	switch len(nums) {
	case 2:
		return nums[0] + nums[1]/60, true
	case 3:
		return nums[0]*60 + nums[1] + nums[2]/60, true
	}
	return 0, false
}

var bucketOrder = []string{"<5", "<10", "<15", "<20", "20+"}

func Bucket(minutes float64) string {
	switch {
	case minutes < 5:
		return "<5"
	case minutes < 10:
		return "<10"
	case minutes < 15:
		return "<15"
	case minutes < 20:
		return "<20"
	}
	return "20+"
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// Timestamp parses a value that starts with YYYY-MM-DD, falling back to the
// date alone when the remainder is not a known layout.
func Timestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !datePrefix.MatchString(s) {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	ts, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func rowTime(t models.Table, row []*string) (time.Time, bool) {
	for _, col := range []string{"start_time", "end_time"} {
		if v := t.Value(row, col); v != nil && datePrefix.MatchString(strings.TrimSpace(*v)) {
			return Timestamp(*v)
		}
	}
	return time.Time{}, false
}

type counter map[string]int

func (c counter) top(limit int) []Count {
	out := make([]Count, 0, len(c))
	for k, n := range c {
		out = append(out, Count{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func keyOf(v *string) string {
	if v == nil {
		return blankKey
	}
	return *v
}

// Aggregate computes every series and KPI over t. With days set, only rows
// whose timestamp falls within the last days days are counted.
func Aggregate(source Source, t models.Table, days *int, now time.Time) Result {
	res := Empty(source)
	res.Exists = true

	var since time.Time
	if days != nil {
		since = now.Add(-time.Duration(*days) * 24 * time.Hour)
	}

	agentCol := ""
	if t.Has("agent_caller_name") {
		agentCol = "agent_caller_name"
	} else if t.Has("agent") {
		agentCol = "agent"
	}
	seriesCols := []struct {
		col string
		dst *[]Count
	}{
		{"department", &res.Department},
		{agentCol, &res.Agent},
		{"actual_agent", &res.ActualAgent},
		{"market", &res.Market},
		{"vip_status", &res.VIPStatus},
		{"rating", &res.Rating},
		{"category", &res.Category},
		{"country_region", &res.CountryRegion},
	}
	counters := make([]counter, len(seriesCols))
	for i := range counters {
		counters[i] = counter{}
	}

	hasDuration := t.Has("duration")
	hasVIP := t.Has("vip_status")
	hasAgentKey := agentCol != "" || t.Has("actual_agent")

	buckets := counter{}
	perDay := counter{}
	agents := map[string]struct{}{}
	tiers := map[string]*AgentTiers{}
	var vipRows, durationN, ratingN int
	var durationSum, ratingSum float64

	for _, row := range t.Rows {
		ts, hasTS := rowTime(t, row)
		if days != nil && (!hasTS || ts.Before(since)) {
			continue
		}
		res.Total++

		for i, sc := range seriesCols {
			if sc.col != "" && t.Has(sc.col) {
				counters[i][keyOf(t.Value(row, sc.col))]++
			}
		}

		if hasDuration {
			var minutes float64
			if v := t.Value(row, "duration"); v != nil {
				if m, ok := ParseDuration(*v); ok {
					minutes = m
					durationSum += m
					durationN++
				}
			}
			buckets[Bucket(minutes)]++
		}

		if v := t.Value(row, "rating"); v != nil {
			if f, ok := parseRating(*v); ok {
				ratingSum += f
				ratingN++
			}
		}

		vip := hasVIP && keyOf(t.Value(row, "vip_status")) == "vip"
		if vip {
			vipRows++
		}

		if hasAgentKey {
			key := t.Value(row, "actual_agent")
			if key == nil && agentCol != "" {
				key = t.Value(row, agentCol)
			}
			if key != nil {
				agents[*key] = struct{}{}
			}
			name := keyOf(key)
			at, ok := tiers[name]
			if !ok {
				at = &AgentTiers{Agent: name}
				tiers[name] = at
			}
			if vip {
				at.VIP++
			} else {
				at.Normal++
			}
		}

		if hasTS {
			perDay[ts.Format("2006-01-02")]++
		}
	}

	for i, sc := range seriesCols {
		if sc.col != "" && t.Has(sc.col) {
			*sc.dst = counters[i].top(seriesLimit)
		}
	}
	for _, b := range bucketOrder {
		if n := buckets[b]; n > 0 {
			res.DurationBuckets = append(res.DurationBuckets, BucketCount{Bucket: b, Count: n})
		}
	}
	for d, n := range perDay {
		res.Timeseries = append(res.Timeseries, DayCount{Date: d, Count: n})
	}
	sort.Slice(res.Timeseries, func(i, j int) bool { return res.Timeseries[i].Date < res.Timeseries[j].Date })

	for _, at := range tiers {
		res.VIPByAgent = append(res.VIPByAgent, *at)
	}
	sort.Slice(res.VIPByAgent, func(i, j int) bool {
		a, b := res.VIPByAgent[i], res.VIPByAgent[j]
		if a.VIP+a.Normal != b.VIP+b.Normal {
			return a.VIP+a.Normal > b.VIP+b.Normal
		}
		return a.Agent < b.Agent
	})
	if len(res.VIPByAgent) > agentLimit {
		res.VIPByAgent = res.VIPByAgent[:agentLimit]
	}

	res.KPIs.UniqueAgents = len(agents)
	if hasVIP && res.Total > 0 {
		res.KPIs.VIPPercent = 100 * float64(vipRows) / float64(res.Total)
	}
	if durationN > 0 {
		avg := durationSum / float64(durationN)
		res.KPIs.AvgDurationMinutes = &avg
	}
	if ratingN > 0 {
		avg := ratingSum / float64(ratingN)
		res.KPIs.AvgRating = &avg
	}
	return res
}
