// Package snapshot derives the denormalized chat snapshot from raw_chat and
// the agent roster.
package snapshot

import (
	"strings"

	"github.com/weison-t/thereader/internal/models"
	"github.com/weison-t/thereader/internal/roster"
)

// ExpectedColumns lists the raw_chat columns carried into the snapshot, in order.
var ExpectedColumns = []string{
	"id", "name", "department", "agent", "content", "start_time", "end_time",
	"request_page", "custom_variables", "rating", "rating_comment", "category",
	"duration", "campaign", "country_region",
}

const (
	ColActualAgent = "actual_agent"
	ColMarket      = "market"
	ColVIPStatus   = "vip_status"

	RosterSchedule = "specialist_name_as_per_schedule"
	RosterLive     = "specialist_live_chat_name"
	RosterMarket   = "market"

	// VIPMarker is searched case-insensitively in custom_variables.
	VIPMarker  = "type:vip"
	TierVIP    = "vip"
	TierNormal = "normal"
)

// Labels maps snapshot columns to the display labels used by the raw chat view.
var Labels = map[string]string{
	"id":               "ID",
	"name":             "Name",
	"department":       "Department",
	"agent":            "Agent",
	ColActualAgent:     "Actual Agent",
	ColMarket:          "Market",
	"content":          "Content",
	"start_time":       "Start Time",
	"end_time":         "End Time",
	"request_page":     "Request Page",
	"custom_variables": "Custom Variables",
	ColVIPStatus:       "VIP Status",
	"rating":           "Rating",
	"rating_comment":   "Rating Comment",
	"category":         "Category",
	"duration":         "Duration",
	"campaign":         "Campaign",
	"country_region":   "Country/Region",
}

// VIPStatus classifies a custom-variable blob.
func VIPStatus(customVariables *string) string {
	if customVariables != nil && strings.Contains(strings.ToLower(*customVariables), VIPMarker) {
		return TierVIP
	}
	return TierNormal
}

// Columns returns the snapshot layout for a raw table: present expected
// columns, with actual_agent and market after agent and vip_status after
// custom_variables.
func Columns(raw models.Table) []string {
	var out []string
	for _, col := range ExpectedColumns {
		if raw.Has(col) {
			out = append(out, col)
		}
		switch col {
		case "agent":
			out = append(out, ColActualAgent, ColMarket)
		case "custom_variables":
			out = append(out, ColVIPStatus)
		}
	}
	return out
}

// RosterEntries reads roster rows; ok is false when the table has neither name column.
func RosterEntries(t *models.Table) ([]roster.Entry, bool) {
	if t == nil || (!t.Has(RosterSchedule) && !t.Has(RosterLive)) {
		return nil, false
	}
	entries := make([]roster.Entry, 0, len(t.Rows))
	for _, row := range t.Rows {
		entries = append(entries, roster.Entry{
			ScheduleName: t.Value(row, RosterSchedule),
			LiveName:     t.Value(row, RosterLive),
			Market:       t.Value(row, RosterMarket),
		})
	}
	return entries, true
}

type Builder struct {
	index *roster.Index
}

// NewBuilder indexes the roster. A nil or nameless roster yields NULL
// actual_agent and market for every row.
func NewBuilder(agentInfo *models.Table) *Builder {
	entries, ok := RosterEntries(agentInfo)
	if !ok {
		return &Builder{}
	}
	return &Builder{index: roster.BuildIndex(entries)}
}

func (b *Builder) Build(raw models.Table) models.Table {
	cols := Columns(raw)
	out := models.Table{Columns: cols, Rows: make([][]*string, 0, len(raw.Rows))}
	hasAgent := raw.Has("agent")
	hasCustom := raw.Has("custom_variables")

	for _, row := range raw.Rows {
		var actual, market *string
		if hasAgent && b.index != nil {
			if agent := raw.Value(row, "agent"); agent != nil {
				if m, ok := b.index.Resolve(*agent); ok {
					name := m.Agent
					actual = &name
					market = m.Market
				}
			}
		}

		next := make([]*string, len(cols))
		for i, col := range cols {
			switch col {
			case ColActualAgent:
				next[i] = actual
			case ColMarket:
				next[i] = market
			case ColVIPStatus:
				if hasCustom {
					tier := VIPStatus(raw.Value(row, "custom_variables"))
					next[i] = &tier
				}
			default:
				next[i] = raw.Value(row, col)
			}
		}
		out.Rows = append(out.Rows, next)
	}
	return out
}

// Build is a one-shot NewBuilder(agentInfo).Build(raw).
func Build(raw models.Table, agentInfo *models.Table) models.Table {
	return NewBuilder(agentInfo).Build(raw)
}
