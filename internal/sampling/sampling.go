// Package sampling draws stratified random subsets of the chat snapshot.
package sampling

import (
	"math"
	"math/rand"
	"sort"

	"github.com/weison-t/thereader/internal/models"
)

type Mode string

const (
	ModeAll     Mode = "all"
	ModePercent Mode = "percent"
)

// Request is the wire form; missing modes mean "all", missing percents mean 100.
type Request struct {
	AgentMode     string   `json:"agentMode"`
	AgentPercent  *float64 `json:"agentPercent"`
	ChatMode      string   `json:"chatMode"`
	ChatPercent   *float64 `json:"chatPercent"`
	NormalMode    string   `json:"normalMode"`
	NormalPercent *float64 `json:"normalPercent"`
	VIPMode       string   `json:"vipMode"`
	VIPPercent    *float64 `json:"vipPercent"`
}

type Knob struct {
	Mode    Mode    `json:"mode"`
	Percent float64 `json:"percent"`
}

type Params struct {
	Agent  Knob `json:"agent"`
	Chat   Knob `json:"chat"`
	Normal Knob `json:"normal"`
	VIP    Knob `json:"vip"`
}

func (r Request) Params() Params {
	return Params{
		Agent:  knob(r.AgentMode, r.AgentPercent),
		Chat:   knob(r.ChatMode, r.ChatPercent),
		Normal: knob(r.NormalMode, r.NormalPercent),
		VIP:    knob(r.VIPMode, r.VIPPercent),
	}
}

// AllParams selects every eligible row.
func AllParams() Params {
	return Request{}.Params()
}

func knob(mode string, percent *float64) Knob {
	k := Knob{Mode: ModeAll, Percent: 100}
	if Mode(mode) == ModePercent {
		k.Mode = ModePercent
	}
	if percent != nil && !math.IsNaN(*percent) {
		k.Percent = math.Max(0, math.Min(100, *percent))
	}
	return k
}

// Take converts a knob to an absolute count. Percentages round up, so any
// nonzero percentage of a nonempty population yields at least one.
func Take(k Knob, population int) int {
	if k.Mode != ModePercent {
		return population
	}
	n := int(math.Ceil(k.Percent * float64(population) / 100))
	if n > population {
		n = population
	}
	if n < 0 {
		n = 0
	}
	return n
}

type Stats struct {
	Agents       int `json:"agents"`
	AgentsPicked int `json:"agents_picked"`
	Filtered     int `json:"filtered"`
	Normal       int `json:"normal"`
	NormalPicked int `json:"normal_picked"`
	VIP          int `json:"vip"`
	VIPPicked    int `json:"vip_picked"`
	Selected     int `json:"selected"`
}

// Select returns the indices of t.Rows to keep, applying in order: agent pick,
// agent filter, independent normal/vip strata draws, optional chat down-sample.
// Rows without an agent key never survive the agent filter.
func Select(t models.Table, p Params, rng *rand.Rand) ([]int, Stats) {
	var st Stats
	actualIdx := t.Index("actual_agent")
	agentIdx := t.Index("agent")
	tierIdx := t.Index("vip_status")

	keyOf := func(row []*string) (string, bool) {
		if v := cell(row, actualIdx); v != nil {
			return *v, true
		}
		if v := cell(row, agentIdx); v != nil {
			return *v, true
		}
		return "", false
	}

	var agents []string
	seen := map[string]bool{}
	for _, row := range t.Rows {
		if k, ok := keyOf(row); ok && !seen[k] {
			seen[k] = true
			agents = append(agents, k)
		}
	}
	st.Agents = len(agents)

	picked := map[string]bool{}
	for _, i := range draw(len(agents), Take(p.Agent, len(agents)), rng) {
		picked[agents[i]] = true
	}
	st.AgentsPicked = len(picked)

	var normal, vip []int
	for i, row := range t.Rows {
		k, ok := keyOf(row)
		if !ok || !picked[k] {
			continue
		}
		st.Filtered++
		tier := "normal"
		if v := cell(row, tierIdx); v != nil {
			tier = *v
		}
		switch tier {
		case "normal":
			normal = append(normal, i)
		case "vip":
			vip = append(vip, i)
		}
	}
	st.Normal, st.VIP = len(normal), len(vip)

	union := pick(normal, Take(p.Normal, len(normal)), rng)
	st.NormalPicked = len(union)
	vipPicked := pick(vip, Take(p.VIP, len(vip)), rng)
	st.VIPPicked = len(vipPicked)
	union = append(union, vipPicked...)

	out := union
	if p.Chat.Mode == ModePercent {
		out = pick(union, Take(p.Chat, len(union)), rng)
	}
	st.Selected = len(out)
	return out, st
}

// Apply materializes the selected rows of t.
func Apply(t models.Table, idx []int) models.Table {
	out := models.Table{Columns: t.Columns, Rows: make([][]*string, 0, len(idx))}
	for _, i := range idx {
		out.Rows = append(out.Rows, t.Rows[i])
	}
	return out
}

// pick keeps n of items chosen uniformly without replacement, in their original order.
func pick(items []int, n int, rng *rand.Rand) []int {
	positions := draw(len(items), n, rng)
	out := make([]int, 0, len(positions))
	for _, pos := range positions {
		out = append(out, items[pos])
	}
	return out
}

func draw(population, n int, rng *rand.Rand) []int {
	if n >= population {
		all := make([]int, population)
		for i := range all {
			all[i] = i
		}
		return all
	}
	chosen := rng.Perm(population)[:n]
	sort.Ints(chosen)
	return chosen
}

func cell(row []*string, i int) *string {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}
