// Package roster resolves chat agent display names against the agent roster.
//
// Names are compared after folding case, accents, whitespace and punctuation.
// A roster row contributes up to two candidates: its schedule name (priority 1)
// and its live-chat name (priority 2). Both resolve to the schedule name when
// the row has one.
package roster

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	PrioritySchedule = 1
	PriorityLive     = 2
)

type Entry struct {
	ScheduleName *string
	LiveName     *string
	Market       *string
}

type Match struct {
	Agent    string
	Market   *string
	Priority int
}

type Index struct {
	byName map[string]Match
}

// NormalizeName folds s into its comparison key. The key is empty when s has
// no letters or digits.
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BuildIndex runs two passes over entries: schedule names first, then
// live-chat names. Per key the lowest priority wins, then the lexically
// smallest identity.
func BuildIndex(entries []Entry) *Index {
	idx := &Index{byName: map[string]Match{}}
	for _, e := range entries {
		if name, ok := nonBlank(e.ScheduleName); ok {
			idx.offer(name, Match{Agent: name, Market: e.Market, Priority: PrioritySchedule})
		}
	}
	for _, e := range entries {
		live, ok := nonBlank(e.LiveName)
		if !ok {
			continue
		}
		identity := live
		if sched, ok := nonBlank(e.ScheduleName); ok {
			identity = sched
		}
		idx.offer(live, Match{Agent: identity, Market: e.Market, Priority: PriorityLive})
	}
	return idx
}

func (i *Index) offer(name string, m Match) {
	key := NormalizeName(name)
	if key == "" {
		return
	}
	cur, ok := i.byName[key]
	if !ok || better(m, cur) {
		i.byName[key] = m
	}
}

func better(a, b Match) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Agent < b.Agent
}

// Resolve returns the canonical agent for a display name.
func (i *Index) Resolve(name string) (Match, bool) {
	if i == nil {
		return Match{}, false
	}
	key := NormalizeName(name)
	if key == "" {
		return Match{}, false
	}
	m, ok := i.byName[key]
	return m, ok
}

func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.byName)
}

func nonBlank(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return "", false
	}
	return *s, true
}
