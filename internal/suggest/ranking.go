package suggest

import (
	"sort"
	"strings"

	"trade-journal-bot/internal/domain"
)

// Rank produces the full ordered candidate list for a field. Deterministic:
// combined score descending, then lexicographic. Context values (what the
// draft already holds) are stable-sorted to the front regardless of score.
// Truncation to a top-N happens at the presentation boundary, never here.
func Rank(options []string, scores FieldScores, context []string) []domain.FieldOption {
	candidates := Normalize(options)

	// A context value missing from the schema list is still a candidate:
	// what the user already picked must stay visible.
	known := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		known[strings.ToLower(c)] = struct{}{}
	}
	for _, c := range Normalize(context) {
		if _, ok := known[strings.ToLower(c)]; !ok {
			known[strings.ToLower(c)] = struct{}{}
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	inSchema := make(map[string]struct{}, len(options))
	for _, o := range Normalize(options) {
		inSchema[o] = struct{}{}
	}
	boosted := make(map[string]struct{}, len(context))
	for _, c := range context {
		boosted[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}

	ranked := make([]domain.FieldOption, 0, len(candidates))
	for _, c := range candidates {
		_, schema := inSchema[c]
		_, boost := boosted[strings.ToLower(c)]
		ranked = append(ranked, domain.FieldOption{
			Value:    c,
			Personal: scores.Personal[c],
			Global:   scores.Global[c],
			InSchema: schema,
			Boosted:  boost,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Combined() != ranked[j].Combined() {
			return ranked[i].Combined() > ranked[j].Combined()
		}
		return ranked[i].Value < ranked[j].Value
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Boosted && !ranked[j].Boosted
	})

	return ranked
}

// ApplyContextBoost re-applies the boost partition to an already ranked base
// list. The suggestion cache stores context-free rankings; this is the cheap
// per-request step that makes caching by (user, field) alone sound.
func ApplyContextBoost(base []domain.FieldOption, context []string) []domain.FieldOption {
	if len(base) == 0 && len(context) == 0 {
		return nil
	}
	boosted := make(map[string]struct{}, len(context))
	for _, c := range Normalize(context) {
		boosted[strings.ToLower(c)] = struct{}{}
	}

	out := make([]domain.FieldOption, len(base))
	copy(out, base)
	known := make(map[string]struct{}, len(out))
	for i := range out {
		_, out[i].Boosted = boosted[strings.ToLower(out[i].Value)]
		known[strings.ToLower(out[i].Value)] = struct{}{}
	}
	for _, c := range Normalize(context) {
		if _, ok := known[strings.ToLower(c)]; !ok {
			out = append(out, domain.FieldOption{Value: c, Boosted: true})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Boosted && !out[j].Boosted
	})
	return out
}

// TopN cuts a ranking for presentation. n <= 0 means no cut.
func TopN(ranked []domain.FieldOption, n int) []domain.FieldOption {
	if n <= 0 || len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}
