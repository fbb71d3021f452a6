package resolve

import "sort"

// platformResult pairs one platform's query outcome with its configured
// priority for selection.
type platformResult struct {
	priority int
	result   ResolvedPrice
}

// selectPlatformPrice picks the authoritative result from the gathered
// platform outcomes. Survivors are results with both a price and a link;
// among survivors the lowest priority value wins (ascending, lower number
// is higher preference). With no survivors, the lowest-priority result is
// returned verbatim, unavailable price and all, so callers always get a
// well-formed ResolvedPrice. An empty candidate set yields the zero result.
func selectPlatformPrice(candidates []platformResult) ResolvedPrice {
	if len(candidates) == 0 {
		return ResolvedPrice{}
	}

	// Stable sort: priorities are unique in the shipped registry, but equal
	// priorities must keep a deterministic (input) order rather than flap.
	ordered := make([]platformResult, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].priority < ordered[j].priority
	})

	for _, c := range ordered {
		if c.result.Available() {
			return c.result
		}
	}
	return ordered[0].result
}
