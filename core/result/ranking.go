package result

import "sort"

// Rank orders results by score (best first) and assigns standard competition places:
// equal scores share a place and the following place is skipped (1, 2, 2, 4).
// `results` is not modified.
func Rank(results []Result) []Result {
	ranked := make([]Result, len(results))
	copy(ranked, results)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	for i := range ranked {
		if i > 0 && ranked[i].Score == ranked[i-1].Score {
			ranked[i].Place = ranked[i-1].Place
		} else {
			ranked[i].Place = i + 1
		}
	}
	return ranked
}
