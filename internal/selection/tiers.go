package selection

import (
	"sort"

	"github.com/tvoe/vidgrab/internal/domain"
)

// ReduceTiers groups variants by height and keeps the one with the highest
// rank bitrate per height, the first seen winning ties. The result is
// ordered by descending height. The input is not modified.
func ReduceTiers(eligible []domain.RawVariant) []domain.RawVariant {
	index := make(map[int]int, len(eligible))
	groups := make([][]domain.RawVariant, 0, len(eligible))

	for _, v := range eligible {
		i, seen := index[v.Height]
		if !seen {
			i = len(groups)
			index[v.Height] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], v)
	}

	reps := make([]domain.RawVariant, 0, len(groups))
	for _, members := range groups {
		rank := rankBitrate(members)
		best := members[0]
		for _, v := range members[1:] {
			if rank(v) > rank(best) {
				best = v
			}
		}
		reps = append(reps, best)
	}

	sort.SliceStable(reps, func(i, j int) bool {
		return reps[i].Height > reps[j].Height
	})
	return reps
}

// rankBitrate picks the field one tier is compared on: the total bitrate
// when any member reports it, otherwise the video bitrate.
func rankBitrate(members []domain.RawVariant) func(domain.RawVariant) float64 {
	for _, v := range members {
		if v.TotalBitrateKbps > 0 {
			return func(v domain.RawVariant) float64 { return v.TotalBitrateKbps }
		}
	}
	return func(v domain.RawVariant) float64 { return v.VideoBitrateKbps }
}

// FilterEligible returns the variants the policy allows, in source order.
func FilterEligible(variants []domain.RawVariant, policy ResolutionPolicy) []domain.RawVariant {
	out := make([]domain.RawVariant, 0, len(variants))
	for _, v := range variants {
		if policy.IsEligible(v) {
			out = append(out, v)
		}
	}
	return out
}
