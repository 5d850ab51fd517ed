package annotation

// Pick returns the first region, in slice order, whose circle strictly
// contains p, along with its index. Overlaps are resolved by position only,
// not by radius or intensity.
func Pick(p Point, regions []Region) (Region, int, bool) {
	for i, r := range regions {
		if r.Contains(p) {
			return r, i, true
		}
	}
	return Region{}, -1, false
}
