package annotation

// Detect returns every (annotation, region) pair where the annotation point
// lies strictly inside the region's circle.
//
// Only the region's radius is considered; annotations have no extent. One
// annotation can match several overlapping regions and one region can match
// several annotations; nothing is deduplicated. Results are ordered with
// annotations as the outer loop and regions as the inner loop.
//
// The result is never nil, so an empty match set encodes as [] in JSON.
func Detect(annotations []Annotation, regions []Region) []ConsensusRegion {
	matches := make([]ConsensusRegion, 0)
	if len(annotations) == 0 || len(regions) == 0 {
		return matches
	}

	for _, a := range annotations {
		for _, r := range regions {
			d := Distance(a.Point, r.Center)
			if d >= r.Radius {
				continue
			}
			matches = append(matches, ConsensusRegion{
				Annotation: a,
				Region:     r,
				Center: Point{
					X: (a.Point.X + r.Center.X) / 2,
					Y: (a.Point.Y + r.Center.Y) / 2,
				},
				Radius: d/2 + r.Radius/2,
			})
		}
	}

	return matches
}
