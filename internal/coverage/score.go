package coverage

// Score is the coverage percentage, 0.0 when nothing is coverable.
func Score(covered, coverable int) float64 {
	if coverable == 0 {
		return 0.0
	}
	return 100 * float64(covered) / float64(coverable)
}
