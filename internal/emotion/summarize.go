package emotion

// Summarize aggregates samples into a Summary.
//
// Per-label averages divide by the total number of samples: a sample that does
// not report a label contributes zero to that label. AvgClarity only counts
// samples that carry a clarity value. An empty input yields a zero Summary with
// empty, non-nil maps.
func Summarize(samples []Sample) Summary {
	summary := Summary{
		Averages:        map[string]float64{},
		DominantCounts:  map[string]int{},
		TotalDetections: len(samples),
	}
	if len(samples) == 0 {
		return summary
	}

	var (
		confidenceSum float64
		claritySum    float64
		clarityCount  int
	)

	for _, s := range samples {
		confidenceSum += s.Confidence
		if s.Clarity != nil {
			claritySum += *s.Clarity
			clarityCount++
		}
		summary.DominantCounts[s.Dominant]++
		for label, score := range s.Scores {
			summary.Averages[label] += score
		}
	}

	n := float64(len(samples))
	for label, total := range summary.Averages {
		summary.Averages[label] = total / n
	}

	summary.AvgConfidence = confidenceSum / n
	if clarityCount > 0 {
		summary.AvgClarity = claritySum / float64(clarityCount)
	}

	return summary
}
