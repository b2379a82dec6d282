package emotion

import (
	"sort"
	"time"
)

const sessionKeyPrefix = "emotion-summary:"

// SessionKey returns the persistence key of the summary for an interview.
func SessionKey(interviewID string) string {
	return sessionKeyPrefix + interviewID
}

// Sample is one inference result taken from a single captured frame.
type Sample struct {
	Timestamp  time.Time          `json:"timestamp"`
	Dominant   string             `json:"dominant"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores"`
	// Clarity is nil when the inference result did not report it.
	Clarity *float64 `json:"clarity,omitempty"`
}

// Summary holds aggregate statistics of a session. It is always derived from
// the full sample sequence with Summarize and never mutated incrementally.
type Summary struct {
	Averages        map[string]float64 `json:"averages" yaml:"averages"`
	DominantCounts  map[string]int     `json:"dominantCounts" yaml:"dominantCounts"`
	AvgConfidence   float64            `json:"avgConfidence" yaml:"avgConfidence"`
	AvgClarity      float64            `json:"avgClarity" yaml:"avgClarity"`
	TotalDetections int                `json:"totalDetections" yaml:"totalDetections"`
}

// LabelCount pairs a dominant label with the number of samples it won.
type LabelCount struct {
	Label string `json:"label" yaml:"label"`
	Count int    `json:"count" yaml:"count"`
}

// TopDominant returns up to n dominant labels ordered by count, ties broken by label.
// A non-positive n returns all of them.
func (s *Summary) TopDominant(n int) []LabelCount {
	if s == nil {
		return nil
	}

	out := make([]LabelCount, 0, len(s.DominantCounts))
	for label, count := range s.DominantCounts {
		out = append(out, LabelCount{Label: label, Count: count})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})

	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ConfidenceRating buckets an average confidence into a human readable rating.
func ConfidenceRating(avg float64) string {
	switch {
	case avg >= 80:
		return "Very High"
	case avg >= 60:
		return "High"
	case avg >= 40:
		return "Moderate"
	case avg >= 20:
		return "Low"
	default:
		return "Very Low"
	}
}
