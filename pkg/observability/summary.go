package observability

import (
	"math"
	"sort"

	"github.com/symgym/symgym/pkg/domain"
)

// RunSummary aggregates a batch of episodes into the headline statistics of
// a training run.
type RunSummary struct {
	Episodes int
	Faulted  int

	AverageCoverage float64
	MedianCoverage  float64

	// DistanceToFullCoverage is the euclidean distance between the per-map
	// final-coverage vector and the all-ones vector. Zero means every map
	// reached full coverage.
	DistanceToFullCoverage float64

	TotalReward float64
}

// Summarize computes run statistics over finished episodes. Faulted episodes
// count toward Faulted and still contribute their partial coverage.
func Summarize(episodes []domain.Episode) RunSummary {
	s := RunSummary{Episodes: len(episodes)}
	if len(episodes) == 0 {
		return s
	}

	coverages := make([]float64, 0, len(episodes))
	var sum, distSq float64
	for _, ep := range episodes {
		if ep.Faulted {
			s.Faulted++
		}
		cov := ep.FinalCoverage()
		coverages = append(coverages, cov)
		sum += cov
		distSq += (1 - cov) * (1 - cov)
		s.TotalReward += ep.TotalReward()
	}

	sort.Float64s(coverages)
	s.AverageCoverage = sum / float64(len(coverages))
	s.MedianCoverage = median(coverages)
	s.DistanceToFullCoverage = math.Sqrt(distSq)
	return s
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
