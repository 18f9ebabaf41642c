package trustscore

// Trend classifications for AggregateResult.Trend.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// trendThreshold is the minimum last-third-vs-first-third mean delta
// that counts as a trend rather than noise, per spec §4.7.
const trendThreshold = 0.05

// AggregateResult summarizes a sequence of declarations' compliance
// scores, per spec §4.7's "aggregate metrics" definition.
type AggregateResult struct {
	AverageCompliance float64 `json:"average_compliance"`
	AverageGuilt      float64 `json:"average_guilt"`
	DominantLevel     string  `json:"dominant_trust_level"`
	Trend             string  `json:"trend"`
}

// Aggregate computes average compliance, average guilt, the most
// frequent trust level, and a trend classification over an ordered
// sequence of declarations (oldest first). An empty sequence yields
// zero averages, LevelUntrusted and TrendStable, since no observations
// means no detectable change.
func Aggregate(declarations []TrustArticles) AggregateResult {
	if len(declarations) == 0 {
		return AggregateResult{DominantLevel: LevelUntrusted, Trend: TrendStable}
	}

	compliances := make([]float64, len(declarations))
	levelCounts := make(map[string]int, 5)
	var complianceSum, guiltSum float64

	for i, a := range declarations {
		c := Compliance(a)
		compliances[i] = c
		complianceSum += c
		guiltSum += Guilt(c)
		levelCounts[Level(c)]++
	}

	n := float64(len(declarations))
	avgCompliance := round3(complianceSum / n)
	avgGuilt := round3(guiltSum / n)

	return AggregateResult{
		AverageCompliance: avgCompliance,
		AverageGuilt:      avgGuilt,
		DominantLevel:     dominantLevel(levelCounts),
		Trend:             classifyTrend(compliances),
	}
}

// dominantLevel returns the most frequent level, breaking ties by
// preferring the higher trust level — an aggregate that's evenly split
// between two buckets should report the more trusting one rather than
// an arbitrary map-iteration order.
func dominantLevel(counts map[string]int) string {
	ranked := []string{LevelVerified, LevelHigh, LevelMedium, LevelLow, LevelUntrusted}
	best := LevelUntrusted
	bestCount := -1
	for _, level := range ranked {
		if counts[level] > bestCount {
			bestCount = counts[level]
			best = level
		}
	}
	return best
}

// classifyTrend compares the mean of the last third of the sequence
// against the mean of the first third, per spec §4.7.
func classifyTrend(compliances []float64) string {
	third := len(compliances) / 3
	if third == 0 {
		return TrendStable
	}

	firstMean := mean(compliances[:third])
	lastMean := mean(compliances[len(compliances)-third:])
	delta := lastMean - firstMean

	switch {
	case delta >= trendThreshold:
		return TrendImproving
	case delta <= -trendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
