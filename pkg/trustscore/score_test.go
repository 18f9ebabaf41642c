package trustscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allTrue() TrustArticles {
	return TrustArticles{
		InspectionMandate:    true,
		ConsentArchitecture:  true,
		EthicalOverride:      true,
		ContinuousValidation: true,
		RightToDisconnect:    true,
		MoralRecognition:     true,
	}
}

func TestNewTrustArticlesFromMap_ExactSixKeys(t *testing.T) {
	valid := map[string]bool{
		"inspection_mandate":    true,
		"consent_architecture":  true,
		"ethical_override":      true,
		"continuous_validation": true,
		"right_to_disconnect":   true,
		"moral_recognition":     true,
	}
	a, err := NewTrustArticlesFromMap(valid)
	require.NoError(t, err)
	assert.True(t, a.ConsentArchitecture)
}

func TestNewTrustArticlesFromMap_MissingKeyRejected(t *testing.T) {
	missing := map[string]bool{
		"inspection_mandate":    true,
		"consent_architecture":  true,
		"ethical_override":      true,
		"continuous_validation": true,
		"right_to_disconnect":   true,
		// moral_recognition omitted
	}
	_, err := NewTrustArticlesFromMap(missing)
	assert.Error(t, err)
}

func TestNewTrustArticlesFromMap_ExtraKeyRejected(t *testing.T) {
	extra := map[string]bool{
		"inspection_mandate":    true,
		"consent_architecture":  true,
		"ethical_override":      true,
		"continuous_validation": true,
		"right_to_disconnect":   true,
		"moral_recognition":     true,
		"unknown_article":       true,
	}
	_, err := NewTrustArticlesFromMap(extra)
	assert.Error(t, err)
}

func TestNewTrustArticlesFromMap_TypoKeyRejected(t *testing.T) {
	typo := map[string]bool{
		"inspection_mandate":    true,
		"consent_architecture":  true,
		"ethical_overide":       true, // typo of ethical_override
		"continuous_validation": true,
		"right_to_disconnect":   true,
		"moral_recognition":     true,
	}
	_, err := NewTrustArticlesFromMap(typo)
	assert.Error(t, err)
}

func TestCompliance_AllTrueYields105(t *testing.T) {
	assert.Equal(t, 1.05, Compliance(allTrue()))
}

func TestCompliance_AllFalseYieldsZero(t *testing.T) {
	assert.Equal(t, 0.0, Compliance(TrustArticles{}))
}

func TestCompliance_ConsentArchitectureFalseForcesBelow070(t *testing.T) {
	// The heavier-weighted critical article (weight 0.25): base = 1.00 -
	// 0.25 = 0.75, no all-true bonus, penalty 0.10 => 0.65. This is the
	// scenario the spec's §9 Open Questions flags as the one that does
	// satisfy "critical violation forces compliance_score < 0.70";
	// ethical_override alone (weight 0.15) yields 0.75, which does not.
	a := allTrue()
	a.ConsentArchitecture = false
	assert.Less(t, Compliance(a), 0.70)
}

func TestCompliance_EthicalOverrideAloneDoesNotForceBelow070(t *testing.T) {
	// Documents the spec's known arithmetic boundary (spec.md §9,
	// scenario E): the lighter-weighted critical article alone yields
	// exactly 0.75, not below 0.70. The formula is implemented verbatim
	// per the spec's resolution of this Open Question.
	a := allTrue()
	a.EthicalOverride = false
	assert.Equal(t, 0.75, Compliance(a))
}

func TestCompliance_Monotonicity(t *testing.T) {
	base := TrustArticles{}
	without := Compliance(base)

	base.RightToDisconnect = true
	with := Compliance(base)

	assert.GreaterOrEqual(t, with, without)
}

func TestGuilt_IsComplementOfCompliance(t *testing.T) {
	assert.Equal(t, 0.0, Guilt(1.05))
	assert.Equal(t, 1.0, Guilt(0.0))
	assert.Equal(t, 0.35, Guilt(0.65))
}

func TestLevel_Thresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{1.05, LevelVerified},
		{0.90, LevelVerified},
		{0.89, LevelHigh},
		{0.70, LevelHigh},
		{0.69, LevelMedium},
		{0.50, LevelMedium},
		{0.49, LevelLow},
		{0.30, LevelLow},
		{0.29, LevelUntrusted},
		{0.0, LevelUntrusted},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Level(c.score), "score=%v", c.score)
	}
}

func TestScore_MatchesSpecScenarioAllTrue(t *testing.T) {
	result := Score(allTrue())
	assert.Equal(t, 1.05, result.ComplianceScore)
	assert.Equal(t, 0.0, result.GuiltScore)
	assert.Equal(t, LevelVerified, result.TrustLevel)
}

func TestScore_MatchesSpecScenarioConsentArchitectureFalse(t *testing.T) {
	a := TrustArticles{
		InspectionMandate:    true,
		ConsentArchitecture:  false,
		EthicalOverride:      true,
		ContinuousValidation: true,
		RightToDisconnect:    true,
		MoralRecognition:     true,
	}
	result := Score(a)
	assert.Equal(t, 0.65, result.ComplianceScore)
	assert.Equal(t, LevelMedium, result.TrustLevel)
}

func TestDecay_ReducesScoreOverTime(t *testing.T) {
	s := Decay(1.0, 30, DefaultDecayLambda)
	assert.InDelta(t, 0.95, s, 0.01)

	longer := Decay(1.0, 90, DefaultDecayLambda)
	assert.InDelta(t, 0.85, longer, 0.01)
	assert.Less(t, longer, s)
}

func TestDecay_ZeroAgeLeavesScoreUnchanged(t *testing.T) {
	assert.Equal(t, 1.0, Decay(1.0, 0, DefaultDecayLambda))
}

func TestDecay_NonPositiveLambdaFallsBackToDefault(t *testing.T) {
	assert.Equal(t, Decay(1.0, 30, DefaultDecayLambda), Decay(1.0, 30, 0))
	assert.Equal(t, Decay(1.0, 30, DefaultDecayLambda), Decay(1.0, 30, -1))
}

func TestConfidenceInterval_ClampsToUnitRange(t *testing.T) {
	lower, upper := ConfidenceInterval(0.98, 0.05, 4)
	assert.GreaterOrEqual(t, lower, 0.0)
	assert.LessOrEqual(t, upper, 1.0)
	assert.LessOrEqual(t, lower, 0.98)
	assert.GreaterOrEqual(t, upper, 0.98)
}

func TestConfidenceInterval_ZeroSampleCollapsesToScore(t *testing.T) {
	lower, upper := ConfidenceInterval(0.7, 0.2, 0)
	assert.Equal(t, 0.7, lower)
	assert.Equal(t, 0.7, upper)
}

func TestAggregate_EmptySequence(t *testing.T) {
	result := Aggregate(nil)
	assert.Equal(t, LevelUntrusted, result.DominantLevel)
	assert.Equal(t, TrendStable, result.Trend)
}

func TestAggregate_AveragesAndDominantLevel(t *testing.T) {
	declarations := []TrustArticles{allTrue(), allTrue(), TrustArticles{}}
	result := Aggregate(declarations)
	assert.InDelta(t, (1.05+1.05+0.0)/3, result.AverageCompliance, 0.001)
	assert.Equal(t, LevelVerified, result.DominantLevel)
}

func TestAggregate_ImprovingTrend(t *testing.T) {
	low := TrustArticles{}
	high := allTrue()
	declarations := []TrustArticles{low, low, low, low, low, low, high, high, high}
	result := Aggregate(declarations)
	assert.Equal(t, TrendImproving, result.Trend)
}

func TestAggregate_DecliningTrend(t *testing.T) {
	low := TrustArticles{}
	high := allTrue()
	declarations := []TrustArticles{high, high, high, high, high, high, low, low, low}
	result := Aggregate(declarations)
	assert.Equal(t, TrendDeclining, result.Trend)
}

func TestAggregate_StableTrend(t *testing.T) {
	same := allTrue()
	declarations := []TrustArticles{same, same, same, same, same, same}
	result := Aggregate(declarations)
	assert.Equal(t, TrendStable, result.Trend)
}
