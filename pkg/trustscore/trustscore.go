// Package trustscore implements the Trust Scoring Engine (spec §4.7):
// pure arithmetic over a fixed six-article compliance declaration, with
// no I/O and no mutable state.
package trustscore

import (
	"github.com/go-playground/validator/v10"

	"trustcore/pkg/errkind"
)

// article names the six recognized compliance articles exactly, per
// spec §3's "exact 6-key mapping" invariant.
type article string

const (
	articleInspectionMandate    article = "inspection_mandate"
	articleConsentArchitecture  article = "consent_architecture"
	articleEthicalOverride      article = "ethical_override"
	articleContinuousValidation article = "continuous_validation"
	articleRightToDisconnect    article = "right_to_disconnect"
	articleMoralRecognition     article = "moral_recognition"
)

// weights are fixed per spec §4.7 and must sum to 1.000.
var weights = map[article]float64{
	articleInspectionMandate:    0.20,
	articleConsentArchitecture:  0.25,
	articleEthicalOverride:      0.15,
	articleContinuousValidation: 0.20,
	articleRightToDisconnect:    0.10,
	articleMoralRecognition:     0.10,
}

// criticalArticles carries an outsized compliance_score penalty when
// false, per spec §4.7.
var criticalArticles = []article{articleConsentArchitecture, articleEthicalOverride}

// TrustArticles is the compile-time enforcement of spec §3's exact
// 6-key mapping: a Go struct with exactly six fields, so an extra or
// missing article can't silently pass through the way it could with a
// bare map.
type TrustArticles struct {
	InspectionMandate    bool `json:"inspection_mandate"`
	ConsentArchitecture  bool `json:"consent_architecture"`
	EthicalOverride      bool `json:"ethical_override"`
	ContinuousValidation bool `json:"continuous_validation"`
	RightToDisconnect    bool `json:"right_to_disconnect"`
	MoralRecognition     bool `json:"moral_recognition"`
}

func (a TrustArticles) values() map[article]bool {
	return map[article]bool{
		articleInspectionMandate:    a.InspectionMandate,
		articleConsentArchitecture:  a.ConsentArchitecture,
		articleEthicalOverride:      a.EthicalOverride,
		articleContinuousValidation: a.ContinuousValidation,
		articleRightToDisconnect:    a.RightToDisconnect,
		articleMoralRecognition:     a.MoralRecognition,
	}
}

// declarationInput is the validation boundary for a raw article
// declaration (e.g. decoded from JSON) before it becomes a
// TrustArticles: a map can arrive with a typo'd, missing, or extra key,
// which the "sixarticles" validator catches before the exact-6-field
// struct conversion below.
type declarationInput struct {
	Articles map[string]bool `validate:"required,sixarticles"`
}

var articlesValidate = newArticlesValidator()

func newArticlesValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("sixarticles", validateSixArticles)
	return v
}

// validateSixArticles reports whether the map under validation carries
// exactly the six recognized article keys, no more and no fewer.
func validateSixArticles(fl validator.FieldLevel) bool {
	m, ok := fl.Field().Interface().(map[string]bool)
	if !ok || len(m) != len(weights) {
		return false
	}
	for key := range weights {
		if _, present := m[string(key)]; !present {
			return false
		}
	}
	return true
}

// NewTrustArticlesFromMap validates that input carries exactly the six
// recognized keys before building a TrustArticles. A map (rather than
// the struct itself) is the natural shape for a declaration arriving
// from JSON or an API boundary.
func NewTrustArticlesFromMap(input map[string]bool) (TrustArticles, error) {
	if err := articlesValidate.Struct(declarationInput{Articles: input}); err != nil {
		return TrustArticles{}, errkind.Wrap(errkind.ErrInvalidInput, err, "trustscore: declaration must carry exactly the 6 recognized articles")
	}

	return TrustArticles{
		InspectionMandate:    input[string(articleInspectionMandate)],
		ConsentArchitecture:  input[string(articleConsentArchitecture)],
		EthicalOverride:      input[string(articleEthicalOverride)],
		ContinuousValidation: input[string(articleContinuousValidation)],
		RightToDisconnect:    input[string(articleRightToDisconnect)],
		MoralRecognition:     input[string(articleMoralRecognition)],
	}, nil
}
