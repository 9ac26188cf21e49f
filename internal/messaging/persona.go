package messaging

import (
	"encoding/json"
	"strings"
)

const (
	highIncomeMarker = "highincome"
	creditMarker     = "credit"
)

var discountMarkers = []string{"할인", "특가"}

// ClassifyPersona picks the single persona used for every category of an
// analysis. First match wins: a high-income column, a credit column, discount
// wording anywhere in the result, otherwise general.
func ClassifyPersona(analysis *AnalysisResult) Persona {
	if analysis == nil {
		return PersonaGeneral
	}
	if anyColumnContains(analysis.RecommendedColumns, highIncomeMarker) {
		return PersonaPremium
	}
	if anyColumnContains(analysis.RecommendedColumns, creditMarker) {
		return PersonaHighCredit
	}
	serialized := serializeAnalysis(analysis)
	for _, marker := range discountMarkers {
		if strings.Contains(serialized, marker) {
			return PersonaBudget
		}
	}
	return PersonaGeneral
}

func anyColumnContains(cols []RecommendedColumn, marker string) bool {
	for _, col := range cols {
		if strings.Contains(strings.ToLower(col.Column), marker) {
			return true
		}
	}
	return false
}

func serializeAnalysis(analysis *AnalysisResult) string {
	data, err := json.Marshal(analysis)
	if err != nil {
		// AnalysisResult holds only strings and slices of strings.
		return analysis.TargetDescription + " " + strings.Join(analysis.BusinessInsights, " ")
	}
	return string(data)
}
