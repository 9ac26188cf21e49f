package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPersona(t *testing.T) {
	col := func(name string) RecommendedColumn {
		return RecommendedColumn{Column: name, Priority: PriorityHigh}
	}

	tests := []struct {
		name     string
		analysis *AnalysisResult
		want     Persona
	}{
		{"nil", nil, PersonaGeneral},
		{"empty", &AnalysisResult{}, PersonaGeneral},
		{"high income", &AnalysisResult{RecommendedColumns: []RecommendedColumn{col("sc_int_highincome")}}, PersonaPremium},
		{"credit", &AnalysisResult{RecommendedColumns: []RecommendedColumn{col("fi_npay_creditcheck")}}, PersonaHighCredit},
		{"discount wording", &AnalysisResult{TargetDescription: "할인 쿠폰 반응 고객"}, PersonaBudget},
		{"special price insight", &AnalysisResult{BusinessInsights: []string{"특가 상품 선호"}}, PersonaBudget},
		{
			name: "high income beats credit",
			analysis: &AnalysisResult{RecommendedColumns: []RecommendedColumn{
				col("fi_npay_creditcheck"), col("sc_int_highincome"),
			}},
			want: PersonaPremium,
		},
		{
			name: "credit beats discount",
			analysis: &AnalysisResult{
				TargetDescription:  "할인 관심",
				RecommendedColumns: []RecommendedColumn{col("fi_npay_CreditCheck")},
			},
			want: PersonaHighCredit,
		},
		{"loan scenario", loanFallbackAnalysis(), PersonaGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPersona(tt.analysis))
			assert.Equal(t, tt.want, ClassifyPersona(tt.analysis), "deterministic")
		})
	}
}
