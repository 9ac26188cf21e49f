package messaging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// seqSource replays a fixed sequence of draws, each reduced modulo n.
type seqSource struct {
	draws []int
	calls int
}

func (s *seqSource) IntN(n int) int {
	v := s.draws[s.calls%len(s.draws)]
	s.calls++
	return v % n
}

func mustDefaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := DefaultCatalog()
	require.NoError(t, err)
	return c
}

func mustCatalog(t *testing.T, doc string) *Catalog {
	t.Helper()
	c, err := LoadCatalog(strings.NewReader(doc))
	require.NoError(t, err)
	return c
}

func loanFallbackAnalysis() *AnalysisResult {
	return &AnalysisResult{
		TargetDescription: "대출 관심 고객",
		RecommendedColumns: []RecommendedColumn{{
			Column:      "sc_int_loan1stfinancial",
			Description: "1금융권 신용대출 예측스코어",
			Condition:   "> 0.7",
			Priority:    PriorityHigh,
			Reasoning:   "대출 관심도가 높은 고객",
		}},
		BusinessInsights: []string{"고소득층 대출 수요 증가", "신용대출 시장 확대"},
	}
}
