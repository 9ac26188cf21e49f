package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignite/cdp-messenger/internal/messaging"
)

const (
	temperature = 0.7
	maxTokens   = 2000
)

const responseContract = `{
  "query_analysis": "사용자 질문 분석 내용",
  "target_description": "타겟 고객군 설명",
  "recommended_columns": [
    {
      "column": "컬럼명",
      "description": "컬럼 설명",
      "condition": "추천 조건 (예: > 0.7, IS NOT NULL 등)",
      "priority": "high|medium|low",
      "reasoning": "선택 이유"
    }
  ],
  "sql_query": "SELECT 문으로 된 쿼리",
  "business_insights": ["비즈니스 인사이트 1", "비즈니스 인사이트 2"],
  "estimated_target_size": "예상 타겟 규모 (%)",
  "marketing_recommendations": ["마케팅 추천사항 1", "마케팅 추천사항 2"],
  "target_tags": ["태그1", "태그2", "태그3"],
  "customer_traits": ["특성1", "특성2"]
}`

// SystemPrompt instructs the model to answer with the analysis JSON contract
// using only columns from the dictionary.
func SystemPrompt() string {
	dict, _ := json.MarshalIndent(Columns, "", "  ")
	var b strings.Builder
	b.WriteString("당신은 CDP(Customer Data Platform) 전문가입니다.\n")
	b.WriteString("사용자의 자연어 질문을 분석하여 최적의 고객 세그먼테이션 전략을 제공합니다.\n\n")
	b.WriteString("다음 CDP 컬럼들만 활용하여 분석해주세요:\n")
	b.Write(dict)
	b.WriteString("\n\n응답은 반드시 다음 JSON 형식으로만 제공해주세요:\n")
	b.WriteString(responseContract)
	return b.String()
}

// ParseResult decodes a model reply, tolerating a surrounding Markdown code
// fence.
func ParseResult(content string) (*messaging.AnalysisResult, error) {
	body := stripCodeFence(content)
	if body == "" {
		return nil, fmt.Errorf("%w: empty model response", ErrInvalidResponse)
	}
	var res messaging.AnalysisResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &res, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string ("json") up to the first newline.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
