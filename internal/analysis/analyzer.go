// Package analysis turns a natural-language segment question into a CDP
// targeting plan using a language model, with a static fallback plan when the
// model is unavailable.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/cdp-messenger/internal/messaging"
	"github.com/ignite/cdp-messenger/internal/pkg/logger"
)

var (
	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrInvalidResponse is returned when the model reply is not the
	// expected JSON document.
	ErrInvalidResponse = errors.New("invalid analyzer response")
)

// Analyzer produces a targeting plan for a query.
type Analyzer interface {
	Analyze(ctx context.Context, query string) (*messaging.AnalysisResult, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, query string) (*messaging.AnalysisResult, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, query string) (*messaging.AnalysisResult, error) {
	return f(ctx, query)
}

const loanKeyword = "대출"

// Fallback returns the static plan used when no model answer is available.
// Loan questions get a loan-score plan; everything else an empty one.
func Fallback(query string) *messaging.AnalysisResult {
	if strings.Contains(query, loanKeyword) {
		return &messaging.AnalysisResult{
			QueryAnalysis:     fmt.Sprintf("%q - 대출 관련 고객 세그먼트를 요청하셨습니다.", query),
			TargetDescription: "대출 니즈가 높은 신용 우량 고객군",
			RecommendedColumns: []messaging.RecommendedColumn{{
				Column:      "sc_int_loan1stfinancial",
				Description: "1금융권 신용대출 예측스코어",
				Condition:   "> 0.7",
				Priority:    messaging.PriorityHigh,
				Reasoning:   "1금융권 대출 가능성이 높은 우량 고객",
			}},
			SQLQuery:                 "SELECT * FROM cdp_customer WHERE sc_int_loan1stfinancial > 0.7",
			BusinessInsights:         []string{"대출 니즈가 높은 고객 발굴 가능"},
			EstimatedTargetSize:      "15-20%",
			MarketingRecommendations: []string{"맞춤형 대출 상품 제안"},
			TargetTags:               []string{"대출", "금융", "신용우량"},
			CustomerTraits:           []string{"안정적 소득", "신용도 우수"},
		}
	}
	return &messaging.AnalysisResult{
		QueryAnalysis:            fmt.Sprintf("%q에 대한 분석", query),
		TargetDescription:        "요청하신 고객군",
		RecommendedColumns:       []messaging.RecommendedColumn{},
		SQLQuery:                 "SELECT * FROM cdp_customer LIMIT 100",
		BusinessInsights:         []string{"추가 분석 필요"},
		EstimatedTargetSize:      "10-15%",
		MarketingRecommendations: []string{"맞춤 전략 수립 필요"},
		TargetTags:               []string{"일반"},
		CustomerTraits:           []string{"분석 필요"},
	}
}

// FallbackAnalyzer always returns the static plan.
type FallbackAnalyzer struct{}

func (FallbackAnalyzer) Analyze(_ context.Context, query string) (*messaging.AnalysisResult, error) {
	return Fallback(query), nil
}

type withFallback struct {
	primary    Analyzer
	onFallback func(error)
}

// WithFallback wraps primary so that any error, a nil result or a blank query
// yields Fallback(query) instead. onFallback, when non-nil, is told why.
// The returned analyzer never fails.
func WithFallback(primary Analyzer, onFallback func(error)) Analyzer {
	return &withFallback{primary: primary, onFallback: onFallback}
}

func (w *withFallback) Analyze(ctx context.Context, query string) (*messaging.AnalysisResult, error) {
	var err error
	switch {
	case strings.TrimSpace(query) == "":
		err = ErrEmptyQuery
	case w.primary == nil:
		err = errors.New("no analyzer configured")
	default:
		var res *messaging.AnalysisResult
		res, err = w.primary.Analyze(ctx, query)
		if err == nil && res != nil {
			return res, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: nil result", ErrInvalidResponse)
		}
	}

	logger.Warn("analyzer unavailable, using fallback plan", "error", err)
	if w.onFallback != nil {
		w.onFallback(err)
	}
	return Fallback(query), nil
}

// WithTimeout bounds every primary call to d. Non-positive d returns primary.
func WithTimeout(primary Analyzer, d time.Duration) Analyzer {
	if d <= 0 {
		return primary
	}
	return AnalyzerFunc(func(ctx context.Context, query string) (*messaging.AnalysisResult, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return primary.Analyze(ctx, query)
	})
}
