package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/cdp-messenger/internal/config"
	"github.com/ignite/cdp-messenger/internal/dispatch"
	"github.com/ignite/cdp-messenger/internal/experiment"
	"github.com/ignite/cdp-messenger/internal/forecast"
	"github.com/ignite/cdp-messenger/internal/messaging"
	"github.com/ignite/cdp-messenger/internal/metrics"
	"github.com/ignite/cdp-messenger/internal/pkg/httputil"
	"github.com/ignite/cdp-messenger/internal/service/campaign"
)

const loanQuery = "대출 니즈가 높은 고객군 알려줘"

func setupTestServer(t *testing.T, redisClient redis.Cmdable) *Server {
	t.Helper()
	cat, err := messaging.DefaultCatalog()
	require.NoError(t, err)
	return setupTestServerWithCatalog(t, cat, redisClient)
}

func setupTestServerWithCatalog(t *testing.T, cat *messaging.Catalog, redisClient redis.Cmdable) *Server {
	t.Helper()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	svc := campaign.NewService(cat, campaign.WithMetrics(m))
	cfg := config.Default()
	return NewServer(cfg.Server, NewHandlers(svc), NewHealthChecker(redisClient, false, "fallback"), m.Handler())
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func TestHealthCheck(t *testing.T) {
	srv := setupTestServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cdp-messenger", w.Header().Get("X-Server-Identity"))

	var status HealthStatus
	decodeBody(t, w, &status)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, healthVersion, status.Version)
	assert.Equal(t, "disabled", status.Checks["redis"].Status)
	assert.Equal(t, "disabled", status.Checks["dispatch"].Status)
}

func TestHealthCheck_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	srv := setupTestServer(t, client)

	w := doJSON(t, srv, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	mr.Close()
	w = doJSON(t, srv, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAnalyze(t *testing.T) {
	srv := setupTestServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/analyze", `{"query":"`+loanQuery+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res messaging.AnalysisResult
	decodeBody(t, w, &res)
	require.Len(t, res.RecommendedColumns, 1)
	assert.Equal(t, "sc_int_loan1stfinancial", res.RecommendedColumns[0].Column)
	assert.Equal(t, messaging.PriorityHigh, res.RecommendedColumns[0].Priority)
}

func TestBadRequests(t *testing.T) {
	srv := setupTestServer(t, nil)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"analyze blank query", "/api/analyze", `{"query":"  "}`},
		{"analyze invalid json", "/api/analyze", `{"query":`},
		{"analyze empty body", "/api/analyze", ``},
		{"messages without input", "/api/messages", `{}`},
		{"experiment invalid ratio", "/api/experiments", `{"messages":[],"params":{"test_ratio_percent":0}}`},
		{"experiment negative baseline", "/api/experiments", `{"messages":[],"params":{"baseline_rate":-0.1}}`},
		{"experiment unknown group", "/api/experiments", `{"messages":[{"category":"loan","test_group":"C"}]}`},
		{"forecast empty", "/api/forecasts", `{"messages":[]}`},
		{"forecast unknown channel", "/api/forecasts", `{"messages":[{"channel":"fax","variation":"control"}]}`},
		{"campaign without input", "/api/campaigns", `{}`},
		{"campaign invalid duration", "/api/campaigns", `{"query":"대출","params":{"duration_days":0}}`},
		{"dispatch without experiment", "/api/campaigns/dispatch", `{"messages":[{"category":"loan"}]}`},
		{"dispatch without messages", "/api/campaigns/dispatch", `{"experiment":{"test_id":"abc"}}`},
		{"trailing data", "/api/forecasts", `{"messages":[]} {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, srv, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			var resp httputil.ErrorResponse
			decodeBody(t, w, &resp)
			assert.Equal(t, "bad_request", resp.Code)
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestGenerateMessages(t *testing.T) {
	srv := setupTestServer(t, nil)

	body := `{"query":"` + loanQuery + `","analysis":{"target_description":"대출 고객",` +
		`"recommended_columns":[{"column":"sc_int_loan1stfinancial","description":"1금융권 신용대출 예측스코어",` +
		`"condition":"> 0.7","priority":"high","reasoning":"r"}],"business_insights":[]},"seed":7}`
	w := doJSON(t, srv, http.MethodPost, "/api/messages", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var gen campaign.Generation
	decodeBody(t, w, &gen)
	assert.Equal(t, messaging.PersonaGeneral, gen.Persona)
	assert.True(t, gen.Tags.Primary.Has("대출"))
	require.Len(t, gen.Messages, 4)
	assert.Equal(t, "💎 고객님, 프리미엄 신용대출 최대 1억원까지! 연 2.9% 특별우대", gen.Messages[0].Text)
	assert.Equal(t, messaging.GroupTest, gen.Messages[1].TestGroup)
}

func TestConfigureExperiment(t *testing.T) {
	srv := setupTestServer(t, nil)

	msgs := []messaging.Message{
		{Category: messaging.CategoryLoan, Channel: messaging.ChannelEmail, Variation: messaging.VariationControl, TestGroup: messaging.GroupControl},
		{Category: messaging.CategoryLoan, Channel: messaging.ChannelEmail, Variation: messaging.VariationUrgent, TestGroup: messaging.GroupTest},
	}
	payload, err := json.Marshal(map[string]any{
		"messages": msgs,
		"params":   map[string]any{"duration_days": 14},
	})
	require.NoError(t, err)

	w := doJSON(t, srv, http.MethodPost, "/api/experiments", string(payload))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var desc experiment.Descriptor
	decodeBody(t, w, &desc)
	assert.Len(t, desc.TestID, 12)
	assert.Equal(t, 14, desc.DurationDays)
	assert.Equal(t, 20, desc.TestRatioPercent, "omitted params keep defaults")
	assert.Equal(t, 1, desc.Groups.Control.Size)
	assert.Equal(t, 1, desc.Groups.Test.Size)
	assert.Equal(t, experiment.MaxSampleSize, desc.EstimatedSampleSize)
}

func TestForecast(t *testing.T) {
	srv := setupTestServer(t, nil)

	body := `{"messages":[{"message":"a","channel":"kakao","variation":"control","test_group":"A"},` +
		`{"message":"b","channel":"kakao","variation":"personalized","test_group":"B"}]}`
	w := doJSON(t, srv, http.MethodPost, "/api/forecasts", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var fc forecast.Forecast
	decodeBody(t, w, &fc)
	require.Len(t, fc.Predictions, 2)
	assert.Equal(t, 0.78, fc.Predictions[1].PredictedOpenRate)
	assert.Equal(t, messaging.VariationPersonalized, fc.Summary.BestPerformingVariation)
	assert.Equal(t, messaging.ChannelKakao, fc.Summary.BestChannel)
}

func TestCreateCampaign(t *testing.T) {
	srv := setupTestServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/campaigns", `{"query":"`+loanQuery+`","dispatch":true,"seed":1}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res campaign.Result
	decodeBody(t, w, &res)
	assert.Len(t, res.Messages, 4)
	require.NotNil(t, res.Experiment)
	assert.Equal(t, 7, res.Experiment.DurationDays)
	require.NotNil(t, res.Forecast)
	assert.Len(t, res.Forecast.Predictions, 4)
	require.NotNil(t, res.Dispatch)
	assert.Equal(t, dispatch.StatusError, res.Dispatch.Status)
	assert.Equal(t, "API credentials not configured", res.Dispatch.Message)
	assert.Equal(t, res.Experiment.TestID, res.Dispatch.TestID)
}

func TestCreateCampaign_NoMatch(t *testing.T) {
	srv := setupTestServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/campaigns", `{"query":"오늘 날씨 어때"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res campaign.Result
	decodeBody(t, w, &res)
	assert.Empty(t, res.Messages)
	assert.Nil(t, res.Forecast)
	assert.NotEmpty(t, res.Notes)
}

func TestDispatchCampaign_NoCredentials(t *testing.T) {
	srv := setupTestServer(t, nil)

	body := `{"messages":[{"category":"loan","message":"hi","channel":"email","variation":"control","test_group":"A"}],` +
		`"experiment":{"test_id":"abc123def456","duration_days":7}}`
	w := doJSON(t, srv, http.MethodPost, "/api/campaigns/dispatch", body)
	require.Equal(t, http.StatusOK, w.Code)

	var res dispatch.Result
	decodeBody(t, w, &res)
	assert.Equal(t, dispatch.StatusError, res.Status)
	assert.Equal(t, "abc123def456", res.TestID)
}

func TestGetCatalog(t *testing.T) {
	srv := setupTestServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/api/catalog", "")
	require.Equal(t, http.StatusOK, w.Code)

	var summary CatalogSummary
	decodeBody(t, w, &summary)
	require.Len(t, summary.Categories, 5)
	loan := summary.Categories[0]
	assert.Equal(t, messaging.CategoryLoan, loan.Name)
	assert.Contains(t, loan.Tags, "대출")
	require.NotEmpty(t, loan.Personas)
	assert.Equal(t, messaging.PersonaHighCredit, loan.Personas[0].Name)
	assert.NotEmpty(t, loan.Personas[0].Templates)
	assert.Len(t, summary.Variations, messaging.RuleCount)
}

func TestGetCatalog_DefaultChannelIgnoresPersonaRoutes(t *testing.T) {
	cat, err := messaging.LoadCatalog(strings.NewReader(`
default_channel: sms
default_timing: {best_time: "10:00", best_day: weekday, frequency: weekly}
categories:
  - name: loan
    tags: [대출]
    channels:
      default: email
      personas:
        general: kakao
    personas:
      - name: general
        templates: ["대출 안내"]
`))
	require.NoError(t, err)
	srv := setupTestServerWithCatalog(t, cat, nil)

	w := doJSON(t, srv, http.MethodGet, "/api/catalog", "")
	require.Equal(t, http.StatusOK, w.Code)

	var summary CatalogSummary
	decodeBody(t, w, &summary)
	require.Len(t, summary.Categories, 1)
	loan := summary.Categories[0]
	assert.Equal(t, messaging.ChannelEmail, loan.DefaultChannel)
	require.Len(t, loan.Personas, 1)
	assert.Equal(t, messaging.ChannelKakao, loan.Personas[0].Channel)
	assert.Equal(t, []string{"대출 안내"}, loan.Personas[0].Templates)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := setupTestServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/messages", `{"query":"대출 상품"}`)
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("cdp_messages_generated_total")))
}
