package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/cdp-messenger/internal/analysis"
	"github.com/ignite/cdp-messenger/internal/dispatch"
	"github.com/ignite/cdp-messenger/internal/experiment"
	"github.com/ignite/cdp-messenger/internal/forecast"
	"github.com/ignite/cdp-messenger/internal/messaging"
	"github.com/ignite/cdp-messenger/internal/metrics"
	"github.com/ignite/cdp-messenger/internal/pkg/logger"
)

const (
	noteForecastSkipped = "forecast skipped: no messages generated"
	noteDispatchSkipped = "dispatch skipped: no messages generated"
)

// Service implements the campaign pipeline. All collaborators are immutable
// after construction.
type Service struct {
	catalog      *messaging.Catalog
	extractor    *messaging.TagExtractor
	composer     *messaging.Composer
	configurator *experiment.Configurator
	forecaster   *forecast.Forecaster
	analyzer     analysis.Analyzer
	dispatcher   Dispatcher
	metrics      *metrics.Metrics
	params       experiment.Params
	seed         func() uint64
}

// Option configures a Service.
type Option func(*Service)

// WithAnalyzer sets the analyzer used when a request carries no analysis.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(s *Service) { s.analyzer = a }
}

// WithComposer replaces the default first-rule composer.
func WithComposer(c *messaging.Composer) Option {
	return func(s *Service) { s.composer = c }
}

// WithConfigurator replaces the experiment configurator.
func WithConfigurator(c *experiment.Configurator) Option {
	return func(s *Service) { s.configurator = c }
}

// WithForecaster replaces the forecaster.
func WithForecaster(f *forecast.Forecaster) Option {
	return func(s *Service) { s.forecaster = f }
}

// WithDispatcher sets the delivery adapter.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithMetrics records generation and dispatch metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDefaultParams sets the experiment parameters used when a request has none.
func WithDefaultParams(p experiment.Params) Option {
	return func(s *Service) { s.params = p }
}

// WithSeedSource overrides how unseeded requests get their random seed.
func WithSeedSource(seed func() uint64) Option {
	return func(s *Service) { s.seed = seed }
}

// NewService creates a campaign service over catalog. Without options it
// analyzes with the static fallback plan and dispatches nowhere.
func NewService(catalog *messaging.Catalog, opts ...Option) *Service {
	s := &Service{
		catalog:      catalog,
		extractor:    messaging.NewTagExtractor(catalog),
		configurator: experiment.NewConfigurator(),
		forecaster:   forecast.NewForecaster(),
		analyzer:     analysis.FallbackAnalyzer{},
		params:       experiment.DefaultParams(),
		seed:         func() uint64 { return uint64(time.Now().UnixNano()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.composer == nil {
		s.composer = messaging.NewComposer(catalog, nil)
	}
	if s.dispatcher == nil {
		s.dispatcher = dispatch.NewAdapter(nil, dispatch.Credentials{})
	}
	return s
}

// Catalog returns the catalog the service composes from.
func (s *Service) Catalog() *messaging.Catalog { return s.catalog }

// DefaultParams returns the experiment parameters applied when a request has none.
func (s *Service) DefaultParams() experiment.Params { return s.params }

// Analyze runs the configured analyzer.
func (s *Service) Analyze(ctx context.Context, query string) (*messaging.AnalysisResult, error) {
	res, err := s.analyzer.Analyze(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	return res, nil
}

// ComposeInput holds the inputs of one composition pass.
type ComposeInput struct {
	Query    string                    `json:"query"`
	Analysis *messaging.AnalysisResult `json:"analysis"`
	Profile  *messaging.UserProfile    `json:"profile,omitempty"`
	Seed     *uint64                   `json:"seed,omitempty"`
}

// Generation is the output of Compose.
type Generation struct {
	Tags     messaging.TagSet          `json:"tags"`
	Persona  messaging.Persona         `json:"persona"`
	Messages []messaging.Message       `json:"messages"`
	Skipped  []messaging.RenderFailure `json:"skipped,omitempty"`
}

// Compose extracts tags and builds the interleaved control/variant list.
func (s *Service) Compose(in ComposeInput) *Generation {
	seed := s.seed()
	if in.Seed != nil {
		seed = *in.Seed
	}
	tags := s.extractor.Extract(in.Query, in.Analysis)
	comp := s.composer.Compose(tags, in.Analysis, in.Profile, messaging.NewRandomSource(seed))

	if s.metrics != nil {
		for _, m := range comp.Messages {
			s.metrics.MessagesGenerated.WithLabelValues(string(m.Category), string(m.Variation)).Inc()
		}
		for _, f := range comp.Skipped {
			s.metrics.RenderFailures.WithLabelValues(string(f.Category)).Inc()
		}
	}
	logger.Debug("messages composed", "persona", comp.Persona, "messages", len(comp.Messages),
		"skipped", len(comp.Skipped))

	return &Generation{
		Tags:     tags,
		Persona:  comp.Persona,
		Messages: comp.Messages,
		Skipped:  comp.Skipped,
	}
}

// Configure builds the experiment descriptor. Nil params use the defaults.
func (s *Service) Configure(msgs []messaging.Message, params *experiment.Params) (*experiment.Descriptor, error) {
	p := s.params
	if params != nil {
		p = *params
	}
	return s.configurator.Configure(msgs, p)
}

// Forecast predicts performance for msgs.
func (s *Service) Forecast(msgs []messaging.Message) (*forecast.Forecast, error) {
	return s.forecaster.Predict(msgs)
}

// Dispatch sends the campaign and records the outcome.
func (s *Service) Dispatch(ctx context.Context, msgs []messaging.Message, desc *experiment.Descriptor) dispatch.Result {
	start := time.Now()
	res := s.dispatcher.Dispatch(ctx, msgs, desc)
	if s.metrics != nil {
		s.metrics.ObserveDispatch(string(res.Status), time.Since(start))
	}
	return res
}

// Request is one end-to-end campaign generation.
type Request struct {
	Query    string                    `json:"query"`
	Analysis *messaging.AnalysisResult `json:"analysis,omitempty"`
	Profile  *messaging.UserProfile    `json:"profile,omitempty"`
	Params   *experiment.Params        `json:"params,omitempty"`
	Seed     *uint64                   `json:"seed,omitempty"`
	Dispatch bool                      `json:"dispatch"`
}

// Result holds every artifact of a pipeline run. Experiment and messages are
// returned whether or not dispatch succeeded.
type Result struct {
	Query      string                    `json:"query"`
	Analysis   *messaging.AnalysisResult `json:"analysis"`
	Tags       messaging.TagSet          `json:"tags"`
	Persona    messaging.Persona         `json:"persona"`
	Messages   []messaging.Message       `json:"messages"`
	Skipped    []messaging.RenderFailure `json:"skipped,omitempty"`
	Experiment *experiment.Descriptor    `json:"experiment"`
	Forecast   *forecast.Forecast        `json:"forecast,omitempty"`
	Dispatch   *dispatch.Result          `json:"dispatch,omitempty"`
	Notes      []string                  `json:"notes,omitempty"`
}

// Generate runs the pipeline. Only a missing query/analysis and invalid
// experiment parameters are errors; an empty composition skips the forecast
// and dispatch failures are reported in the result.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Analysis == nil && req.Query == "" {
		return nil, ErrMissingQuery
	}

	an := req.Analysis
	if an == nil {
		var err error
		if an, err = s.Analyze(ctx, req.Query); err != nil {
			return nil, err
		}
	}

	gen := s.Compose(ComposeInput{Query: req.Query, Analysis: an, Profile: req.Profile, Seed: req.Seed})
	desc, err := s.Configure(gen.Messages, req.Params)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Query:      req.Query,
		Analysis:   an,
		Tags:       gen.Tags,
		Persona:    gen.Persona,
		Messages:   gen.Messages,
		Skipped:    gen.Skipped,
		Experiment: desc,
	}

	if len(gen.Messages) == 0 {
		out.Notes = append(out.Notes, noteForecastSkipped)
		if req.Dispatch {
			out.Notes = append(out.Notes, noteDispatchSkipped)
		}
		logger.Info("campaign generated without messages", "test_id", desc.TestID)
		return out, nil
	}

	if out.Forecast, err = s.Forecast(gen.Messages); err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	if req.Dispatch {
		res := s.Dispatch(ctx, gen.Messages, desc)
		out.Dispatch = &res
	}

	logger.Info("campaign generated", "test_id", desc.TestID, "persona", gen.Persona,
		"messages", len(gen.Messages), "dispatched", req.Dispatch)
	return out, nil
}
