// Package experiment partitions generated messages into A/B arms and sizes the
// test with a fixed baseline/MDE heuristic.
package experiment

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/cdp-messenger/internal/messaging"
)

// ErrInvalidParams is wrapped by every parameter validation failure.
var ErrInvalidParams = errors.New("invalid experiment parameters")

const (
	// MaxSampleSize caps the estimated sample size.
	MaxSampleSize = 100000

	sampleSizeScale  = 1000
	statisticalPower = 0.8
	confidenceLevel  = 0.95
	testIDLength     = 12
)

// SuccessMetrics are reported for every experiment.
var SuccessMetrics = []string{"open_rate", "click_rate", "conversion_rate", "revenue_per_message"}

// Params are the experiment inputs.
type Params struct {
	DurationDays        int     `json:"duration_days" yaml:"duration_days"`
	TestRatioPercent    int     `json:"test_ratio_percent" yaml:"test_ratio_percent"`
	BaselineRate        float64 `json:"baseline_rate" yaml:"baseline_rate"`
	MinDetectableEffect float64 `json:"min_detectable_effect" yaml:"min_detectable_effect"`
}

// DefaultParams returns a 7 day, 20% test sized for a 2% baseline and a 20% lift.
func DefaultParams() Params {
	return Params{
		DurationDays:        7,
		TestRatioPercent:    20,
		BaselineRate:        0.02,
		MinDetectableEffect: 0.2,
	}
}

// Validate checks every field and reports the first offending one.
func (p Params) Validate() error {
	if p.DurationDays < 1 {
		return fmt.Errorf("%w: duration_days must be at least 1, got %d", ErrInvalidParams, p.DurationDays)
	}
	if p.TestRatioPercent < 1 || p.TestRatioPercent > 100 {
		return fmt.Errorf("%w: test_ratio_percent must be in 1..100, got %d", ErrInvalidParams, p.TestRatioPercent)
	}
	if err := positiveRate("baseline_rate", p.BaselineRate); err != nil {
		return err
	}
	return positiveRate("min_detectable_effect", p.MinDetectableEffect)
}

func positiveRate(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%w: %s must be a positive finite number, got %v", ErrInvalidParams, field, v)
	}
	return nil
}

// SampleSize estimates the per-test audience: 1000/(baseline*mde), rounded
// half away from zero and capped at MaxSampleSize.
func SampleSize(baselineRate, minDetectableEffect float64) (int, error) {
	if err := positiveRate("baseline_rate", baselineRate); err != nil {
		return 0, err
	}
	if err := positiveRate("min_detectable_effect", minDetectableEffect); err != nil {
		return 0, err
	}
	n := math.Round(sampleSizeScale * (1 / baselineRate) * (1 / minDetectableEffect))
	if math.IsInf(n, 0) || n > MaxSampleSize {
		return MaxSampleSize, nil
	}
	return int(n), nil
}

// Group is one experiment arm.
type Group struct {
	Size     int                 `json:"size"`
	Messages []messaging.Message `json:"messages"`
}

// Groups holds both arms.
type Groups struct {
	Control Group `json:"control"`
	Test    Group `json:"test"`
}

// Descriptor is the experiment handed to forecasting and dispatch.
type Descriptor struct {
	TestID              string    `json:"test_id"`
	CreatedAt           time.Time `json:"created_at"`
	DurationDays        int       `json:"duration_days"`
	TestRatioPercent    int       `json:"test_ratio_percent"`
	TotalVariations     int       `json:"total_variations"`
	Groups              Groups    `json:"groups"`
	SuccessMetrics      []string  `json:"success_metrics"`
	EstimatedSampleSize int       `json:"estimated_sample_size"`
	StatisticalPower    float64   `json:"statistical_power"`
	ConfidenceLevel     float64   `json:"confidence_level"`
}

// Configurator builds experiment descriptors.
type Configurator struct {
	now   func() time.Time
	newID func() string
}

// Option configures a Configurator.
type Option func(*Configurator)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Configurator) { c.now = now }
}

// WithIDGenerator overrides test id generation.
func WithIDGenerator(gen func() string) Option {
	return func(c *Configurator) { c.newID = gen }
}

// NewConfigurator creates a configurator using the wall clock and random ids.
func NewConfigurator(opts ...Option) *Configurator {
	c := &Configurator{now: time.Now, newID: NewTestID}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure validates params, splits messages by test group and sizes the test.
// An empty message list yields empty arms, not an error.
func (c *Configurator) Configure(msgs []messaging.Message, params Params) (*Descriptor, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	size, err := SampleSize(params.BaselineRate, params.MinDetectableEffect)
	if err != nil {
		return nil, err
	}

	groups := Groups{
		Control: Group{Messages: []messaging.Message{}},
		Test:    Group{Messages: []messaging.Message{}},
	}
	for _, m := range msgs {
		switch m.TestGroup {
		case messaging.GroupControl:
			groups.Control.Messages = append(groups.Control.Messages, m)
		case messaging.GroupTest:
			groups.Test.Messages = append(groups.Test.Messages, m)
		default:
			return nil, fmt.Errorf("%w: message has unknown test group %q", ErrInvalidParams, m.TestGroup)
		}
	}
	groups.Control.Size = len(groups.Control.Messages)
	groups.Test.Size = len(groups.Test.Messages)

	return &Descriptor{
		TestID:              c.newID(),
		CreatedAt:           c.now().UTC(),
		DurationDays:        params.DurationDays,
		TestRatioPercent:    params.TestRatioPercent,
		TotalVariations:     messaging.RuleCount,
		Groups:              groups,
		SuccessMetrics:      append([]string(nil), SuccessMetrics...),
		EstimatedSampleSize: size,
		StatisticalPower:    statisticalPower,
		ConfidenceLevel:     confidenceLevel,
	}, nil
}

// NewTestID returns a fresh 12 hex character identifier.
func NewTestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:testIDLength]
}
