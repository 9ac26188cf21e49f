package experiment

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/cdp-messenger/internal/messaging"
)

func TestSampleSize(t *testing.T) {
	tests := []struct {
		name     string
		baseline float64
		mde      float64
		want     int
	}{
		{"default params clamp", 0.02, 0.2, MaxSampleSize},
		{"below cap", 0.1, 0.5, 20000},
		{"exactly at cap", 0.05, 0.2, MaxSampleSize},
		{"rounds", 0.3, 0.3, 11111},
		{"tiny baseline", 1e-300, 1e-300, MaxSampleSize},
		{"large rates", 2, 5, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SampleSize(tt.baseline, tt.mde)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSampleSize_RejectsNonPositive(t *testing.T) {
	for _, tc := range [][2]float64{{0, 0.2}, {0.02, 0}, {-0.1, 0.2}, {0.02, -1}, {math.NaN(), 0.2}, {0.02, math.Inf(1)}} {
		_, err := SampleSize(tc[0], tc[1])
		assert.True(t, errors.Is(err, ErrInvalidParams), "%v", tc)
	}
}

func TestSampleSize_MonotoneNonIncreasing(t *testing.T) {
	rates := []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1}
	for _, fixed := range rates {
		prevB, prevM := math.MaxInt, math.MaxInt
		for _, r := range rates {
			b, err := SampleSize(r, fixed)
			require.NoError(t, err)
			m, err := SampleSize(fixed, r)
			require.NoError(t, err)

			assert.LessOrEqual(t, b, prevB)
			assert.LessOrEqual(t, m, prevM)
			assert.LessOrEqual(t, b, MaxSampleSize)
			prevB, prevM = b, m
		}
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr string
	}{
		{"defaults", func(*Params) {}, ""},
		{"zero duration", func(p *Params) { p.DurationDays = 0 }, "duration_days"},
		{"zero ratio", func(p *Params) { p.TestRatioPercent = 0 }, "test_ratio_percent"},
		{"ratio over 100", func(p *Params) { p.TestRatioPercent = 101 }, "test_ratio_percent"},
		{"zero baseline", func(p *Params) { p.BaselineRate = 0 }, "baseline_rate"},
		{"negative mde", func(p *Params) { p.MinDetectableEffect = -0.2 }, "min_detectable_effect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidParams)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func msg(group messaging.TestGroup, v messaging.Variation) messaging.Message {
	return messaging.Message{Category: messaging.CategoryLoan, Text: "대출", TestGroup: group, Variation: v}
}

func TestConfigurator_Configure(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.FixedZone("KST", 9*3600))
	c := NewConfigurator(
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { return "abc123def456" }),
	)

	msgs := []messaging.Message{
		msg(messaging.GroupControl, messaging.VariationControl),
		msg(messaging.GroupTest, messaging.VariationEmojiHeavy),
		msg(messaging.GroupControl, messaging.VariationControl),
		msg(messaging.GroupTest, messaging.VariationEmojiHeavy),
	}

	d, err := c.Configure(msgs, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, "abc123def456", d.TestID)
	assert.Equal(t, now.UTC(), d.CreatedAt)
	assert.Equal(t, 7, d.DurationDays)
	assert.Equal(t, 20, d.TestRatioPercent)
	assert.Equal(t, 5, d.TotalVariations)
	assert.Equal(t, 2, d.Groups.Control.Size)
	assert.Equal(t, 2, d.Groups.Test.Size)
	for _, m := range d.Groups.Control.Messages {
		assert.Equal(t, messaging.GroupControl, m.TestGroup)
	}
	for _, m := range d.Groups.Test.Messages {
		assert.Equal(t, messaging.GroupTest, m.TestGroup)
	}
	assert.Equal(t, []string{"open_rate", "click_rate", "conversion_rate", "revenue_per_message"}, d.SuccessMetrics)
	assert.Equal(t, MaxSampleSize, d.EstimatedSampleSize)
	assert.Equal(t, 0.8, d.StatisticalPower)
	assert.Equal(t, 0.95, d.ConfidenceLevel)
}

func TestConfigurator_EmptyMessages(t *testing.T) {
	d, err := NewConfigurator().Configure(nil, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 0, d.Groups.Control.Size)
	assert.NotNil(t, d.Groups.Test.Messages)
	assert.Len(t, d.TestID, 12)
}

func TestConfigurator_InvalidInput(t *testing.T) {
	p := DefaultParams()
	p.BaselineRate = 0
	_, err := NewConfigurator().Configure(nil, p)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewConfigurator().Configure([]messaging.Message{msg("C", messaging.VariationControl)}, DefaultParams())
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestNewTestID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewTestID()
		require.Regexp(t, `^[0-9a-f]{12}$`, id)
		require.False(t, seen[id])
		seen[id] = true
	}
}
