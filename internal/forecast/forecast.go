// Package forecast predicts open, click and conversion rates for generated
// messages from static channel base rates and per-variation multipliers.
package forecast

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/ignite/cdp-messenger/internal/messaging"
)

var (
	// ErrNoMessages is returned when there is nothing to forecast.
	ErrNoMessages = errors.New("forecast requires at least one message")
	// ErrUnknownChannel is returned for a message whose channel has no base rates.
	ErrUnknownChannel = errors.New("no base rates for channel")
)

const (
	decimals      = 3
	bandLow       = 0.9
	bandHigh      = 1.1
	messageIDSize = 8
)

// Rates is a channel's base performance.
type Rates struct {
	OpenRate       float64 `json:"open_rate" yaml:"open_rate"`
	ClickRate      float64 `json:"click_rate" yaml:"click_rate"`
	ConversionRate float64 `json:"conversion_rate" yaml:"conversion_rate"`
}

// RateTable maps channels to base rates.
type RateTable map[messaging.Channel]Rates

// DefaultRateTable returns the built-in base rates.
func DefaultRateTable() RateTable {
	return RateTable{
		messaging.ChannelAppPush: {OpenRate: 0.45, ClickRate: 0.12, ConversionRate: 0.035},
		messaging.ChannelSMS:     {OpenRate: 0.98, ClickRate: 0.08, ConversionRate: 0.025},
		messaging.ChannelEmail:   {OpenRate: 0.25, ClickRate: 0.05, ConversionRate: 0.015},
		messaging.ChannelKakao:   {OpenRate: 0.65, ClickRate: 0.15, ConversionRate: 0.04},
		messaging.ChannelWebPush: {OpenRate: 0.30, ClickRate: 0.07, ConversionRate: 0.02},
	}
}

// Multiplier is the assumed lift of a variation over control. Values outside
// the closed Variation set get no lift.
func Multiplier(v messaging.Variation) float64 {
	switch v {
	case messaging.VariationEmojiHeavy:
		return 1.10
	case messaging.VariationBenefitFocused:
		return 1.12
	case messaging.VariationUrgent:
		return 1.15
	case messaging.VariationSocialProof:
		return 1.18
	case messaging.VariationPersonalized:
		return 1.20
	case messaging.VariationControl:
		return 1.0
	}
	return 1.0
}

// Band is a [low, high] confidence interval.
type Band [2]float64

// ConfidenceInterval covers open and click rates.
type ConfidenceInterval struct {
	OpenRate  Band `json:"open_rate"`
	ClickRate Band `json:"click_rate"`
}

// Prediction is the forecast for one message.
type Prediction struct {
	MessageID               string              `json:"message_id"`
	Category                messaging.Category  `json:"category"`
	Channel                 messaging.Channel   `json:"channel"`
	Variation               messaging.Variation `json:"variation"`
	PredictedOpenRate       float64             `json:"predicted_open_rate"`
	PredictedClickRate      float64             `json:"predicted_click_rate"`
	PredictedConversionRate float64             `json:"predicted_conversion_rate"`
	ConfidenceInterval      ConfidenceInterval  `json:"confidence_interval"`
}

// Summary aggregates the predictions.
type Summary struct {
	AvgOpenRate             float64             `json:"avg_open_rate"`
	AvgClickRate            float64             `json:"avg_click_rate"`
	AvgConversionRate       float64             `json:"avg_conversion_rate"`
	BestPerformingVariation messaging.Variation `json:"best_performing_variation"`
	BestChannel             messaging.Channel   `json:"best_channel"`
}

// Forecast is the result of Predict.
type Forecast struct {
	Predictions []Prediction `json:"predictions"`
	Summary     Summary      `json:"summary"`
}

// Forecaster predicts message performance. It is immutable and safe for
// concurrent use.
type Forecaster struct {
	rates RateTable
}

// Option configures a Forecaster.
type Option func(*Forecaster)

// WithRateTable replaces the base rates.
func WithRateTable(t RateTable) Option {
	return func(f *Forecaster) {
		rates := make(RateTable, len(t))
		for ch, r := range t {
			rates[ch] = r
		}
		f.rates = rates
	}
}

// NewForecaster creates a forecaster over DefaultRateTable.
func NewForecaster(opts ...Option) *Forecaster {
	f := &Forecaster{rates: DefaultRateTable()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Predict returns one prediction per message, in input order, plus a summary.
func (f *Forecaster) Predict(msgs []messaging.Message) (*Forecast, error) {
	if len(msgs) == 0 {
		return nil, ErrNoMessages
	}

	out := &Forecast{Predictions: make([]Prediction, 0, len(msgs))}
	opens := make(stats.Float64Data, 0, len(msgs))
	clicks := make(stats.Float64Data, 0, len(msgs))
	convs := make(stats.Float64Data, 0, len(msgs))

	var best, bestClick int
	for i, m := range msgs {
		base, ok := f.rates[m.Channel]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownChannel, m.Channel)
		}
		mult := Multiplier(m.Variation)
		p := Prediction{
			MessageID:               MessageID(m.Text),
			Category:                m.Category,
			Channel:                 m.Channel,
			Variation:               m.Variation,
			PredictedOpenRate:       round3(base.OpenRate * mult),
			PredictedClickRate:      round3(base.ClickRate * mult),
			PredictedConversionRate: round3(base.ConversionRate * mult),
			ConfidenceInterval: ConfidenceInterval{
				OpenRate:  band(base.OpenRate * mult),
				ClickRate: band(base.ClickRate * mult),
			},
		}
		out.Predictions = append(out.Predictions, p)
		opens = append(opens, p.PredictedOpenRate)
		clicks = append(clicks, p.PredictedClickRate)
		convs = append(convs, p.PredictedConversionRate)

		// Strict comparison keeps the first record on ties.
		if p.PredictedConversionRate > out.Predictions[best].PredictedConversionRate {
			best = i
		}
		if p.PredictedClickRate > out.Predictions[bestClick].PredictedClickRate {
			bestClick = i
		}
	}

	var err error
	s := &out.Summary
	if s.AvgOpenRate, err = roundedMean(opens); err != nil {
		return nil, err
	}
	if s.AvgClickRate, err = roundedMean(clicks); err != nil {
		return nil, err
	}
	if s.AvgConversionRate, err = roundedMean(convs); err != nil {
		return nil, err
	}
	s.BestPerformingVariation = out.Predictions[best].Variation
	s.BestChannel = out.Predictions[bestClick].Channel
	return out, nil
}

// MessageID is the first 8 hex characters of the MD5 of text.
func MessageID(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])[:messageIDSize]
}

func band(v float64) Band {
	return Band{round3(v * bandLow), round3(v * bandHigh)}
}

func roundedMean(data stats.Float64Data) (float64, error) {
	mean, err := stats.Mean(data)
	if err != nil {
		return 0, fmt.Errorf("mean: %w", err)
	}
	return round3(mean), nil
}

func round3(v float64) float64 {
	// stats.Round only fails on NaN; every input here is a product of finite rates.
	r, err := stats.Round(v, decimals)
	if err != nil {
		return v
	}
	return r
}
