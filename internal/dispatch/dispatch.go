// Package dispatch hands generated campaigns to an external delivery service
// and normalizes the outcome into a status result.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/cdp-messenger/internal/experiment"
	"github.com/ignite/cdp-messenger/internal/messaging"
	"github.com/ignite/cdp-messenger/internal/pkg/logger"
)

const (
	defaultTimeout = 30 * time.Second

	msgNoCredentials = "API credentials not configured"
	msgInProgress    = "dispatch already in progress"
	msgNoExperiment  = "experiment descriptor is required"
)

// ErrTransport wraps every delivery failure reported by a Transport.
var ErrTransport = errors.New("delivery transport failed")

// Credentials for the delivery service.
type Credentials struct {
	APIKey   string
	Endpoint string
}

// Configured reports whether both the key and the endpoint are set.
func (c Credentials) Configured() bool {
	return c.APIKey != "" && c.Endpoint != ""
}

// Schedule is the campaign window.
type Schedule struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Envelope is the payload handed to the transport.
type Envelope struct {
	TestConfig *experiment.Descriptor `json:"test_config"`
	Messages   []messaging.Message    `json:"messages"`
	Schedule   Schedule               `json:"schedule"`
}

// Status is the dispatch outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the normalized dispatch outcome. Failures are results, never
// errors: the caller keeps its messages and descriptor either way.
type Result struct {
	Status         Status          `json:"status"`
	Message        string          `json:"message,omitempty"`
	TestID         string          `json:"test_id"`
	CampaignID     string          `json:"campaign_id,omitempty"`
	EstimatedReach int             `json:"estimated_reach,omitempty"`
	ScheduledStart *time.Time      `json:"scheduled_start,omitempty"`
	APIResponse    json.RawMessage `json:"api_response,omitempty"`
}

// Transport delivers an envelope and returns the service's response body.
type Transport interface {
	Send(ctx context.Context, creds Credentials, env Envelope) (json.RawMessage, error)
}

// Adapter validates credentials, builds the envelope and calls the transport
// under a timeout.
type Adapter struct {
	transport Transport
	creds     Credentials
	guard     Guard
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout bounds each transport call. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithGuard rejects concurrent dispatches of the same test.
func WithGuard(g Guard) Option {
	return func(a *Adapter) { a.guard = g }
}

// WithClock overrides the schedule clock.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithIDGenerator overrides campaign id generation.
func WithIDGenerator(gen func() string) Option {
	return func(a *Adapter) { a.newID = gen }
}

// NewAdapter creates an adapter. A nil transport makes every configured
// dispatch fail with a transport error.
func NewAdapter(transport Transport, creds Credentials, opts ...Option) *Adapter {
	a := &Adapter{
		transport: transport,
		creds:     creds,
		timeout:   defaultTimeout,
		now:       time.Now,
		newID:     experiment.NewTestID,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dispatch sends msgs for desc. Missing credentials return an error result
// without touching the transport; so does a held guard.
func (a *Adapter) Dispatch(ctx context.Context, msgs []messaging.Message, desc *experiment.Descriptor) Result {
	if desc == nil {
		return errorResult("", msgNoExperiment)
	}
	if !a.creds.Configured() {
		logger.Warn("dispatch skipped: credentials missing", "test_id", desc.TestID)
		return errorResult(desc.TestID, msgNoCredentials)
	}
	if a.transport == nil {
		return errorResult(desc.TestID, fmt.Sprintf("%v: no transport configured", ErrTransport))
	}

	if a.guard != nil {
		release, ok, err := a.guard.Acquire(ctx, desc.TestID)
		if err != nil {
			logger.Error("dispatch guard failed", "test_id", desc.TestID, "error", err)
			return errorResult(desc.TestID, fmt.Sprintf("dispatch guard: %v", err))
		}
		if !ok {
			return errorResult(desc.TestID, msgInProgress)
		}
		defer release()
	}

	start := a.now().UTC()
	env := Envelope{
		TestConfig: desc,
		Messages:   msgs,
		Schedule: Schedule{
			StartDate: start,
			EndDate:   start.AddDate(0, 0, desc.DurationDays),
		},
	}

	sendCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.transport.Send(sendCtx, a.creds, env)
	if err != nil {
		logger.Error("dispatch failed", "test_id", desc.TestID, "error", err)
		return errorResult(desc.TestID, err.Error())
	}

	res := Result{
		Status:         StatusSuccess,
		TestID:         desc.TestID,
		CampaignID:     a.newID(),
		EstimatedReach: desc.EstimatedSampleSize,
		ScheduledStart: &start,
		APIResponse:    resp,
	}
	logger.Info("campaign dispatched", "test_id", res.TestID, "campaign_id", res.CampaignID,
		"messages", len(msgs))
	return res
}

func errorResult(testID, message string) Result {
	return Result{Status: StatusError, Message: message, TestID: testID}
}
