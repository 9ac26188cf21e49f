package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/cdp-messenger/internal/experiment"
	"github.com/ignite/cdp-messenger/internal/messaging"
	"github.com/ignite/cdp-messenger/internal/pkg/httpretry"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubTransport struct {
	mu    sync.Mutex
	calls int
	last  Envelope
	resp  json.RawMessage
	err   error
	block chan struct{}
}

func (s *stubTransport) Send(ctx context.Context, _ Credentials, env Envelope) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls++
	s.last = env
	s.mu.Unlock()
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.resp, s.err
}

func (s *stubTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func descriptor() *experiment.Descriptor {
	return &experiment.Descriptor{
		TestID:              "0123456789ab",
		DurationDays:        7,
		TestRatioPercent:    20,
		TotalVariations:     5,
		EstimatedSampleSize: 100000,
	}
}

func messages() []messaging.Message {
	return []messaging.Message{
		{Category: messaging.CategoryLoan, Text: "대출 안내", Channel: messaging.ChannelEmail,
			Variation: messaging.VariationControl, TestGroup: messaging.GroupControl},
	}
}

func newAdapter(tr Transport, creds Credentials, opts ...Option) *Adapter {
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "cafebabe0001" }),
	}, opts...)
	return NewAdapter(tr, creds, opts...)
}

func TestDispatch_MissingCredentials(t *testing.T) {
	for _, creds := range []Credentials{{}, {APIKey: "k"}, {Endpoint: "http://x"}} {
		tr := &stubTransport{}
		res := newAdapter(tr, creds).Dispatch(context.Background(), messages(), descriptor())

		assert.Equal(t, StatusError, res.Status)
		assert.Equal(t, "0123456789ab", res.TestID)
		assert.Equal(t, "API credentials not configured", res.Message)
		assert.Zero(t, tr.Calls())
	}
}

func TestDispatch_Success(t *testing.T) {
	tr := &stubTransport{resp: json.RawMessage(`{"ok":true}`)}
	res := newAdapter(tr, Credentials{APIKey: "k", Endpoint: "http://x"}).
		Dispatch(context.Background(), messages(), descriptor())

	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "0123456789ab", res.TestID)
	assert.Equal(t, "cafebabe0001", res.CampaignID)
	assert.Equal(t, 100000, res.EstimatedReach)
	require.NotNil(t, res.ScheduledStart)
	assert.Equal(t, fixedNow, *res.ScheduledStart)
	assert.JSONEq(t, `{"ok":true}`, string(res.APIResponse))

	assert.Equal(t, 1, tr.Calls())
	assert.Equal(t, fixedNow, tr.last.Schedule.StartDate)
	assert.Equal(t, fixedNow.AddDate(0, 0, 7), tr.last.Schedule.EndDate)
	assert.Len(t, tr.last.Messages, 1)
	assert.Equal(t, "0123456789ab", tr.last.TestConfig.TestID)
}

func TestDispatch_TransportFailure(t *testing.T) {
	tr := &stubTransport{err: errors.New("connection refused")}
	res := newAdapter(tr, Credentials{APIKey: "k", Endpoint: "http://x"}).
		Dispatch(context.Background(), messages(), descriptor())

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "connection refused", res.Message)
	assert.Equal(t, "0123456789ab", res.TestID)
	assert.Empty(t, res.CampaignID)
}

func TestDispatch_Timeout(t *testing.T) {
	tr := &stubTransport{block: make(chan struct{})}
	res := newAdapter(tr, Credentials{APIKey: "k", Endpoint: "http://x"}, WithTimeout(20*time.Millisecond)).
		Dispatch(context.Background(), messages(), descriptor())

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "deadline exceeded")
}

func TestDispatch_NilDescriptor(t *testing.T) {
	tr := &stubTransport{}
	res := newAdapter(tr, Credentials{APIKey: "k", Endpoint: "http://x"}).Dispatch(context.Background(), nil, nil)
	assert.Equal(t, StatusError, res.Status)
	assert.Zero(t, tr.Calls())
}

func TestDispatch_GuardRejectsConcurrentDispatch(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	tr := &stubTransport{block: make(chan struct{}), resp: json.RawMessage(`{}`)}
	a := newAdapter(tr, Credentials{APIKey: "k", Endpoint: "http://x"}, WithGuard(NewLockGuard(client, time.Minute)))

	first := make(chan Result, 1)
	go func() { first <- a.Dispatch(context.Background(), messages(), descriptor()) }()

	require.Eventually(t, func() bool { return tr.Calls() == 1 }, time.Second, 5*time.Millisecond)

	second := a.Dispatch(context.Background(), messages(), descriptor())
	assert.Equal(t, StatusError, second.Status)
	assert.Equal(t, "dispatch already in progress", second.Message)

	close(tr.block)
	assert.Equal(t, StatusSuccess, (<-first).Status)
	assert.False(t, mr.Exists("lock:dispatch:0123456789ab"), "guard released")

	third := a.Dispatch(context.Background(), messages(), descriptor())
	assert.Equal(t, StatusSuccess, third.Status)
}

func TestDispatch_GuardError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	tr := &stubTransport{}
	res := newAdapter(tr, Credentials{APIKey: "k", Endpoint: "http://x"}, WithGuard(NewLockGuard(client, time.Minute))).
		Dispatch(context.Background(), messages(), descriptor())

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "dispatch guard")
	assert.Zero(t, tr.Calls())
}

func TestHTTPTransport_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/campaigns/create", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var env Envelope
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &env))
		assert.Equal(t, "0123456789ab", env.TestConfig.TestID)

		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"campaign":"accepted"}`))
	}))
	defer srv.Close()

	retry := httpretry.NewRetryClient(srv.Client(), 2, httpretry.WithBackoff(time.Millisecond, 5*time.Millisecond))
	a := newAdapter(NewHTTPTransport(retry), Credentials{APIKey: "secret", Endpoint: srv.URL + "/v1/"})

	res := a.Dispatch(context.Background(), messages(), descriptor())
	require.Equal(t, StatusSuccess, res.Status, res.Message)
	assert.JSONEq(t, `{"campaign":"accepted"}`, string(res.APIResponse))
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPTransport_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.Client())
	_, err := tr.Send(context.Background(), Credentials{APIKey: "k", Endpoint: srv.URL}, Envelope{TestConfig: descriptor()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad key")
}

func TestAsJSON(t *testing.T) {
	assert.Nil(t, asJSON([]byte("  ")))
	assert.JSONEq(t, `{"a":1}`, string(asJSON([]byte(`{"a":1}`))))
	assert.JSONEq(t, `"queued"`, string(asJSON([]byte("queued"))))
}

type stubSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (s *stubSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.input = in
	if s.err != nil {
		return nil, s.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSTransport_Send(t *testing.T) {
	api := &stubSQS{}
	tr := NewSQSTransport(api, "")
	resp, err := tr.Send(context.Background(), Credentials{APIKey: "k", Endpoint: "https://sqs.example/queue"},
		Envelope{TestConfig: descriptor(), Messages: messages()})
	require.NoError(t, err)

	assert.Equal(t, "https://sqs.example/queue", aws.ToString(api.input.QueueUrl))
	assert.Equal(t, "0123456789ab", aws.ToString(api.input.MessageAttributes["test_id"].StringValue))
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(api.input.MessageBody)), &env))
	assert.Len(t, env.Messages, 1)
	assert.JSONEq(t, `{"queue":"https://sqs.example/queue","message_id":"m-1"}`, string(resp))

	api.err = errors.New("throttled")
	_, err = NewSQSTransport(api, "https://sqs.example/other").Send(context.Background(), Credentials{}, Envelope{})
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, "https://sqs.example/other", aws.ToString(api.input.QueueUrl))
}
