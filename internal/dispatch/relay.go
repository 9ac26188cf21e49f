package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/cdp-messenger/internal/pkg/logger"
)

// SQSQueueAPI is the subset of the SQS client used by Relay.
type SQSQueueAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Relay drains envelopes published by SQSTransport and forwards each one to
// the delivery service through another Transport. A message is deleted once
// forwarded or when it cannot be decoded; forwarding failures are left on the
// queue for redelivery.
type Relay struct {
	client       SQSQueueAPI
	queueURL     string
	forward      Transport
	creds        Credentials
	timeout      time.Duration
	waitSeconds  int32
	errorBackoff time.Duration
	done         chan struct{}
	stopOnce     sync.Once
	exited       chan struct{}
}

// NewRelay creates a relay from queueURL to forward.
func NewRelay(client SQSQueueAPI, queueURL string, forward Transport, creds Credentials) *Relay {
	return &Relay{
		client:       client,
		queueURL:     queueURL,
		forward:      forward,
		creds:        creds,
		timeout:      defaultTimeout,
		waitSeconds:  20,
		errorBackoff: 5 * time.Second,
		done:         make(chan struct{}),
		exited:       make(chan struct{}),
	}
}

// Start polls in a new goroutine until ctx ends or Stop is called.
func (r *Relay) Start(ctx context.Context) {
	logger.Info("dispatch relay started", "queue", r.queueURL)
	go r.poll(ctx)
}

// Stop ends polling. It is safe to call more than once.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Relay) poll(ctx context.Context) {
	defer close(r.exited)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		default:
		}

		if _, err := r.ProcessOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("relay receive failed", "queue", r.queueURL, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-r.done:
				return
			case <-time.After(r.errorBackoff):
			}
		}
	}
}

// ProcessOnce receives one batch and forwards it. It returns how many
// envelopes were delivered; only a receive failure is an error.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	out, err := r.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(r.queueURL),
		MaxNumberOfMessages:   10,
		WaitTimeSeconds:       r.waitSeconds,
		MessageAttributeNames: []string{"test_id"},
	})
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, msg := range out.Messages {
		var env Envelope
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &env); err != nil {
			logger.Warn("relay dropped undecodable envelope", "message_id", aws.ToString(msg.MessageId), "error", err)
			r.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}

		testID := ""
		if env.TestConfig != nil {
			testID = env.TestConfig.TestID
		}
		sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
		_, err := r.forward.Send(sendCtx, r.creds, env)
		cancel()
		if err != nil {
			logger.Error("relay forward failed, leaving for redelivery", "test_id", testID, "error", err)
			continue
		}

		r.deleteMessage(ctx, msg.ReceiptHandle)
		delivered++
		logger.Info("relay forwarded campaign", "test_id", testID, "messages", len(env.Messages))
	}
	return delivered, nil
}

func (r *Relay) deleteMessage(ctx context.Context, handle *string) {
	if _, err := r.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.queueURL),
		ReceiptHandle: handle,
	}); err != nil {
		logger.Warn("relay delete failed", "queue", r.queueURL, "error", err)
	}
}
