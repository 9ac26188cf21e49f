package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used by SQSTransport.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSTransport publishes the envelope to a queue drained by a relay that
// talks to the delivery service.
type SQSTransport struct {
	client   SQSAPI
	queueURL string
}

// NewSQSTransport creates a transport. An empty queueURL falls back to the
// credentials endpoint at send time.
func NewSQSTransport(client SQSAPI, queueURL string) *SQSTransport {
	return &SQSTransport{client: client, queueURL: queueURL}
}

func (t *SQSTransport) Send(ctx context.Context, creds Credentials, env Envelope) (json.RawMessage, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: encode envelope: %v", ErrTransport, err)
	}
	queueURL := t.queueURL
	if queueURL == "" {
		queueURL = creds.Endpoint
	}

	testID := ""
	if env.TestConfig != nil {
		testID = env.TestConfig.TestID
	}
	out, err := t.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"test_id": {DataType: aws.String("String"), StringValue: aws.String(testID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sqs send: %v", ErrTransport, err)
	}
	resp, _ := json.Marshal(map[string]string{
		"queue":      queueURL,
		"message_id": aws.ToString(out.MessageId),
	})
	return resp, nil
}
