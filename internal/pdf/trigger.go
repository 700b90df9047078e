package pdf

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used by QueueTrigger and Worker.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type job struct {
	InvoiceID   string    `json:"invoiceId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// QueueTrigger hands generation to the pdf worker through SQS.
type QueueTrigger struct {
	client   SQSAPI
	queueURL string
	now      func() time.Time
}

func NewQueueTrigger(client SQSAPI, queueURL string) *QueueTrigger {
	if client == nil {
		panic("pdf: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("pdf: SQS queueURL cannot be empty")
	}
	return &QueueTrigger{client: client, queueURL: queueURL, now: time.Now}
}

func (q *QueueTrigger) Trigger(ctx context.Context, invoiceID string) error {
	body, err := json.Marshal(job{InvoiceID: invoiceID, RequestedAt: q.now().UTC()})
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"invoiceId": {DataType: aws.String("String"), StringValue: aws.String(invoiceID)},
		},
	})
	if err != nil {
		return fmt.Errorf("pdf: enqueue %s: %w", invoiceID, err)
	}
	return nil
}
