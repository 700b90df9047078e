package pdf

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

const (
	defaultWaitSeconds = 20
	maxBatchSize       = 10
	deleteTimeout      = 5 * time.Second
)

// Worker consumes generation jobs from SQS.
type Worker struct {
	client      SQSAPI
	queueURL    string
	generator   *Generator
	logger      *logging.Logger
	waitSeconds int32
	batchSize   int32
}

func NewWorker(client SQSAPI, queueURL string, generator *Generator, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		client:      client,
		queueURL:    queueURL,
		generator:   generator,
		logger:      logger.Component("pdf-worker"),
		waitSeconds: defaultWaitSeconds,
		batchSize:   maxBatchSize,
	}
}

// Poll receives and handles jobs until ctx is cancelled.
func (w *Worker) Poll(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		_, err := w.PollOnce(ctx)
		if err == nil {
			backoff = time.Second
			continue
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		w.logger.Error("failed to receive pdf jobs", "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// PollOnce runs one receive call and returns how many jobs were handled.
func (w *Worker) PollOnce(ctx context.Context) (int, error) {
	out, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(w.queueURL),
		MaxNumberOfMessages: w.batchSize,
		WaitTimeSeconds:     w.waitSeconds,
	})
	if err != nil {
		return 0, err
	}
	for _, msg := range out.Messages {
		w.handle(ctx, aws.ToString(msg.Body), aws.ToString(msg.ReceiptHandle))
	}
	return len(out.Messages), nil
}

// handle deletes the message when the job succeeded or can never succeed.
// Other failures leave it for redelivery.
func (w *Worker) handle(ctx context.Context, body, receipt string) {
	var j job
	if err := json.Unmarshal([]byte(body), &j); err != nil || j.InvoiceID == "" {
		w.logger.Error("dropping malformed pdf job", "error", err, "body", body)
		w.delete(receipt)
		return
	}
	res, err := w.generator.Generate(ctx, j.InvoiceID)
	switch {
	case err == nil:
		w.logger.Info("pdf job done", "invoice_id", j.InvoiceID, "queued_for", time.Since(j.RequestedAt).String())
		w.delete(receipt)
	case errors.Is(err, shared.ErrNotFound):
		w.logger.Warn("dropping pdf job for missing invoice", "invoice_id", j.InvoiceID)
		w.delete(receipt)
	default:
		w.logger.Error("pdf job failed, leaving for retry", "invoice_id", j.InvoiceID, "message", res.Message, "error", err)
	}
}

func (w *Worker) delete(receipt string) {
	if receipt == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()
	if _, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		w.logger.Error("failed to delete pdf job", "error", err)
	}
}
