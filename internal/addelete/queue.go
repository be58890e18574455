package addelete

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// QueuedItem is a received work item plus what's needed to delete it after
// durable hand-off.
type QueuedItem struct {
	WorkItem
	MessageID     string
	ReceiptHandle string
}

// SQSQueue is the outbound FIFO queue. Messages are grouped per username so a
// user's suspend is durably recorded before the paired delete, and
// deduplicated on (username, action).
type SQSQueue struct {
	client *sqs.Client
	url    string
}

func NewSQSQueue(cfg aws.Config, url string) (*SQSQueue, error) {
	if url == "" {
		return nil, fmt.Errorf("ad_delete queue url is required")
	}
	return &SQSQueue{client: sqs.NewFromConfig(cfg), url: url}, nil
}

func (q *SQSQueue) Send(ctx context.Context, item WorkItem) error {
	body, err := json.Marshal(item)
	if err != nil {
		return err
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(q.url),
		MessageBody:            aws.String(string(body)),
		MessageGroupId:         aws.String(item.Username),
		MessageDeduplicationId: aws.String(item.Username + "-" + item.Action),
	})
	return err
}

// Receive pulls up to max work items. Undecodable messages are returned with
// an empty action; the feed writer drops them with their batch.
func (q *SQSQueue) Receive(ctx context.Context, max int32) ([]QueuedItem, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: max,
		WaitTimeSeconds:     5,
	})
	if err != nil {
		return nil, err
	}

	items := make([]QueuedItem, 0, len(out.Messages))
	for _, m := range out.Messages {
		var item QueuedItem
		_ = json.Unmarshal([]byte(aws.ToString(m.Body)), &item.WorkItem)
		item.MessageID = aws.ToString(m.MessageId)
		item.ReceiptHandle = aws.ToString(m.ReceiptHandle)
		items = append(items, item)
	}
	return items, nil
}

// DeleteBatch removes handed-off items from the queue.
func (q *SQSQueue) DeleteBatch(ctx context.Context, items []QueuedItem) error {
	if len(items) == 0 {
		return nil
	}

	entries := make([]sqstypes.DeleteMessageBatchRequestEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, sqstypes.DeleteMessageBatchRequestEntry{
			Id:            aws.String(item.MessageID),
			ReceiptHandle: aws.String(item.ReceiptHandle),
		})
	}

	out, err := q.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: aws.String(q.url),
		Entries:  entries,
	})
	if err != nil {
		return err
	}
	if len(out.Failed) > 0 {
		return fmt.Errorf("%d queue messages failed to delete", len(out.Failed))
	}
	return nil
}
