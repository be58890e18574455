package addelete

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// feedTimeLayout names feed files to the second; the uuid suffix keeps
// batches drained in the same second from colliding.
const feedTimeLayout = "2006-01-02T15-04-05"

// Receiver is the queue side of the feed writer.
type Receiver interface {
	Receive(ctx context.Context, max int32) ([]QueuedItem, error)
	DeleteBatch(ctx context.Context, items []QueuedItem) error
}

// Uploader stores a finished feed file.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

// S3Uploader puts feed files in the integration bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
}

func NewS3Uploader(cfg aws.Config, bucket string) (*S3Uploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("ad_delete bucket is required")
	}
	return &S3Uploader{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, key string, body []byte) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	return err
}

// FeedWriter drains the outbound queue into CSV files for the identity-sync
// feed. Queue messages are deleted only after the upload succeeds, so a crash
// between the two redelivers; dedup on the outbound path absorbs that.
type FeedWriter struct {
	queue    Receiver
	uploader Uploader
	env      string // "Prod" or "Dev", the feed path segment
	now      func() time.Time
	newID    func() string
}

func NewFeedWriter(queue Receiver, uploader Uploader, environment string) *FeedWriter {
	env := "Dev"
	if environment == "production" {
		env = "Prod"
	}
	return &FeedWriter{queue: queue, uploader: uploader, env: env, now: time.Now, newID: uuid.NewString}
}

// Run accumulates one batch into one file. Returns the number of items
// handed off.
func (w *FeedWriter) Run(ctx context.Context) (int, error) {
	items, err := w.queue.Receive(ctx, 10)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	body, err := renderCSV(items)
	if err != nil {
		return 0, err
	}

	// The key must be unique per batch: reusing one would overwrite a file
	// whose queue messages are already deleted.
	name := fmt.Sprintf("iam2ad%s-%s.csv", w.now().Format(feedTimeLayout), w.newID()[:8])
	key := fmt.Sprintf("IAM/iam2ad/%s/%s", w.env, name)

	if err := w.uploader.Upload(ctx, key, body); err != nil {
		return 0, err
	}
	log.Printf("addelete: feed file uploaded: %s (%d items)", key, len(items))

	if err := w.queue.DeleteBatch(ctx, items); err != nil {
		return len(items), err
	}
	return len(items), nil
}

func renderCSV(items []QueuedItem) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if err := cw.Write([]string{"action", "username"}); err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.Action == "" {
			// Undecodable queue message; drop it with the batch rather than
			// poison the feed.
			log.Println("addelete: dropping malformed queue message", item.MessageID)
			continue
		}
		if err := cw.Write([]string{item.Action, item.Username}); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}
