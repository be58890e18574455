// Package dispatch is the pub/sub fan-out between the scheduler, the
// effectors, the step advancer and the failure pipeline: one broadcast Kafka
// topic where every message carries a "step" header and subscribers filter on
// the steps (and effector names) they accept.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	kgo "github.com/segmentio/kafka-go"

	"github.com/ofelix-plnu/acct-deprov/internal/models"
)

// Publisher writes batches to the dispatch topic.
type Publisher struct {
	writer  *kgo.Writer
	timeout time.Duration
}

func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		panic("dispatch topic is required")
	}

	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}

	return &Publisher{
		writer:  w,
		timeout: 3 * time.Second,
	}
}

func (p *Publisher) Close() error { return p.writer.Close() }

// Publish fans a work batch out to the effectors filtering on step. The step
// is a step name for scheduled work or an effector name for sweep retries.
func (p *Publisher) Publish(ctx context.Context, step string, records []models.EventRecord) error {
	return p.publish(ctx, step, KindWork, records)
}

// PublishAck hands the records an effector completed to the step advancer.
func (p *Publisher) PublishAck(ctx context.Context, step string, records []models.EventRecord) error {
	return p.publish(ctx, step, KindAck, records)
}

func (p *Publisher) publish(ctx context.Context, step, kind string, records []models.EventRecord) error {
	b, err := json.Marshal(Batch{Records: records})
	if err != nil {
		return err
	}

	// Small timeout so callers don't hang if Kafka is down.
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(step),
		Value: b,
		Time:  time.Now(),
		Headers: []kgo.Header{
			{Key: "step", Value: []byte(step)},
			{Key: "kind", Value: []byte(kind)},
		},
	})
}
