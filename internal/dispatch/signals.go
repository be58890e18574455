package dispatch

import (
	"context"
	"encoding/json"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

// SignalPublisher writes failure/success signals to the failure topic.
type SignalPublisher struct {
	writer  *kgo.Writer
	timeout time.Duration
}

func NewSignalPublisher(brokers []string, topic string) *SignalPublisher {
	if topic == "" {
		panic("failure topic is required")
	}

	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}

	return &SignalPublisher{writer: w, timeout: 3 * time.Second}
}

func (p *SignalPublisher) Close() error { return p.writer.Close() }

func (p *SignalPublisher) PublishSignal(ctx context.Context, sig Signal) error {
	b, err := json.Marshal(sig)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Keyed by username so signals for one user stay ordered.
	return p.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(sig.Username),
		Value: b,
		Time:  time.Now(),
	})
}

// SignalSubscriber consumes the failure topic.
type SignalSubscriber struct {
	reader *kgo.Reader
}

func NewSignalSubscriber(brokers []string, topic, groupID string) *SignalSubscriber {
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return &SignalSubscriber{reader: r}
}

func (s *SignalSubscriber) Close() error { return s.reader.Close() }

func (s *SignalSubscriber) Next(ctx context.Context) (Signal, func(context.Context) error, error) {
	m, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return Signal{}, nil, err
	}

	var sig Signal
	if err := json.Unmarshal(m.Value, &sig); err != nil {
		_ = s.reader.CommitMessages(ctx, m)
		return Signal{}, nil, err
	}

	commit := func(cctx context.Context) error {
		cc, cancel := context.WithTimeout(cctx, 3*time.Second)
		defer cancel()
		return s.reader.CommitMessages(cc, m)
	}

	return sig, commit, nil
}
