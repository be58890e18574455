package dispatch

import (
	"context"
	"encoding/json"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

// Subscriber consumes the dispatch topic under its own consumer group,
// skipping messages its filter rejects. Each subscriber sees every message
// (broadcast); the filter is what turns that into SNS-style routing.
type Subscriber struct {
	reader *kgo.Reader
	kind   string
	filter Filter
}

func NewSubscriber(brokers []string, topic, groupID, kind string, filter Filter) *Subscriber {
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commits
	})

	return &Subscriber{reader: r, kind: kind, filter: filter}
}

func (s *Subscriber) Close() error { return s.reader.Close() }

// Next blocks until a matching batch arrives and returns it with a commit
// function to call after processing. Non-matching messages are committed and
// skipped; undecodable ones are committed so they don't wedge the group.
func (s *Subscriber) Next(ctx context.Context) (Batch, string, func(context.Context) error, error) {
	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			return Batch{}, "", nil, err
		}

		step, kind := headerValues(m)
		if kind != s.kind || !s.filter(step) {
			if err := s.reader.CommitMessages(ctx, m); err != nil {
				return Batch{}, "", nil, err
			}
			continue
		}

		var batch Batch
		if err := json.Unmarshal(m.Value, &batch); err != nil {
			_ = s.reader.CommitMessages(ctx, m)
			return Batch{}, "", nil, err
		}

		commit := func(cctx context.Context) error {
			cc, cancel := context.WithTimeout(cctx, 3*time.Second)
			defer cancel()
			return s.reader.CommitMessages(cc, m)
		}

		return batch, step, commit, nil
	}
}

func headerValues(m kgo.Message) (step, kind string) {
	for _, h := range m.Headers {
		switch h.Key {
		case "step":
			step = string(h.Value)
		case "kind":
			kind = string(h.Value)
		}
	}
	return step, kind
}
