package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"

	"suratline/internal/config"
	"suratline/internal/domain"
)

// publisher is the part of *nsq.Producer the sink uses.
type publisher interface {
	Publish(topic string, body []byte) error
	Stop()
}

// NSQSink publishes each entry as a JSON message on one topic.
type NSQSink struct {
	producer publisher
	topic    string
}

func NewNSQSink(cfg config.NSQConfig) (*NSQSink, error) {
	nsqConfig := nsq.NewConfig()
	producer, err := nsq.NewProducer(cfg.Addr, nsqConfig)
	if err != nil {
		return nil, fmt.Errorf("nsq producer for %s: %w", cfg.Addr, err)
	}
	return &NSQSink{producer: producer, topic: cfg.Topic}, nil
}

func (s *NSQSink) Name() string { return "nsq " + s.topic }

func (s *NSQSink) Deliver(_ context.Context, entry domain.HistoryEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.producer.Publish(s.topic, body); err != nil {
		return fmt.Errorf("nsq publish to %s: %w", s.topic, err)
	}
	return nil
}

func (s *NSQSink) Stop() {
	s.producer.Stop()
}
