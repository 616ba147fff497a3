package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"
)

// UpdatesStorage relays broadcast events to a Kafka topic so that other
// services can follow chat activity. Messages are keyed by the broadcast
// topic name, which keeps every broadcast topic on a single partition and
// preserves its order.
type UpdatesStorage struct {
	cfg      *UpdatesStoreConfig
	producer sarama.SyncProducer
}

type UpdatesStoreConfig struct {
	UpdatesTopic string
}

// Update is the record written to Kafka.
type Update struct {
	Topic     string          `json:"topic"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

func NewUpdatesStore(p sarama.SyncProducer, cfg *UpdatesStoreConfig) *UpdatesStorage {
	return &UpdatesStorage{
		producer: p,
		cfg:      cfg,
	}
}

func (s *UpdatesStorage) encode(topic, event string, payload interface{}, at time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Update{
		Topic:     topic,
		Event:     event,
		Data:      data,
		Timestamp: at.UTC().Unix(),
	})
}

func (s *UpdatesStorage) Publish(ctx context.Context, topic, event string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	bytes, err := s.encode(topic, event, payload, now)
	if err != nil {
		return err
	}

	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     s.cfg.UpdatesTopic,
		Key:       sarama.StringEncoder(topic),
		Value:     sarama.ByteEncoder(bytes),
		Timestamp: now,
	})

	return err
}

func (s *UpdatesStorage) Close() error {
	return s.producer.Close()
}
