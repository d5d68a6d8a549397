package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"glucolog/internal/platform/models"
)

type BatchInserter interface {
	InsertBatch(ctx context.Context, records []models.UsageRecord) error
}

type LastUsedToucher interface {
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// SQLSink stores records and stamps last_used_at on the credentials seen in the batch.
type SQLSink struct {
	records BatchInserter
	keys    LastUsedToucher
}

func NewSQLSink(records BatchInserter, keys LastUsedToucher) *SQLSink {
	return &SQLSink{records: records, keys: keys}
}

func (s *SQLSink) Write(ctx context.Context, records []models.UsageRecord) error {
	if err := s.records.InsertBatch(ctx, records); err != nil {
		return err
	}
	if s.keys == nil {
		return nil
	}

	latest := make(map[string]int64)
	for _, rec := range records {
		if rec.CredentialID == "" || !rec.Successful() {
			continue
		}
		if rec.CreatedAt > latest[rec.CredentialID] {
			latest[rec.CredentialID] = rec.CreatedAt
		}
	}
	for id, ms := range latest {
		if err := s.keys.TouchLastUsed(ctx, id, time.UnixMilli(ms)); err != nil {
			log.Warn().Err(err).Str("credential_id", id).Msg("failed to touch last_used_at")
		}
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each record as JSON keyed by principal.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker")
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Balancer:     &kafka.Hash{},
		},
	}, nil
}

func (s *KafkaSink) Write(ctx context.Context, records []models.UsageRecord) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.PrincipalID),
			Value: payload,
			Time:  time.UnixMilli(rec.CreatedAt).UTC(),
		})
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, records []models.UsageRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
