package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"sensorstats/config"
)

type kafkaZapLogger struct {
	log *zap.Logger
}

func (l kafkaZapLogger) Printf(msg string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(msg, args...))
}

type kafkaZapErrorLogger struct {
	log *zap.Logger
}

func (l kafkaZapErrorLogger) Printf(msg string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(msg, args...))
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// message is the JSON body of a Kafka sample. A null or missing value is a
// NaN reading.
type message struct {
	Source      string   `json:"source"`
	Value       *float64 `json:"value"`
	TimestampMs *uint64  `json:"timestampMs"`
}

func ParseMessage(data []byte) (Sample, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if msg.Source == "" {
		return Sample{}, fmt.Errorf("%w: missing source", ErrMalformedMessage)
	}

	sample := Sample{Source: msg.Source, Value: nanIfNil(msg.Value)}
	if msg.TimestampMs != nil {
		sample.TimestampMs = uint32(*msg.TimestampMs)
		sample.HasTimestamp = true
	}
	return sample, nil
}

// KafkaSource consumes JSON samples from a topic. Offsets are committed once
// a sample has been handed downstream.
type KafkaSource struct {
	reader messageReader
	logger *zap.Logger
}

func NewKafkaSource(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		logger.Error("Kafka configuration validation failed",
			zap.Strings("brokers", cfg.Brokers),
			zap.String("topic", cfg.Topic),
			zap.String("group_id", cfg.GroupID),
		)
		return nil, ErrInvalidKafkaConfig
	}

	readerCfg := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		Logger:      kafkaZapLogger{logger.Named("kafka-reader").WithOptions(zap.AddCallerSkip(1))},
		ErrorLogger: kafkaZapErrorLogger{logger.Named("kafka-reader-error").WithOptions(zap.AddCallerSkip(1))},
	}

	logger.Info("Kafka source created",
		zap.String("topic", cfg.Topic),
		zap.String("group_id", cfg.GroupID),
		zap.Strings("brokers", cfg.Brokers),
	)
	return newKafkaSource(kafka.NewReader(readerCfg), logger), nil
}

func newKafkaSource(reader messageReader, logger *zap.Logger) *KafkaSource {
	return &KafkaSource{reader: reader, logger: logger.Named("kafka-source")}
}

// Run blocks until ctx is done or fetching fails. Malformed messages are
// logged, committed and skipped.
func (s *KafkaSource) Run(ctx context.Context, out chan<- Sample) error {
	defer func() {
		if err := s.reader.Close(); err != nil {
			s.logger.Error("Failed to close Kafka reader cleanly", zap.Error(err))
		}
	}()

	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Debug("Context done, stopping Kafka fetch loop", zap.Error(err))
				return err
			}
			s.logger.Error("Error fetching message from Kafka", zap.Error(err))
			return fmt.Errorf("%w: %w", ErrKafkaFetchFailed, err)
		}

		sample, err := ParseMessage(m.Value)
		if err != nil {
			s.logger.Warn("Skipping malformed message",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
		} else if err := send(ctx, out, sample); err != nil {
			return err
		}

		if err := s.reader.CommitMessages(ctx, m); err != nil {
			s.logger.Warn("Failed to commit offset", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}
