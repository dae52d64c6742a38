package mq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	headerID        = "x-message-id"
	headerTimestamp = "x-message-ts"
)

// KafkaConfig configures the producer. Zero durations and sizes take the defaults noted.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"clientID"`

	RequiredAcks string        `yaml:"requiredAcks"` // none, one (default), all
	Compression  string        `yaml:"compression"`  // gzip, snappy, lz4, zstd or empty
	BatchSize    int           `yaml:"batchSize"`    // 100
	BatchTimeout time.Duration `yaml:"batchTimeout"` // 50ms
	DialTimeout  time.Duration `yaml:"dialTimeout"`  // 10s
	WriteTimeout time.Duration `yaml:"writeTimeout"` // 10s
}

var (
	ackLevels = map[string]kafka.RequiredAcks{
		"":     kafka.RequireOne,
		"one":  kafka.RequireOne,
		"none": kafka.RequireNone,
		"all":  kafka.RequireAll,
	}
	codecs = map[string]kafka.Compression{
		"":       0,
		"gzip":   kafka.Gzip,
		"snappy": kafka.Snappy,
		"lz4":    kafka.Lz4,
		"zstd":   kafka.Zstd,
	}
)

func parseRequiredAcks(v string) (kafka.RequiredAcks, error) {
	if acks, ok := ackLevels[strings.ToLower(v)]; ok {
		return acks, nil
	}
	return 0, fmt.Errorf("kafka requiredAcks %q not recognised", v)
}

func parseCompression(v string) (kafka.Compression, error) {
	if c, ok := codecs[strings.ToLower(v)]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("kafka compression %q not recognised", v)
}

// KafkaProducer publishes through a batching kafka.Writer keyed by message ID.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer validates cfg and builds the writer; brokers are dialled lazily on first publish.
func NewKafkaProducer(cfg KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	acks, err := parseRequiredAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}
	compression, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	dialer := &kafka.Dialer{
		ClientID:  cfg.ClientID,
		Timeout:   durationOr(cfg.DialTimeout, 10*time.Second),
		DualStack: true,
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: acks,
		Compression:  compression,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: durationOr(cfg.BatchTimeout, 50*time.Millisecond),
		WriteTimeout: durationOr(cfg.WriteTimeout, 10*time.Second),
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, address)
			},
		},
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 100
	}
	return &KafkaProducer{writer: w}, nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func (k *KafkaProducer) Publish(ctx context.Context, topic string, message *Message) error {
	switch {
	case message == nil:
		return errors.New("kafka publish: nil message")
	case topic == "":
		return errors.New("kafka publish: empty topic")
	}
	if err := k.writer.WriteMessages(ctx, toKafkaMessage(topic, message)); err != nil {
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	return nil
}

func (k *KafkaProducer) Close() error {
	return k.writer.Close()
}

// toKafkaMessage stamps a missing timestamp onto message and copies ID and time into headers.
func toKafkaMessage(topic string, message *Message) kafka.Message {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	out := kafka.Message{
		Topic:   topic,
		Key:     []byte(message.ID),
		Value:   message.Body,
		Time:    message.Timestamp,
		Headers: make([]kafka.Header, 0, len(message.Headers)+2),
	}
	for k, v := range message.Headers {
		out.Headers = append(out.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if message.ID != "" {
		out.Headers = append(out.Headers, kafka.Header{Key: headerID, Value: []byte(message.ID)})
	}
	out.Headers = append(out.Headers, kafka.Header{
		Key:   headerTimestamp,
		Value: []byte(message.Timestamp.Format(time.RFC3339Nano)),
	})
	return out
}
