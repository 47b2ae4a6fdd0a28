package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

var (
	errBrokersRequired = errors.New("kafka brokers are required")
	errTopicRequired   = errors.New("kafka topic is required")
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer writes outbox events to a single Kafka topic.
type Producer struct {
	writer  messageWriter
	brokers []string
	topic   string
	timeout time.Duration
	logg    *logger.Logger
}

// NewProducer builds a Producer for the configured brokers and topic.
func NewProducer(ctx context.Context, cfg config.KafkaConfig, topic string, logg *logger.Logger) (*Producer, error) {
	brokers := cleanBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errBrokersRequired
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errTopicRequired
	}

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"brokers": strings.Join(brokers, ","),
			"topic":   topic,
		}), "kafka producer initialized")
	}
	return newProducer(writer, brokers, topic, cfg.WriteTimeout, logg), nil
}

func newProducer(w messageWriter, brokers []string, topic string, timeout time.Duration, logg *logger.Logger) *Producer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Producer{writer: w, brokers: brokers, topic: topic, timeout: timeout, logg: logg}
}

// Publish writes one message keyed by aggregate id. Attributes become headers.
func (p *Producer) Publish(ctx context.Context, key string, data []byte, attrs map[string]string) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka producer not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafkago.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers(attrs),
		Time:    time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w", p.topic, err)
	}
	return nil
}

// Ping dials the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	if p == nil {
		return errors.New("kafka producer not initialized")
	}
	dialer := &kafkago.Dialer{Timeout: p.timeout}
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("kafka brokers unreachable: %w", lastErr)
}

// Topic returns the destination topic.
func (p *Producer) Topic() string {
	if p == nil {
		return ""
	}
	return p.topic
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func headers(attrs map[string]string) []kafkago.Header {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]kafkago.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, kafkago.Header{Key: k, Value: []byte(attrs[k])})
	}
	return out
}

func cleanBrokers(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
