package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/service-dispatch/internal/notify"
)

// HTTPSink posts intents as JSON to an external delivery gateway (push,
// SMS, email — the transport is the gateway's problem).
type HTTPSink struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewHTTPSink(endpoint, key string) *HTTPSink {
	return &HTTPSink{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (h *HTTPSink) Deliver(ctx context.Context, in notify.Intent) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.Key != "" {
		req.Header.Set("Authorization", "Bearer "+h.Key)
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway status %d", resp.StatusCode)
	}
	return nil
}

// KafkaSink appends intents to a topic for an external consumer to deliver.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaSink{writer: w}
}

func (k *KafkaSink) Deliver(ctx context.Context, in notify.Intent) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(in.Recipient), Value: b})
}

func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// MultiSink tries each sink in order and stops at the first success.
// A recipient with no live websocket falls through to the gateway or topic.
type MultiSink struct {
	Sinks []notify.Sink
}

func (m *MultiSink) Deliver(ctx context.Context, in notify.Intent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.Deliver(ctx, in); err != nil {
			errs = append(errs, err)
			continue
		}
		return nil
	}
	if len(errs) == 0 {
		return errors.New("no sinks configured")
	}
	return errors.Join(errs...)
}
