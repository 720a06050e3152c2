package kafka

import (
	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/propagation"
)

// producerHeaders adapts outgoing record headers to the otel propagator.
type producerHeaders struct {
	headers *[]sarama.RecordHeader
}

var _ propagation.TextMapCarrier = producerHeaders{}

func (c producerHeaders) Get(key string) string {
	for _, h := range *c.headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c producerHeaders) Set(key, value string) {
	for i, h := range *c.headers {
		if string(h.Key) == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c producerHeaders) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, string(h.Key))
	}
	return keys
}

// consumerHeaders is the read side over a received message.
type consumerHeaders []*sarama.RecordHeader

var _ propagation.TextMapCarrier = consumerHeaders(nil)

func (c consumerHeaders) Get(key string) string {
	for _, h := range c {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set is a no-op; received headers are never rewritten.
func (c consumerHeaders) Set(string, string) {}

func (c consumerHeaders) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, h := range c {
		if h != nil {
			keys = append(keys, string(h.Key))
		}
	}
	return keys
}
