package kafka

import "github.com/segmentio/kafka-go"

// HeaderCarrier adapts Kafka message headers to OpenTelemetry's
// TextMapCarrier so trace context can ride along with forwarded events.
type HeaderCarrier []kafka.Header

// Get returns the value for key, or "" if absent.
func (c HeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set appends or replaces the value for key.
func (c *HeaderCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

// Keys lists the header keys present.
func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, h := range c {
		keys = append(keys, h.Key)
	}
	return keys
}
