package queue

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/sappyoak/sappyoak-site-functions/internal/model"
)

const (
	fieldEnvelope   = "envelope"
	fieldEnvelopeID = "envelope_id"
	fieldType       = "type"
	fieldAttempt    = "attempt"
	fieldLastError  = "last_error"
	fieldError      = "error"
)

// Message is one delivery of an envelope. ID is the stream entry id and
// acts as the receipt needed to acknowledge it.
type Message struct {
	ID        string
	Envelope  model.QueueEnvelope
	Attempt   int
	LastError string
	Raw       redis.XMessage
}

func ParseMessage(msg redis.XMessage) (Message, error) {
	raw, err := parseString(msg.Values, fieldEnvelope)
	if err != nil {
		return Message{}, err
	}

	var envelope model.QueueEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return Message{}, fmt.Errorf("decoding envelope: %w", err)
	}

	attempt, err := parseOptionalInt(msg.Values, fieldAttempt)
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	return Message{
		ID:        msg.ID,
		Envelope:  envelope,
		Attempt:   attempt,
		LastError: parseOptionalString(msg.Values, fieldLastError),
		Raw:       msg,
	}, nil
}

func encodeValues(envelope model.QueueEnvelope, attempt int) (map[string]any, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	if attempt <= 0 {
		attempt = 1
	}

	return map[string]any{
		fieldEnvelope:   string(payload),
		fieldEnvelopeID: envelope.EnvelopeID,
		fieldType:       envelope.Type,
		fieldAttempt:    attempt,
	}, nil
}

// rawValues copies the stored fields of an unparseable entry so it can be
// dead-lettered as received.
func rawValues(msg redis.XMessage) map[string]any {
	values := make(map[string]any, len(msg.Values)+1)
	for k, v := range msg.Values {
		values[k] = v
	}
	return values
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}
