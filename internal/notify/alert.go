package notify

import (
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

type AlertKind string

const (
	// AlertEscalation fires when a visitor asks for a human.
	AlertEscalation AlertKind = "escalation"
	// AlertUnattended fires when an intervened conversation has an inbound
	// message the owning agent never answered.
	AlertUnattended AlertKind = "unattended"
)

// Alert is a roster notification queued for delivery by the notifier worker.
type Alert struct {
	Kind           AlertKind
	ConversationID string
	Text           string
	TraceID        *string
	Attempt        int
}

// Message is an Alert read back off the stream, carrying its stream identity
// for ack/requeue bookkeeping.
type Message struct {
	ID             string
	Kind           AlertKind
	ConversationID string
	Text           string
	TraceID        string
	Attempt        int
	Raw            redis.XMessage
}

// ParseAlert decodes a raw stream entry into a Message.
func ParseAlert(msg redis.XMessage) (Message, error) {
	kind, err := parseString(msg.Values, "alert_kind")
	if err != nil {
		return Message{}, err
	}
	switch AlertKind(kind) {
	case AlertEscalation, AlertUnattended:
	default:
		return Message{}, fmt.Errorf("unknown alert_kind %q", kind)
	}

	conversationID, err := parseString(msg.Values, "conversation_id")
	if err != nil {
		return Message{}, err
	}
	text, err := parseString(msg.Values, "text")
	if err != nil {
		return Message{}, err
	}

	traceID, err := parseOptionalString(msg.Values, "trace_id")
	if err != nil {
		return Message{}, err
	}
	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	return Message{
		ID:             msg.ID,
		Kind:           AlertKind(kind),
		ConversationID: conversationID,
		Text:           text,
		TraceID:        traceID,
		Attempt:        attempt,
		Raw:            msg,
	}, nil
}

func alertValues(msg Message, attempt int) map[string]any {
	values := map[string]any{
		"alert_kind":      string(msg.Kind),
		"conversation_id": msg.ConversationID,
		"text":            msg.Text,
		"attempt":         attempt,
	}
	if msg.TraceID != "" {
		values["trace_id"] = msg.TraceID
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

func parseOptionalString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", nil
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	str := fmt.Sprint(raw)
	num, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}
