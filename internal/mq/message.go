package mq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType — тип события. Совпадает с routing key.
type MessageType string

const (
	MessageTypeRunStarted   = MessageType(RoutingKeyRunStarted)
	MessageTypeStepFinished = MessageType(RoutingKeyStepFinished)
	MessageTypeRunFinished  = MessageType(RoutingKeyRunFinished)
)

// Message — конверт события в ExchangeRuns.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage оборачивает payload в конверт. ID — UUIDv7, чтобы события
// одного run сортировались по времени.
func NewMessage(msgType MessageType, payload any) *Message {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Message{
		ID:        id.String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// DecodeMessage разбирает конверт события. Payload остаётся json.RawMessage.
func DecodeMessage(body []byte) (Message, error) {
	var env struct {
		Message
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if env.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}

	msg := env.Message
	msg.Payload = env.Payload
	return msg, nil
}

// ParsePayload приводит payload события к типу T.
func ParsePayload[T any](msg *Message) (T, error) {
	var out T

	raw, ok := msg.Payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(msg.Payload)
		if err != nil {
			return out, fmt.Errorf("marshal payload: %w", err)
		}
		raw = b
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("unmarshal payload: %w", err)
	}
	return out, nil
}
