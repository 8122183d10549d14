package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
)

// ActivityMessage carries one activity record from the web server to the
// journal worker. MessageID lets the worker skip redeliveries.
type ActivityMessage struct {
	MessageID     string    `json:"message_id"`
	Action        string    `json:"action"`
	Outcome       string    `json:"outcome"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Session       string    `json:"session,omitempty"`
	StatusCode    int       `json:"status_code,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewActivityMessage wraps an activity with a fresh message id.
func NewActivityMessage(a core.Activity) *ActivityMessage {
	return &ActivityMessage{
		MessageID:     uuid.NewString(),
		Action:        string(a.Action),
		Outcome:       string(a.Outcome),
		TransactionID: a.TransactionID.String(),
		Session:       a.Session,
		StatusCode:    a.StatusCode,
		OccurredAt:    a.At,
		Timestamp:     time.Now(),
	}
}

// Activity converts the message back to the domain record.
func (m *ActivityMessage) Activity() core.Activity {
	return core.Activity{
		Action:        core.Action(m.Action),
		Outcome:       core.Outcome(m.Outcome),
		TransactionID: core.TransactionID(m.TransactionID),
		Session:       m.Session,
		StatusCode:    m.StatusCode,
		At:            m.OccurredAt,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ActivityMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ActivityMessageFromJSON creates a message from JSON bytes. Messages without
// an id or action are rejected.
func ActivityMessageFromJSON(data []byte) (*ActivityMessage, error) {
	var msg ActivityMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.MessageID == "" || msg.Action == "" {
		return nil, errors.New("activity message missing message_id or action")
	}
	return &msg, nil
}
