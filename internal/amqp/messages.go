package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// RetryMessage asks the worker to push a transaction to the remote ledger
// again. The worker reads the transaction itself from the local store.
type RetryMessage struct {
	TransactionID string    `json:"transactionId"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewRetryMessage(transactionID string) *RetryMessage {
	return &RetryMessage{
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

func (m *RetryMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RetryMessageFromJSON decodes a message and rejects one without an id.
func RetryMessageFromJSON(data []byte) (*RetryMessage, error) {
	var msg RetryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.TransactionID == "" {
		return nil, errors.New("retry message without transaction id")
	}
	return &msg, nil
}
