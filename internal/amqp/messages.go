package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RowSyncMessage tells the totals worker that a forecast row or allocation
// was written for a project. It intentionally carries no amounts: the
// worker reloads the project's rows from storage so it always aggregates
// the latest state.
type RowSyncMessage struct {
	MessageID string    `json:"message_id"`
	ProjectID string    `json:"project_id"`
	RowID     int64     `json:"row_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRowSyncMessage creates a sync message for a written row.
func NewRowSyncMessage(projectID string, rowID int64) *RowSyncMessage {
	return &RowSyncMessage{
		MessageID: uuid.NewString(),
		ProjectID: projectID,
		RowID:     rowID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *RowSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RowSyncMessageFromJSON parses a message from JSON bytes.
func RowSyncMessageFromJSON(data []byte) (*RowSyncMessage, error) {
	var msg RowSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
