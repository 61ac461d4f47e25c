package publishers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event announces a code mutation VAN has accepted.
type Event struct {
	Action     string          `json:"action"`
	CodeID     int             `json:"code_id,omitempty"`
	CodeName   string          `json:"code_name,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent stamps a change event with the current UTC time.
func NewEvent(action string, codeID int, codeName string, payload json.RawMessage) Event {
	return Event{
		Action:     action,
		CodeID:     codeID,
		CodeName:   codeName,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

func (e Event) encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event for code %d: %w", e.Action, e.CodeID, err)
	}
	return data, nil
}

// attributes are attached to queue and topic messages so subscribers can
// filter without decoding the body.
func (e Event) attributes() map[string]string {
	attrs := map[string]string{"action": e.Action}
	if e.CodeID != 0 {
		attrs["code_id"] = strconv.Itoa(e.CodeID)
	}
	return attrs
}

// groupKey keeps every change to one code in the same FIFO group.
func (e Event) groupKey() string {
	if e.CodeID == 0 {
		return "code-unknown"
	}
	return "code-" + strconv.Itoa(e.CodeID)
}

// dedupKey identifies one delivery attempt of this event.
func (e Event) dedupKey() string {
	return fmt.Sprintf("%s-%d-%d", e.Action, e.CodeID, e.OccurredAt.UnixNano())
}
