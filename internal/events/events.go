// Package events fans pipeline events out to SSE subscribers.
package events

import (
	"encoding/json"
	"time"
)

const (
	TypeRunQueued        = "run.queued"
	TypeRunStarted       = "run.started"
	TypeRunFinished      = "run.finished"
	TypeEntryCreated     = "entry.created"
	TypeAlertsSent       = "alerts.sent"
	TypeContractsExpired = "contracts.expired"
	TypePing             = "ping"
)

type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func MakeEvent(reqID, typ string, v int, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:      typ,
		Version:   v,
		At:        time.Now().UTC(),
		RequestID: reqID,
		Data:      raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}

// Publisher is what pipeline components emit through. A nil Publisher is
// never passed around; use Discard instead.
type Publisher interface {
	Emit(typ string, data any)
}

type discard struct{}

func (discard) Emit(string, any) {}

// Discard drops every event.
var Discard Publisher = discard{}
