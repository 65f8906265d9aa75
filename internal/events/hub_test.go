package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubEmit(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	h.Emit(TypeRunFinished, map[string]any{"run_id": "01J", "status": "success"})

	var evt Event
	require.NoError(t, json.Unmarshal([]byte(<-ch), &evt))
	assert.Equal(t, TypeRunFinished, evt.Type)
	assert.Equal(t, 1, evt.Version)
	assert.JSONEq(t, `{"run_id":"01J","status":"success"}`, string(evt.Data))

	h.Unsubscribe(ch)
	h.Unsubscribe(ch)
	assert.Zero(t, h.Subscribers())
	_, open := <-ch
	assert.False(t, open)
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	for i := 0; i < 100; i++ {
		h.Emit(TypePing, nil)
	}
	assert.Len(t, ch, cap(ch))
	Discard.Emit(TypePing, nil)
}
