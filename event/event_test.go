package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dudk/gmf/event"
)

func TestStateNames(t *testing.T) {
	assert.Equal(t, "NONE", event.None.String())
	assert.Equal(t, "PAUSED", event.Paused.String())
	assert.Equal(t, "ERROR", event.Error.String())
	assert.Equal(t, "STATE(42)", event.State(42).String())

	assert.True(t, event.Finished.Terminal())
	assert.True(t, event.Stopped.Terminal())
	assert.False(t, event.Paused.Terminal())
}

func TestPacket(t *testing.T) {
	p := event.Packet{From: "task-1", Type: event.ChangeState, Sub: int(event.Running)}
	assert.Equal(t, event.Running, p.State())
	assert.Equal(t, "CHANGE_STATE from task-1: RUNNING", p.String())
	assert.Equal(t, "TYPE(0x42)", event.Type(0x42).String())
}
