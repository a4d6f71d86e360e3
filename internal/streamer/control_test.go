package streamer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStopClosesDoneAndSetsIsStopped(t *testing.T) {
	c := NewControl()
	c.Stop()

	select {
	case <-c.Done():
	default:
		t.Fatal("Done() should be closed after Stop()")
	}
	assert.True(t, c.IsStopped())
	assert.False(t, c.IsFinished())
}

func TestMarkFinishedSetsIsFinished(t *testing.T) {
	c := NewControl()
	c.markFinished()

	assert.True(t, c.IsFinished())
	assert.False(t, c.IsStopped())
}

func TestFirstTransitionWins(t *testing.T) {
	c := NewControl()
	c.Stop()
	c.markFinished()

	assert.True(t, c.IsStopped())
	assert.False(t, c.IsFinished())
}
