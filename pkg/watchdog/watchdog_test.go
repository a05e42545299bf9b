package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlpoint/connector/pkg/journal"
)

func TestFiresOnOverrun(t *testing.T) {
	jnl := journal.New(false)
	w, ctx := New(context.Background(), jnl)

	w.Arm(PhaseHeader, 10*time.Millisecond)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled")
	}
	assert.True(t, w.Fired())
	assert.EqualValues(t, 1, jnl.Snapshot().Interruptions)
}

func TestDisarmPreventsFiring(t *testing.T) {
	w, ctx := New(context.Background(), nil)

	w.Arm(PhaseHeader, 20*time.Millisecond)
	w.Disarm()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, ctx.Err())
	assert.False(t, w.Fired())
}

func TestRearmReplacesPhase(t *testing.T) {
	w, ctx := New(context.Background(), nil)

	w.Arm(PhaseHeader, 20*time.Millisecond)
	w.Arm(PhaseContent, time.Hour)

	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, ctx.Err(), "stale header timer must not fire after re-arm")
	assert.False(t, w.Fired())

	w.Disarm()
}

func TestArmAfterFireIsNoop(t *testing.T) {
	w, ctx := New(context.Background(), nil)

	w.Arm(PhaseHeader, time.Millisecond)
	<-ctx.Done()

	w.Arm(PhaseContent, time.Millisecond)
	assert.True(t, w.Fired())
}
