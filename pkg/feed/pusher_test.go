package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlpoint/connector/pkg/docid"
)

// collectSender records delivered batches; deliveries block until release
// is closed when blocking is set.
type collectSender struct {
	mu      sync.Mutex
	batches [][]Record
	release chan struct{}
}

func (s *collectSender) SendBatch(_ context.Context, records []Record) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]Record, len(records))
	copy(batch, records)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *collectSender) all() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func TestOfferBackPressure(t *testing.T) {
	sender := &collectSender{release: make(chan struct{})}
	p := NewAsyncPusher(PusherConfig{
		MaxRecordsPerFeed: 100,
		QueueSize:         2,
		MaxBatchLatency:   time.Hour,
	}, sender, nil)

	// Worker not started: the queue alone provides capacity.
	assert.True(t, p.Offer(NewRecord("a")))
	assert.True(t, p.Offer(NewRecord("b")))
	assert.False(t, p.Offer(NewRecord("c")), "third offer must be rejected")

	// Draining one slot lets a subsequent offer in.
	p.Start(context.Background())
	require.Eventually(t, func() bool { return p.Offer(NewRecord("d")) },
		time.Second, 5*time.Millisecond)

	close(sender.release)
	p.Stop(2 * time.Second)

	got := sender.all()
	ids := map[string]int{}
	for _, r := range got {
		ids[string(r.ID)]++
	}
	assert.Equal(t, 1, ids["a"])
	assert.Equal(t, 1, ids["b"])
	assert.Equal(t, 1, ids["d"])
	assert.Zero(t, ids["c"], "rejected record must not be delivered")
}

func TestBatchSizeCutoff(t *testing.T) {
	sender := &collectSender{}
	p := NewAsyncPusher(PusherConfig{
		MaxRecordsPerFeed: 3,
		QueueSize:         10,
		MaxBatchLatency:   time.Hour,
	}, sender, nil)

	for _, id := range []string{"1", "2", "3", "4", "5", "6"} {
		require.True(t, p.Offer(NewRecord(docid.DocID(id))))
	}
	p.Start(context.Background())

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.batches) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Len(t, sender.batches[0], 3)
	assert.Len(t, sender.batches[1], 3)
}

func TestLatencyCutoff(t *testing.T) {
	sender := &collectSender{}
	p := NewAsyncPusher(PusherConfig{
		MaxRecordsPerFeed: 100,
		QueueSize:         10,
		MaxBatchLatency:   50 * time.Millisecond,
	}, sender, nil)

	p.Start(context.Background())
	require.True(t, p.Offer(NewRecord("slow")))

	require.Eventually(t, func() bool {
		return len(sender.all()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	p.Stop(time.Second)
}

func TestStopDrainsQueue(t *testing.T) {
	sender := &collectSender{}
	p := NewAsyncPusher(PusherConfig{
		MaxRecordsPerFeed: 100,
		QueueSize:         10,
		MaxBatchLatency:   time.Hour,
	}, sender, nil)

	p.Start(context.Background())
	for _, id := range []string{"x", "y", "z"} {
		require.True(t, p.Offer(NewRecord(docid.DocID(id))))
	}
	p.Stop(2 * time.Second)

	assert.Len(t, sender.all(), 3, "accepted records are delivered during drain")
	assert.False(t, p.Offer(NewRecord("late")), "offers after stop are rejected")
}
