package event

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_FIFO(t *testing.T) {
	ch := NewChannel(WithRunID("run-1"))

	for i := range 5 {
		require.True(t, ch.Publish(New("read", StatusProcessing, i)))
	}
	ch.Close()

	events := ch.Drain(context.Background())
	require.Len(t, events, 5)
	for i, evt := range events {
		assert.Equal(t, i, evt.Payload)
		assert.Equal(t, "run-1", evt.RunID)
		assert.NotEmpty(t, evt.ID)
	}
}

func TestChannel_PublishDoesNotBlockWithoutConsumer(t *testing.T) {
	ch := NewChannel()

	done := make(chan struct{})
	go func() {
		for i := range 10000 {
			ch.Publish(New("search", StatusProcessing, i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked without a consumer")
	}
	assert.Equal(t, 10000, ch.Len())
	assert.Equal(t, 10000, ch.Published())
}

func TestChannel_CloseIdempotent(t *testing.T) {
	ch := NewChannel()

	assert.NotPanics(t, func() {
		ch.Close()
		ch.Close()
	})
	assert.True(t, ch.Closed())

	evt, ok := ch.Next(context.Background())
	assert.False(t, ok)
	assert.Empty(t, evt.Stage)
}

func TestChannel_PublishAfterClose(t *testing.T) {
	ch := NewChannel()
	ch.Close()

	assert.False(t, ch.Publish(New("report", StatusCompleted, nil)))
	assert.Equal(t, 0, ch.Len())
}

func TestChannel_BacklogSurvivesClose(t *testing.T) {
	ch := NewChannel()
	ch.Publish(New("report", StatusGenerating, "a"))
	ch.Publish(New("report", StatusCompleted, nil))
	ch.Close()

	events := ch.Drain(context.Background())
	require.Len(t, events, 2)
	assert.Equal(t, StatusCompleted, events[1].Status)
}

func TestChannel_NextBlocksUntilPublish(t *testing.T) {
	ch := NewChannel()

	got := make(chan Event, 1)
	go func() {
		evt, ok := ch.Next(context.Background())
		if ok {
			got <- evt
		}
	}()

	select {
	case <-got:
		t.Fatal("Next returned before anything was published")
	case <-time.After(20 * time.Millisecond):
	}

	ch.Publish(New("analyze", StatusThinking, "hmm"))

	select {
	case evt := <-got:
		assert.Equal(t, StatusThinking, evt.Status)
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up after publish")
	}
}

func TestChannel_CloseWakesReader(t *testing.T) {
	ch := NewChannel()

	result := make(chan bool, 1)
	go func() {
		_, ok := ch.Next(context.Background())
		result <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	ch.Close()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock reader")
	}
}

func TestChannel_ContextCancelUnblocksReader(t *testing.T) {
	ch := NewChannel()
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan bool, 1)
	go func() {
		_, ok := ch.Next(ctx)
		result <- ok
	}()

	cancel()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("cancel did not unblock reader")
	}
	assert.False(t, ch.Closed())
}

func TestChannel_ConcurrentProducers(t *testing.T) {
	ch := NewChannel()

	const producers, perProducer = 8, 200
	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := range perProducer {
				ch.Publish(New(fmt.Sprintf("p%d", p), StatusProcessing, i))
			}
		}(p)
	}

	consumed := make(chan []Event)
	go func() {
		consumed <- ch.Drain(context.Background())
	}()

	wg.Wait()
	ch.Close()
	events := <-consumed

	require.Len(t, events, producers*perProducer)

	// Per-producer FIFO must hold even though producers interleave.
	last := make(map[string]int)
	for _, evt := range events {
		n := evt.Payload.(int)
		prev, seen := last[evt.Stage]
		if seen {
			assert.Greater(t, n, prev, "producer %s out of order", evt.Stage)
		}
		last[evt.Stage] = n
	}
}

func TestChannel_AllStopsWhenYieldReturnsFalse(t *testing.T) {
	ch := NewChannel()
	for i := range 3 {
		ch.Publish(New("read", StatusProcessing, i))
	}

	var seen int
	for range ch.All(context.Background()) {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
	assert.Equal(t, 1, ch.Len())
}
