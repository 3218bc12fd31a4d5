package benchmarks

import (
	"context"
	"testing"

	"github.com/randalmurphal/paperflow/pkg/paperflow/event"
	"github.com/randalmurphal/paperflow/pkg/paperflow/fanout"
)

func BenchmarkChannel_Publish(b *testing.B) {
	ch := event.NewChannel(event.WithRunID("run-1"))
	evt := event.New("read", event.StatusProcessing, "reading 8 papers")
	for b.Loop() {
		ch.Publish(evt)
	}
	ch.Close()
}

func BenchmarkChannel_PublishConsume(b *testing.B) {
	ch := event.NewChannel(event.WithRunID("run-1"))
	done := make(chan int)
	go func() {
		n := 0
		for range ch.All(context.Background()) {
			n++
		}
		done <- n
	}()

	evt := event.New("report", event.StatusGenerating, "chunk")
	for b.Loop() {
		ch.Publish(evt)
	}
	ch.Close()
	<-done
}

func BenchmarkFanoutMap(b *testing.B) {
	inputs := make([]int, 64)
	for i := range inputs {
		inputs[i] = i
	}
	square := func(_ context.Context, _ int, v int) (int, error) { return v * v, nil }

	for _, limit := range []int{0, 4} {
		cfg := fanout.Config{MaxConcurrency: limit, FailFast: true}
		name := "unlimited"
		if limit > 0 {
			name = "limit_4"
		}
		b.Run(name, func(b *testing.B) {
			for b.Loop() {
				_, _ = fanout.Map(context.Background(), cfg, inputs, square)
			}
		})
	}
}
