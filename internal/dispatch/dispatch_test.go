package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sotto-voice/sotto/internal/dispatch"
	"github.com/sotto-voice/sotto/internal/segment"
	"github.com/sotto-voice/sotto/pkg/provider/stt"
	sttmock "github.com/sotto-voice/sotto/pkg/provider/stt/mock"
)

const testRate = 16000

func testQueue() *segment.Queue {
	return segment.NewQueue(segment.QueueConfig{
		Capacity:       8,
		MinSamples:     1,
		MinDuration:    0,
		EnqueueTimeout: time.Second,
	}, nil)
}

func testConfig() dispatch.Config {
	return dispatch.Config{SampleRate: testRate, Language: "en"}
}

// seg returns a one-second segment whose first sample is id.
func seg(id float32) segment.Segment {
	s := segment.Segment{Samples: make([]float32, testRate), SampleRate: testRate}
	s.Samples[0] = id
	return s
}

func TestRun_FIFOOrder(t *testing.T) {
	t.Parallel()

	engine := &sttmock.Engine{Script: []sttmock.Step{
		{Result: stt.Result{Text: "first", Confidence: 0.9}},
		{Result: stt.Result{Text: "second", Confidence: 0.9}},
		{Result: stt.Result{Text: "third", Confidence: 0.9}},
	}}
	q := testQueue()
	d := dispatch.New(engine, q, testConfig(), nil)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := q.Offer(ctx, seg(float32(i))); err != nil {
			t.Fatalf("Offer: %v", err)
		}
	}
	q.Close()

	go d.Run(ctx)

	var texts []string
	for out := range d.Results() {
		if out.Err != nil {
			t.Fatalf("unexpected outcome error: %v", out.Err)
		}
		texts = append(texts, out.Result.Text)
	}

	want := []string{"first", "second", "third"}
	if len(texts) != len(want) {
		t.Fatalf("got %d results, want %d", len(texts), len(want))
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("result[%d] = %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestRun_EachSegmentTranscribedExactlyOnce(t *testing.T) {
	t.Parallel()

	engine := &sttmock.Engine{Fallback: sttmock.Step{Result: stt.Result{Text: "ok"}}}
	q := testQueue()
	d := dispatch.New(engine, q, testConfig(), nil)

	ctx := context.Background()
	const n = 5
	for i := range n {
		q.Offer(ctx, seg(float32(i+1)))
	}
	q.Close()

	go d.Run(ctx)

	results := 0
	for range d.Results() {
		results++
	}

	if results != n {
		t.Errorf("got %d results, want %d", results, n)
	}
	calls := engine.Calls()
	if len(calls) != n {
		t.Fatalf("engine called %d times, want %d", len(calls), n)
	}
	seen := make(map[float32]bool, n)
	for _, c := range calls {
		id := c.Samples[0]
		if seen[id] {
			t.Errorf("segment %v transcribed more than once", id)
		}
		seen[id] = true
		if c.SampleRate != testRate {
			t.Errorf("engine called with rate %d, want %d", c.SampleRate, testRate)
		}
		if c.Language != "en" {
			t.Errorf("engine called with language %q, want %q", c.Language, "en")
		}
	}
}

func TestRun_EngineFailureDropsSegmentAndContinues(t *testing.T) {
	t.Parallel()

	engine := &sttmock.Engine{Script: []sttmock.Step{
		{Result: stt.Result{Text: "before"}},
		{Err: errors.New("model exploded")},
		{Result: stt.Result{Text: "after"}},
	}}
	q := testQueue()
	d := dispatch.New(engine, q, testConfig(), nil)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		q.Offer(ctx, seg(float32(i)))
	}
	q.Close()

	go d.Run(ctx)

	var outcomes []dispatch.Outcome
	for out := range d.Results() {
		outcomes = append(outcomes, out)
	}

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3 (failure must not stop the worker)", len(outcomes))
	}
	if outcomes[0].Result.Text != "before" {
		t.Errorf("outcome[0] = %q, want %q", outcomes[0].Result.Text, "before")
	}
	if outcomes[1].Err == nil {
		t.Error("outcome[1] should carry the engine error")
	}
	if outcomes[2].Result.Text != "after" {
		t.Errorf("outcome[2] = %q, want %q", outcomes[2].Result.Text, "after")
	}
}

func TestRun_ResultsClosedAfterDrain(t *testing.T) {
	t.Parallel()

	engine := &sttmock.Engine{
		Fallback: sttmock.Step{Result: stt.Result{Text: "slow"}},
		Delay:    50 * time.Millisecond,
	}
	q := testQueue()
	d := dispatch.New(engine, q, testConfig(), nil)

	ctx := context.Background()
	q.Offer(ctx, seg(1))
	q.Close()

	go d.Run(ctx)

	// The in-flight segment must be fully transcribed before the stream ends.
	out, ok := <-d.Results()
	if !ok {
		t.Fatal("Results closed before the in-flight segment drained")
	}
	if out.Result.Text != "slow" {
		t.Errorf("result = %q, want %q", out.Result.Text, "slow")
	}
	if _, ok := <-d.Results(); ok {
		t.Error("Results should be closed after the queue drains")
	}
}

func TestRun_StopsWhenContextEnds(t *testing.T) {
	t.Parallel()

	engine := &sttmock.Engine{Fallback: sttmock.Step{Result: stt.Result{Text: "ok"}}}
	q := testQueue()
	d := dispatch.New(engine, q, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	q.Offer(ctx, seg(1))

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	// Nobody reads Results; cancellation must still unblock the worker.
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
