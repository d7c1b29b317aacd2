package middleware

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

type fakeModel struct {
	calls atomic.Int32
}

func (f *fakeModel) Generate(_ context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	f.calls.Add(1)
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	out <- model.Response{
		Content:      core.NewTextContent("assistant", "ok"),
		TurnComplete: true,
		FinishReason: "stop",
	}
	close(out)
	close(errCh)
	return out, errCh
}

func (f *fakeModel) Info() model.Info {
	return model.Info{Name: "fake", Provider: "test", SupportsTools: true}
}

func TestRateLimitedForwardsResponses(t *testing.T) {
	fake := &fakeModel{}
	limited := NewRateLimited(fake, rate.Limit(100), 10)

	respCh, errCh := limited.Generate(context.Background(), model.Request{})
	var responses []model.Response
	for r := range respCh {
		responses = append(responses, r)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(responses) != 1 || responses[0].Content.Text() != "ok" {
		t.Fatalf("expected delegate response to pass through, got %+v", responses)
	}
	if fake.calls.Load() != 1 {
		t.Errorf("expected 1 delegate call, got %d", fake.calls.Load())
	}
	if limited.Info().Name != "fake" {
		t.Errorf("expected delegate info, got %+v", limited.Info())
	}
}

func TestRateLimitedBlocksWhenExhausted(t *testing.T) {
	fake := &fakeModel{}
	// Burst of one and no refill: the second call can never be admitted.
	limited := NewRateLimited(fake, rate.Limit(0), 1)

	respCh, errCh := limited.Generate(context.Background(), model.Request{})
	for range respCh {
	}
	if err := <-errCh; err != nil {
		t.Fatalf("first call should be admitted, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	respCh, errCh = limited.Generate(ctx, model.Request{})
	for range respCh {
	}
	if err := <-errCh; err == nil {
		t.Fatal("expected limiter error on exhausted bucket")
	}
	if fake.calls.Load() != 1 {
		t.Errorf("limited call must not reach the delegate, got %d calls", fake.calls.Load())
	}
}

func TestPerMinute(t *testing.T) {
	if got := PerMinute(120); got != rate.Limit(2) {
		t.Errorf("expected 2 calls/sec, got %v", got)
	}
}
