package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// Compile-time check that MockModel satisfies Model.
var _ Model = (*MockModel)(nil)

// MockModel is a lightweight in-memory Model useful for tests and examples.
//
// Two scripting styles are supported. AddResponse registers a canned text
// completion keyed by the latest user text. Enqueue appends full Response
// values (or, via EnqueueError, failures) to a FIFO consumed one per Generate
// call, which is how tests script multi-turn exchanges involving function
// calls. The queue takes precedence while it is non-empty.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	queue     []scriptEntry
	calls     int
}

type scriptEntry struct {
	resp Response
	err  error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Enqueue appends scripted responses consumed in order, one per Generate call.
func (m *MockModel) Enqueue(responses ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range responses {
		m.queue = append(m.queue, scriptEntry{resp: r})
	}
}

// EnqueueError queues a Generate failure, e.g. to exercise transport error
// handling.
func (m *MockModel) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scriptEntry{err: err})
}

// EnqueueText is shorthand for queueing a final assistant text response.
func (m *MockModel) EnqueueText(text string) {
	m.Enqueue(Response{
		Content:      core.NewTextContent("assistant", text),
		TurnComplete: true,
		FinishReason: "stop",
	})
}

// EnqueueFunctionCalls queues a final response requesting the given calls.
func (m *MockModel) EnqueueFunctionCalls(calls ...core.FunctionCall) {
	parts := make([]core.Part, len(calls))
	for i, fc := range calls {
		parts[i] = core.FunctionCallPart{FunctionCall: fc}
	}
	m.Enqueue(Response{
		Content:      &core.Content{Role: "assistant", Parts: parts},
		TurnComplete: true,
		FinishReason: "tool_calls",
	})
}

// CallCount reports how many Generate calls the mock has served.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Generate implements Model; emits optional streaming char chunks then the
// final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls++
	var scripted *scriptEntry
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		scripted = &next
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if scripted != nil {
			if scripted.err != nil {
				errCh <- scripted.err
				return
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
			case respCh <- scripted.resp:
			}
			return
		}

		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}
		last := req.Contents[len(req.Contents)-1]
		var inputText string
		for _, p := range last.Parts {
			if tp, ok := p.(core.TextPart); ok {
				inputText += tp.Text
			}
		}

		m.mu.Lock()
		full := m.responses[inputText]
		m.mu.Unlock()
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}

		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.NewTextContent("assistant", string(r)),
				}:
				}
			}
		}
		respCh <- Response{
			Content:      core.NewTextContent("assistant", full),
			TurnComplete: true,
			FinishReason: "stop",
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
