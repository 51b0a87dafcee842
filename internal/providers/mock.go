package providers

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const MockRendererName = "mock"

// MockCall records one request made to a MockRenderer.
type MockCall struct {
	Video      bool
	Prompt     string
	References []string
	StartRef   string
	EndRef     string
}

// MockRenderer is a Renderer for testing and dry runs. It returns
// deterministic mock:// urls.
type MockRenderer struct {
	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	FailAfter  int // Fail after N requests (0 = never)
	FailFirst  int // Fail the first N requests, then succeed
	RPS        float64

	// FailFunc, when set, decides per call whether to fail.
	FailFunc func(call MockCall) error
	// OnCall, when set, runs before the call is answered.
	OnCall func(call MockCall)

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	calls        []MockCall
}

// NewMockRenderer creates a new mock renderer with no latency.
func NewMockRenderer() *MockRenderer {
	return &MockRenderer{RPS: 100}
}

// Name returns the renderer identifier.
func (m *MockRenderer) Name() string {
	return MockRendererName
}

// RequestsPerSecond returns the rate limit.
func (m *MockRenderer) RequestsPerSecond() float64 {
	return m.RPS
}

// GenerateImage returns mock://image/<n>.
func (m *MockRenderer) GenerateImage(ctx context.Context, req *ImageRequest) (*RenderResult, error) {
	return m.do(ctx, MockCall{
		Prompt:     req.Prompt,
		References: slices.Clone(req.References),
	})
}

// GenerateVideo returns mock://video/<n>.
func (m *MockRenderer) GenerateVideo(ctx context.Context, req *VideoRequest) (*RenderResult, error) {
	return m.do(ctx, MockCall{
		Video:      true,
		Prompt:     req.Prompt,
		References: slices.Clone(req.References),
		StartRef:   req.StartRef,
		EndRef:     req.EndRef,
	})
}

func (m *MockRenderer) do(ctx context.Context, call MockCall) (*RenderResult, error) {
	start := time.Now()
	count := m.requestCount.Add(1)

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	if m.OnCall != nil {
		m.OnCall(call)
	}

	if m.ShouldFail {
		return nil, fmt.Errorf("mock renderer configured to fail")
	}
	if m.FailAfter > 0 && int(count) > m.FailAfter {
		return nil, fmt.Errorf("mock renderer failed after %d requests", m.FailAfter)
	}
	if m.FailFirst > 0 && int(count) <= m.FailFirst {
		return nil, fmt.Errorf("mock renderer failing request %d of first %d", count, m.FailFirst)
	}
	if m.FailFunc != nil {
		if err := m.FailFunc(call); err != nil {
			return nil, err
		}
	}

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	kind := "image"
	if call.Video {
		kind = "video"
	}
	return &RenderResult{
		URL:           fmt.Sprintf("mock://%s/%d", kind, count),
		Provider:      MockRendererName,
		Model:         "mock",
		RequestID:     fmt.Sprintf("mock-%d", count),
		ExecutionTime: time.Since(start),
	}, nil
}

// RequestCount returns the number of requests made.
func (m *MockRenderer) RequestCount() int64 {
	return m.requestCount.Load()
}

// Calls returns a copy of every recorded call.
func (m *MockRenderer) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Reset clears the request counter and recorded calls.
func (m *MockRenderer) Reset() {
	m.requestCount.Store(0)
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

var _ Renderer = (*MockRenderer)(nil)
