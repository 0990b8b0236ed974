package task

import (
	"context"
)

// MockBody is a configurable Body for tests
type MockBody struct {
	KindName string
	RunFn    func(ctx context.Context, r Reporter) error
}

// NewMockBody creates a MockBody of the given kind running fn
func NewMockBody(kind string, fn func(ctx context.Context, r Reporter) error) *MockBody {
	return &MockBody{KindName: kind, RunFn: fn}
}

// NewBlockingMockBody creates a MockBody that runs until its task is asked to stop
func NewBlockingMockBody(kind string) *MockBody {
	return NewMockBody(kind, func(ctx context.Context, r Reporter) error {
		<-ctx.Done()
		return nil
	})
}

// Kind implements Kinded
func (b *MockBody) Kind() string {
	return b.KindName
}

// Run implements Body
func (b *MockBody) Run(ctx context.Context, r Reporter) error {
	if b.RunFn == nil {
		return nil
	}
	return b.RunFn(ctx, r)
}

// MockRestartableBody is a MockBody whose tasks can be restarted
type MockRestartableBody struct {
	MockBody
	RestartFn func(prev Snapshot) (Body, error)
}

// NewMockRestartableBody wraps body; successors run the same function
func NewMockRestartableBody(body *MockBody) *MockRestartableBody {
	return &MockRestartableBody{MockBody: *body}
}

// Restart implements Restartable
func (b *MockRestartableBody) Restart(prev Snapshot) (Body, error) {
	if b.RestartFn != nil {
		return b.RestartFn(prev)
	}
	next := *b
	return &next, nil
}
