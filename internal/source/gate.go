package source

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// StaticGate is an AuthGate that is always ready with a fixed token.
// Useful for tools and tests; an empty token disables the auth header.
type StaticGate string

func (g StaticGate) WaitReady(context.Context) (string, error) {
	return string(g), nil
}

// SignalGate adapts a callback-style auth provider: the provider calls
// Signal once its identity is established, and WaitReady blocks until
// then or until the caller's deadline expires.
type SignalGate struct {
	once  sync.Once
	ch    chan struct{}
	mu    sync.Mutex
	token string
}

// NewSignalGate creates an unsignalled gate.
func NewSignalGate() *SignalGate {
	return &SignalGate{ch: make(chan struct{})}
}

// Signal marks the auth layer ready. An empty token gets a generated
// session id so the remote store can correlate requests.
func (g *SignalGate) Signal(token string) {
	g.once.Do(func() {
		if token == "" {
			token = uuid.NewString()
		}
		g.mu.Lock()
		g.token = token
		g.mu.Unlock()
		close(g.ch)
	})
}

// WaitReady blocks until Signal or context expiry.
func (g *SignalGate) WaitReady(ctx context.Context) (string, error) {
	select {
	case <-g.ch:
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
