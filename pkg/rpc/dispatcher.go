package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoHandler reports a call to a pattern nothing has registered.
var ErrNoHandler = errors.New("no handler registered")

// Dispatcher routes calls to registered handlers in-process. It implements
// Caller, so a generated client can run against local services with no
// network boundary during development.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds a handler to a dispatch pattern. Registering the same
// pattern again replaces the previous handler.
func (d *Dispatcher) Register(pattern string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[pattern] = h
}

// Patterns returns every registered pattern in sorted order.
func (d *Dispatcher) Patterns() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	patterns := make([]string, 0, len(d.handlers))
	for pattern := range d.handlers {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	return patterns
}

// Handle invokes the handler registered for pattern with a raw JSON payload.
// An unregistered pattern fails with an error matching ErrNoHandler.
func (d *Dispatcher) Handle(ctx context.Context, pattern string, payload []byte) ([]byte, error) {
	d.mu.RLock()
	h, ok := d.handlers[pattern]
	d.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, pattern)
	}
	return h(ctx, payload)
}

// Call implements Caller over Handle: the payload is marshaled to JSON and
// the response unmarshaled into result when result is non-nil.
func (d *Dispatcher) Call(ctx context.Context, pattern string, payload any, result any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", pattern, err)
	}

	response, err := d.Handle(ctx, pattern, data)
	if err != nil {
		return err
	}

	if result == nil || len(response) == 0 {
		return nil
	}
	if err := json.Unmarshal(response, result); err != nil {
		return fmt.Errorf("unmarshal response of %s: %w", pattern, err)
	}
	return nil
}
